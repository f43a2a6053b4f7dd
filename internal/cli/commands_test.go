package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idlink/internal/identity"
	"github.com/roach88/idlink/internal/linking"
)

// jsonResponse mirrors CLIResponse with the payload left undecoded.
type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// runJSON executes a command with --format json and decodes the response.
// data, when non-nil, receives the payload.
func runJSON(t *testing.T, db string, data any, args ...string) (jsonResponse, error) {
	t.Helper()

	args = append(args, "--db", db, "--format", "json")
	out, err := runCLI(t, args...)

	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if data != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp, err
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "idlink.db")
}

func TestRegisterAndAutoLinkFlow(t *testing.T) {
	db := tempDB(t)

	var first RegisterOutput
	resp, err := runJSON(t, db, &first, "register",
		"--id", "alice", "--email", "alice@example.com", "--name", "Alice Adams", "--provider", "google")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "alice", first.Record.ID)
	assert.Equal(t, []string{"google"}, first.Record.AuthMethods)
	assert.False(t, first.AutoLink.Linked)
	assert.Equal(t, "No existing account matched with enough confidence", first.AutoLink.Message)

	var second RegisterOutput
	_, err = runJSON(t, db, &second, "register",
		"--id", "alice-2", "--email", "ALICE@Example.com", "--name", "Alice Adams", "--password-hash", "bcrypt$x")
	require.NoError(t, err)
	require.True(t, second.AutoLink.Linked, second.AutoLink.Message)
	assert.Equal(t, "alice", second.AutoLink.CandidateID)
	assert.Equal(t, 100, second.AutoLink.Confidence)
	assert.Equal(t, identity.StatusMerged, second.Record.Status)
	assert.Equal(t, "alice", second.Record.MergedInto)
	groupID := second.AutoLink.GroupID
	require.NotEmpty(t, groupID)

	var target linking.MemberSummary
	_, err = runJSON(t, db, &target, "resolve", "alice-2")
	require.NoError(t, err)
	assert.Equal(t, "alice", target.ID)
	assert.ElementsMatch(t, []string{"google", "credentials"}, target.AuthMethods)

	var members []linking.MemberSummary
	_, err = runJSON(t, db, &members, "group", groupID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].ID)
	assert.True(t, members[0].IsMaster)
	assert.Equal(t, "alice-2", members[1].ID)
	assert.False(t, members[1].IsActive)

	var history []identity.MergeEntry
	_, err = runJSON(t, db, &history, "history", groupID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "alice", history[0].PrimaryID)
	assert.Equal(t, "alice-2", history[0].SecondaryID)
}

func TestMergeCommand(t *testing.T) {
	db := tempDB(t)

	_, err := runJSON(t, db, nil, "register", "--id", "a", "--email", "a@example.com", "--name", "Ann")
	require.NoError(t, err)
	_, err = runJSON(t, db, nil, "register", "--id", "b", "--phone", "+1 555 0100", "--name", "Bob")
	require.NoError(t, err)

	var res linking.MergeResult
	_, err = runJSON(t, db, &res, "merge", "a", "b")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.MergedCount)
	assert.Equal(t, "a", res.MergedUserID)

	// Repeating the merge is a successful no-op.
	var again linking.MergeResult
	_, err = runJSON(t, db, &again, "merge", "a", "b")
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Equal(t, 0, again.MergedCount)
	assert.Equal(t, linking.ErrCodeAlreadyMerged, again.Code)
	assert.Equal(t, []string{"b"}, again.AlreadyMerged)
	assert.Equal(t, res.GroupID, again.GroupID)
}

func TestMergeCommandErrors(t *testing.T) {
	db := tempDB(t)
	_, err := runJSON(t, db, nil, "register", "--id", "a", "--email", "a@example.com")
	require.NoError(t, err)
	_, err = runJSON(t, db, nil, "register", "--id", "b", "--email", "b@example.com")
	require.NoError(t, err)

	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"missing_secondary", []string{"merge", "a", "ghost"}, "NOT_FOUND"},
		{"missing_primary", []string{"merge", "ghost", "a"}, "NOT_FOUND"},
		{"self_merge", []string{"merge", "a", "a"}, "INVALID_REQUEST"},
		{"no_group_creation", []string{"merge", "a", "b", "--no-group-creation"}, "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := runJSON(t, db, nil, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestMergeCommandRequiresSecondary(t *testing.T) {
	_, err := runCLI(t, "merge", "a", "--db", tempDB(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 2 arg")
}

func TestCandidatesAndSuggest(t *testing.T) {
	db := tempDB(t)
	_, err := runJSON(t, db, nil, "register", "--id", "a", "--email", "alice@example.com", "--name", "Alice Adams")
	require.NoError(t, err)
	_, err = runJSON(t, db, nil, "register", "--id", "b", "--email", "other@example.com", "--name", "Alicia Adams")
	require.NoError(t, err)

	var cands []linking.Candidate
	_, err = runJSON(t, db, &cands, "candidates", "--email", "alice@example.com", "--name", "Alice Adams")
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "a", cands[0].ID)
	assert.Equal(t, 100, cands[0].Confidence)
	assert.Equal(t, "b", cands[1].ID)
	assert.Equal(t, 70, cands[1].Confidence)

	var excluded []linking.Candidate
	_, err = runJSON(t, db, &excluded, "candidates", "--email", "alice@example.com", "--exclude", "a")
	require.NoError(t, err)
	assert.Empty(t, excluded)

	var sug linking.Suggestion
	_, err = runJSON(t, db, &sug, "suggest", "--email", "alice@example.com", "--name", "Alice Adams")
	require.NoError(t, err)
	assert.True(t, sug.ShouldSuggest)
	assert.Equal(t, 100, sug.Confidence)
	require.Len(t, sug.Candidates, 1)
	assert.Equal(t, "a", sug.Candidates[0].ID)
}

func TestCandidatesTextOutput(t *testing.T) {
	db := tempDB(t)
	_, err := runJSON(t, db, nil, "register", "--id", "a", "--email", "alice@example.com", "--name", "Alice Adams")
	require.NoError(t, err)

	out, err := runCLI(t, "candidates", "--email", "alice@example.com", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "CONFIDENCE")
	assert.Contains(t, out, "100%")
	assert.Contains(t, out, "Primary email match")

	out, err = runCLI(t, "candidates", "--email", "nobody@example.com", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No candidates found.\n", out)
}

func TestAutoLinkCommandNeverLinksNameOnly(t *testing.T) {
	db := tempDB(t)
	_, err := runJSON(t, db, nil, "register", "--id", "a", "--email", "alice@example.com", "--name", "Alice Adams")
	require.NoError(t, err)
	_, err = runJSON(t, db, nil, "register", "--id", "b", "--email", "b@example.com", "--name", "Alice Adams")
	require.NoError(t, err)

	var res linking.AutoLinkResult
	resp, err := runJSON(t, db, &res, "autolink", "b", "--name", "Alice Adams", "--threshold", "50")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, res.Linked)
	assert.Equal(t, linking.ErrCodeAmbiguousMatch, res.Code)
	assert.Equal(t, "a", res.CandidateID)
}

func TestResolveCommandNotFound(t *testing.T) {
	resp, err := runJSON(t, tempDB(t), nil, "resolve", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestResolveCommandText(t *testing.T) {
	db := tempDB(t)
	_, err := runJSON(t, db, nil, "register", "--id", "a", "--email", "a@example.com", "--name", "Ann")
	require.NoError(t, err)

	out, err := runCLI(t, "resolve", "a", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "a signs in as itself")
	assert.Contains(t, out, "Email: a@example.com")
}

func TestRegisterDuplicateID(t *testing.T) {
	db := tempDB(t)
	_, err := runJSON(t, db, nil, "register", "--id", "a", "--email", "a@example.com")
	require.NoError(t, err)

	resp, err := runJSON(t, db, nil, "register", "--id", "a", "--email", "z@example.com")
	require.Error(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
}

func TestHistoryEmptyGroup(t *testing.T) {
	var history []identity.MergeEntry
	_, err := runJSON(t, tempDB(t), &history, "history", "no-such-group")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestOpenServiceBadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.cue")
	require.NoError(t, os.WriteFile(path, []byte("max_candidates: 0\n"), 0644))

	_, err := runCLI(t, "candidates", "--email", "a@example.com", "--db", tempDB(t), "--policy", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load policy")
}

func TestOpenServiceBadDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing", "dir", "idlink.db")

	_, err := runCLI(t, "group", "g1", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open database")
}

func TestPolicyValidateCommand(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.cue")
	require.NoError(t, os.WriteFile(valid, []byte("suggest_floor: 70\n"), 0644))

	var v PolicyValidation
	resp, err := runJSON(t, filepath.Join(dir, "unused.db"), &v, "policy", "validate", valid)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, v.Valid)
	assert.Equal(t, 70, v.Policy.SuggestFloor)
	assert.Equal(t, 95, v.Policy.AutoLinkThreshold)

	invalid := filepath.Join(dir, "invalid.cue")
	require.NoError(t, os.WriteFile(invalid, []byte("suggest_floor: 170\n"), 0644))
	resp, err = runJSON(t, filepath.Join(dir, "unused.db"), nil, "policy", "validate", invalid)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodePolicyInvalid, resp.Error.Code)

	resp, err = runJSON(t, filepath.Join(dir, "unused.db"), nil, "policy", "validate", filepath.Join(dir, "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodePolicyRead, resp.Error.Code)
}

func TestPolicyShowDefault(t *testing.T) {
	out, err := runCLI(t, "policy", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "auto_link_threshold")
	assert.Contains(t, out, "95")
}

func TestSignInCommand(t *testing.T) {
	db := tempDB(t)
	_, err := runCLI(t, "register", "--id", "a", "--email", "a@example.com", "--db", db)
	require.NoError(t, err)
	_, err = runCLI(t, "register", "--id", "b", "--email", "b@example.com", "--db", db)
	require.NoError(t, err)
	_, err = runCLI(t, "merge", "a", "b", "--db", db)
	require.NoError(t, err)

	var out SignInOutput
	resp, err := runJSON(t, db, &out, "signin", "b")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "a", out.Record.ID)
	assert.False(t, out.SignedInAt.IsZero())

	text, err := runCLI(t, "signin", "a", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, text, "a signed in as a at ")

	resp, err = runJSON(t, db, nil, "signin", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestDeactivateCommand(t *testing.T) {
	db := tempDB(t)
	_, err := runCLI(t, "register", "--id", "a", "--email", "alice@example.com", "--name", "Alice Adams", "--db", db)
	require.NoError(t, err)

	text, err := runCLI(t, "deactivate", "a", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "a deactivated\n", text)

	_, err = runCLI(t, "deactivate", "a", "--db", db)
	require.NoError(t, err, "deactivating twice is a no-op")

	var cands []linking.Candidate
	_, err = runJSON(t, db, &cands, "candidates", "--email", "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, cands)

	resp, err := runJSON(t, db, nil, "signin", "a")
	require.Error(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)

	resp, err = runJSON(t, db, nil, "deactivate", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}
