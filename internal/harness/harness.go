package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/idlink/internal/identity"
	"github.com/roach88/idlink/internal/linking"
	"github.com/roach88/idlink/internal/policy"
	"github.com/roach88/idlink/internal/store"
	"github.com/roach88/idlink/internal/testutil"
)

// Epoch is the clock reading at the start of every scenario.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness executes one scenario against its own store.
type Harness struct {
	store   *store.Store
	service *linking.Service
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load the scenario's policy, if any
// 3. Insert seeded records
// 4. Execute flow steps, validating expect clauses
// 5. Evaluate assertions over the trace and final state
//
// Expect and assertion failures are reported in the result. The error
// return is reserved for scenarios that cannot run at all.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	pol := policy.Default()
	if scenario.Policy != "" {
		pol, err = policy.Load(scenario.Policy)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy: %w", err)
		}
	}

	clock := testutil.NewDeterministicClock(Epoch)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		store: st,
		service: linking.New(st,
			linking.WithPolicy(pol),
			linking.WithLogger(logger),
			linking.WithClock(clock.Now),
			linking.WithGroupIDs(testutil.NewSequentialIDs("group")),
			linking.WithRecordIDs(testutil.NewSequentialIDs("rec")),
			linking.WithRetryDelay(time.Millisecond),
		),
		clock:  clock,
		logger: logger,
	}

	ctx := context.Background()

	if err := h.seed(ctx, scenario.Records); err != nil {
		return nil, fmt.Errorf("failed to seed records: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		h.clock.Advance(time.Second)

		out := h.execute(ctx, step)
		result.AddTrace(step.Op, argsMap(step.Args), out)

		if step.Expect != nil {
			if diff := subsetMismatch("", step.Expect, out); diff != "" {
				result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, diff))
			}
		}
		h.logger.Info("flow step completed", "step", i, "op", step.Op)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// seed inserts the scenario's records.
func (h *Harness) seed(ctx context.Context, recs []RecordSpec) error {
	for i, spec := range recs {
		rec := identity.Record{
			ID:            spec.ID,
			PrimaryEmail:  spec.Email,
			PrimaryPhone:  spec.Phone,
			LinkedEmails:  spec.LinkedEmails,
			LinkedPhones:  spec.LinkedPhones,
			Providers:     spec.Providers,
			Name:          spec.Name,
			PasswordHash:  spec.Password,
			Avatar:        spec.Avatar,
			AvatarSource:  spec.AvatarSource,
			EmailVerified: spec.EmailVerified,
			PhoneVerified: spec.PhoneVerified,
			GroupID:       spec.Group,
			IsMaster:      spec.Master,
			Status:        identity.AccountStatus(spec.Status),
			MergedInto:    spec.MergedInto,
			CreatedAt:     Epoch,
		}
		if rec.Status == identity.StatusMerged {
			at := Epoch
			rec.MergedAt = &at
		}
		if err := h.store.Insert(ctx, rec); err != nil {
			return fmt.Errorf("records[%d]: %w", i, err)
		}
	}
	return nil
}

// execute runs one step and renders its outcome as a canonical result map.
func (h *Harness) execute(ctx context.Context, step FlowStep) map[string]any {
	a := step.Args
	q := linking.Query{Email: a.Email, Phone: a.Phone, Name: a.Name, ExcludeID: a.ExcludeID}

	switch step.Op {
	case OpFindCandidates:
		cands, err := h.service.FindCandidates(ctx, q)
		if err != nil {
			return errorMap(err)
		}
		list := make([]any, len(cands))
		for i, c := range cands {
			list[i] = candidateMap(c)
		}
		return map[string]any{"candidates": list}

	case OpSuggest:
		sug, err := h.service.Suggest(ctx, q)
		if err != nil {
			return errorMap(err)
		}
		ids := make([]any, len(sug.Candidates))
		for i, c := range sug.Candidates {
			ids[i] = c.ID
		}
		return map[string]any{
			"should_suggest": sug.ShouldSuggest,
			"confidence":     sug.Confidence,
			"candidates":     ids,
		}

	case OpAutoLink:
		return autoLinkMap(h.service.AutoLinkIfConfident(ctx, a.ID, q, a.Threshold))

	case OpMerge:
		var opts []linking.MergeOption
		if a.NoGroupCreation {
			opts = append(opts, linking.WithoutGroupCreation())
		}
		res, _ := h.service.Merge(ctx, a.Primary, a.Secondaries, opts...)
		return mergeMap(res)

	case OpGroup:
		members, err := h.service.GetGroupMembers(ctx, a.Group)
		if err != nil {
			return errorMap(err)
		}
		list := make([]any, len(members))
		for i, m := range members {
			list[i] = memberMap(m)
		}
		return map[string]any{"members": list}

	case OpResolve:
		rec, err := h.service.ResolveLoginTarget(ctx, a.ID)
		if err != nil {
			return errorMap(err)
		}
		return map[string]any{"id": rec.ID, "status": string(rec.Status)}

	case OpRegister:
		res, err := h.service.Register(ctx, linking.NewIdentity{
			ID:            a.ID,
			Email:         a.Email,
			Phone:         a.Phone,
			Name:          a.Name,
			PasswordHash:  a.Password,
			Providers:     a.Providers,
			EmailVerified: a.EmailVerified,
			PhoneVerified: a.PhoneVerified,
		})
		if err != nil {
			return errorMap(err)
		}
		out := map[string]any{
			"id":        res.Record.ID,
			"status":    string(res.Record.Status),
			"auto_link": autoLinkMap(res.AutoLink),
		}
		putString(out, "group_id", res.Record.GroupID)
		return out

	case OpHistory:
		entries, err := h.service.History(ctx, a.Group)
		if err != nil {
			return errorMap(err)
		}
		list := make([]any, len(entries))
		for i, e := range entries {
			list[i] = map[string]any{
				"group_id":     e.GroupID,
				"primary_id":   e.PrimaryID,
				"secondary_id": e.SecondaryID,
			}
		}
		return map[string]any{"entries": list}
	}

	// Unreachable for validated scenarios.
	return map[string]any{"error_code": string(linking.ErrCodeInvalidRequest)}
}
