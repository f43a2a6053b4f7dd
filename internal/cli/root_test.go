package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "idlink", cmd.Use)
	assert.Contains(t, cmd.Long, "same person")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"register", "candidates", "suggest", "autolink", "merge", "group", "resolve", "history", "signin", "deactivate", "policy", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestPolicySubcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"validate", "show"} {
		sub, _, err := cmd.Find([]string{"policy", name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	// empty defers to IDLINK_DB
	assert.Equal(t, "", dbFlag.DefValue)

	policyFlag := cmd.PersistentFlags().Lookup("policy")
	require.NotNil(t, policyFlag)
	assert.Equal(t, "", policyFlag.DefValue)
}

func TestAutoLinkCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	autoCmd, _, err := cmd.Find([]string{"autolink"})
	require.NoError(t, err)

	thresholdFlag := autoCmd.Flags().Lookup("threshold")
	require.NotNil(t, thresholdFlag)
	assert.Equal(t, "0", thresholdFlag.DefValue)

	for _, name := range []string{"email", "phone", "name"} {
		assert.NotNil(t, autoCmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Nil(t, autoCmd.Flags().Lookup("exclude"))
}

func TestMergeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	mergeCmd, _, err := cmd.Find([]string{"merge"})
	require.NoError(t, err)

	flag := mergeCmd.Flags().Lookup("no-group-creation")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestRegisterCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	regCmd, _, err := cmd.Find([]string{"register"})
	require.NoError(t, err)

	for _, name := range []string{"id", "email", "phone", "name", "password-hash", "provider", "avatar", "avatar-source", "email-verified", "phone-verified"} {
		assert.NotNil(t, regCmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"policy", "show", "--format", "yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("IDLINK_DB", "/env/idlink.db")
	t.Setenv("IDLINK_POLICY", "/env/policy.cue")

	cfg, err := loadConfig(&RootOptions{DB: "/flag/idlink.db", Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, "/flag/idlink.db", cfg.DBPath)
	assert.Equal(t, "/env/policy.cue", cfg.PolicyPath)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestLoadConfig_EnvError(t *testing.T) {
	t.Setenv("IDLINK_BUSY_TIMEOUT", "soon")

	_, err := loadConfig(&RootOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}
