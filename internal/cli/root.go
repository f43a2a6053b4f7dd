package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/idlink/internal/config"
	"github.com/roach88/idlink/internal/linking"
	"github.com/roach88/idlink/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DB      string // overrides IDLINK_DB
	Policy  string // overrides IDLINK_POLICY
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the idlink CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "idlink",
		Short: "idlink - account linking and identity resolution",
		Long: `Find, suggest and merge user records that belong to the same person.

Records are kept in a SQLite database (--db or IDLINK_DB). Scoring
thresholds come from a CUE policy file (--policy or IDLINK_POLICY), or
the built-in defaults.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "path to the identity database (default $IDLINK_DB or idlink.db)")
	cmd.PersistentFlags().StringVar(&opts.Policy, "policy", "", "path to a CUE policy file (default $IDLINK_POLICY)")

	// Add subcommands
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewCandidatesCommand(opts))
	cmd.AddCommand(NewSuggestCommand(opts))
	cmd.AddCommand(NewAutoLinkCommand(opts))
	cmd.AddCommand(NewMergeCommand(opts))
	cmd.AddCommand(NewGroupCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewSignInCommand(opts))
	cmd.AddCommand(NewDeactivateCommand(opts))
	cmd.AddCommand(NewPolicyCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.ParseEnv()
	if err != nil {
		return config.Config{}, err
	}
	if opts.DB != "" {
		cfg.DBPath = opts.DB
	}
	if opts.Policy != "" {
		cfg.PolicyPath = opts.Policy
	}
	if opts.Verbose {
		cfg.LogLevel = slog.LevelDebug.String()
	}
	return cfg, nil
}

// openService opens the configured store and builds a linking service over
// it. The caller must close the returned store.
func openService(opts *RootOptions, cmd *cobra.Command) (*linking.Service, *store.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	pol, err := cfg.Policy()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load policy", err)
	}

	st, err := store.Open(cfg.DBPath, store.WithBusyTimeout(cfg.BusyTimeout))
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	logger.Debug("opened identity store", "path", cfg.DBPath)

	svc := linking.New(st,
		linking.WithLogger(logger),
		linking.WithPolicy(pol),
	)
	return svc, st, nil
}
