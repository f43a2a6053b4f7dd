package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/idlink/internal/policy"
)

// Error codes for policy commands.
const (
	ErrCodePolicyInvalid = "E_POLICY_INVALID"
	ErrCodePolicyRead    = "E_POLICY_READ"
)

// PolicyValidation is the JSON payload of policy validate.
type PolicyValidation struct {
	Valid  bool          `json:"valid"`
	Path   string        `json:"path"`
	Policy policy.Policy `json:"policy"`
}

// NewPolicyCommand creates the policy command group.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and validate linking policies",
	}

	cmd.AddCommand(newPolicyValidateCommand(rootOpts))
	cmd.AddCommand(newPolicyShowCommand(rootOpts))

	return cmd
}

func newPolicyValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <policy-file>",
		Short: "Validate a CUE policy file",
		Long: `Check a policy file against the policy schema: known fields only,
confidences within 0..100, and an auto-link threshold no lower than the
suggestion floor. Prints the resolved policy with defaults filled in.

Exit codes:
  0 - Policy is valid
  1 - Policy is invalid
  2 - File cannot be read`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyValidate(rootOpts, args[0], cmd)
		},
	}
}

func runPolicyValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	formatter.VerboseLog("Validating %s", path)

	p, err := policy.Load(path)
	if err != nil {
		var lerr *policy.LoadError
		if errors.As(err, &lerr) {
			if outErr := formatter.Error(ErrCodePolicyInvalid, lerr.Error(), nil); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, "invalid policy", err)
		}
		if outErr := formatter.Error(ErrCodePolicyRead, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "cannot read policy", err)
	}

	src, err := policy.Format(p)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot render policy", err)
	}

	return formatter.Success(PolicyValidation{Valid: true, Path: path, Policy: p}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s is valid\n\n", path)
		w.Write(src)
	})
}

func newPolicyShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the policy in effect",
		Long: `Print the policy selected by --policy or IDLINK_POLICY, or the
built-in default when neither is set, as CUE source.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicyShow(rootOpts, cmd)
		},
	}
}

func runPolicyShow(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	p, err := cfg.Policy()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load policy", err)
	}
	src, err := policy.Format(p)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot render policy", err)
	}

	return formatter.Success(p, func(w io.Writer) {
		w.Write(src)
	})
}
