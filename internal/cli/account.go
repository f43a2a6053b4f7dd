package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/idlink/internal/linking"
)

// SignInOutput is the JSON payload of the signin command.
type SignInOutput struct {
	Record     linking.MemberSummary `json:"record"`
	SignedInAt time.Time             `json:"signedInAt"`
}

// NewSignInCommand creates the signin command.
func NewSignInCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signin <record-id>",
		Short: "Record a sign-in for a record",
		Long: `Resolve a record to its login target and stamp the target's last
sign-in time. Signing in with a merged record lands on its master.
Deactivated accounts cannot sign in.

Examples:
  idlink signin rec-2 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignIn(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSignIn(opts *RootOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	svc, st, err := openService(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := svc.SignIn(cmd.Context(), id)
	if err != nil {
		return formatter.LinkFailure(err, nil)
	}

	out := SignInOutput{Record: linking.Summarize(rec)}
	if rec.LastSignIn != nil {
		out.SignedInAt = rec.LastSignIn.UTC()
	}
	return formatter.Success(out, func(w io.Writer) {
		fmt.Fprintf(w, "%s signed in as %s at %s\n", id, rec.ID, out.SignedInAt.Format(time.RFC3339))
	})
}

// NewDeactivateCommand creates the deactivate command.
func NewDeactivateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <record-id>",
		Short: "Deactivate a record",
		Long: `Soft-delete an active record. Deactivated records are no longer
offered as candidates and cannot be merged. Deactivating twice is a
no-op; merged records cannot be deactivated.

Examples:
  idlink deactivate rec-3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeactivate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runDeactivate(opts *RootOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	svc, st, err := openService(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := svc.Deactivate(cmd.Context(), id); err != nil {
		return formatter.LinkFailure(err, nil)
	}
	formatter.VerboseLog("deactivated %s", id)

	return formatter.Success(map[string]string{"id": id, "status": "deactivated"}, func(w io.Writer) {
		fmt.Fprintf(w, "%s deactivated\n", id)
	})
}
