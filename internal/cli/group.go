package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/idlink/internal/identity"
	"github.com/roach88/idlink/internal/linking"
)

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	var noGroupCreation bool

	cmd := &cobra.Command{
		Use:   "merge <primary-id> <secondary-id>...",
		Short: "Merge records into a primary account",
		Long: `Merge one or more secondary records into a primary record.

The primary gains every email, phone and sign-in method of the
secondaries and becomes the group master. Secondaries become inert and
point at the primary. Merging already merged secondaries again is a
successful no-op.

Exit codes:
  0 - Merge applied, or nothing left to merge
  1 - Merge rejected (record not found, invalid request, conflict)
  2 - Command error (database unavailable, etc.)

Examples:
  idlink merge rec-1 rec-2
  idlink merge rec-1 rec-2 rec-3 --format json`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(rootOpts, args[0], args[1:], noGroupCreation, cmd)
		},
	}

	cmd.Flags().BoolVar(&noGroupCreation, "no-group-creation", false, "fail instead of creating a group when none exists")

	return cmd
}

func runMerge(opts *RootOptions, primaryID string, secondaryIDs []string, noGroupCreation bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	svc, st, err := openService(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	var mopts []linking.MergeOption
	if noGroupCreation {
		mopts = append(mopts, linking.WithoutGroupCreation())
	}

	res, err := svc.Merge(cmd.Context(), primaryID, secondaryIDs, mopts...)
	if err != nil {
		return formatter.LinkFailure(err, res)
	}

	return formatter.Success(res, func(w io.Writer) {
		if res.MergedCount == 0 {
			fmt.Fprintf(w, "✓ Nothing to merge: %s already merged\n", strings.Join(res.AlreadyMerged, ", "))
			return
		}
		fmt.Fprintf(w, "✓ Merged %d account(s) into %s\n", res.MergedCount, res.MergedUserID)
		fmt.Fprintf(w, "  Group: %s\n", res.GroupID)
		if len(res.AlreadyMerged) > 0 {
			fmt.Fprintf(w, "  Skipped (already merged): %s\n", strings.Join(res.AlreadyMerged, ", "))
		}
	})
}

// NewGroupCommand creates the group command.
func NewGroupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group <group-id>",
		Short: "List the members of a linked group",
		Long: `List every record of a group, merged members included, master first.

Examples:
  idlink group 0190f3c2-7d41-7a8e-9d52-3f0f4b1f0c11`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGroup(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runGroup(opts *RootOptions, groupID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	svc, st, err := openService(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	members, err := svc.GetGroupMembers(cmd.Context(), groupID)
	if err != nil {
		return formatter.LinkFailure(err, nil)
	}

	return formatter.Success(members, func(w io.Writer) {
		if len(members) == 0 {
			fmt.Fprintf(w, "Group %s has no members.\n", groupID)
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tROLE\tSTATUS\tEMAIL\tPHONE\tAUTH")
		for _, m := range members {
			role := "member"
			if m.IsMaster {
				role = "master"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				m.ID, role, m.Status, dash(m.Email), dash(m.Phone), dash(strings.Join(m.AuthMethods, ",")))
		}
		tw.Flush()
	})
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <record-id>",
		Short: "Show which record a sign-in should land on",
		Long: `Follow merge pointers from a record to the account that should
authenticate. Records that were never merged resolve to themselves.

Examples:
  idlink resolve rec-2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runResolve(opts *RootOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	svc, st, err := openService(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := svc.ResolveLoginTarget(cmd.Context(), id)
	if err != nil {
		return formatter.LinkFailure(err, nil)
	}

	member := linking.Summarize(rec)
	return formatter.Success(member, func(w io.Writer) {
		if rec.ID == id {
			fmt.Fprintf(w, "%s signs in as itself\n", id)
		} else {
			fmt.Fprintf(w, "%s signs in as %s\n", id, rec.ID)
		}
		writeMember(w, member)
	})
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <group-id>",
		Short: "Show the merge log of a group",
		Long: `Show every merge recorded for a group, oldest first.

Examples:
  idlink history 0190f3c2-7d41-7a8e-9d52-3f0f4b1f0c11 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runHistory(opts *RootOptions, groupID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	svc, st, err := openService(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := svc.History(cmd.Context(), groupID)
	if err != nil {
		return formatter.LinkFailure(err, nil)
	}

	return formatter.Success(entries, func(w io.Writer) {
		writeHistory(w, entries)
	})
}

func writeHistory(w io.Writer, entries []identity.MergeEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No merges recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tMERGED AT\tPRIMARY\tSECONDARY")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Seq, e.MergedAt.UTC().Format(time.RFC3339), e.PrimaryID, e.SecondaryID)
	}
	tw.Flush()
}
