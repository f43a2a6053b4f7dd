package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/idlink/internal/linking"
)

// QueryOptions holds the lookup flags shared by candidates, suggest and
// autolink.
type QueryOptions struct {
	Email   string
	Phone   string
	Name    string
	Exclude string
}

func (o *QueryOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Email, "email", "", "email address to match")
	cmd.Flags().StringVar(&o.Phone, "phone", "", "phone number to match")
	cmd.Flags().StringVar(&o.Name, "name", "", "display name to compare")
}

func (o *QueryOptions) query() linking.Query {
	return linking.Query{
		Email:     o.Email,
		Phone:     o.Phone,
		Name:      o.Name,
		ExcludeID: o.Exclude,
	}
}

// NewCandidatesCommand creates the candidates command.
func NewCandidatesCommand(rootOpts *RootOptions) *cobra.Command {
	qopts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List records that may belong to the same person",
		Long: `List active records matching an email, phone or name, ranked by
confidence.

Examples:
  idlink candidates --email alice@example.com
  idlink candidates --phone "+1 555 0100" --name "Alice Adams" --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCandidates(rootOpts, qopts, cmd)
		},
	}

	qopts.bind(cmd)
	cmd.Flags().StringVar(&qopts.Exclude, "exclude", "", "record id to leave out of the results")

	return cmd
}

func runCandidates(opts *RootOptions, qopts *QueryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	svc, st, err := openService(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	cands, err := svc.FindCandidates(cmd.Context(), qopts.query())
	if err != nil {
		return formatter.LinkFailure(err, nil)
	}
	formatter.VerboseLog("Found %d candidate(s)", len(cands))

	return formatter.Success(cands, func(w io.Writer) {
		writeCandidates(w, cands)
	})
}

// NewSuggestCommand creates the suggest command.
func NewSuggestCommand(rootOpts *RootOptions) *cobra.Command {
	qopts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Show the candidates worth offering for manual linking",
		Long: `Show the candidates whose confidence reaches the suggestion floor of
the active policy.

Examples:
  idlink suggest --email alice@example.com --name "Alice Adams"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuggest(rootOpts, qopts, cmd)
		},
	}

	qopts.bind(cmd)
	cmd.Flags().StringVar(&qopts.Exclude, "exclude", "", "record id to leave out of the results")

	return cmd
}

func runSuggest(opts *RootOptions, qopts *QueryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	svc, st, err := openService(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	sug, err := svc.Suggest(cmd.Context(), qopts.query())
	if err != nil {
		return formatter.LinkFailure(err, nil)
	}

	return formatter.Success(sug, func(w io.Writer) {
		if !sug.ShouldSuggest {
			fmt.Fprintln(w, "No suggestions.")
			return
		}
		fmt.Fprintf(w, "Suggest linking (best confidence %d%%):\n", sug.Confidence)
		writeCandidates(w, sug.Candidates)
	})
}

// NewAutoLinkCommand creates the autolink command.
func NewAutoLinkCommand(rootOpts *RootOptions) *cobra.Command {
	qopts := &QueryOptions{}
	var threshold int

	cmd := &cobra.Command{
		Use:   "autolink <record-id>",
		Short: "Link a record to its best match when the match is exact",
		Long: `Merge a record into its best matching account when the match reaches
the threshold and is on a primary email or primary phone.

Name-only and linked-identifier matches are never linked automatically.
A record that is not linked is not an error: the reason is reported and
the command exits 0.

Examples:
  idlink autolink rec-42 --email alice@example.com
  idlink autolink rec-42 --phone "+15550100" --threshold 98`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutoLink(rootOpts, qopts, threshold, args[0], cmd)
		},
	}

	qopts.bind(cmd)
	cmd.Flags().IntVar(&threshold, "threshold", 0, "minimum confidence (0 uses the policy default)")

	return cmd
}

func runAutoLink(opts *RootOptions, qopts *QueryOptions, threshold int, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	svc, st, err := openService(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	res := svc.AutoLinkIfConfident(cmd.Context(), id, qopts.query(), threshold)
	if res.Code == linking.ErrCodeStoreFailure {
		return formatter.LinkFailure(&linking.LinkError{Code: res.Code, Message: res.Message, RecordID: id}, res)
	}

	return formatter.Success(res, func(w io.Writer) {
		writeAutoLink(w, res)
	})
}

func writeCandidates(w io.Writer, cands []linking.Candidate) {
	if len(cands) == 0 {
		fmt.Fprintln(w, "No candidates found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCONFIDENCE\tNAME\tGROUP\tREASONS")
	for _, c := range cands {
		fmt.Fprintf(tw, "%s\t%d%%\t%s\t%s\t%s\n",
			c.ID, c.Confidence, c.Name, dash(c.GroupID), strings.Join(c.MatchReasons, "; "))
	}
	tw.Flush()
}

func writeAutoLink(w io.Writer, res linking.AutoLinkResult) {
	if res.Linked {
		fmt.Fprintf(w, "✓ %s\n", res.Message)
		fmt.Fprintf(w, "  Group: %s\n", res.GroupID)
		fmt.Fprintf(w, "  Linked to: %s\n", res.CandidateID)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", res.Message)
	if res.CandidateID != "" {
		fmt.Fprintf(w, "  Candidate: %s (%d%%)\n", res.CandidateID, res.Confidence)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
