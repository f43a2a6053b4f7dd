package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/idlink/internal/linking"
)

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	ID            string
	Email         string
	Phone         string
	Name          string
	PasswordHash  string
	Providers     []string
	Avatar        string
	AvatarSource  string
	EmailVerified bool
	PhoneVerified bool
}

// RegisterOutput is the JSON payload of the register command.
type RegisterOutput struct {
	Record   linking.MemberSummary  `json:"record"`
	AutoLink linking.AutoLinkResult `json:"autoLink"`
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a record and try to link it automatically",
		Long: `Create a new unlinked record, then attempt to auto-link it with the
default threshold. A failed auto-link never fails the registration.

Examples:
  idlink register --email alice@example.com --name "Alice Adams" --provider google
  idlink register --id rec-7 --phone "+1 555 0100" --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (minted when empty)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "primary email")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "primary phone")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.PasswordHash, "password-hash", "", "stored password hash")
	cmd.Flags().StringSliceVar(&opts.Providers, "provider", nil, "OAuth provider tag (repeatable)")
	cmd.Flags().StringVar(&opts.Avatar, "avatar", "", "avatar URL")
	cmd.Flags().StringVar(&opts.AvatarSource, "avatar-source", "", "provider that supplied the avatar, or upload")
	cmd.Flags().BoolVar(&opts.EmailVerified, "email-verified", false, "mark the email as verified")
	cmd.Flags().BoolVar(&opts.PhoneVerified, "phone-verified", false, "mark the phone as verified")

	return cmd
}

func runRegister(rootOpts *RootOptions, opts *RegisterOptions, cmd *cobra.Command) error {
	formatter := newFormatter(rootOpts, cmd)

	svc, st, err := openService(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := svc.Register(cmd.Context(), linking.NewIdentity{
		ID:            opts.ID,
		Email:         opts.Email,
		Phone:         opts.Phone,
		Name:          opts.Name,
		PasswordHash:  opts.PasswordHash,
		Providers:     opts.Providers,
		Avatar:        opts.Avatar,
		AvatarSource:  opts.AvatarSource,
		EmailVerified: opts.EmailVerified,
		PhoneVerified: opts.PhoneVerified,
	})
	if err != nil {
		return formatter.LinkFailure(err, nil)
	}

	out := RegisterOutput{
		Record:   linking.Summarize(res.Record),
		AutoLink: res.AutoLink,
	}
	return formatter.Success(out, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Registered %s\n", out.Record.ID)
		writeMember(w, out.Record)
		writeAutoLink(w, out.AutoLink)
	})
}

func writeMember(w io.Writer, m linking.MemberSummary) {
	fmt.Fprintf(w, "  Name: %s\n", dash(m.Name))
	fmt.Fprintf(w, "  Email: %s\n", dash(m.Email))
	fmt.Fprintf(w, "  Phone: %s\n", dash(m.Phone))
	fmt.Fprintf(w, "  Auth methods: %s\n", dash(strings.Join(m.AuthMethods, ", ")))
	fmt.Fprintf(w, "  Status: %s\n", m.Status)
}
