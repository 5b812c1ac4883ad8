package cli

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/atelier/internal/mfa"
	"github.com/aussiebroadwan/atelier/internal/password"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

func newLoginCmd(e *env) *cobra.Command {
	var email, pw, code string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the back-office",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}

			if email, err = e.valueOrPrompt(email, "Email: "); err != nil {
				return err
			}
			if pw == "" {
				pw = os.Getenv("ATELIER_PASSWORD")
			}
			if pw, err = e.valueOrPrompt(pw, "Password: "); err != nil {
				return err
			}

			user, err := a.Session.Login(ctx, email, pw)
			var challenge *shopsdk.MFARequiredError
			if errors.As(err, &challenge) {
				if code, err = e.valueOrPrompt(code, "Authentication code: "); err != nil {
					return err
				}
				user, err = a.Session.CompleteMFA(ctx, challenge, code)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(e.out, "Signed in as %s <%s> (%s)\n", user.Name, user.Email, user.Role)
			if !user.IsAdmin() {
				fmt.Fprintln(e.out, "This account has no back-office access.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&pw, "password", "", "account password (or ATELIER_PASSWORD)")
	cmd.Flags().StringVar(&code, "code", "", "6-digit authentication code when MFA is enabled")
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			if !a.Session.IsAuthenticated() {
				fmt.Fprintln(e.out, "Not signed in.")
				return nil
			}
			a.Session.Logout(cmd.Context())
			fmt.Fprintln(e.out, "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account and its permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			u := a.Session.User()

			if err := fields(e.out,
				"Name", u.Name,
				"Email", u.Email,
				"Role", string(u.Role),
				"MFA", yesNo(u.MFAEnabled),
				"Last login", whenPtr(u.LastLoginAt),
			); err != nil {
				return err
			}

			if u.IsSuperAdmin() {
				fmt.Fprintln(e.out, "Permissions: all (super admin)")
				return nil
			}
			keys := make([]string, 0)
			for _, p := range a.Permissions.Granted() {
				keys = append(keys, p.Key())
			}
			slices.Sort(keys)
			fmt.Fprintf(e.out, "Permissions: %s\n", orDash(strings.Join(keys, ", ")))
			return nil
		},
	}
}

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the backend and session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			user := "-"
			if u := a.Session.User(); u != nil {
				user = u.Email
			}
			return fields(e.out,
				"API", a.Client.BaseURL(),
				"Session", a.Session.Status().String(),
				"User", user,
				"Admin", yesNo(a.Session.IsAdmin()),
			)
		},
	}
}

// ============================================================================
// MFA
// ============================================================================

func newMFACmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mfa",
		Short: "Manage two-factor authentication",
	}
	cmd.AddCommand(newMFASetupCmd(e), newMFADisableCmd(e))
	return cmd
}

const mfaAttempts = 3

func newMFASetupCmd(e *env) *cobra.Command {
	var code, qrPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Enrol an authenticator app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := e.signedIn(ctx)
			if err != nil {
				return err
			}
			if a.Session.User().MFAEnabled {
				fmt.Fprintln(e.out, "Two-factor authentication is already enabled.")
				return nil
			}

			w := mfa.NewWizard(a.Client.Auth)
			defer w.Close()

			setup, err := w.Begin(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(e.out, "Add this account to your authenticator app.")
			fmt.Fprintf(e.out, "Secret: %s\nURI:    %s\n", w.Secret(), setup.QRCode)
			if qrPath != "" {
				png, err := w.QRCodePNG(256)
				if err != nil {
					return err
				}
				if err := os.WriteFile(qrPath, png, 0o600); err != nil {
					return fmt.Errorf("write qr code: %w", err)
				}
				fmt.Fprintf(e.out, "QR code written to %s\n", qrPath)
			}
			fmt.Fprintln(e.out, "\nBackup codes (store them somewhere safe):")
			for _, c := range w.BackupCodes() {
				fmt.Fprintf(e.out, "  %s\n", c)
			}

			for attempt := 1; ; attempt++ {
				if code, err = e.valueOrPrompt(code, "Code from your app: "); err != nil {
					return err
				}
				err = w.Submit(ctx, code)
				if err == nil {
					break
				}
				if attempt == mfaAttempts {
					return err
				}
				fmt.Fprintf(e.out, "Verification failed: %v\n", w.LastError())
				code = ""
			}

			fmt.Fprintln(e.out, "Two-factor authentication enabled.")
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "6-digit code from the authenticator app")
	cmd.Flags().StringVar(&qrPath, "qr", "", "write the enrolment QR code as PNG to this path")
	return cmd
}

func newMFADisableCmd(e *env) *cobra.Command {
	var pw, code string

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Turn off two-factor authentication",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := e.signedIn(ctx)
			if err != nil {
				return err
			}
			if pw, err = e.valueOrPrompt(pw, "Password: "); err != nil {
				return err
			}
			if code, err = e.valueOrPrompt(code, "Authentication code: "); err != nil {
				return err
			}
			if err := a.Client.Auth.DisableMFA(ctx, pw, code); err != nil {
				return err
			}
			fmt.Fprintln(e.out, "Two-factor authentication disabled.")
			return nil
		},
	}

	cmd.Flags().StringVar(&pw, "password", "", "account password")
	cmd.Flags().StringVar(&code, "code", "", "current 6-digit code")
	return cmd
}

// ============================================================================
// Sessions
// ============================================================================

func newSessionsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and revoke signed-in devices",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			sessions, err := a.Client.Auth.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				id := s.ID
				if s.Current {
					id += " *"
				}
				rows = append(rows, []string{id, orDash(s.IPAddress), short(s.UserAgent, 40), when(s.CreatedAt), when(s.LastActiveAt)})
			}
			return table(e.out, []string{"id", "ip", "agent", "created", "last active"}, rows)
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Sign out one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Client.Auth.RevokeSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Session %s revoked.\n", args[0])
			return nil
		},
	}

	revokeAll := &cobra.Command{
		Use:   "revoke-all",
		Short: "Sign out every other session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Client.Auth.RevokeAllSessions(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(e.out, "Other sessions revoked.")
			return nil
		},
	}

	cmd.AddCommand(list, revoke, revokeAll)
	return cmd
}

// ============================================================================
// Passwords
// ============================================================================

func newPasswordCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Check, change or reset passwords",
	}

	check := &cobra.Command{
		Use:   "check [password]",
		Short: "Rate a password against the account requirements",
		Args:  cobra.MaximumNArgs(1),
		// Local only; no config or backend needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(_ *cobra.Command, args []string) error {
			var pw string
			if len(args) == 1 {
				pw = args[0]
			} else {
				var err error
				if pw, err = e.prompt("Password: "); err != nil {
					return err
				}
			}
			printStrength(e, password.Check(pw))
			return nil
		},
	}

	var current, next string
	change := &cobra.Command{
		Use:   "change",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := e.signedIn(ctx)
			if err != nil {
				return err
			}
			if current, err = e.valueOrPrompt(current, "Current password: "); err != nil {
				return err
			}
			confirm := next
			if next, err = e.valueOrPrompt(next, "New password: "); err != nil {
				return err
			}
			if confirm, err = e.valueOrPrompt(confirm, "Repeat new password: "); err != nil {
				return err
			}

			if st := password.Check(next); !st.Acceptable() {
				printStrength(e, st)
				return errors.New("new password does not meet the requirements")
			}
			err = a.Client.Users.ChangePassword(ctx, shopsdk.ChangePasswordRequest{
				CurrentPassword: current,
				NewPassword:     next,
				ConfirmPassword: confirm,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, "Password changed. Other sessions were signed out.")
			return nil
		},
	}
	change.Flags().StringVar(&current, "current", "", "current password")
	change.Flags().StringVar(&next, "new", "", "new password")

	reset := &cobra.Command{
		Use:   "reset <email>",
		Short: "Request a password reset email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Client.Auth.RequestPasswordReset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(e.out, "If the address is registered, a reset link is on its way.")
			return nil
		},
	}

	cmd.AddCommand(check, change, reset)
	return cmd
}

func printStrength(e *env, st password.Strength) {
	for _, r := range st.Requirements {
		mark := " "
		if r.Met {
			mark = "x"
		}
		fmt.Fprintf(e.out, "[%s] %s\n", mark, r.Label)
	}
	fmt.Fprintf(e.out, "Strength: %s (%d/%d)\n", st.Label, st.Score, len(st.Requirements))
}
