package cli

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/atelier/internal/app"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// ============================================================================
// Users
// ============================================================================

func newUsersCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Manage accounts, roles and permissions",
	}
	cmd.AddCommand(
		newUsersListCmd(e),
		newUsersRoleCmd(e),
		newUsersToggleCmd(e),
		newUsersPermissionsCmd(e),
		newUsersCreateAdminCmd(e),
	)
	return cmd
}

func newUsersListCmd(e *env) *cobra.Command {
	var f shopsdk.UserFilter
	var role string
	var active bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "users", "read")
			if err != nil || !ok {
				return err
			}
			f.Role = shopsdk.Role(role)
			if cmd.Flags().Changed("active") {
				f.IsActive = &active
			}
			page, err := a.Client.Users.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(page.Items))
			for _, u := range page.Items {
				rows = append(rows, []string{
					u.ID, u.Name, u.Email, string(u.Role), activeLabel(u.IsActive),
					yesNo(u.MFAEnabled), whenPtr(u.LastLoginAt),
				})
			}
			if err := table(e.out, []string{"id", "name", "email", "role", "status", "mfa", "last login"}, rows); err != nil {
				return err
			}
			pageFooter(e.out, page.Pagination)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.Page, "page", 1, "page number")
	flags.IntVar(&f.Limit, "limit", 20, "accounts per page")
	flags.StringVar(&f.Search, "search", "", "match name or email")
	flags.StringVar(&role, "role", "", "super_admin, admin or user")
	flags.BoolVar(&active, "active", true, "only active (or, with =false, inactive) accounts")
	return cmd
}

// superAdmin gates operations the backend reserves for super admins.
func (e *env) superAdmin(ctx context.Context, what string) (*app.Application, bool, error) {
	a, err := e.signedIn(ctx)
	if err != nil {
		return nil, false, err
	}
	if !a.Session.User().IsSuperAdmin() {
		fmt.Fprintf(e.out, "Only super admins can %s.\n", what)
		return a, false, nil
	}
	return a, true, nil
}

func newUsersRoleCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "role <id> <super_admin|admin|user>",
		Short: "Change an account's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.superAdmin(cmd.Context(), "change roles")
			if err != nil || !ok {
				return err
			}
			u, err := a.Client.Users.UpdateRole(cmd.Context(), args[0], shopsdk.Role(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s is now %s.\n", u.Email, u.Role)
			return nil
		},
	}
}

func newUsersToggleCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Activate or deactivate an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "users", "update")
			if err != nil || !ok {
				return err
			}
			u, err := a.Client.Users.ToggleStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s is now %s.\n", u.Email, activeLabel(u.IsActive))
			return nil
		},
	}
}

func newUsersPermissionsCmd(e *env) *cobra.Command {
	var grant, revoke []string

	cmd := &cobra.Command{
		Use:   "permissions <id>",
		Short: "Show an admin's permissions, or grant and revoke them",
		Long:  `Permissions are written resource:action, e.g. products:update. Changing them requires a super admin.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID := args[0]

			var a *app.Application
			var ok bool
			var err error
			if len(grant) == 0 && len(revoke) == 0 {
				a, ok, err = e.permitted(ctx, "users", "read")
			} else {
				a, ok, err = e.superAdmin(ctx, "change permissions")
			}
			if err != nil || !ok {
				return err
			}

			current, err := a.Client.Users.Permissions(ctx, userID)
			if err != nil {
				return err
			}
			if len(grant) > 0 || len(revoke) > 0 {
				changes, err := permissionChanges(ctx, a.Client, grant, revoke)
				if err != nil {
					return err
				}
				if current, err = a.Client.Users.UpdatePermissions(ctx, userID, changes); err != nil {
					return err
				}
			}

			rows := make([][]string, 0, len(current))
			for _, up := range current {
				rows = append(rows, []string{up.Permission.Key(), orDash(up.Permission.DisplayName), yesNo(up.IsGranted)})
			}
			slices.SortFunc(rows, func(x, y []string) int { return strings.Compare(x[0], y[0]) })
			if len(rows) == 0 {
				fmt.Fprintln(e.out, "No permissions granted.")
				return nil
			}
			return table(e.out, []string{"permission", "name", "granted"}, rows)
		},
	}

	cmd.Flags().StringSliceVar(&grant, "grant", nil, "permission to grant, repeatable")
	cmd.Flags().StringSliceVar(&revoke, "revoke", nil, "permission to revoke, repeatable")
	return cmd
}

// permissionChanges resolves resource:action keys against the catalog.
func permissionChanges(ctx context.Context, c *shopsdk.Client, grant, revoke []string) ([]shopsdk.PermissionGrant, error) {
	catalog, err := c.Permissions.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]string, len(catalog))
	for _, p := range catalog {
		byKey[p.Key()] = p.ID
	}

	var out []shopsdk.PermissionGrant
	add := func(keys []string, granted bool) error {
		for _, k := range keys {
			id, ok := byKey[k]
			if !ok {
				return fmt.Errorf("unknown permission %q", k)
			}
			out = append(out, shopsdk.PermissionGrant{PermissionID: id, IsGranted: granted})
		}
		return nil
	}
	if err := add(grant, true); err != nil {
		return nil, err
	}
	if err := add(revoke, false); err != nil {
		return nil, err
	}
	return out, nil
}

func newUsersCreateAdminCmd(e *env) *cobra.Command {
	var in shopsdk.CreateAdminRequest

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator with the backend's bootstrap secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			if in.Name, err = e.valueOrPrompt(in.Name, "Name: "); err != nil {
				return err
			}
			if in.Email, err = e.valueOrPrompt(in.Email, "Email: "); err != nil {
				return err
			}
			if in.Password, err = e.valueOrPrompt(in.Password, "Password: "); err != nil {
				return err
			}
			if in.SecretKey, err = e.valueOrPrompt(in.SecretKey, "Bootstrap secret: "); err != nil {
				return err
			}
			u, err := a.Client.Auth.CreateSecureAdmin(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Created %s <%s> (%s).\n", u.Name, u.Email, u.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email")
	cmd.Flags().StringVar(&in.Password, "password", "", "password")
	cmd.Flags().StringVar(&in.SecretKey, "secret", "", "bootstrap secret")
	return cmd
}

// ============================================================================
// Security
// ============================================================================

func newSecurityCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "security",
		Short: "Audit log and account lockouts",
	}
	cmd.AddCommand(
		newSecurityStatsCmd(e),
		newSecurityLogsCmd(e),
		newSecurityExportCmd(e),
		newSecurityUnlockCmd(e),
	)
	return cmd
}

func newSecurityStatsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise security activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "security", "read")
			if err != nil || !ok {
				return err
			}
			st, err := a.Client.Security.Stats(cmd.Context())
			if err != nil {
				return err
			}
			kv := []string{
				"Events", strconv.Itoa(st.TotalEvents),
				"Failed logins (24h)", strconv.Itoa(st.FailedLogins24h),
				"Locked accounts", strconv.Itoa(st.LockedAccounts),
				"Active sessions", strconv.Itoa(st.ActiveSessions),
				"MFA users", strconv.Itoa(st.MFAEnabledUsers),
			}
			for _, r := range []shopsdk.RiskLevel{shopsdk.RiskCritical, shopsdk.RiskHigh, shopsdk.RiskMedium, shopsdk.RiskLow} {
				kv = append(kv, "Risk "+string(r), strconv.Itoa(st.ByRiskLevel[r]))
			}
			return fields(e.out, kv...)
		},
	}
}

type logFlags struct {
	f         shopsdk.SecurityLogFilter
	riskLevel string
	since     time.Duration
}

func (l *logFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&l.f.EventType, "type", "", "event type, e.g. login_failed")
	flags.StringVar(&l.riskLevel, "risk", "", "low, medium, high or critical")
	flags.StringVar(&l.f.UserID, "user", "", "user id")
	flags.DurationVar(&l.since, "since", 0, "only events newer than this, e.g. 24h")
}

func (l *logFlags) filter() shopsdk.SecurityLogFilter {
	f := l.f
	f.RiskLevel = shopsdk.RiskLevel(l.riskLevel)
	if l.since > 0 {
		f.From = time.Now().Add(-l.since)
	}
	return f
}

func newSecurityLogsCmd(e *env) *cobra.Command {
	var lf logFlags

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List audit events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "security", "read")
			if err != nil || !ok {
				return err
			}
			page, err := a.Client.Security.Logs(cmd.Context(), lf.filter())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(page.Items))
			for _, ev := range page.Items {
				who := "-"
				if ev.User != nil {
					who = ev.User.Email
				}
				rows = append(rows, []string{
					when(ev.CreatedAt), ev.EventType, string(ev.RiskLevel), who,
					orDash(ev.IPAddress), short(ev.Description, 48),
				})
			}
			if err := table(e.out, []string{"time", "event", "risk", "user", "ip", "description"}, rows); err != nil {
				return err
			}
			pageFooter(e.out, page.Pagination)
			return nil
		},
	}

	lf.bind(cmd)
	cmd.Flags().IntVar(&lf.f.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&lf.f.Limit, "limit", 50, "events per page")
	return cmd
}

func newSecurityExportCmd(e *env) *cobra.Command {
	var lf logFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the audit log as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "security", "read")
			if err != nil || !ok {
				return err
			}
			blob, err := a.Client.Security.ExportLogs(cmd.Context(), lf.filter())
			if err != nil {
				return err
			}
			path, err := blob.Save(e.cfg.DownloadDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Saved %s\n", path)
			return nil
		},
	}

	lf.bind(cmd)
	return cmd
}

func newSecurityUnlockCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <user-id>",
		Short: "Clear a login lockout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "security", "update")
			if err != nil || !ok {
				return err
			}
			if err := a.Client.Security.UnlockAccount(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Account %s unlocked.\n", args[0])
			return nil
		},
	}
}
