package shopsdk

import (
	"context"
	"net/http"
	"time"
)

// PermissionService covers /api/permissions.
type PermissionService struct{ c *Client }

// Catalog lists every permission the backend knows.
func (s *PermissionService) Catalog(ctx context.Context) ([]Permission, error) {
	return call[[]Permission](ctx, s.c, request{method: http.MethodGet, path: "/permissions"})
}

// Mine lists the caller's own grants.
func (s *PermissionService) Mine(ctx context.Context) ([]UserPermission, error) {
	return call[[]UserPermission](ctx, s.c, request{method: http.MethodGet, path: "/permissions/me"})
}

// DashboardService covers /api/dashboard.
type DashboardService struct{ c *Client }

func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	return callPtr[DashboardStats](ctx, s.c, request{method: http.MethodGet, path: "/dashboard/stats"})
}

// SecurityService covers /api/security.
type SecurityService struct{ c *Client }

func (s *SecurityService) Stats(ctx context.Context) (*SecurityStats, error) {
	return callPtr[SecurityStats](ctx, s.c, request{method: http.MethodGet, path: "/security/stats"})
}

// Logs returns a page of the audit log.
func (s *SecurityService) Logs(ctx context.Context, f SecurityLogFilter) (*Page[SecurityEvent], error) {
	return callPage[SecurityEvent](ctx, s.c, request{method: http.MethodGet, path: "/security/logs", query: f.values()})
}

// ExportLogs downloads the audit log matching f as CSV.
func (s *SecurityService) ExportLogs(ctx context.Context, f SecurityLogFilter) (*Blob, error) {
	return s.c.download(ctx, request{
		method: http.MethodGet,
		path:   "/security/logs/export",
		query:  f.values(),
	}, exportName("security-logs", time.Now()))
}

// UnlockAccount clears a lockout caused by failed logins.
func (s *SecurityService) UnlockAccount(ctx context.Context, userID string) error {
	return callNoContent(ctx, s.c, request{method: http.MethodPost, path: "/security/unlock-account/" + escape(userID)})
}
