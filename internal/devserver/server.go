// Package devserver is an in-memory stand-in for the storefront REST API.
// It speaks the same envelope and routes the SDK expects, so the CLI and
// the end-to-end tests can run without the real backend.
package devserver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aussiebroadwan/atelier/pkg/httpx"
	"github.com/aussiebroadwan/atelier/pkg/jwtx"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

// Config tunes the dev backend. Zero values get defaults.
type Config struct {
	Issuer string
	// Secret signs access tokens; random when empty.
	Secret []byte
	// TokenTTL is the access token lifetime.
	TokenTTL time.Duration
	// RefreshGrace is how long after expiry a token may still be refreshed.
	RefreshGrace time.Duration
	// AdminSecret guards /auth/create-secure-admin.
	AdminSecret string
	// Seed loads demo accounts and catalog data.
	Seed bool
	// HousekeepingInterval between sweeps of expired state.
	HousekeepingInterval time.Duration
	// LoginLimit applies per client IP to each unauthenticated auth route.
	LoginLimit httpx.Limit
	// APILimit applies per IP (public routes) or per user (signed-in routes).
	APILimit httpx.Limit
}

const (
	defaultIssuer       = "atelier-dev"
	defaultRefreshGrace = 7 * 24 * time.Hour
	challengeTTL        = 5 * time.Minute
	lockoutThreshold    = 5
	lockoutDuration     = 15 * time.Minute
)

// Server is the dev backend. It implements http.Handler.
type Server struct {
	cfg    Config
	logger *slog.Logger
	tokens *jwtx.HS256
	st     *state
	now    func() time.Time

	mux         *http.ServeMux
	middlewares []httpx.Middleware
	limiters    []*httpx.Limiter
}

func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = jwtx.DefaultAccessTokenTTL
	}
	if cfg.RefreshGrace <= 0 {
		cfg.RefreshGrace = defaultRefreshGrace
	}
	if cfg.LoginLimit.Requests <= 0 {
		cfg.LoginLimit = httpx.LoginLimit
	}
	if cfg.APILimit.Requests <= 0 {
		cfg.APILimit = httpx.APILimit
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = make([]byte, 32)
		if _, err := rand.Read(cfg.Secret); err != nil {
			return nil, fmt.Errorf("generate signing secret: %w", err)
		}
	}

	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "devserver"),
		tokens: jwtx.NewHS256(cfg.Secret, cfg.Issuer),
		st:     newState(),
		now:    time.Now,
		mux:    http.NewServeMux(),
	}
	if cfg.Seed {
		if err := s.st.seed(s.now()); err != nil {
			return nil, err
		}
	}

	s.middlewares = []httpx.Middleware{slogx.HTTPMiddleware(s.logger)}
	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpx.Chain(s.mux, s.middlewares...).ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
// Housekeeping runs alongside.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 3 * time.Second,
	}

	hk := newHousekeeper(s, s.cfg.HousekeepingInterval)
	hk.Start()
	defer hk.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dev backend listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("dev backend stopped")
	return nil
}

// route helpers

// limit gives each route its own limiter; housekeeping sweeps them all.
func (s *Server) limit(l httpx.Limit, key httpx.KeyFunc) httpx.Middleware {
	lim := httpx.NewLimiter(l, key)
	s.limiters = append(s.limiters, lim)
	return lim.Middleware()
}

func (s *Server) public(h http.HandlerFunc) http.Handler {
	return httpx.Chain(h, s.limit(s.cfg.APILimit, httpx.ClientIP))
}

func (s *Server) strict(h http.HandlerFunc) http.Handler {
	return httpx.Chain(h, s.limit(s.cfg.LoginLimit, httpx.ClientIP))
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return httpx.Chain(h,
		httpx.BearerAuth(s.tokens, s.tokenActive),
		s.limit(s.cfg.APILimit, httpx.UserOrIP),
	)
}

// admin requires an admin role and the resource:action permission.
func (s *Server) admin(resource, action string, h http.HandlerFunc) http.Handler {
	return httpx.Chain(h,
		httpx.BearerAuth(s.tokens, s.tokenActive),
		httpx.RequireRole(string(shopsdk.RoleAdmin), string(shopsdk.RoleSuperAdmin)),
		s.requirePermission(resource, action),
		s.limit(s.cfg.APILimit, httpx.UserOrIP),
	)
}

func (s *Server) superAdmin(h http.HandlerFunc) http.Handler {
	return httpx.Chain(h,
		httpx.BearerAuth(s.tokens, s.tokenActive),
		httpx.RequireRole(string(shopsdk.RoleSuperAdmin)),
		s.limit(s.cfg.APILimit, httpx.UserOrIP),
	)
}

func (s *Server) requirePermission(resource, action string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.st.mu.RLock()
			a, ok := s.st.accounts.get(httpx.UserID(r.Context()))
			allowed := ok && s.st.can(a, resource, action)
			s.st.mu.RUnlock()

			if !allowed {
				httpx.WriteError(w, http.StatusForbidden, "missing permission "+resource+":"+action)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// tokenActive accepts a verified token only while its session holds it and
// the account is active. It also marks the session as used.
func (s *Server) tokenActive(_ string, c jwtx.Claims) bool {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	se, ok := s.st.sessionByJTI(c.ID)
	if !ok || se.userID != c.Subject {
		return false
	}
	a, ok := s.st.accounts.get(c.Subject)
	if !ok || !a.IsActive {
		return false
	}
	se.lastActive = s.now()
	return true
}

func (s *Server) routes() {
	m := s.mux

	// auth
	m.Handle("POST /api/auth/login", s.strict(s.handleLogin))
	m.Handle("POST /api/auth/mfa/verify", s.strict(s.handleVerifyMFA))
	m.Handle("POST /api/auth/refresh", s.strict(s.handleRefresh))
	m.Handle("POST /api/auth/request-password-reset", s.strict(s.handleForgotPassword))
	m.Handle("POST /api/auth/create-secure-admin", s.strict(s.handleCreateSecureAdmin))
	m.Handle("GET /api/auth/validate", s.authed(s.handleValidate))
	m.Handle("GET /api/auth/me", s.authed(s.handleMe))
	m.Handle("POST /api/auth/logout", s.authed(s.handleLogout))
	m.Handle("POST /api/auth/mfa/setup", s.authed(s.handleSetupMFA))
	m.Handle("POST /api/auth/mfa/enable", s.authed(s.handleEnableMFA))
	m.Handle("POST /api/auth/mfa/disable", s.authed(s.handleDisableMFA))
	m.Handle("GET /api/auth/sessions", s.authed(s.handleListSessions))
	m.Handle("POST /api/auth/sessions/revoke-all", s.authed(s.handleRevokeAllSessions))
	m.Handle("POST /api/auth/sessions/{id}/revoke", s.authed(s.handleRevokeSession))

	// categories
	m.Handle("GET /api/categories", s.public(s.handleListCategories))
	m.Handle("GET /api/categories/active", s.public(s.handleActiveCategories))
	m.Handle("GET /api/categories/slug/{slug}", s.public(s.handleCategoryBySlug))
	m.Handle("GET /api/categories/{id}", s.public(s.handleGetCategory))
	m.Handle("POST /api/categories", s.admin("categories", "create", s.handleCreateCategory))
	m.Handle("PUT /api/categories/reorder", s.admin("categories", "update", s.handleReorderCategories))
	m.Handle("PUT /api/categories/{id}", s.admin("categories", "update", s.handleUpdateCategory))
	m.Handle("PATCH /api/categories/{id}/toggle-status", s.admin("categories", "update", s.handleToggleCategory))
	m.Handle("DELETE /api/categories/{id}", s.admin("categories", "delete", s.handleDeleteCategory))

	// products
	m.Handle("GET /api/products", s.public(s.handleListProducts))
	m.Handle("GET /api/products/featured", s.public(s.handleFeaturedProducts))
	m.Handle("GET /api/products/slug/{slug}", s.public(s.handleProductBySlug))
	m.Handle("GET /api/products/low-stock", s.admin("products", "read", s.handleLowStock))
	m.Handle("GET /api/products/{id}", s.public(s.handleGetProduct))
	m.Handle("POST /api/products", s.admin("products", "create", s.handleCreateProduct))
	m.Handle("POST /api/products/bulk-delete", s.admin("products", "delete", s.handleBulkDeleteProducts))
	m.Handle("PATCH /api/products/bulk-status", s.admin("products", "update", s.handleBulkProductStatus))
	m.Handle("PUT /api/products/{id}", s.admin("products", "update", s.handleUpdateProduct))
	m.Handle("DELETE /api/products/{id}", s.admin("products", "delete", s.handleDeleteProduct))
	m.Handle("PATCH /api/products/{id}/status", s.admin("products", "update", s.handleProductStatus))
	m.Handle("PATCH /api/products/{id}/toggle-featured", s.admin("products", "update", s.handleToggleFeatured))
	m.Handle("PATCH /api/products/{id}/stock", s.admin("products", "update", s.handleProductStock))

	// partners
	m.Handle("GET /api/partners", s.admin("partners", "read", s.handleListPartners))
	m.Handle("GET /api/partners/active", s.public(s.handleActivePartners))
	m.Handle("GET /api/partners/{id}", s.public(s.handleGetPartner))
	m.Handle("POST /api/partners", s.admin("partners", "create", s.handleCreatePartner))
	m.Handle("PUT /api/partners/{id}", s.admin("partners", "update", s.handleUpdatePartner))
	m.Handle("DELETE /api/partners/{id}", s.admin("partners", "delete", s.handleDeletePartner))
	m.Handle("PATCH /api/partners/{id}/toggle-status", s.admin("partners", "update", s.handleTogglePartner))
	m.Handle("PATCH /api/partners/{id}/toggle-featured", s.admin("partners", "update", s.handleTogglePartnerFeatured))

	// testimonials
	m.Handle("GET /api/testimonials", s.admin("testimonials", "read", s.handleListTestimonials))
	m.Handle("GET /api/testimonials/active", s.public(s.handleActiveTestimonials))
	m.Handle("GET /api/testimonials/{id}", s.public(s.handleGetTestimonial))
	m.Handle("POST /api/testimonials", s.admin("testimonials", "create", s.handleCreateTestimonial))
	m.Handle("PUT /api/testimonials/{id}", s.admin("testimonials", "update", s.handleUpdateTestimonial))
	m.Handle("DELETE /api/testimonials/{id}", s.admin("testimonials", "delete", s.handleDeleteTestimonial))
	m.Handle("PATCH /api/testimonials/{id}/toggle-status", s.admin("testimonials", "update", s.handleToggleTestimonial))

	// contact
	m.Handle("POST /api/contact", s.public(s.handleSubmitContact))
	m.Handle("GET /api/contact/stats", s.admin("messages", "read", s.handleMessageStats))
	m.Handle("GET /api/contact/messages", s.admin("messages", "read", s.handleListMessages))
	m.Handle("GET /api/contact/messages/export", s.admin("messages", "read", s.handleExportMessages))
	m.Handle("PATCH /api/contact/messages/bulk-status", s.admin("messages", "update", s.handleBulkMessageStatus))
	m.Handle("POST /api/contact/messages/bulk-delete", s.admin("messages", "delete", s.handleBulkDeleteMessages))
	m.Handle("GET /api/contact/messages/{id}", s.admin("messages", "read", s.handleGetMessage))
	m.Handle("PUT /api/contact/messages/{id}", s.admin("messages", "update", s.handleUpdateMessage))
	m.Handle("PATCH /api/contact/messages/{id}/status", s.admin("messages", "update", s.handleMessageStatus))
	m.Handle("DELETE /api/contact/messages/{id}", s.admin("messages", "delete", s.handleDeleteMessage))

	// users
	m.Handle("PUT /api/users/change-password", s.authed(s.handleChangePassword))
	m.Handle("GET /api/users", s.admin("users", "read", s.handleListUsers))
	m.Handle("POST /api/users", s.admin("users", "create", s.handleCreateUser))
	m.Handle("GET /api/users/{id}", s.admin("users", "read", s.handleGetUser))
	m.Handle("PUT /api/users/{id}", s.admin("users", "update", s.handleUpdateUser))
	m.Handle("DELETE /api/users/{id}", s.admin("users", "delete", s.handleDeleteUser))
	m.Handle("PATCH /api/users/{id}/role", s.superAdmin(s.handleUserRole))
	m.Handle("PATCH /api/users/{id}/toggle-status", s.admin("users", "update", s.handleToggleUser))
	m.Handle("GET /api/users/{id}/permissions", s.admin("users", "read", s.handleUserPermissions))
	m.Handle("PUT /api/users/{id}/permissions", s.superAdmin(s.handleUpdateUserPermissions))

	// permissions, dashboard, security
	m.Handle("GET /api/permissions", s.admin("users", "read", s.handlePermissionCatalog))
	m.Handle("GET /api/permissions/me", s.authed(s.handleMyPermissions))
	m.Handle("GET /api/dashboard/stats", s.admin("products", "read", s.handleDashboardStats))
	m.Handle("GET /api/security/stats", s.admin("security", "read", s.handleSecurityStats))
	m.Handle("GET /api/security/logs", s.admin("security", "read", s.handleSecurityLogs))
	m.Handle("GET /api/security/logs/export", s.admin("security", "read", s.handleExportSecurityLogs))
	m.Handle("POST /api/security/unlock-account/{id}", s.admin("security", "update", s.handleUnlock))

	m.Handle("GET /swagger/", docsHandler())
}
