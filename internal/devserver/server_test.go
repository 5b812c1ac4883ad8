package devserver

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/atelier/internal/permissions"
	"github.com/aussiebroadwan/atelier/pkg/httpx"
	"github.com/aussiebroadwan/atelier/pkg/idx"
	"github.com/aussiebroadwan/atelier/pkg/jwtx"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

const testAdminSecret = "bootstrap-secret"

func newTestBackend(t *testing.T) (*Server, string) {
	t.Helper()

	s, err := New(Config{Seed: true, AdminSecret: testAdminSecret}, slogx.Discard())
	require.NoError(t, err)

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func newClient(t *testing.T, baseURL string, opts ...shopsdk.Option) *shopsdk.Client {
	t.Helper()
	opts = append([]shopsdk.Option{
		shopsdk.WithStorage(shopsdk.NewMemoryStorage()),
		shopsdk.WithLogger(slogx.Discard()),
	}, opts...)
	return shopsdk.NewClient(baseURL, opts...)
}

func signIn(t *testing.T, baseURL, email string) *shopsdk.Client {
	t.Helper()
	c := newClient(t, baseURL)
	_, err := c.Auth.Login(context.Background(), email, SeedPassword)
	require.NoError(t, err)
	return c
}

func storedToken(t *testing.T, c *shopsdk.Client) string {
	t.Helper()
	creds, err := c.Storage().Load(context.Background())
	require.NoError(t, err)
	return creds.Token
}

func requireStatus(t *testing.T, err error, status int) *shopsdk.APIError {
	t.Helper()
	var apiErr *shopsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, status, apiErr.StatusCode, apiErr.Message)
	return apiErr
}

func TestLoginAndIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, url := newTestBackend(t)

	c := newClient(t, url)
	res, err := c.Auth.Login(ctx, UserEmail, SeedPassword)
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Equal(t, shopsdk.RoleUser, res.User.Role)
	require.NotNil(t, res.User.LastLoginAt)

	me, err := c.Auth.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, UserEmail, me.Email)

	v, err := c.Auth.Validate(ctx)
	require.NoError(t, err)
	require.True(t, v.Valid)

	sessions, err := c.Auth.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].Current)

	require.NoError(t, c.Auth.Logout(ctx))
	require.Empty(t, storedToken(t, c))
}

func TestLoginLockoutAndUnlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, url := newTestBackend(t)

	c := newClient(t, url)
	_, err := c.Auth.Login(ctx, "nobody@atelier.test", SeedPassword)
	requireStatus(t, err, http.StatusUnauthorized)

	for range lockoutThreshold {
		_, err = c.Auth.Login(ctx, UserEmail, "wrong-password")
		requireStatus(t, err, http.StatusUnauthorized)
	}
	_, err = c.Auth.Login(ctx, UserEmail, SeedPassword)
	requireStatus(t, err, http.StatusLocked)

	owner := signIn(t, url, SuperAdminEmail)
	stats, err := owner.Security.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.LockedAccounts)
	require.GreaterOrEqual(t, stats.FailedLogins24h, lockoutThreshold)

	users, err := owner.Users.List(ctx, shopsdk.UserFilter{Search: "shopper"})
	require.NoError(t, err)
	require.Len(t, users.Items, 1)
	require.NoError(t, owner.Security.UnlockAccount(ctx, users.Items[0].ID))

	_, err = c.Auth.Login(ctx, UserEmail, SeedPassword)
	require.NoError(t, err)
}

func TestMFAEnrolmentAndLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, url := newTestBackend(t)

	c := signIn(t, url, UserEmail)
	setup, err := c.Auth.SetupMFA(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(setup.QRCode, "otpauth://totp/"))
	require.Len(t, setup.BackupCodes, backupCodeCount)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	err = c.Auth.EnableMFA(ctx, wrong)
	requireStatus(t, err, http.StatusBadRequest)
	require.NoError(t, c.Auth.EnableMFA(ctx, code))

	me, err := c.Auth.Me(ctx)
	require.NoError(t, err)
	require.True(t, me.MFAEnabled)
	require.NoError(t, c.Auth.Logout(ctx))

	_, err = c.Auth.Login(ctx, UserEmail, SeedPassword)
	var challenge *shopsdk.MFARequiredError
	require.ErrorAs(t, err, &challenge)
	require.NotEmpty(t, challenge.TempToken)
	require.Empty(t, storedToken(t, c))

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	res, err := c.Auth.VerifyMFA(ctx, challenge.TempToken, code)
	require.NoError(t, err)
	require.Equal(t, UserEmail, res.User.Email)

	// A wrong password on disable must not end the session.
	err = c.Auth.DisableMFA(ctx, "not-my-password", code)
	requireStatus(t, err, http.StatusBadRequest)
	_, err = c.Auth.Me(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Auth.DisableMFA(ctx, SeedPassword, code))
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, url := newTestBackend(t)

	c := signIn(t, url, UserEmail)
	claims, err := jwtx.Peek(storedToken(t, c))
	require.NoError(t, err)

	// Re-issue the session's token as if it were minted two TTLs ago.
	s.st.mu.Lock()
	se, ok := s.st.sessionByJTI(claims.ID)
	require.True(t, ok)
	a, _ := s.st.accounts.get(se.userID)
	expired, err := s.issue(a, se, time.Now().Add(-2*s.cfg.TokenTTL))
	s.st.mu.Unlock()
	require.NoError(t, err)

	creds, err := c.Storage().Load(ctx)
	require.NoError(t, err)
	creds.Token = expired
	require.NoError(t, c.Storage().Save(ctx, creds))

	me, err := c.Auth.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, UserEmail, me.Email)

	fresh := storedToken(t, c)
	require.NotEqual(t, expired, fresh)
	exp, err := jwtx.ExpiresAt(fresh)
	require.NoError(t, err)
	require.True(t, exp.After(time.Now()))
}

func TestRevokedSessionExpiresOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, url := newTestBackend(t)

	first := signIn(t, url, UserEmail)

	var expired atomic.Int32
	second := newClient(t, url, shopsdk.WithSessionExpiredHandler(func(route string) {
		if route == shopsdk.LoginRoute {
			expired.Add(1)
		}
	}))
	_, err := second.Auth.Login(ctx, UserEmail, SeedPassword)
	require.NoError(t, err)

	require.NoError(t, first.Auth.RevokeAllSessions(ctx))
	_, err = first.Auth.Me(ctx)
	require.NoError(t, err)

	_, err = second.Auth.Me(ctx)
	require.ErrorIs(t, err, shopsdk.ErrSessionExpired)
	require.Empty(t, storedToken(t, second))
	require.EqualValues(t, 1, expired.Load())
}

func TestPermissionGates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, url := newTestBackend(t)

	shopper := signIn(t, url, UserEmail)
	_, err := shopper.Users.List(ctx, shopsdk.UserFilter{})
	requireStatus(t, err, http.StatusForbidden)

	admin := signIn(t, url, AdminEmail)
	cat, err := admin.Categories.Create(ctx, shopsdk.CategoryInput{Name: "Knitwear"})
	require.NoError(t, err)
	require.Equal(t, "knitwear", cat.Slug)

	err = admin.Categories.Delete(ctx, cat.ID)
	requireStatus(t, err, http.StatusForbidden)

	me, err := admin.Auth.Me(ctx)
	require.NoError(t, err)
	store := permissions.New(permissions.FromClient(admin), slogx.Discard())
	require.NoError(t, store.Load(ctx, me))
	require.True(t, store.HasPermission("categories", "create"))
	require.False(t, store.HasPermission("categories", "delete"))

	owner := signIn(t, url, SuperAdminEmail)
	_, err = owner.Users.UpdatePermissions(ctx, me.ID, []shopsdk.PermissionGrant{
		{PermissionID: "categories.delete", IsGranted: true},
	})
	require.NoError(t, err)

	require.NoError(t, store.Load(ctx, me))
	require.True(t, store.HasPermission("categories", "delete"))
	require.NoError(t, admin.Categories.Delete(ctx, cat.ID))

	_, err = admin.Users.UpdateRole(ctx, me.ID, shopsdk.RoleSuperAdmin)
	requireStatus(t, err, http.StatusForbidden)
}

func TestRoleChangeEndsSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, url := newTestBackend(t)

	shopper := signIn(t, url, UserEmail)
	me, err := shopper.Auth.Me(ctx)
	require.NoError(t, err)

	owner := signIn(t, url, SuperAdminEmail)
	u, err := owner.Users.UpdateRole(ctx, me.ID, shopsdk.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, shopsdk.RoleAdmin, u.Role)

	_, err = shopper.Auth.Me(ctx)
	require.ErrorIs(t, err, shopsdk.ErrSessionExpired)

	res, err := shopper.Auth.Login(ctx, UserEmail, SeedPassword)
	require.NoError(t, err)
	require.Equal(t, shopsdk.RoleAdmin, res.User.Role)

	ownerMe, err := owner.Auth.Me(ctx)
	require.NoError(t, err)
	_, err = owner.Users.ToggleStatus(ctx, ownerMe.ID)
	requireStatus(t, err, http.StatusBadRequest)
}

func TestProductLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, url := newTestBackend(t)
	admin := signIn(t, url, AdminEmail)

	_, err := admin.Products.Create(ctx, shopsdk.ProductInput{Name: "Linen Shirt", Price: 59, CategoryID: "missing"})
	apiErr := requireStatus(t, err, http.StatusUnprocessableEntity)
	require.Contains(t, apiErr.Details, "categoryId")

	women, err := admin.Categories.GetBySlug(ctx, "women")
	require.NoError(t, err)

	p, err := admin.Products.Create(ctx, shopsdk.ProductInput{
		Name:          "Linen Shirt",
		Price:         59,
		StockQuantity: 2,
		CategoryID:    women.ID,
		Status:        shopsdk.ProductPublished,
	})
	require.NoError(t, err)
	require.Equal(t, "linen-shirt", p.Slug)
	require.Equal(t, "USD", p.Currency)
	require.Equal(t, 5, p.LowStockThreshold)
	require.NotNil(t, p.Category)

	p, err = admin.Products.UpdateStock(ctx, p.ID, 2, shopsdk.StockSubtract)
	require.NoError(t, err)
	require.Equal(t, shopsdk.ProductOutOfStock, p.Status)

	_, err = admin.Products.UpdateStock(ctx, p.ID, 1, shopsdk.StockSubtract)
	requireStatus(t, err, http.StatusBadRequest)

	p, err = admin.Products.UpdateStock(ctx, p.ID, 10, shopsdk.StockAdd)
	require.NoError(t, err)
	require.Equal(t, shopsdk.ProductPublished, p.Status)
	require.Equal(t, 10, p.StockQuantity)

	p, err = admin.Products.ToggleFeatured(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, p.IsFeatured)

	page, err := admin.Products.List(ctx, shopsdk.ProductFilter{Category: "women", Search: "shirt"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, 1, page.Pagination.Total)

	low, err := admin.Products.LowStock(ctx, 0)
	require.NoError(t, err)
	for _, item := range low {
		require.True(t, item.IsLowStock(), item.Name)
	}

	err = admin.Categories.Delete(ctx, women.ID)
	requireStatus(t, err, http.StatusForbidden)

	// the seeded admin holds no delete grant
	err = admin.Products.BulkDelete(ctx, []string{p.ID})
	requireStatus(t, err, http.StatusForbidden)

	require.NoError(t, admin.Products.BulkUpdateStatus(ctx, []string{p.ID}, shopsdk.ProductDiscontinued))
	p, err = admin.Products.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, shopsdk.ProductDiscontinued, p.Status)
}

func TestStorefrontReads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, url := newTestBackend(t)
	c := newClient(t, url)

	cats, err := c.Categories.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 6)
	require.Equal(t, "women", cats[0].Slug)

	featured, err := c.Products.Featured(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, featured)
	for _, p := range featured {
		require.True(t, p.IsFeatured)
		require.Equal(t, shopsdk.ProductPublished, p.Status)
	}

	page, err := c.Products.List(ctx, shopsdk.ProductFilter{Limit: 2, SortBy: "price", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.True(t, page.HasNext())
	require.LessOrEqual(t, page.Items[0].Price, page.Items[1].Price)

	partners, err := c.Partners.ListActive(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, partners)

	_, err = c.Partners.List(ctx)
	requireStatus(t, err, http.StatusUnauthorized)

	_, err = c.Products.GetBySlug(ctx, "no-such-product")
	require.True(t, shopsdk.IsNotFound(err))
}

func TestInboxAndExports(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, url := newTestBackend(t)

	visitor := newClient(t, url)
	_, err := visitor.Messages.Submit(ctx, shopsdk.ContactRequest{Name: "Ana"})
	var verr shopsdk.ValidationErrors
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr, "email")

	msg, err := visitor.Messages.Submit(ctx, shopsdk.ContactRequest{
		Name:    "Ana",
		Email:   "ana@example.com",
		Subject: "Sizing, question",
		Message: "Does the coat run large?\nThanks",
	})
	require.NoError(t, err)
	require.Equal(t, shopsdk.MessageUnread, msg.Status)
	require.Equal(t, defaultMessageSource, msg.Source)

	admin := signIn(t, url, AdminEmail)
	stats, err := admin.Messages.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Unread)

	got, err := admin.Messages.Get(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, shopsdk.MessageRead, got.Status)
	require.NotNil(t, got.ReadAt)

	got, err = admin.Messages.UpdateStatus(ctx, msg.ID, shopsdk.MessageReplied)
	require.NoError(t, err)
	require.NotNil(t, got.RepliedAt)

	page, err := admin.Messages.List(ctx, shopsdk.MessageFilter{Status: shopsdk.MessageUnread})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, 2, page.Pagination.Total)

	blob, err := admin.Messages.Export(ctx, shopsdk.MessageFilter{Search: "coat"})
	require.NoError(t, err)
	require.Equal(t, "messages.csv", blob.Filename)
	rows, err := csv.NewReader(strings.NewReader(string(blob.Data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Sizing, question", rows[1][6])

	logs, err := admin.Security.ExportLogs(ctx, shopsdk.SecurityLogFilter{EventType: "login_success"})
	require.NoError(t, err)
	rows, err = csv.NewReader(strings.NewReader(string(logs.Data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, AdminEmail, rows[1][4])
}

func TestCreateSecureAdmin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, url := newTestBackend(t)
	c := newClient(t, url)

	req := shopsdk.CreateAdminRequest{
		Name:      "New Admin",
		Email:     "new.admin@atelier.test",
		Password:  "Sturdy#Pass1",
		SecretKey: "guess",
	}
	_, err := c.Auth.CreateSecureAdmin(ctx, req)
	requireStatus(t, err, http.StatusForbidden)

	req.SecretKey = testAdminSecret
	u, err := c.Auth.CreateSecureAdmin(ctx, req)
	require.NoError(t, err)
	require.Equal(t, shopsdk.RoleAdmin, u.Role)

	_, err = c.Auth.CreateSecureAdmin(ctx, req)
	requireStatus(t, err, http.StatusConflict)

	_, err = c.Auth.Login(ctx, req.Email, req.Password)
	require.NoError(t, err)
	mine, err := c.Permissions.Mine(ctx)
	require.NoError(t, err)
	for _, g := range mine {
		require.Equal(t, "read", g.Permission.Action)
	}
}

func TestHousekeepingSweep(t *testing.T) {
	t.Parallel()
	s, url := newTestBackend(t)
	signIn(t, url, UserEmail)

	now := time.Now()
	s.st.mu.Lock()
	s.st.challenges["stale"] = challenge{userID: "x", expires: now.Add(-time.Second)}
	s.st.challenges["live"] = challenge{userID: "x", expires: now.Add(time.Minute)}
	for _, se := range s.st.sessions.rows {
		se.lastActive = now.Add(-(s.cfg.TokenTTL + s.cfg.RefreshGrace + time.Minute))
	}
	a, _ := s.st.accountByEmail(AdminEmail)
	a.lockedUntil = now.Add(-time.Minute)
	s.st.mu.Unlock()

	got := newHousekeeper(s, time.Hour).sweep()
	require.Equal(t, sweepStats{challenges: 1, lockouts: 1, sessions: 1}, got)

	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	require.Contains(t, s.st.challenges, "live")
	require.Empty(t, s.st.sessions.rows)
}

func TestSwaggerDocs(t *testing.T) {
	t.Parallel()
	_, url := newTestBackend(t)

	resp, err := http.Get(url + "/swagger/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Equal(t, "3.0.3", doc.OpenAPI)
	require.Contains(t, doc.Paths, "/api/products/{id}/stock")
	require.Contains(t, doc.Paths["/api/auth/login"], "post")

	page, err := http.Get(url + "/swagger/index.html")
	require.NoError(t, err)
	defer page.Body.Close()
	require.Equal(t, http.StatusOK, page.StatusCode)
}

func TestLoginLimitIsConfigurable(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Seed: true, LoginLimit: httpx.PerMinute(2)}, slogx.Discard())
	require.NoError(t, err)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	c := newClient(t, srv.URL)
	for range 2 {
		_, err := c.Auth.Login(context.Background(), UserEmail, "wrong-password")
		requireStatus(t, err, http.StatusUnauthorized)
	}
	_, err = c.Auth.Login(context.Background(), UserEmail, SeedPassword)
	requireStatus(t, err, http.StatusTooManyRequests)

	// Other routes have their own buckets.
	_, err = c.Categories.ListActive(context.Background())
	require.NoError(t, err)
}

func TestHousekeepingDropsRefilledBuckets(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Seed: true, LoginLimit: httpx.Limit{Requests: 1000, Per: time.Millisecond, Burst: 1}}, slogx.Discard())
	require.NoError(t, err)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	signIn(t, srv.URL, UserEmail)

	hk := newHousekeeper(s, time.Hour)
	require.Eventually(t, func() bool { return hk.sweepLimiters() > 0 }, time.Second, 10*time.Millisecond)
}

func TestRequestIDIsEchoed(t *testing.T) {
	t.Parallel()
	_, url := newTestBackend(t)

	sent := idx.New().String()
	req, err := http.NewRequest(http.MethodGet, url+"/api/categories/active", nil)
	require.NoError(t, err)
	req.Header.Set(slogx.RequestIDHeader, sent)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, sent, resp.Header.Get(slogx.RequestIDHeader))

	resp, err = http.Get(url + "/api/categories/active")
	require.NoError(t, err)
	resp.Body.Close()
	_, ok := idx.Accept(resp.Header.Get(slogx.RequestIDHeader))
	require.True(t, ok)
}
