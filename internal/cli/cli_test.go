package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/atelier/internal/app"
	"github.com/aussiebroadwan/atelier/internal/devserver"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

type harness struct {
	t        *testing.T
	url      string
	download string

	mu       sync.Mutex
	requests []string
}

// newHarness starts a seeded dev backend and points the CLI at it through
// the environment, with storage in a temp dir.
func newHarness(t *testing.T) *harness {
	t.Helper()

	backend, err := devserver.New(devserver.Config{Seed: true}, slogx.Discard())
	require.NoError(t, err)
	h := &harness{t: t}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.requests = append(h.requests, r.Method+" "+r.URL.Path)
		h.mu.Unlock()
		backend.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Chdir(dir)
	h.url, h.download = srv.URL, filepath.Join(dir, "exports")
	t.Setenv("ATELIER_API_URL", srv.URL)
	t.Setenv("ATELIER_STORE_PATH", filepath.Join(dir, "atelier.db"))
	t.Setenv("ATELIER_MASTER_KEY_PATH", filepath.Join(dir, "master.key"))
	t.Setenv("ATELIER_DOWNLOAD_DIR", h.download)
	return h
}

func (h *harness) exec(stdin string, args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	e := newEnv(strings.NewReader(stdin), &out, &errOut)
	e.appOpts = []app.Option{app.WithLogger(slogx.Discard())}
	err := e.run(context.Background(), args)
	return out.String(), err
}

func (h *harness) run(args ...string) string {
	h.t.Helper()
	out, err := h.exec("", args...)
	require.NoError(h.t, err, out)
	return out
}

func (h *harness) login(email string) {
	h.t.Helper()
	out := h.run("login", "--email", email, "--password", devserver.SeedPassword)
	require.Contains(h.t, out, "Signed in as")
}

// seen returns the requests recorded since the previous call.
func (h *harness) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.requests
	h.requests = nil
	return out
}

// client is a separate SDK client for checking backend state.
func (h *harness) client() *shopsdk.Client {
	h.t.Helper()
	c := shopsdk.NewClient(h.url, shopsdk.WithLogger(slogx.Discard()))
	_, err := c.Auth.Login(context.Background(), devserver.SuperAdminEmail, devserver.SeedPassword)
	require.NoError(h.t, err)
	return c
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec("", "whoami")
	require.ErrorIs(t, err, errNotSignedIn)

	h.login(devserver.AdminEmail)

	out := h.run("whoami")
	require.Contains(t, out, devserver.AdminEmail)
	require.Contains(t, out, "products:read")
	require.NotContains(t, out, "users:delete")

	out = h.run("status")
	require.Contains(t, out, "authenticated")
	require.Contains(t, out, h.url)

	require.Contains(t, h.run("logout"), "Signed out.")
	require.Contains(t, h.run("status"), "anonymous")
}

func TestLoginPromptsForMissingCredentials(t *testing.T) {
	h := newHarness(t)

	out, err := h.exec(devserver.UserEmail+"\n"+devserver.SeedPassword+"\n", "login")
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as Sasha Shopper")
	require.Contains(t, out, "no back-office access")

	require.Contains(t, h.run("nav"), "no back-office access")
}

func TestWrongPasswordFails(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec("", "login", "--email", devserver.AdminEmail, "--password", "nope-nope")
	require.Error(t, err)
	require.Contains(t, h.run("status"), "anonymous")
}

func TestMissingPermissionPrintsNotice(t *testing.T) {
	h := newHarness(t)
	h.login(devserver.AdminEmail)

	c := h.client()
	women, err := c.Categories.GetBySlug(context.Background(), "women")
	require.NoError(t, err)

	out := h.run("categories", "delete", women.ID)
	require.Contains(t, out, "You don't have permission to delete categories.")

	_, err = c.Categories.Get(context.Background(), women.ID)
	require.NoError(t, err)

	out = h.run("users", "role", "some-id", "admin")
	require.Contains(t, out, "Only super admins can change roles.")
}

func TestNavFollowsPermissions(t *testing.T) {
	h := newHarness(t)

	page, err := h.client().Users.List(context.Background(), shopsdk.UserFilter{Search: devserver.AdminEmail})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	adminID := page.Items[0].ID

	h.login(devserver.SuperAdminEmail)
	out := h.run("users", "permissions", adminID, "--revoke", "users:read", "--revoke", "security:read")
	require.Regexp(t, `users:read\s+\S.*\s+no`, out)
	h.run("logout")

	h.login(devserver.AdminEmail)
	out = h.run("nav")
	require.Contains(t, out, "/admin/products")
	require.Contains(t, out, "/admin/messages")
	require.NotContains(t, out, "/admin/users")
	require.NotContains(t, out, "/admin/security")

	out = h.run("security", "stats")
	require.Contains(t, out, "You don't have permission to read security.")
}

func TestProductCommands(t *testing.T) {
	h := newHarness(t)
	h.login(devserver.SuperAdminEmail)

	shirt, err := h.client().Products.GetBySlug(context.Background(), "oxford-shirt")
	require.NoError(t, err)

	out := h.run("products", "list", "--category", "men", "--sort", "price", "--order", "asc")
	require.Less(t, strings.Index(out, "Oxford Shirt"), strings.Index(out, "Wool Overcoat"))

	out = h.run("products", "stock", shirt.ID, "0")
	require.Contains(t, out, "Oxford Shirt: 0 in stock (out_of_stock)")

	out = h.run("products", "low-stock")
	require.Contains(t, out, "Oxford Shirt")

	out = h.run("products", "stock", shirt.ID, "10", "--op", "add")
	require.Contains(t, out, "10 in stock (published)")

	require.Contains(t, h.run("products", "feature", shirt.ID), "is now featured")
	require.Regexp(t, `Featured:\s+yes`, h.run("products", "show", "oxford-shirt"))
}

func TestPartnerToggleFeaturedRefreshesList(t *testing.T) {
	h := newHarness(t)
	h.login(devserver.SuperAdminEmail)

	partners, err := h.client().Partners.List(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, partners)
	p := partners[0]

	h.seen()
	out := h.run("partners", "toggle-featured", p.ID)
	require.Contains(t, out, p.Name+" featured: "+yesNo(!p.IsFeatured))
	require.Contains(t, out, "WEBSITE")

	var patches, listsAfter int
	for _, req := range h.seen() {
		switch {
		case req == "PATCH /api/partners/"+p.ID+"/toggle-featured":
			patches++
		case req == "GET /api/partners" && patches == 1:
			listsAfter++
		}
	}
	require.Equal(t, 1, patches)
	require.Equal(t, 1, listsAfter)
}

func TestMessagesTriageAndExport(t *testing.T) {
	h := newHarness(t)
	h.login(devserver.SuperAdminEmail)

	stats := h.run("messages", "stats")
	require.Contains(t, stats, "Unread:")

	page, err := h.client().Messages.List(context.Background(), shopsdk.MessageFilter{Status: shopsdk.MessageUnread})
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
	id := page.Items[0].ID

	out := h.run("messages", "reply", id, "--notes", "sent sizing guide")
	require.Contains(t, out, "mailto:"+page.Items[0].Email)

	require.Contains(t, h.run("messages", "show", id), "sent sizing guide")
	require.Contains(t, h.run("messages", "priority", id, "urgent"), "priority is now urgent")

	out = h.run("messages", "export")
	require.Contains(t, out, "Saved "+h.download)

	entries, err := os.ReadDir(h.download)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	raw, err := os.ReadFile(filepath.Join(h.download, entries[0].Name()))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "id,created_at,name,email"))
}

func TestChatHandoffCreatesMessage(t *testing.T) {
	h := newHarness(t)

	script := "how long does shipping take?\nhandoff\nAnn Lee\nann@example.com\nquit\n"
	out, err := h.exec(script, "chat")
	require.NoError(t, err)
	require.Contains(t, out, "our team will reply to ann@example.com")

	page, err := h.client().Messages.List(context.Background(), shopsdk.MessageFilter{Search: "ann@example.com"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "chatbot", page.Items[0].Source)
}

func TestStorefrontHome(t *testing.T) {
	h := newHarness(t)

	out := h.run("storefront")
	require.Contains(t, out, "Women (women)")
	require.Contains(t, out, "Linen Wrap Dress")
	require.NotContains(t, out, "unavailable")

	out = h.run("storefront", "--category", "women")
	require.Contains(t, out, "Silk Camisole")
}

func TestPasswordCheckNeedsNoBackend(t *testing.T) {
	t.Setenv("ATELIER_TIMEOUT", "not-a-duration")

	var out bytes.Buffer
	e := newEnv(strings.NewReader(""), &out, &bytes.Buffer{})
	require.NoError(t, e.run(context.Background(), []string{"password", "check", "Abcdef1!"}))
	require.Contains(t, out.String(), "Strength: strong (5/5)")

	out.Reset()
	require.NoError(t, e.run(context.Background(), []string{"password", "check", "abc"}))
	require.Contains(t, out.String(), "[ ] One uppercase letter")
	require.Contains(t, out.String(), "[x] One lowercase letter")
}
