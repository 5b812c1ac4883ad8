package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/atelier/pkg/jwtx"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

var admin = &shopsdk.User{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: shopsdk.RoleAdmin}

func data(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": v})
}

func fail(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

type fixture struct {
	client  *shopsdk.Client
	store   *shopsdk.MemoryStorage
	manager *Manager

	mu        sync.Mutex
	redirects []string
}

func newFixture(t *testing.T, mux *http.ServeMux, opts ...Option) *fixture {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f := &fixture{store: shopsdk.NewMemoryStorage()}
	f.client = shopsdk.NewClient(srv.URL, shopsdk.WithStorage(f.store), shopsdk.WithLogger(slogx.Discard()))

	opts = append(opts, WithRedirectHandler(func(route string) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.redirects = append(f.redirects, route)
	}))
	f.manager = New(f.client, slogx.Discard(), opts...)
	t.Cleanup(f.manager.Close)
	return f
}

func (f *fixture) redirected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.redirects...)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("invalid credentials store nothing", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
			fail(w, http.StatusUnauthorized, "Invalid credentials")
		})
		f := newFixture(t, mux)

		_, err := f.manager.Login(context.Background(), "ada@example.com", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
		require.False(t, f.manager.IsAuthenticated())
		require.Equal(t, StatusAnonymous, f.manager.Status())

		creds, _ := f.store.Load(context.Background())
		require.True(t, creds.Empty())
		require.Empty(t, f.redirected())
	})

	t.Run("malformed response is treated as invalid", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
			data(w, http.StatusOK, map[string]any{"user": admin})
		})
		f := newFixture(t, mux)

		_, err := f.manager.Login(context.Background(), "ada@example.com", "pw")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		creds, _ := f.store.Load(context.Background())
		require.True(t, creds.Empty())
	})

	t.Run("server errors are not reported as bad credentials", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
			fail(w, http.StatusInternalServerError, "boom")
		})
		f := newFixture(t, mux)

		_, err := f.manager.Login(context.Background(), "ada@example.com", "pw")
		require.Error(t, err)
		require.False(t, errors.Is(err, ErrInvalidCredentials))
	})

	t.Run("success stores credentials and notifies subscribers", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
			data(w, http.StatusOK, shopsdk.AuthResult{Token: "tok", User: admin})
		})
		f := newFixture(t, mux)

		var seen []*shopsdk.User
		f.manager.OnChange(func(u *shopsdk.User) { seen = append(seen, u) })

		u, err := f.manager.Login(context.Background(), "ada@example.com", "pw")
		require.NoError(t, err)
		require.Equal(t, "u1", u.ID)
		require.True(t, f.manager.IsAuthenticated())
		require.True(t, f.manager.IsAdmin())
		require.Len(t, seen, 1)

		creds, _ := f.store.Load(context.Background())
		require.Equal(t, "tok", creds.Token)
	})

	t.Run("mfa challenge then completion", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
			data(w, http.StatusOK, shopsdk.AuthResult{RequiresMFA: true, TempToken: "temp"})
		})
		mux.HandleFunc("POST /api/auth/mfa/verify", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["tempToken"] != "temp" || body["token"] != "123456" {
				fail(w, http.StatusUnauthorized, "Invalid code")
				return
			}
			data(w, http.StatusOK, shopsdk.AuthResult{Token: "tok", User: admin})
		})
		f := newFixture(t, mux)

		_, err := f.manager.Login(context.Background(), "ada@example.com", "pw")
		var challenge *shopsdk.MFARequiredError
		require.ErrorAs(t, err, &challenge)
		require.False(t, f.manager.IsAuthenticated())

		_, err = f.manager.CompleteMFA(context.Background(), challenge, "654321")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = f.manager.CompleteMFA(context.Background(), challenge, "123456")
		require.NoError(t, err)
		require.True(t, f.manager.IsAuthenticated())
	})
}

func TestLogoutAlwaysClears(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		data(w, http.StatusOK, shopsdk.AuthResult{Token: "tok", User: admin})
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusInternalServerError, "down")
	})
	f := newFixture(t, mux)

	var last *shopsdk.User = admin
	f.manager.OnChange(func(u *shopsdk.User) { last = u })

	_, err := f.manager.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)

	f.manager.Logout(context.Background())
	require.False(t, f.manager.IsAuthenticated())
	require.Nil(t, f.manager.User())
	require.Nil(t, last)
	require.Equal(t, []string{shopsdk.LoginRoute}, f.redirected())

	creds, _ := f.store.Load(context.Background())
	require.True(t, creds.Empty())
}

func TestInit(t *testing.T) {
	t.Parallel()

	t.Run("no stored token is anonymous", func(t *testing.T) {
		f := newFixture(t, http.NewServeMux())
		require.NoError(t, f.manager.Init(context.Background()))
		require.Equal(t, StatusAnonymous, f.manager.Status())
	})

	t.Run("valid token restores the session with a fresh profile", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/auth/validate", func(w http.ResponseWriter, r *http.Request) {
			data(w, http.StatusOK, shopsdk.TokenValidation{Valid: true, User: admin})
		})
		mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
			u := *admin
			u.Name = "Ada Lovelace"
			data(w, http.StatusOK, u)
		})
		f := newFixture(t, mux)
		require.NoError(t, f.store.Save(context.Background(), shopsdk.Credentials{Token: "tok", User: admin}))

		require.NoError(t, f.manager.Init(context.Background()))
		require.True(t, f.manager.IsAuthenticated())
		require.Equal(t, "Ada Lovelace", f.manager.User().Name)

		creds, _ := f.store.Load(context.Background())
		require.Equal(t, "Ada Lovelace", creds.User.Name)
	})

	t.Run("profile refresh failure falls back to cached user", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/auth/validate", func(w http.ResponseWriter, r *http.Request) {
			data(w, http.StatusOK, shopsdk.TokenValidation{Valid: true})
		})
		mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
			fail(w, http.StatusInternalServerError, "boom")
		})
		f := newFixture(t, mux)
		require.NoError(t, f.store.Save(context.Background(), shopsdk.Credentials{Token: "tok", User: admin}))

		require.NoError(t, f.manager.Init(context.Background()))
		require.True(t, f.manager.IsAuthenticated())
		require.Equal(t, "Ada", f.manager.User().Name)
	})

	t.Run("rejected token that cannot refresh becomes expired", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/auth/validate", func(w http.ResponseWriter, r *http.Request) {
			fail(w, http.StatusUnauthorized, "Invalid token")
		})
		mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
			fail(w, http.StatusUnauthorized, "Invalid token")
		})
		f := newFixture(t, mux)
		require.NoError(t, f.store.Save(context.Background(), shopsdk.Credentials{Token: "old", User: admin}))

		require.NoError(t, f.manager.Init(context.Background()))
		require.Equal(t, StatusExpired, f.manager.Status())
		require.False(t, f.manager.IsAuthenticated())

		creds, _ := f.store.Load(context.Background())
		require.True(t, creds.Empty())
	})

	t.Run("unreachable backend keeps the cached session", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		})
		f := newFixture(t, mux)
		require.NoError(t, f.store.Save(context.Background(), shopsdk.Credentials{Token: "tok", User: admin}))

		require.NoError(t, f.manager.Init(context.Background()))
		require.True(t, f.manager.IsAuthenticated())
		require.Equal(t, admin.ID, f.manager.User().ID)
		require.Empty(t, f.redirected())

		creds, _ := f.store.Load(context.Background())
		require.Equal(t, "tok", creds.Token)
	})
}

func TestClientExpiryMarksSessionExpired(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		data(w, http.StatusOK, shopsdk.AuthResult{Token: "tok", User: admin})
	})
	mux.HandleFunc("GET /api/dashboard/stats", func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusUnauthorized, "expired")
	})
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusUnauthorized, "expired")
	})
	f := newFixture(t, mux)

	_, err := f.manager.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)

	_, err = f.client.Dashboard.Stats(context.Background())
	require.ErrorIs(t, err, shopsdk.ErrSessionExpired)
	require.Equal(t, StatusExpired, f.manager.Status())
	require.Equal(t, []string{shopsdk.LoginRoute}, f.redirected())
}

func TestCheckRefreshesAheadOfExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	signer := jwtx.NewHS256([]byte("test-secret"), "atelier-test")
	expiring, err := signer.Sign(jwtx.NewAccessClaims("u1", admin.Email, string(admin.Role), "atelier-test", 30*time.Second, now))
	require.NoError(t, err)

	var refreshes, validations atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		data(w, http.StatusOK, shopsdk.AuthResult{Token: "renewed", User: admin})
	})
	mux.HandleFunc("GET /api/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		validations.Add(1)
		data(w, http.StatusOK, shopsdk.TokenValidation{Valid: true, User: admin})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		data(w, http.StatusOK, admin)
	})
	f := newFixture(t, mux, withClock(func() time.Time { return now }))
	require.NoError(t, f.store.Save(context.Background(), shopsdk.Credentials{Token: expiring, User: admin}))
	require.NoError(t, f.manager.Init(context.Background()))

	f.manager.Check(context.Background())
	require.EqualValues(t, 1, refreshes.Load())

	creds, _ := f.store.Load(context.Background())
	require.Equal(t, "renewed", creds.Token)
	require.True(t, f.manager.IsAuthenticated())
}

func TestCheckLogsOutWhenRefreshFails(t *testing.T) {
	t.Parallel()

	var valid atomic.Bool
	valid.Store(true)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		data(w, http.StatusOK, shopsdk.TokenValidation{Valid: valid.Load(), User: admin})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		data(w, http.StatusOK, admin)
	})
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusUnauthorized, "nope")
	})
	f := newFixture(t, mux)
	require.NoError(t, f.store.Save(context.Background(), shopsdk.Credentials{Token: "opaque", User: admin}))
	require.NoError(t, f.manager.Init(context.Background()))
	require.True(t, f.manager.IsAuthenticated())

	valid.Store(false)
	f.manager.Check(context.Background())

	require.Equal(t, StatusExpired, f.manager.Status())
	require.Equal(t, []string{shopsdk.LoginRoute}, f.redirected())
	creds, _ := f.store.Load(context.Background())
	require.True(t, creds.Empty())
}

func TestStartAndClose(t *testing.T) {
	t.Parallel()

	var validations atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/validate", func(w http.ResponseWriter, r *http.Request) {
		validations.Add(1)
		data(w, http.StatusOK, shopsdk.TokenValidation{Valid: true, User: admin})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		data(w, http.StatusOK, admin)
	})
	f := newFixture(t, mux, WithCheckInterval(10*time.Millisecond))
	require.NoError(t, f.store.Save(context.Background(), shopsdk.Credentials{Token: "opaque", User: admin}))
	require.NoError(t, f.manager.Init(context.Background()))

	f.manager.Start(context.Background())
	require.Eventually(t, func() bool { return validations.Load() >= 3 }, time.Second, 5*time.Millisecond)

	f.manager.Close()
	after := validations.Load()
	time.Sleep(30 * time.Millisecond)
	require.LessOrEqual(t, validations.Load(), after+1)
}
