package shopsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// tokenBackend accepts only the "fresh" token on protected routes and
// answers refreshes according to refreshOK.
type tokenBackend struct {
	refreshOK   bool
	refreshes   atomic.Int32
	protected   atomic.Int32
	alwaysDeny  bool
	refreshWait time.Duration

	// staleGate, when set, holds every request carrying the stale token
	// until all expected callers have arrived.
	staleGate *sync.WaitGroup
}

func (b *tokenBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/auth/refresh" {
		b.refreshes.Add(1)
		time.Sleep(b.refreshWait)

		var body refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !b.refreshOK || body.Token != "stale" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid refresh token"}`))
			return
		}
		writeData(w, http.StatusOK, AuthResult{Token: "fresh", User: &User{ID: "u1", Role: RoleAdmin}})
		return
	}

	b.protected.Add(1)
	if b.staleGate != nil && r.Header.Get("Authorization") == "Bearer stale" {
		b.staleGate.Done()
		b.staleGate.Wait()
	}
	if b.alwaysDeny || r.Header.Get("Authorization") != "Bearer fresh" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Token expired"}`))
		return
	}
	writeData(w, http.StatusOK, DashboardStats{Products: 12})
}

func TestRefreshAndRetry(t *testing.T) {
	t.Parallel()

	backend := &tokenBackend{refreshOK: true}
	client, store := newTestClient(t, backend)
	seed(t, store, "stale")

	stats, err := client.Dashboard.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 12, stats.Products)
	require.EqualValues(t, 1, backend.refreshes.Load())
	require.EqualValues(t, 2, backend.protected.Load())

	creds, _ := store.Load(context.Background())
	require.Equal(t, "fresh", creds.Token)
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	t.Parallel()

	const n = 10
	gate := &sync.WaitGroup{}
	gate.Add(n)

	backend := &tokenBackend{refreshOK: true, refreshWait: 50 * time.Millisecond, staleGate: gate}
	client, store := newTestClient(t, backend)
	seed(t, store, "stale")

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = client.Dashboard.Stats(context.Background())
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, backend.refreshes.Load())
}

func TestRefreshFailureExpiresSessionOnce(t *testing.T) {
	t.Parallel()

	var routes []string
	var mu sync.Mutex
	const n = 5
	gate := &sync.WaitGroup{}
	gate.Add(n)

	backend := &tokenBackend{refreshOK: false, refreshWait: 20 * time.Millisecond, staleGate: gate}
	client, store := newTestClient(t, backend, WithSessionExpiredHandler(func(route string) {
		mu.Lock()
		defer mu.Unlock()
		routes = append(routes, route)
	}))
	seed(t, store, "stale")

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = client.Dashboard.Stats(context.Background())
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, ErrSessionExpired)
	}
	require.EqualValues(t, 1, backend.refreshes.Load())
	require.Equal(t, []string{LoginRoute}, routes)

	creds, _ := store.Load(context.Background())
	require.True(t, creds.Empty())
	require.Nil(t, creds.User)
}

func TestRetryIsAttemptedOnlyOnce(t *testing.T) {
	t.Parallel()

	backend := &tokenBackend{refreshOK: true, alwaysDeny: true}
	client, store := newTestClient(t, backend)
	seed(t, store, "stale")

	_, err := client.Dashboard.Stats(context.Background())
	require.True(t, IsStatus(err, http.StatusUnauthorized))
	require.EqualValues(t, 1, backend.refreshes.Load())
	require.EqualValues(t, 2, backend.protected.Load())
}

func TestNoRefreshWithoutToken(t *testing.T) {
	t.Parallel()

	var expired atomic.Int32
	backend := &tokenBackend{refreshOK: true}
	client, _ := newTestClient(t, backend, WithSessionExpiredHandler(func(string) { expired.Add(1) }))

	_, err := client.Dashboard.Stats(context.Background())
	require.True(t, IsStatus(err, http.StatusUnauthorized))
	require.Zero(t, backend.refreshes.Load())
	require.Zero(t, expired.Load())
}

func TestRefreshSession(t *testing.T) {
	t.Parallel()

	t.Run("reports success and stores the new token", func(t *testing.T) {
		backend := &tokenBackend{refreshOK: true}
		client, store := newTestClient(t, backend)
		seed(t, store, "stale")

		require.True(t, client.RefreshSession(context.Background()))
		creds, _ := store.Load(context.Background())
		require.Equal(t, "fresh", creds.Token)
	})

	t.Run("failure is a false, not an error, and keeps storage", func(t *testing.T) {
		backend := &tokenBackend{refreshOK: false}
		client, store := newTestClient(t, backend)
		seed(t, store, "stale")

		require.False(t, client.RefreshSession(context.Background()))
		creds, _ := store.Load(context.Background())
		require.Equal(t, "stale", creds.Token)
	})

	t.Run("no token means nothing to refresh", func(t *testing.T) {
		backend := &tokenBackend{refreshOK: true}
		client, _ := newTestClient(t, backend)

		require.False(t, client.RefreshSession(context.Background()))
		require.Zero(t, backend.refreshes.Load())
	})
}
