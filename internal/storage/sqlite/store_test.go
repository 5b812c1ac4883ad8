package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/atelier/pkg/cryptox"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

func newTestStore(t *testing.T, dir string, key []byte) *Store {
	t.Helper()

	sealer, err := cryptox.NewSealer(key)
	require.NoError(t, err)

	store, err := Open(filepath.Join(dir, "atelier.db"), sealer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCredentialsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	key := []byte("0123456789abcdef0123456789abcdef")

	store := newTestStore(t, dir, key)

	creds, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, creds.Empty())

	require.NoError(t, store.Save(ctx, shopsdk.Credentials{
		Token: "tok-1",
		User:  &shopsdk.User{ID: "u1", Email: "admin@example.com", Role: shopsdk.RoleSuperAdmin},
	}))
	require.NoError(t, store.Close())

	// Survives a reopen with the same key.
	reopened := newTestStore(t, dir, key)
	creds, err = reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok-1", creds.Token)
	require.Equal(t, "admin@example.com", creds.User.Email)

	require.NoError(t, reopened.Clear(ctx))
	creds, err = reopened.Load(ctx)
	require.NoError(t, err)
	require.True(t, creds.Empty())
	require.Nil(t, creds.User)
}

func TestValuesAreSealed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newTestStore(t, t.TempDir(), []byte("key-material"))
	require.NoError(t, store.Put(ctx, "auth_token", []byte("secret-token")))

	var raw []byte
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, "auth_token").Scan(&raw))
	require.NotContains(t, string(raw), "secret-token")

	got, err := store.Get(ctx, "auth_token")
	require.NoError(t, err)
	require.Equal(t, "secret-token", string(got))
}

func TestWrongKeyCannotOpen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	store := newTestStore(t, dir, []byte("first-key"))
	require.NoError(t, store.Put(ctx, "auth_token", []byte("secret")))
	require.NoError(t, store.Close())

	other := newTestStore(t, dir, []byte("second-key"))
	_, err := other.Get(ctx, "auth_token")
	require.Error(t, err)
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, t.TempDir(), []byte("k"))
	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveWithoutUserDropsStaleUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newTestStore(t, t.TempDir(), []byte("k"))
	require.NoError(t, store.Save(ctx, shopsdk.Credentials{Token: "a", User: &shopsdk.User{ID: "u1"}}))
	require.NoError(t, store.Save(ctx, shopsdk.Credentials{Token: "b"}))

	creds, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", creds.Token)
	require.Nil(t, creds.User)
}

func TestReopenKeepsSchemaVersion(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	first := newTestStore(t, dir, []byte("key"))
	require.EqualValues(t, 1, first.SchemaVersion())
	require.NoError(t, first.Close())

	second := newTestStore(t, dir, []byte("key"))
	require.EqualValues(t, 1, second.SchemaVersion())
	require.NoError(t, second.Ping(context.Background()))
}
