package permissions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

type fakeSource struct {
	catalog   []shopsdk.Permission
	catErr    error
	grants    []shopsdk.UserPermission
	grantErr  error
	grantHits int
}

func (f *fakeSource) Catalog(context.Context) ([]shopsdk.Permission, error) {
	if f.catErr != nil {
		return nil, f.catErr
	}
	return f.catalog, nil
}

func (f *fakeSource) OwnGrants(context.Context) ([]shopsdk.UserPermission, error) {
	f.grantHits++
	return f.grants, f.grantErr
}

func perm(resource, action string) shopsdk.Permission {
	return shopsdk.Permission{ID: resource + "-" + action, Resource: resource, Action: action}
}

func newSource() *fakeSource {
	return &fakeSource{
		catalog: []shopsdk.Permission{
			perm("products", "read"), perm("products", "write"),
			perm("messages", "read"), perm("users", "read"), perm("security", "read"),
		},
		grants: []shopsdk.UserPermission{
			{UserID: "editor", Permission: perm("products", "read"), IsGranted: true},
			{UserID: "editor", Permission: perm("products", "write"), IsGranted: true},
			{UserID: "editor", Permission: perm("messages", "read"), IsGranted: false},
		},
	}
}

func TestSuperAdminHoldsEverything(t *testing.T) {
	t.Parallel()

	src := newSource()
	store := New(src, slogx.Discard())
	require.NoError(t, store.Load(context.Background(), &shopsdk.User{ID: "root", Role: shopsdk.RoleSuperAdmin}))

	require.True(t, store.HasPermission("products", "delete"))
	require.True(t, store.HasPermission("anything", "at-all"))
	require.Len(t, store.FilterNavigation(AdminNavigation), len(AdminNavigation))
	require.Len(t, store.Granted(), len(src.catalog))
	require.Zero(t, src.grantHits)
}

func TestGrantsDecideForOthers(t *testing.T) {
	t.Parallel()

	store := New(newSource(), slogx.Discard())
	require.NoError(t, store.Load(context.Background(), &shopsdk.User{ID: "editor", Role: shopsdk.RoleAdmin}))

	require.True(t, store.HasPermission("products", "write"))
	require.False(t, store.HasPermission("messages", "read"), "explicitly denied grants do not count")
	require.False(t, store.HasPermission("users", "read"))
	require.True(t, store.HasAny(Requirement{"users", "read"}, Requirement{"products", "read"}))
	require.Len(t, store.Granted(), 2)

	var labels []string
	for _, item := range store.FilterNavigation(AdminNavigation) {
		labels = append(labels, item.Label)
	}
	require.Equal(t, []string{"Dashboard", "Products"}, labels)
}

func TestNilUserResets(t *testing.T) {
	t.Parallel()

	store := New(newSource(), slogx.Discard())
	require.NoError(t, store.Load(context.Background(), &shopsdk.User{ID: "root", Role: shopsdk.RoleSuperAdmin}))
	require.True(t, store.HasPermission("products", "read"))

	follow := store.Follow(context.Background())
	follow(nil)

	require.False(t, store.HasPermission("products", "read"))
	require.Empty(t, store.Catalog())
	require.Equal(t, []NavItem{AdminNavigation[0]}, store.FilterNavigation(AdminNavigation))
}

func TestLoadFailureLeavesNoGrants(t *testing.T) {
	t.Parallel()

	src := newSource()
	src.grantErr = errors.New("backend down")
	store := New(src, slogx.Discard())

	err := store.Load(context.Background(), &shopsdk.User{ID: "editor", Role: shopsdk.RoleAdmin})
	require.Error(t, err)
	require.False(t, store.HasPermission("products", "read"))
	require.NotEmpty(t, store.Catalog())
}

func TestCatalogFailureKeepsGrants(t *testing.T) {
	t.Parallel()

	src := newSource()
	src.catErr = &shopsdk.APIError{StatusCode: 403, Message: "Forbidden"}
	store := New(src, slogx.Discard())

	err := store.Load(context.Background(), &shopsdk.User{ID: "editor", Role: shopsdk.RoleAdmin})
	require.Error(t, err)
	require.Empty(t, store.Catalog())
	require.True(t, store.HasPermission("products", "read"))
	require.True(t, store.HasPermission("products", "write"))
	require.False(t, store.HasPermission("users", "read"))
	require.Len(t, store.Granted(), 2)

	var labels []string
	for _, item := range store.FilterNavigation(AdminNavigation) {
		labels = append(labels, item.Label)
	}
	require.Equal(t, []string{"Dashboard", "Products"}, labels)
}
