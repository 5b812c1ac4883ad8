package shopsdk

import (
	"context"
	"net/http"
)

// UserService covers /api/users.
type UserService struct{ c *Client }

func (s *UserService) List(ctx context.Context, f UserFilter) (*Page[User], error) {
	return callPage[User](ctx, s.c, request{method: http.MethodGet, path: "/users", query: f.values()})
}

func (s *UserService) Get(ctx context.Context, id string) (*User, error) {
	return callPtr[User](ctx, s.c, request{method: http.MethodGet, path: "/users/" + escape(id)})
}

func (s *UserService) Create(ctx context.Context, in CreateUserRequest) (*User, error) {
	return callPtr[User](ctx, s.c, request{method: http.MethodPost, path: "/users", body: in})
}

func (s *UserService) Update(ctx context.Context, id string, in UpdateUserRequest) (*User, error) {
	return callPtr[User](ctx, s.c, request{method: http.MethodPut, path: "/users/" + escape(id), body: in})
}

func (s *UserService) UpdateRole(ctx context.Context, id string, role Role) (*User, error) {
	return callPtr[User](ctx, s.c, request{
		method: http.MethodPatch,
		path:   "/users/" + escape(id) + "/role",
		body:   roleRequest{Role: role},
	})
}

// ToggleStatus activates or deactivates a user.
func (s *UserService) ToggleStatus(ctx context.Context, id string) (*User, error) {
	return callPtr[User](ctx, s.c, request{method: http.MethodPatch, path: "/users/" + escape(id) + "/toggle-status"})
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	return callNoContent(ctx, s.c, request{method: http.MethodDelete, path: "/users/" + escape(id)})
}

// ChangePassword changes the caller's password. A confirmation mismatch is
// rejected locally.
func (s *UserService) ChangePassword(ctx context.Context, in ChangePasswordRequest) error {
	return callNoContent(ctx, s.c, request{method: http.MethodPut, path: "/users/change-password", body: in})
}

// Permissions returns the grants of one user.
func (s *UserService) Permissions(ctx context.Context, userID string) ([]UserPermission, error) {
	return call[[]UserPermission](ctx, s.c, request{method: http.MethodGet, path: "/users/" + escape(userID) + "/permissions"})
}

// UpdatePermissions replaces the grants of one user.
func (s *UserService) UpdatePermissions(ctx context.Context, userID string, grants []PermissionGrant) ([]UserPermission, error) {
	return call[[]UserPermission](ctx, s.c, request{
		method: http.MethodPut,
		path:   "/users/" + escape(userID) + "/permissions",
		body:   grantsRequest{Permissions: grants},
	})
}
