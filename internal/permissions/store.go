// Package permissions caches what the signed-in user may do and filters the
// admin navigation accordingly. Checks here are advisory; the backend
// enforces the real rules.
package permissions

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// Source loads the permission catalog and the signed-in user's own grants.
// The catalog may be gated behind users:read; grants never are.
type Source interface {
	Catalog(ctx context.Context) ([]shopsdk.Permission, error)
	OwnGrants(ctx context.Context) ([]shopsdk.UserPermission, error)
}

type clientSource struct{ c *shopsdk.Client }

// FromClient reads permissions through the SDK.
func FromClient(c *shopsdk.Client) Source { return clientSource{c: c} }

func (s clientSource) Catalog(ctx context.Context) ([]shopsdk.Permission, error) {
	return s.c.Permissions.Catalog(ctx)
}

func (s clientSource) OwnGrants(ctx context.Context) ([]shopsdk.UserPermission, error) {
	return s.c.Permissions.Mine(ctx)
}

// Store holds the permissions of the current user.
type Store struct {
	src    Source
	logger *slog.Logger

	mu      sync.RWMutex
	gen     uint64
	user    *shopsdk.User
	catalog []shopsdk.Permission
	grants  []shopsdk.UserPermission
	granted map[string]struct{}
}

func New(src Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		src:     src,
		logger:  logger.With("component", "permissions"),
		granted: map[string]struct{}{},
	}
}

// Load replaces the cached permissions with those of user. A nil user
// resets the store. When loads overlap, the latest user wins. A failed
// catalog fetch does not discard the user's grants.
func (s *Store) Load(ctx context.Context, user *shopsdk.User) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.user = user
	s.catalog = nil
	s.grants = nil
	s.granted = map[string]struct{}{}
	s.mu.Unlock()

	if user == nil {
		return nil
	}

	catalog, catErr := s.src.Catalog(ctx)
	if catErr != nil {
		s.logger.Warn("failed to load permission catalog", "err", catErr)
		catalog = nil
	}

	var grants []shopsdk.UserPermission
	var grantErr error
	if !user.IsSuperAdmin() {
		grants, grantErr = s.src.OwnGrants(ctx)
		if grantErr != nil {
			s.logger.Warn("failed to load user permissions", "user_id", user.ID, "err", grantErr)
			grants = nil
		}
	}

	granted := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		if g.IsGranted {
			granted[g.Permission.Key()] = struct{}{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil
	}
	s.catalog = catalog
	s.grants = grants
	s.granted = granted
	return errors.Join(catErr, grantErr)
}

// Follow returns a callback for session.Manager.OnChange that reloads the
// store whenever the signed-in user changes.
func (s *Store) Follow(ctx context.Context) func(*shopsdk.User) {
	return func(u *shopsdk.User) {
		_ = s.Load(ctx, u)
	}
}

// HasPermission reports whether the current user may perform action on
// resource. Super admins hold every permission.
func (s *Store) HasPermission(resource, action string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return false
	}
	if s.user.IsSuperAdmin() {
		return true
	}
	_, ok := s.granted[resource+":"+action]
	return ok
}

// Requirement names one (resource, action) pair.
type Requirement struct {
	Resource string
	Action   string
}

// HasAny reports whether at least one requirement is met.
func (s *Store) HasAny(reqs ...Requirement) bool {
	for _, r := range reqs {
		if s.HasPermission(r.Resource, r.Action) {
			return true
		}
	}
	return false
}

// Catalog returns every known permission.
func (s *Store) Catalog() []shopsdk.Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]shopsdk.Permission(nil), s.catalog...)
}

// Granted returns the permissions the current user holds. For super admins
// that is the whole catalog.
func (s *Store) Granted() []shopsdk.Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user.IsSuperAdmin() {
		return append([]shopsdk.Permission(nil), s.catalog...)
	}
	out := make([]shopsdk.Permission, 0, len(s.grants))
	for _, g := range s.grants {
		if g.IsGranted {
			out = append(out, g.Permission)
		}
	}
	return out
}
