package devserver

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// account is a user plus the credentials the API never returns.
type account struct {
	shopsdk.User

	passwordHash string
	mfaSecret    string // active once User.MFAEnabled is set
	pendingMFA   string
	pendingCodes []string        // fingerprints issued by setup
	backupCodes  map[string]bool // fingerprint -> used
	failed       int
	lockedUntil  time.Time
}

func (a *account) locked(now time.Time) bool { return now.Before(a.lockedUntil) }

// session is one signed-in device. jti is the ID of its current token;
// refreshing rotates it.
type session struct {
	id         string
	userID     string
	jti        string
	ip         string
	userAgent  string
	createdAt  time.Time
	lastActive time.Time
}

type challenge struct {
	userID  string
	expires time.Time
}

// table is an in-memory collection keyed by ID.
type table[T any] struct {
	rows map[string]*T
}

func newTable[T any]() table[T] { return table[T]{rows: map[string]*T{}} }

func (t table[T]) get(id string) (*T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t table[T]) put(id string, v *T) { t.rows[id] = v }

func (t table[T]) remove(id string) bool {
	_, ok := t.rows[id]
	delete(t.rows, id)
	return ok
}

// snapshot returns value copies matching keep, ordered by cmpFn.
func (t table[T]) snapshot(keep func(*T) bool, cmpFn func(a, b T) int) []T {
	out := make([]T, 0, len(t.rows))
	for _, v := range t.rows {
		if keep == nil || keep(v) {
			out = append(out, *v)
		}
	}
	slices.SortStableFunc(out, cmpFn)
	return out
}

func (t table[T]) find(match func(*T) bool) (*T, bool) {
	for _, v := range t.rows {
		if match(v) {
			return v, true
		}
	}
	return nil, false
}

// state holds everything the backend knows. One lock guards it all.
type state struct {
	mu sync.RWMutex

	accounts     table[account]
	sessions     table[session]
	challenges   map[string]challenge // fingerprint of temp token
	categories   table[shopsdk.Category]
	products     table[shopsdk.Product]
	partners     table[shopsdk.Partner]
	testimonials table[shopsdk.Testimonial]
	messages     table[shopsdk.ContactMessage]
	permissions  []shopsdk.Permission
	grants       map[string]map[string]bool // user -> permission id -> granted
	events       []shopsdk.SecurityEvent
}

func newState() *state {
	return &state{
		accounts:     newTable[account](),
		sessions:     newTable[session](),
		challenges:   map[string]challenge{},
		categories:   newTable[shopsdk.Category](),
		products:     newTable[shopsdk.Product](),
		partners:     newTable[shopsdk.Partner](),
		testimonials: newTable[shopsdk.Testimonial](),
		messages:     newTable[shopsdk.ContactMessage](),
		permissions:  permissionCatalog(),
		grants:       map[string]map[string]bool{},
	}
}

func newID() string { return uuid.NewString() }

func (s *state) accountByEmail(email string) (*account, bool) {
	return s.accounts.find(func(a *account) bool { return strings.EqualFold(a.Email, email) })
}

func (s *state) sessionByJTI(jti string) (*session, bool) {
	return s.sessions.find(func(se *session) bool { return se.jti == jti })
}

func (s *state) dropSessions(userID string, keep string) int {
	n := 0
	for id, se := range s.sessions.rows {
		if se.userID == userID && id != keep {
			delete(s.sessions.rows, id)
			n++
		}
	}
	return n
}

func (s *state) categoryBySlug(slug string) (*shopsdk.Category, bool) {
	return s.categories.find(func(c *shopsdk.Category) bool { return c.Slug == slug })
}

func (s *state) productCount(categoryID string) int {
	n := 0
	for _, p := range s.products.rows {
		if p.CategoryID == categoryID {
			n++
		}
	}
	return n
}

// withCategory fills the embedded category of a product copy.
func (s *state) withCategory(p shopsdk.Product) shopsdk.Product {
	if c, ok := s.categories.get(p.CategoryID); ok {
		cc := *c
		p.Category = &cc
	}
	return p
}

func (s *state) record(ev shopsdk.SecurityEvent) {
	ev.ID = newID()
	if ev.UserID != nil {
		if a, ok := s.accounts.get(*ev.UserID); ok {
			u := a.User
			ev.User = &u
		}
	}
	s.events = append(s.events, ev)
}

// permissions

var (
	permResources = []string{"products", "categories", "partners", "testimonials", "messages", "users", "security"}
	permActions   = []string{"read", "create", "update", "delete"}
)

func permissionCatalog() []shopsdk.Permission {
	var out []shopsdk.Permission
	for _, res := range permResources {
		for _, act := range permActions {
			out = append(out, shopsdk.Permission{
				ID:          res + "." + act,
				Resource:    res,
				Action:      act,
				DisplayName: strings.ToUpper(act[:1]) + act[1:] + " " + res,
				Category:    res,
			})
		}
	}
	return out
}

func (s *state) permission(id string) (shopsdk.Permission, bool) {
	i := slices.IndexFunc(s.permissions, func(p shopsdk.Permission) bool { return p.ID == id })
	if i < 0 {
		return shopsdk.Permission{}, false
	}
	return s.permissions[i], true
}

func (s *state) can(a *account, resource, action string) bool {
	switch a.Role {
	case shopsdk.RoleSuperAdmin:
		return true
	case shopsdk.RoleAdmin:
		return s.grants[a.ID][resource+"."+action]
	default:
		return false
	}
}

func (s *state) userPermissions(a *account) []shopsdk.UserPermission {
	var out []shopsdk.UserPermission
	for _, p := range s.permissions {
		granted, ok := s.grants[a.ID][p.ID]
		if a.Role == shopsdk.RoleSuperAdmin {
			granted, ok = true, true
		}
		if !ok {
			continue
		}
		out = append(out, shopsdk.UserPermission{
			UserID:       a.ID,
			PermissionID: p.ID,
			Permission:   p,
			IsGranted:    granted,
		})
	}
	return out
}

func bySortOrder[T any](order func(T) int, name func(T) string) func(a, b T) int {
	return func(a, b T) int {
		return cmp.Or(cmp.Compare(order(a), order(b)), strings.Compare(name(a), name(b)))
	}
}
