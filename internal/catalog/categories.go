// Package catalog caches storefront catalog data: the category list (with
// an offline fallback) and per-category product listings.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// SnapshotKey is where the last good category list is persisted.
const SnapshotKey = "catalog.categories"

// DegradedNotice is shown while categories come from a fallback.
const DegradedNotice = "Showing saved categories, the live catalog is unavailable right now."

//go:embed fallback_categories.json
var fallbackJSON []byte

// Fallback returns the built-in category list used when neither the
// backend nor a saved snapshot is available.
func Fallback() []shopsdk.Category {
	var cats []shopsdk.Category
	if err := json.Unmarshal(fallbackJSON, &cats); err != nil {
		panic("catalog: invalid embedded fallback: " + err.Error())
	}
	return cats
}

// CategoryLister fetches the active categories.
type CategoryLister interface {
	ListActive(ctx context.Context) ([]shopsdk.Category, error)
}

// Snapshots persists opaque blobs between runs.
type Snapshots interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Categories provides the storefront category list. It never fails: when
// the backend is unreachable it serves the last saved list, or the
// built-in one, and reports itself degraded.
type Categories struct {
	src    CategoryLister
	snaps  Snapshots
	logger *slog.Logger
	group  singleflight.Group

	mu       sync.RWMutex
	loaded   bool
	items    []shopsdk.Category
	degraded bool
	lastErr  error
}

// CategoriesOption configures a Categories provider.
type CategoriesOption func(*Categories)

// WithSnapshots persists each good list and uses it as the first fallback.
func WithSnapshots(s Snapshots) CategoriesOption {
	return func(c *Categories) { c.snaps = s }
}

func WithLogger(l *slog.Logger) CategoriesOption {
	return func(c *Categories) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewCategories(src CategoryLister, opts ...CategoriesOption) *Categories {
	c := &Categories{src: src, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "categories")
	return c
}

// List returns the cached categories, loading them on first use.
func (c *Categories) List(ctx context.Context) []shopsdk.Category {
	c.mu.RLock()
	if c.loaded {
		items := slices.Clone(c.items)
		c.mu.RUnlock()
		return items
	}
	c.mu.RUnlock()
	return c.Refresh(ctx)
}

// Refresh reloads from the backend. Concurrent refreshes share one fetch.
func (c *Categories) Refresh(ctx context.Context) []shopsdk.Category {
	v, _, _ := c.group.Do("categories", func() (any, error) {
		return c.load(ctx), nil
	})
	return slices.Clone(v.([]shopsdk.Category))
}

func (c *Categories) load(ctx context.Context) []shopsdk.Category {
	items, err := c.src.ListActive(ctx)
	degraded := false
	if err != nil {
		c.logger.Warn("category fetch failed, using fallback", "err", err)
		items = c.fallback(ctx)
		degraded = true
	} else {
		c.save(ctx, items)
	}

	items = slices.Clone(items)
	slices.SortStableFunc(items, func(a, b shopsdk.Category) int { return a.SortOrder - b.SortOrder })

	c.mu.Lock()
	c.loaded = true
	c.items = items
	c.degraded = degraded
	c.lastErr = err
	c.mu.Unlock()
	return items
}

// fallback prefers the list already in memory, then the saved snapshot,
// then the built-in list.
func (c *Categories) fallback(ctx context.Context) []shopsdk.Category {
	c.mu.RLock()
	current := slices.Clone(c.items)
	c.mu.RUnlock()
	if len(current) > 0 {
		return current
	}

	if c.snaps != nil {
		raw, err := c.snaps.Get(ctx, SnapshotKey)
		if err == nil {
			var cats []shopsdk.Category
			if err := json.Unmarshal(raw, &cats); err == nil && len(cats) > 0 {
				return cats
			}
		}
	}
	return Fallback()
}

func (c *Categories) save(ctx context.Context, items []shopsdk.Category) {
	if c.snaps == nil || len(items) == 0 {
		return
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := c.snaps.Put(ctx, SnapshotKey, raw); err != nil {
		c.logger.Debug("failed to save category snapshot", "err", err)
	}
}

// Degraded reports whether the current list is a fallback, with the notice
// to show and the fetch error behind it.
func (c *Categories) Degraded() (bool, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.degraded {
		return false, "", nil
	}
	return true, DegradedNotice, c.lastErr
}

// BySlug finds a category in the current list.
func (c *Categories) BySlug(ctx context.Context, slug string) (shopsdk.Category, error) {
	for _, cat := range c.List(ctx) {
		if cat.Slug == slug {
			return cat, nil
		}
	}
	return shopsdk.Category{}, ErrUnknownCategory
}

// ErrUnknownCategory is returned by BySlug for slugs not in the list.
var ErrUnknownCategory = errors.New("catalog: unknown category")
