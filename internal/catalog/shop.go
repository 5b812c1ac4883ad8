package catalog

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// DefaultShopTTL is how long a category's product listing is reused.
const DefaultShopTTL = 5 * time.Minute

// shopPageSize is how many products a category page shows.
const shopPageSize = 48

// ProductLister fetches product pages.
type ProductLister interface {
	List(ctx context.Context, f shopsdk.ProductFilter) (*shopsdk.Page[shopsdk.Product], error)
}

type shopEntry struct {
	products []shopsdk.Product
	fetched  time.Time
}

// Shop caches published products per category slug ("" for all).
type Shop struct {
	src   ProductLister
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]shopEntry
}

func NewShop(src ProductLister, ttl time.Duration) *Shop {
	if ttl <= 0 {
		ttl = DefaultShopTTL
	}
	return &Shop{src: src, ttl: ttl, now: time.Now, entries: map[string]shopEntry{}}
}

// Products returns the published products of a category, from cache when
// fresh. Errors are not cached.
func (s *Shop) Products(ctx context.Context, slug string) ([]shopsdk.Product, error) {
	s.mu.RLock()
	e, ok := s.entries[slug]
	s.mu.RUnlock()
	if ok && s.now().Sub(e.fetched) < s.ttl {
		return slices.Clone(e.products), nil
	}

	v, err, _ := s.group.Do(slug, func() (any, error) {
		page, err := s.src.List(ctx, shopsdk.ProductFilter{
			Category: slug,
			Status:   shopsdk.ProductPublished,
			Limit:    shopPageSize,
		})
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.entries[slug] = shopEntry{products: page.Items, fetched: s.now()}
		s.mu.Unlock()
		return page.Items, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]shopsdk.Product)), nil
}

// Invalidate drops the cached listing of slug.
func (s *Shop) Invalidate(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, slug)
}

// InvalidateAll empties the cache.
func (s *Shop) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]shopEntry{}
}
