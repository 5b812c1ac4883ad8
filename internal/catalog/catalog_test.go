package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

type stubCategories struct {
	items []shopsdk.Category
	err   error
	calls int
}

func (s *stubCategories) ListActive(context.Context) ([]shopsdk.Category, error) {
	s.calls++
	return s.items, s.err
}

type memSnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memSnapshots) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("missing")
	}
	return v, nil
}

func (m *memSnapshots) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = value
	return nil
}

func TestFallbackIsValid(t *testing.T) {
	t.Parallel()

	cats := Fallback()
	require.NotEmpty(t, cats)
	for _, c := range cats {
		require.NotEmpty(t, c.Slug)
		require.True(t, c.IsActive)
	}
}

func TestCategoriesLiveListIsSortedAndCached(t *testing.T) {
	t.Parallel()

	src := &stubCategories{items: []shopsdk.Category{
		{ID: "2", Slug: "men", SortOrder: 2},
		{ID: "1", Slug: "women", SortOrder: 1},
	}}
	cats := NewCategories(src, WithLogger(slogx.Discard()))

	list := cats.List(context.Background())
	require.Equal(t, "women", list[0].Slug)
	_ = cats.List(context.Background())
	require.Equal(t, 1, src.calls)

	degraded, notice, err := cats.Degraded()
	require.False(t, degraded)
	require.Empty(t, notice)
	require.NoError(t, err)

	c, err := cats.BySlug(context.Background(), "men")
	require.NoError(t, err)
	require.Equal(t, "2", c.ID)

	_, err = cats.BySlug(context.Background(), "kids")
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestCategoriesFallBackWhenBackendFails(t *testing.T) {
	t.Parallel()

	src := &stubCategories{err: errors.New("connection refused")}
	cats := NewCategories(src, WithLogger(slogx.Discard()))

	list := cats.List(context.Background())
	require.Equal(t, Fallback(), list)

	degraded, notice, err := cats.Degraded()
	require.True(t, degraded)
	require.Equal(t, DegradedNotice, notice)
	require.Error(t, err)
}

func TestCategoriesPreferSavedSnapshot(t *testing.T) {
	t.Parallel()

	snaps := &memSnapshots{}
	src := &stubCategories{items: []shopsdk.Category{{ID: "live", Slug: "live", IsActive: true}}}
	cats := NewCategories(src, WithSnapshots(snaps), WithLogger(slogx.Discard()))
	require.Len(t, cats.Refresh(context.Background()), 1)

	// Backend goes away; a fresh provider reads the snapshot.
	src.err = errors.New("down")
	again := NewCategories(src, WithSnapshots(snaps), WithLogger(slogx.Discard()))
	list := again.List(context.Background())
	require.Len(t, list, 1)
	require.Equal(t, "live", list[0].Slug)

	degraded, _, _ := again.Degraded()
	require.True(t, degraded)
}

type stubProducts struct {
	mu    sync.Mutex
	calls []shopsdk.ProductFilter
	err   error
}

func (s *stubProducts) List(_ context.Context, f shopsdk.ProductFilter) (*shopsdk.Page[shopsdk.Product], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, f)
	if s.err != nil {
		return nil, s.err
	}
	return &shopsdk.Page[shopsdk.Product]{Items: []shopsdk.Product{{ID: f.Category + "-1"}}}, nil
}

func TestShopCachesPerCategory(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	src := &stubProducts{}
	shop := NewShop(src, time.Minute)
	shop.now = func() time.Time { return now }

	p, err := shop.Products(context.Background(), "women")
	require.NoError(t, err)
	require.Equal(t, "women-1", p[0].ID)
	require.Equal(t, shopsdk.ProductPublished, src.calls[0].Status)

	_, _ = shop.Products(context.Background(), "women")
	require.Len(t, src.calls, 1)

	_, _ = shop.Products(context.Background(), "men")
	require.Len(t, src.calls, 2)

	now = now.Add(2 * time.Minute)
	_, _ = shop.Products(context.Background(), "women")
	require.Len(t, src.calls, 3)

	shop.Invalidate("men")
	_, _ = shop.Products(context.Background(), "men")
	require.Len(t, src.calls, 4)
}

func TestShopDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	src := &stubProducts{err: errors.New("boom")}
	shop := NewShop(src, time.Minute)

	_, err := shop.Products(context.Background(), "sale")
	require.Error(t, err)

	src.err = nil
	p, err := shop.Products(context.Background(), "sale")
	require.NoError(t, err)
	require.Len(t, p, 1)
}
