// Package storefront assembles the public home page from independent
// sections, each of which may fail on its own.
package storefront

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// FeaturedLimit is how many featured products the home page shows.
const FeaturedLimit = 8

// Section is one block of the page. Err is set instead of Items when the
// block could not load; an empty Items with nil Err is a real empty state.
type Section[T any] struct {
	Items []T
	Err   error
}

// Empty reports whether there is nothing to render.
func (s Section[T]) Empty() bool { return len(s.Items) == 0 }

// Home is the assembled page.
type Home struct {
	Categories   Section[shopsdk.Category]
	Notice       string
	Featured     Section[shopsdk.Product]
	Partners     Section[shopsdk.Partner]
	Testimonials Section[shopsdk.Testimonial]
}

// Categories is satisfied by catalog.Categories.
type Categories interface {
	List(ctx context.Context) []shopsdk.Category
	Degraded() (bool, string, error)
}

type FeaturedProducts interface {
	Featured(ctx context.Context, limit int) ([]shopsdk.Product, error)
}

type Partners interface {
	ListActive(ctx context.Context) ([]shopsdk.Partner, error)
}

type Testimonials interface {
	ListActive(ctx context.Context) ([]shopsdk.Testimonial, error)
}

type Page struct {
	Categories   Categories
	Products     FeaturedProducts
	Partners     Partners
	Testimonials Testimonials
	Logger       *slog.Logger
}

// NewPage wires the page to a client's services and a category provider.
func NewPage(c *shopsdk.Client, cats Categories) *Page {
	return &Page{
		Categories:   cats,
		Products:     c.Products,
		Partners:     c.Partners,
		Testimonials: c.Testimonials,
		Logger:       c.Logger(),
	}
}

// Home loads every section concurrently. It never returns an error itself;
// failures are reported per section.
func (p *Page) Home(ctx context.Context) Home {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var h Home
	// Sections record their own errors, so the group never cancels siblings.
	var g errgroup.Group

	g.Go(func() error {
		h.Categories.Items = p.Categories.List(ctx)
		if degraded, notice, err := p.Categories.Degraded(); degraded {
			h.Notice = notice
			logger.Debug("categories degraded", "err", err)
		}
		return nil
	})
	g.Go(func() error {
		h.Featured = load(ctx, logger, "featured", func(ctx context.Context) ([]shopsdk.Product, error) {
			return p.Products.Featured(ctx, FeaturedLimit)
		})
		return nil
	})
	g.Go(func() error {
		h.Partners = load(ctx, logger, "partners", p.Partners.ListActive)
		return nil
	})
	g.Go(func() error {
		h.Testimonials = load(ctx, logger, "testimonials", p.Testimonials.ListActive)
		return nil
	})

	_ = g.Wait()
	return h
}

func load[T any](ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) ([]T, error)) Section[T] {
	items, err := fn(ctx)
	if err != nil {
		logger.Warn("home section failed", "section", name, "err", err)
		return Section[T]{Err: err}
	}
	return Section[T]{Items: items}
}
