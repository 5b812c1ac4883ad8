package shopsdk

import (
	"context"
	"net/http"
)

// CategoryService covers /api/categories.
type CategoryService struct{ c *Client }

// List returns every category, active or not.
func (s *CategoryService) List(ctx context.Context) ([]Category, error) {
	return call[[]Category](ctx, s.c, request{method: http.MethodGet, path: "/categories"})
}

// ListActive returns the categories shown on the storefront.
func (s *CategoryService) ListActive(ctx context.Context) ([]Category, error) {
	return call[[]Category](ctx, s.c, request{method: http.MethodGet, path: "/categories/active"})
}

func (s *CategoryService) Get(ctx context.Context, id string) (*Category, error) {
	return callPtr[Category](ctx, s.c, request{method: http.MethodGet, path: "/categories/" + escape(id)})
}

func (s *CategoryService) GetBySlug(ctx context.Context, slug string) (*Category, error) {
	return callPtr[Category](ctx, s.c, request{method: http.MethodGet, path: "/categories/slug/" + escape(slug)})
}

func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*Category, error) {
	return callPtr[Category](ctx, s.c, request{method: http.MethodPost, path: "/categories", body: in})
}

func (s *CategoryService) Update(ctx context.Context, id string, in CategoryInput) (*Category, error) {
	return callPtr[Category](ctx, s.c, request{method: http.MethodPut, path: "/categories/" + escape(id), body: in})
}

func (s *CategoryService) Delete(ctx context.Context, id string) error {
	return callNoContent(ctx, s.c, request{method: http.MethodDelete, path: "/categories/" + escape(id)})
}

// ToggleStatus flips isActive and returns the updated category.
func (s *CategoryService) ToggleStatus(ctx context.Context, id string) (*Category, error) {
	return callPtr[Category](ctx, s.c, request{method: http.MethodPatch, path: "/categories/" + escape(id) + "/toggle-status"})
}

// Reorder assigns sort positions in bulk.
func (s *CategoryService) Reorder(ctx context.Context, order []CategoryOrder) error {
	return callNoContent(ctx, s.c, request{
		method: http.MethodPut,
		path:   "/categories/reorder",
		body:   reorderRequest{Categories: order},
	})
}
