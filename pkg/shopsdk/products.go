package shopsdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ProductService covers /api/products.
type ProductService struct{ c *Client }

// List returns a page of products matching f.
func (s *ProductService) List(ctx context.Context, f ProductFilter) (*Page[Product], error) {
	return callPage[Product](ctx, s.c, request{method: http.MethodGet, path: "/products", query: f.values()})
}

func (s *ProductService) Get(ctx context.Context, id string) (*Product, error) {
	return callPtr[Product](ctx, s.c, request{method: http.MethodGet, path: "/products/" + escape(id)})
}

func (s *ProductService) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	return callPtr[Product](ctx, s.c, request{method: http.MethodGet, path: "/products/slug/" + escape(slug)})
}

// Featured returns up to limit featured products (backend default when 0).
func (s *ProductService) Featured(ctx context.Context, limit int) ([]Product, error) {
	return call[[]Product](ctx, s.c, request{
		method: http.MethodGet,
		path:   "/products/featured",
		query:  query{}.num("limit", limit).values(),
	})
}

// Create adds a product. String sets are de-duplicated before sending.
func (s *ProductService) Create(ctx context.Context, in ProductInput) (*Product, error) {
	return callPtr[Product](ctx, s.c, request{method: http.MethodPost, path: "/products", body: in.normalized()})
}

// Update replaces a product. String sets are de-duplicated before sending.
func (s *ProductService) Update(ctx context.Context, id string, in ProductInput) (*Product, error) {
	return callPtr[Product](ctx, s.c, request{method: http.MethodPut, path: "/products/" + escape(id), body: in.normalized()})
}

func (s *ProductService) Delete(ctx context.Context, id string) error {
	return callNoContent(ctx, s.c, request{method: http.MethodDelete, path: "/products/" + escape(id)})
}

func (s *ProductService) UpdateStatus(ctx context.Context, id string, status ProductStatus) (*Product, error) {
	return callPtr[Product](ctx, s.c, request{
		method: http.MethodPatch,
		path:   "/products/" + escape(id) + "/status",
		body:   productStatusRequest{Status: status},
	})
}

// ToggleFeatured flips isFeatured and returns the updated product.
func (s *ProductService) ToggleFeatured(ctx context.Context, id string) (*Product, error) {
	return callPtr[Product](ctx, s.c, request{method: http.MethodPatch, path: "/products/" + escape(id) + "/toggle-featured"})
}

// UpdateStock applies quantity to the product's stock using op.
func (s *ProductService) UpdateStock(ctx context.Context, id string, quantity int, op StockOperation) (*Product, error) {
	return callPtr[Product](ctx, s.c, request{
		method: http.MethodPatch,
		path:   "/products/" + escape(id) + "/stock",
		body:   stockRequest{Quantity: quantity, Operation: op},
	})
}

// LowStock lists products at or below threshold (each product's own
// threshold when 0).
func (s *ProductService) LowStock(ctx context.Context, threshold int) ([]Product, error) {
	q := url.Values{}
	if threshold > 0 {
		q.Set("threshold", strconv.Itoa(threshold))
	}
	return call[[]Product](ctx, s.c, request{method: http.MethodGet, path: "/products/low-stock", query: q})
}

func (s *ProductService) BulkDelete(ctx context.Context, ids []string) error {
	return callNoContent(ctx, s.c, request{
		method: http.MethodPost,
		path:   "/products/bulk-delete",
		body:   bulkRequest{IDs: ids},
	})
}

func (s *ProductService) BulkUpdateStatus(ctx context.Context, ids []string, status ProductStatus) error {
	if !status.IsValid() {
		return ValidationErrors{"status": "unknown status"}
	}
	return callNoContent(ctx, s.c, request{
		method: http.MethodPatch,
		path:   "/products/bulk-status",
		body:   bulkRequest{IDs: ids, Status: string(status)},
	})
}
