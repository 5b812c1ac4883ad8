package shopsdk

import (
	"context"
	"net/http"
)

// TestimonialService covers /api/testimonials.
type TestimonialService struct{ c *Client }

func (s *TestimonialService) List(ctx context.Context) ([]Testimonial, error) {
	return call[[]Testimonial](ctx, s.c, request{method: http.MethodGet, path: "/testimonials"})
}

// ListActive returns the testimonials shown on the storefront.
func (s *TestimonialService) ListActive(ctx context.Context) ([]Testimonial, error) {
	return call[[]Testimonial](ctx, s.c, request{method: http.MethodGet, path: "/testimonials/active"})
}

func (s *TestimonialService) Get(ctx context.Context, id string) (*Testimonial, error) {
	return callPtr[Testimonial](ctx, s.c, request{method: http.MethodGet, path: "/testimonials/" + escape(id)})
}

func (s *TestimonialService) Create(ctx context.Context, in TestimonialInput) (*Testimonial, error) {
	return callPtr[Testimonial](ctx, s.c, request{method: http.MethodPost, path: "/testimonials", body: in})
}

func (s *TestimonialService) Update(ctx context.Context, id string, in TestimonialInput) (*Testimonial, error) {
	return callPtr[Testimonial](ctx, s.c, request{method: http.MethodPut, path: "/testimonials/" + escape(id), body: in})
}

func (s *TestimonialService) Delete(ctx context.Context, id string) error {
	return callNoContent(ctx, s.c, request{method: http.MethodDelete, path: "/testimonials/" + escape(id)})
}

func (s *TestimonialService) ToggleStatus(ctx context.Context, id string) (*Testimonial, error) {
	return callPtr[Testimonial](ctx, s.c, request{method: http.MethodPatch, path: "/testimonials/" + escape(id) + "/toggle-status"})
}
