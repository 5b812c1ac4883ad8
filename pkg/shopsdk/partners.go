package shopsdk

import (
	"context"
	"net/http"
)

// PartnerService covers /api/partners.
type PartnerService struct{ c *Client }

func (s *PartnerService) List(ctx context.Context) ([]Partner, error) {
	return call[[]Partner](ctx, s.c, request{method: http.MethodGet, path: "/partners"})
}

// ListActive returns the partners shown on the storefront.
func (s *PartnerService) ListActive(ctx context.Context) ([]Partner, error) {
	return call[[]Partner](ctx, s.c, request{method: http.MethodGet, path: "/partners/active"})
}

func (s *PartnerService) Get(ctx context.Context, id string) (*Partner, error) {
	return callPtr[Partner](ctx, s.c, request{method: http.MethodGet, path: "/partners/" + escape(id)})
}

func (s *PartnerService) Create(ctx context.Context, in PartnerInput) (*Partner, error) {
	return callPtr[Partner](ctx, s.c, request{method: http.MethodPost, path: "/partners", body: in})
}

func (s *PartnerService) Update(ctx context.Context, id string, in PartnerInput) (*Partner, error) {
	return callPtr[Partner](ctx, s.c, request{method: http.MethodPut, path: "/partners/" + escape(id), body: in})
}

func (s *PartnerService) Delete(ctx context.Context, id string) error {
	return callNoContent(ctx, s.c, request{method: http.MethodDelete, path: "/partners/" + escape(id)})
}

func (s *PartnerService) ToggleStatus(ctx context.Context, id string) (*Partner, error) {
	return callPtr[Partner](ctx, s.c, request{method: http.MethodPatch, path: "/partners/" + escape(id) + "/toggle-status"})
}

func (s *PartnerService) ToggleFeatured(ctx context.Context, id string) (*Partner, error) {
	return callPtr[Partner](ctx, s.c, request{method: http.MethodPatch, path: "/partners/" + escape(id) + "/toggle-featured"})
}
