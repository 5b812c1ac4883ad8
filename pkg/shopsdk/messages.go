package shopsdk

import (
	"context"
	"net/http"
	"time"
)

// MessageService covers /api/contact: the public form and the admin inbox.
type MessageService struct{ c *Client }

// Submit sends the public contact form.
func (s *MessageService) Submit(ctx context.Context, in ContactRequest) (*ContactMessage, error) {
	return callPtr[ContactMessage](ctx, s.c, request{method: http.MethodPost, path: "/contact", body: in})
}

// List returns a page of inbox messages matching f.
func (s *MessageService) List(ctx context.Context, f MessageFilter) (*Page[ContactMessage], error) {
	return callPage[ContactMessage](ctx, s.c, request{method: http.MethodGet, path: "/contact/messages", query: f.values()})
}

func (s *MessageService) Get(ctx context.Context, id string) (*ContactMessage, error) {
	return callPtr[ContactMessage](ctx, s.c, request{method: http.MethodGet, path: "/contact/messages/" + escape(id)})
}

func (s *MessageService) UpdateStatus(ctx context.Context, id string, status MessageStatus) (*ContactMessage, error) {
	return callPtr[ContactMessage](ctx, s.c, request{
		method: http.MethodPatch,
		path:   "/contact/messages/" + escape(id) + "/status",
		body:   messageStatusRequest{Status: status},
	})
}

// Update changes priority and admin notes.
func (s *MessageService) Update(ctx context.Context, id string, in MessageUpdate) (*ContactMessage, error) {
	return callPtr[ContactMessage](ctx, s.c, request{method: http.MethodPut, path: "/contact/messages/" + escape(id), body: in})
}

func (s *MessageService) Delete(ctx context.Context, id string) error {
	return callNoContent(ctx, s.c, request{method: http.MethodDelete, path: "/contact/messages/" + escape(id)})
}

func (s *MessageService) BulkUpdateStatus(ctx context.Context, ids []string, status MessageStatus) error {
	if !status.IsValid() {
		return ValidationErrors{"status": "unknown status"}
	}
	return callNoContent(ctx, s.c, request{
		method: http.MethodPatch,
		path:   "/contact/messages/bulk-status",
		body:   bulkRequest{IDs: ids, Status: string(status)},
	})
}

func (s *MessageService) BulkDelete(ctx context.Context, ids []string) error {
	return callNoContent(ctx, s.c, request{
		method: http.MethodPost,
		path:   "/contact/messages/bulk-delete",
		body:   bulkRequest{IDs: ids},
	})
}

func (s *MessageService) Stats(ctx context.Context) (*MessageStats, error) {
	return callPtr[MessageStats](ctx, s.c, request{method: http.MethodGet, path: "/contact/stats"})
}

// Export downloads the inbox matching f as CSV.
func (s *MessageService) Export(ctx context.Context, f MessageFilter) (*Blob, error) {
	return s.c.download(ctx, request{
		method: http.MethodGet,
		path:   "/contact/messages/export",
		query:  f.values(),
	}, exportName("messages", time.Now()))
}
