package devserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/atelier/pkg/httpx"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// validator is implemented by the SDK request types.
type validator interface {
	Validate() shopsdk.ValidationErrors
}

// decode reads the body into v and runs its validation. On failure the
// response has been written and false is returned.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(r, v); err != nil {
		slogx.FromContext(r.Context()).Debug("bad request body", "err", err)
		httpx.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if val, ok := v.(validator); ok {
		if errs := val.Validate(); len(errs) > 0 {
			httpx.WriteValidation(w, errs)
			return false
		}
	}
	return true
}

func notFound(w http.ResponseWriter, what string) {
	httpx.WriteError(w, http.StatusNotFound, what+" not found")
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	httpx.WriteJSON(w, code, httpx.Envelope{Success: true, Message: msg})
}

type pageQuery struct {
	page, limit int
}

func readPage(r *http.Request) pageQuery {
	q := r.URL.Query()
	p := pageQuery{page: atoiOr(q.Get("page"), 1), limit: atoiOr(q.Get("limit"), defaultPageSize)}
	p.page = max(p.page, 1)
	p.limit = min(max(p.limit, 1), maxPageSize)
	return p
}

func atoiOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// paginate cuts one page out of items.
func paginate[T any](items []T, pq pageQuery) ([]T, shopsdk.Pagination) {
	total := len(items)
	pages := (total + pq.limit - 1) / pq.limit
	start := min((pq.page-1)*pq.limit, total)
	end := min(start+pq.limit, total)
	return items[start:end], shopsdk.Pagination{
		Page:       pq.page,
		Limit:      pq.limit,
		Total:      total,
		TotalPages: pages,
	}
}

// writePage sends a page with pagination beside data.
func writePage[T any](w http.ResponseWriter, items []T, p shopsdk.Pagination) {
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{Success: true, Data: items, Pagination: p})
}

// writeNestedPage sends a page as data.items and data.pagination.
func writeNestedPage[T any](w http.ResponseWriter, items []T, p shopsdk.Pagination) {
	httpx.WriteData(w, http.StatusOK, map[string]any{"items": items, "pagination": p})
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// slugify derives a URL slug from a display name.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func clientIP(r *http.Request) string { return httpx.ClientIP(r) }

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
