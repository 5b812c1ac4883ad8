package shopsdk

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Blob is a downloaded file, e.g. a CSV export.
type Blob struct {
	ContentType string
	Filename    string
	Data        []byte
}

// Save writes the blob into dir (the working directory when empty) and
// returns the path written. Filenames from the server are reduced to their
// base name.
func (b *Blob) Save(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	name := filepath.Base(filepath.Clean("/" + b.Filename))
	if name == "/" || name == "." {
		name = "download"
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// download sends req through the regular pipeline and returns the raw body.
// fallbackName is used when the server sends no Content-Disposition.
func (c *Client) download(ctx context.Context, req request, fallbackName string) (*Blob, error) {
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	blob := &Blob{
		ContentType: resp.header.Get("Content-Type"),
		Filename:    filenameFrom(resp.header),
		Data:        resp.body,
	}
	if blob.Filename == "" {
		blob.Filename = fallbackName
	}
	return blob, nil
}

func filenameFrom(h http.Header) string {
	cd := h.Get("Content-Disposition")
	if cd == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["filename"])
}

// exportName builds a dated fallback name like "messages-2024-05-01.csv".
func exportName(prefix string, now time.Time) string {
	return prefix + "-" + now.Format("2006-01-02") + ".csv"
}
