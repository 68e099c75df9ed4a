package apiclient

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/vulnsphere/console/internal/credentials"
)

// Blob is a binary download such as a generated report or a CSV template.
type Blob struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Download fetches a blob. The filename comes from Content-Disposition when
// the API sends one, otherwise fallback is used.
func (c *Client) Download(ctx context.Context, store credentials.Store, p string, query url.Values, fallback string) (*Blob, error) {
	resp, err := c.Do(ctx, store, Request{Method: http.MethodGet, Path: p, Query: query})
	if err != nil {
		return nil, err
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	name := FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = fallback
	}
	return &Blob{Filename: name, ContentType: ct, Data: resp.Body}, nil
}

// FilenameFromDisposition extracts a safe base filename from a
// Content-Disposition header value.
func FilenameFromDisposition(v string) string {
	if v == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	name := params["filename"]
	if name == "" {
		return ""
	}
	name = path.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
