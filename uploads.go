package glowbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/glowbook/glowbook-go/transport"
)

// UploadResult is what the storage endpoint returns: either a public
// URL, or an opaque storage path that needs a signed URL to access.
type UploadResult struct {
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`
}

// Public reports whether the file is directly addressable.
func (u UploadResult) Public() bool { return u.URL != "" }

// UploadFile sends a file as multipart form data. Used by the vendor
// onboarding forms for cover images and documents.
func (c *Client) UploadFile(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := c.pipeline.Execute(ctx, transport.Request{
		Method:      http.MethodPost,
		Path:        "/files",
		RawBody:     &buf,
		ContentType: mw.FormDataContentType(),
		Header:      idempotencyHeader(),
	})
	if err != nil {
		return nil, err
	}

	var out UploadResult
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, err
	}
	if !out.Public() && out.Path == "" {
		return nil, fmt.Errorf("upload response carried neither url nor path")
	}
	return &out, nil
}

// ResolveFileURL trades an opaque storage path for a short-lived signed
// URL. Resolved URLs are cached briefly so a gallery render does not
// hammer the signing endpoint.
func (c *Client) ResolveFileURL(ctx context.Context, storagePath string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.getJSON(ctx, "/files/signed-url", map[string]string{"path": storagePath},
		nil, signedURLPolicy, &out)
	if err != nil {
		return "", err
	}
	return out.URL, nil
}
