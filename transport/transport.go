// Package transport performs single HTTP exchanges against the Glowbook
// API. It knows how to build a request from method/path/query/body and
// how to read the response back; retry and authorization decisions live
// a layer up in the auth package.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds one exchange when no custom http.Client is given.
const DefaultTimeout = 15 * time.Second

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   any // JSON-encoded when non-nil, unless RawBody is set
	Header http.Header

	// RawBody, when non-nil, is sent verbatim with ContentType.
	// Used for multipart uploads.
	RawBody     io.Reader
	ContentType string
}

// Response is the outcome of one exchange that reached the server.
type Response struct {
	Status int
	Header http.Header
	Body   json.RawMessage
}

// Transport executes requests against one base URL.
type Transport struct {
	base *url.URL
	http *http.Client
	log  zerolog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(t *Transport) { t.http = h }
}

// WithLogger attaches a logger; default is a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Transport) { t.log = l }
}

// New creates a Transport for the given base URL.
func New(baseURL string, opts ...Option) (*Transport, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	t := &Transport{
		base: u,
		http: &http.Client{Timeout: DefaultTimeout},
		log:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Do performs one exchange. A non-nil error means the exchange itself
// failed (DNS, timeout, connection reset); any HTTP status, including
// errors, comes back as a Response.
func (t *Transport) Do(ctx context.Context, r Request) (*Response, error) {
	u := *t.base
	u.Path = path.Join(u.Path, r.Path)
	if len(r.Query) > 0 {
		q := u.Query()
		for k, v := range r.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case r.RawBody != nil:
		body = r.RawBody
		contentType = r.ContentType
	case r.Body != nil:
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		t.log.Debug().Str("method", r.Method).Str("path", r.Path).Err(err).Msg("request failed")
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", r.Method, r.Path, err)
	}

	t.log.Debug().
		Str("method", r.Method).
		Str("path", r.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request")

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   raw,
	}, nil
}
