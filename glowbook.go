// Package glowbook is a Go client for the Glowbook salon-booking
// marketplace API. Reads are served through a tag-invalidated response
// cache, writes can update cached state optimistically ahead of server
// confirmation, and expired sessions are refreshed transparently with
// at most one refresh call in flight at a time.
package glowbook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/glowbook/glowbook-go/auth"
	"github.com/glowbook/glowbook-go/cache"
	"github.com/glowbook/glowbook-go/credential"
	"github.com/glowbook/glowbook-go/transport"
)

// DefaultBaseURL is the production Glowbook API.
const DefaultBaseURL = "https://api.glowbook.app/v1"

// Client is an authenticated Glowbook API client. Construct one with
// New; the zero value is not usable.
type Client struct {
	transport *transport.Transport
	store     credential.Store
	coord     *auth.Coordinator
	pipeline  *auth.Pipeline
	cache     *cache.Store
	log       zerolog.Logger
	noCache   bool
}

// Option configures a Client.
type Option func(*settings)

type settings struct {
	httpClient *http.Client
	store      credential.Store
	log        zerolog.Logger
	noCache    bool
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(s *settings) { s.httpClient = h }
}

// WithCredentialStore replaces the default file-backed credential
// store. Use credential.NewMemStore for tests.
func WithCredentialStore(store credential.Store) Option {
	return func(s *settings) { s.store = store }
}

// WithLogger attaches a logger; default is a no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithoutCache disables the response cache: every query goes to the
// network. Watch subscriptions still receive authoritative results as
// reads and mutations complete, but no optimistic previews.
func WithoutCache() Option {
	return func(s *settings) { s.noCache = true }
}

// New creates a Client for the given base URL. An empty baseURL uses
// DefaultBaseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	s := settings{log: zerolog.Nop()}
	for _, o := range opts {
		o(&s)
	}

	if s.store == nil {
		fs, err := credential.NewFileStore("")
		if err != nil {
			return nil, fmt.Errorf("credential store: %w", err)
		}
		s.store = fs
	}

	topts := []transport.Option{transport.WithLogger(s.log)}
	if s.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(s.httpClient))
	}
	t, err := transport.New(baseURL, topts...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport: t,
		store:     s.store,
		cache:     cache.New(cache.WithLogger(s.log)),
		log:       s.log,
		noCache:   s.noCache,
	}
	c.coord = auth.NewCoordinator(c.store, c.refreshCredentials, s.log)
	c.pipeline = auth.NewPipeline(t, c.store, c.coord, s.log)
	return c, nil
}

// NotifyFocus tells the cache the application regained focus; entries
// tuned for it refetch in the background.
func (c *Client) NotifyFocus(ctx context.Context) { c.cache.NotifyFocus(ctx) }

// NotifyReconnect tells the cache network connectivity returned.
func (c *Client) NotifyReconnect(ctx context.Context) { c.cache.NotifyReconnect(ctx) }

// getJSON runs a cached read through the authenticated pipeline.
func (c *Client) getJSON(ctx context.Context, path string, params map[string]string, tags []cache.Tag, pol cache.Policy, out any) error {
	fetch := func(ctx context.Context) (json.RawMessage, error) {
		resp, err := c.pipeline.Execute(ctx, transport.Request{
			Method: http.MethodGet,
			Path:   path,
			Query:  params,
		})
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}

	var raw json.RawMessage
	var err error
	if c.noCache {
		raw, err = fetch(ctx)
		if err == nil {
			// Serve nothing from cache, but keep Watch subscribers fed.
			c.cache.Publish(cache.KeyFor(path, params), fetch, raw)
		}
	} else {
		raw, err = c.cache.Query(ctx, cache.KeyFor(path, params), tags, pol, fetch)
	}
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// do runs one authenticated request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any, header http.Header) error {
	resp, err := c.pipeline.Execute(ctx, transport.Request{
		Method: method,
		Path:   path,
		Body:   body,
		Header: header,
	})
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Body, out)
}

// mutate runs a write and invalidates the tags it declares. Every
// mutation carries an Idempotency-Key so a client-side retry cannot be
// applied twice by the server.
func (c *Client) mutate(ctx context.Context, method, path string, body, out any, tags ...cache.Tag) error {
	if err := c.do(ctx, method, path, body, out, idempotencyHeader()); err != nil {
		return err
	}
	c.cache.Invalidate(ctx, tags...)
	return nil
}

// mutateOptimistic patches the cached value for key before the network
// call. On success the patch is committed and the declared tags
// invalidated, so the authoritative refetch reconciles any drift; on
// failure the patch is reverted and the error surfaced.
func (c *Client) mutateOptimistic(ctx context.Context, key string, tags []cache.Tag, pol cache.Policy, patchFn func(json.RawMessage) json.RawMessage, method, path string, body, out any) error {
	if c.noCache {
		return c.mutate(ctx, method, path, body, out, tags...)
	}

	patch := c.cache.ApplyPatch(key, tags, pol, patchFn)
	if err := c.do(ctx, method, path, body, out, idempotencyHeader()); err != nil {
		patch.Revert()
		return err
	}
	patch.Commit()
	c.cache.Invalidate(ctx, tags...)
	return nil
}

func idempotencyHeader() http.Header {
	h := make(http.Header, 1)
	h.Set("Idempotency-Key", uuid.NewString())
	return h
}
