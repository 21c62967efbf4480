package auth

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/glowbook/glowbook-go/credential"
	"github.com/glowbook/glowbook-go/transport"
)

// DefaultExpiryBuffer is how close to expiry an access token may get
// before the pipeline refreshes it up front instead of eating a 401.
const DefaultExpiryBuffer = 30 * time.Second

// Doer executes one HTTP exchange. Satisfied by *transport.Transport.
type Doer interface {
	Do(ctx context.Context, r transport.Request) (*transport.Response, error)
}

// Pipeline executes requests with bearer authorization. On a 401 it
// asks the Coordinator for fresh credentials and retries the request
// exactly once; a second 401 is terminal.
type Pipeline struct {
	transport    Doer
	store        credential.Store
	coord        *Coordinator
	expiryBuffer time.Duration
	log          zerolog.Logger
}

// NewPipeline wires a pipeline over the given transport, store and
// coordinator.
func NewPipeline(t Doer, store credential.Store, coord *Coordinator, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		transport:    t,
		store:        store,
		coord:        coord,
		expiryBuffer: DefaultExpiryBuffer,
		log:          log,
	}
}

// Execute performs the request with the current access token attached.
// Endpoints that do not require authentication work too: with no stored
// credentials the request simply goes out without an Authorization
// header. Non-2xx responses other than the handled 401 come back as
// *transport.APIError with the payload passed through verbatim.
func (p *Pipeline) Execute(ctx context.Context, req transport.Request) (*transport.Response, error) {
	// A raw body reader can only be consumed once; buffer it so the
	// post-refresh retry can replay it.
	var rawBody []byte
	if req.RawBody != nil {
		b, err := io.ReadAll(req.RawBody)
		if err != nil {
			return nil, err
		}
		rawBody = b
	}

	creds, held := p.store.Get()
	if held && expiringSoon(creds.AccessToken, p.expiryBuffer) {
		if err := p.coord.EnsureFresh(ctx, creds.AccessToken); err != nil {
			if err == transport.ErrSessionExpired {
				return nil, err
			}
			// Transient refresh failure: carry on with the old token
			// and let the reactive 401 path handle it if needed.
			p.log.Debug().Err(err).Msg("proactive refresh failed, continuing")
		}
		creds, held = p.store.Get()
	}

	resp, err := p.attempt(ctx, req, rawBody, creds, held)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized {
		if !held {
			return nil, transport.ErrSessionExpired
		}
		if err := p.coord.EnsureFresh(ctx, creds.AccessToken); err != nil {
			return nil, err
		}
		creds, held = p.store.Get()
		resp, err = p.attempt(ctx, req, rawBody, creds, held)
		if err != nil {
			return nil, err
		}
		// Never retry more than once per original call.
		if resp.Status == http.StatusUnauthorized {
			return nil, transport.ErrSessionExpired
		}
	}

	if resp.Status >= 400 {
		return nil, &transport.APIError{Status: resp.Status, Payload: resp.Body}
	}
	return resp, nil
}

// attempt sends one copy of the request with the given credentials.
func (p *Pipeline) attempt(ctx context.Context, req transport.Request, rawBody []byte, creds credential.Credentials, held bool) (*transport.Response, error) {
	r := req
	r.Header = cloneHeader(req.Header)
	if held {
		r.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	}
	if rawBody != nil {
		r.RawBody = bytes.NewReader(rawBody)
	}
	return p.transport.Do(ctx, r)
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h)+1)
	for k, vs := range h {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// expiringSoon inspects the access token's exp claim without verifying
// the signature; verification is the server's job, the client only
// needs the deadline. Tokens that do not parse as JWTs are treated as
// non-expiring and left to the reactive 401 path.
func expiringSoon(token string, buffer time.Duration) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Until(exp.Time) < buffer
}
