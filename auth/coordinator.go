// Package auth wraps the transport with bearer authorization: a refresh
// coordinator that allows at most one credential refresh in flight, and
// a request pipeline that attaches tokens and retries once after a 401.
package auth

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/glowbook/glowbook-go/credential"
	"github.com/glowbook/glowbook-go/transport"
)

// RefreshFunc exchanges a refresh token for a new credential pair.
// An *transport.APIError with an authorization status means the refresh
// token itself was rejected.
type RefreshFunc func(ctx context.Context, refreshToken string) (credential.Credentials, error)

// Coordinator guarantees at most one refresh call is in flight at a
// time. Callers arriving while a refresh is running join it and share
// its outcome instead of starting a second one. Each Coordinator owns
// its own state, so independent instances never interfere.
type Coordinator struct {
	store   credential.Store
	refresh RefreshFunc
	log     zerolog.Logger
	group   singleflight.Group
}

// NewCoordinator creates a coordinator over the given store.
func NewCoordinator(store credential.Store, refresh RefreshFunc, log zerolog.Logger) *Coordinator {
	return &Coordinator{store: store, refresh: refresh, log: log}
}

// EnsureFresh obtains new credentials using the stored refresh token.
// Concurrent callers are coalesced onto a single refresh call and all
// receive its result. staleToken is the access token the caller just
// failed with; if the store already holds a different one, someone else
// refreshed in the meantime and no new call is made.
//
// A rejection of the refresh token is fatal for the session: the store
// is cleared and every waiter gets transport.ErrSessionExpired. A
// transient network failure is surfaced as-is and leaves the stored
// credentials alone, so a later attempt can retry.
func (c *Coordinator) EnsureFresh(ctx context.Context, staleToken string) error {
	_, err, shared := c.group.Do("refresh", func() (any, error) {
		creds, ok := c.store.Get()
		if !ok || creds.RefreshToken == "" {
			return nil, transport.ErrSessionExpired
		}
		if staleToken != "" && creds.AccessToken != staleToken {
			return nil, nil
		}

		// Detach from the first caller's context so one canceled
		// waiter cannot fail the refresh for everyone else.
		fresh, err := c.refresh(context.WithoutCancel(ctx), creds.RefreshToken)
		if err != nil {
			if isAuthRejection(err) {
				c.log.Warn().Err(err).Msg("refresh token rejected, ending session")
				_ = c.store.Clear()
				return nil, transport.ErrSessionExpired
			}
			c.log.Debug().Err(err).Msg("refresh attempt failed")
			return nil, err
		}

		if err := c.store.Set(fresh); err != nil {
			return nil, err
		}
		c.log.Debug().Msg("credentials refreshed")
		return nil, nil
	})
	if shared {
		c.log.Debug().Msg("joined in-flight refresh")
	}
	return err
}

// isAuthRejection reports whether the refresh endpoint itself refused
// the refresh token.
func isAuthRejection(err error) bool {
	if errors.Is(err, transport.ErrSessionExpired) {
		return true
	}
	if apiErr, ok := transport.AsAPIError(err); ok {
		return apiErr.Status == 401 || apiErr.Status == 403
	}
	return false
}
