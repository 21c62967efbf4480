package glowbook

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/glowbook/glowbook-go/credential"
	"github.com/glowbook/glowbook-go/transport"
)

// User is the authenticated account.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"` // customer, vendor or rm
	Phone string `json:"phone,omitempty"`
}

type authResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Login authenticates with email and password. On success the issued
// credential pair replaces whatever the store held.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	return c.authenticate(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Signup registers a new customer account and logs it in.
func (c *Client) Signup(ctx context.Context, name, email, password string) (*User, error) {
	return c.authenticate(ctx, "/auth/signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

// Logout revokes the session server-side, clears the stored credentials
// and flushes all cached user state. The local session ends even when
// the revoke call fails.
func (c *Client) Logout(ctx context.Context) error {
	_, held := c.store.Get()
	var apiErr error
	if held {
		apiErr = c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
	}
	if err := c.store.Clear(); err != nil {
		return err
	}
	c.cache.Flush()
	return apiErr
}

// Authenticated reports whether a credential pair is currently held.
func (c *Client) Authenticated() bool {
	_, held := c.store.Get()
	return held
}

// CurrentUser fetches the account behind the current session.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u, nil); err != nil {
		return nil, err
	}
	return &u, nil
}

// authenticate runs an unauthenticated credential-issuing call. These
// go straight to the transport: a 401 here means bad login data, not an
// expired session, so the refresh pipeline must stay out of the way.
func (c *Client) authenticate(ctx context.Context, path string, body map[string]string) (*User, error) {
	resp, err := c.transport.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK && resp.Status != http.StatusCreated {
		return nil, &transport.APIError{Status: resp.Status, Payload: resp.Body}
	}

	var ar authResponse
	if err := json.Unmarshal(resp.Body, &ar); err != nil {
		return nil, err
	}
	if err := c.store.Set(credential.Credentials{
		AccessToken:  ar.AccessToken,
		RefreshToken: ar.RefreshToken,
	}); err != nil {
		return nil, err
	}
	c.log.Info().Str("user", ar.User.ID).Msg("authenticated")
	return &ar.User, nil
}

// refreshCredentials is the coordinator's refresh executor: it trades
// the refresh token for a new pair at the auth endpoint.
func (c *Client) refreshCredentials(ctx context.Context, refreshToken string) (credential.Credentials, error) {
	resp, err := c.transport.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		Body:   map[string]string{"refresh_token": refreshToken},
	})
	if err != nil {
		return credential.Credentials{}, err
	}
	if resp.Status != http.StatusOK {
		return credential.Credentials{}, &transport.APIError{Status: resp.Status, Payload: resp.Body}
	}

	var ar authResponse
	if err := json.Unmarshal(resp.Body, &ar); err != nil {
		return credential.Credentials{}, err
	}
	return credential.Credentials{
		AccessToken:  ar.AccessToken,
		RefreshToken: ar.RefreshToken,
	}, nil
}
