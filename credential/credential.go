// Package credential holds the bearer credentials for an authenticated
// Glowbook session and the stores that persist them across restarts.
package credential

import "errors"

// ErrHalfSet is returned when a caller tries to store a credential pair
// with only one of the two tokens present.
var ErrHalfSet = errors.New("credentials must carry both tokens or neither")

// Credentials is the access/refresh token pair issued by the Glowbook API.
// The pair is overwritten wholesale on login, refresh and logout; it is
// never valid for only one of the two tokens to be set.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IsZero reports whether no credentials are held.
func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// valid reports whether the pair satisfies the both-or-none invariant.
func (c Credentials) valid() bool {
	return (c.AccessToken != "") == (c.RefreshToken != "")
}

// Store is the single source of truth for the current credentials.
// Implementations must make Set an atomic overwrite of the whole pair.
type Store interface {
	// Get returns the current credentials and whether any are held.
	Get() (Credentials, bool)
	// Set replaces the stored pair. Both tokens must be present.
	Set(Credentials) error
	// Clear removes both tokens.
	Clear() error
}
