package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionExpired is the terminal authorization failure: the refresh
// token itself was rejected, or a retried request still came back 401.
// Callers should clear local session state and send the user to login.
var ErrSessionExpired = errors.New("session expired, authentication required")

// APIError is any non-2xx response the server returned. The payload is
// passed through verbatim so feature code can do field-level display.
type APIError struct {
	Status  int
	Payload json.RawMessage
}

func (e *APIError) Error() string {
	if len(e.Payload) > 0 {
		return fmt.Sprintf("api error: status %d: %s", e.Status, e.Payload)
	}
	return fmt.Sprintf("api error: status %d", e.Status)
}

// Message extracts the conventional {"message": "..."} field, if any.
func (e *APIError) Message() string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Payload, &body); err != nil {
		return ""
	}
	return body.Message
}

// IsValidation reports whether the error is a 4xx business/validation
// failure (any client error other than unauthorized).
func (e *APIError) IsValidation() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusUnauthorized
}

// IsServer reports whether the error is a 5xx.
func (e *APIError) IsServer() bool {
	return e.Status >= 500
}

// AsAPIError unwraps err into an *APIError if it is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
