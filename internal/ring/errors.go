package ring

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthentication is returned when credentials or the bearer token are rejected
	ErrAuthentication = errors.New("ring: authentication failed")

	// ErrTwoFactorRequired is returned when the account needs a 2FA code
	ErrTwoFactorRequired = errors.New("ring: two-factor code required")

	// ErrNotFound is returned when the device or resource id is unknown
	ErrNotFound = errors.New("ring: not found")

	// ErrTransient covers connection failures, timeouts and server-side errors
	ErrTransient = errors.New("ring: transient network failure")

	// ErrUnexpectedResponse is returned for malformed bodies and unexpected status codes
	ErrUnexpectedResponse = errors.New("ring: unexpected response")
)

// APIError is a non-2xx response from one of the Ring endpoints. Ring has no
// structured error envelope, so the status code carries the meaning.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ring: %s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("ring: %s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Unwrap maps the status code onto the error taxonomy
func (e *APIError) Unwrap() error {
	return classifyStatus(e.StatusCode)
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrAuthentication
	case status == http.StatusPreconditionFailed:
		return ErrTwoFactorRequired
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests, status >= 500:
		return ErrTransient
	default:
		return ErrUnexpectedResponse
	}
}

// IsNotFound reports whether err is a NotFound failure
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthError reports whether err is an authentication failure
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsTransient reports whether err is worth retrying later
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
