package backend

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrUnauthenticated means no token was available or the service
	// rejected it. The coordinator never retries these on its own.
	ErrUnauthenticated = errors.New("backend: unauthenticated")

	// ErrNotConfigured is returned when the client has no base URL.
	ErrNotConfigured = errors.New("backend: base url not configured")

	// ErrMalformedSnapshot means a 2xx snapshot body did not hold a record
	// list.
	ErrMalformedSnapshot = errors.New("backend: malformed snapshot")
)

// HTTPError represents a non-2xx response.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status=%d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status=%d body=%s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap maps 401/403 onto ErrUnauthenticated so errors.Is works on both.
func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthenticated
	}
	return nil
}

// IsAuthError reports whether err means the caller must obtain a new token
// before trying again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsTransient reports whether err is worth retrying on the next sync
// trigger without any user action: transport failures, timeouts, 5xx, 408
// and 429.
func IsTransient(err error) bool {
	if err == nil || IsAuthError(err) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 500 ||
			he.StatusCode == http.StatusRequestTimeout ||
			he.StatusCode == http.StatusTooManyRequests
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var te *TransportError
	return errors.As(err, &te)
}

// TransportError wraps a failure that happened before any response arrived.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
