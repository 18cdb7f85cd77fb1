package remote

import "fmt"

// Predefined errors
var (
	// ErrNilClient is returned when a source is built without a client
	ErrNilClient = fmt.Errorf("remote: client is nil")
)

// Error constructors

// ErrInvalidConfig returns an error for invalid configuration
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("remote: invalid config: %s", msg)
}

// ErrRequest wraps a transport failure of path
func ErrRequest(path string, err error) error {
	return fmt.Errorf("remote: request %s failed: %w", path, err)
}

// ErrStatus returns an error for a non-2xx response.
// The wording "status NNN" is matched by the cache retry classifier.
func ErrStatus(path string, code int) error {
	return fmt.Errorf("remote: request %s failed: unexpected status %d", path, code)
}

// ErrDecode wraps a response body decoding failure
func ErrDecode(path string, err error) error {
	return fmt.Errorf("remote: decode %s response: %w", path, err)
}
