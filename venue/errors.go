package venue

import "fmt"

// Predefined errors
var (
	// ErrInvalidSessionID is returned for an empty session id or one containing ':'
	ErrInvalidSessionID = fmt.Errorf("venue: invalid session id")
	// ErrMissingSource is returned when a collection has no backend source
	ErrMissingSource = fmt.Errorf("venue: missing source")
)

// Error constructors

// ErrUnknownCollection returns an error for a collection name that is not cached
func ErrUnknownCollection(name string) error {
	return fmt.Errorf("venue: unknown collection %q", name)
}

// ErrCollection wraps an error of one collection
func ErrCollection(name string, err error) error {
	return fmt.Errorf("venue: %s: %w", name, err)
}
