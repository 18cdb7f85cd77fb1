package store

import (
	"fmt"
	"time"
)

var (
	// ErrUnavailable is returned when no persistence backend is present
	ErrUnavailable = fmt.Errorf("store: backend unavailable")
	// ErrClosed is returned by operations on a closed store
	ErrClosed = fmt.Errorf("store: store is closed")
)

// ErrInvalidConfig returns an invalid configuration error
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("store: invalid config: %s", msg)
}

// ErrConnection wraps a backend connection error
func ErrConnection(err error) error {
	return fmt.Errorf("store: connection failed: %w", err)
}

// ErrOperation wraps a failed backend operation on namespace
func ErrOperation(op, namespace string, err error) error {
	return fmt.Errorf("store: %s %q failed: %w", op, namespace, err)
}

// ErrInvalidTimeout returns an error for a negative timeout field
func ErrInvalidTimeout(field string, d time.Duration) error {
	return fmt.Errorf("store: invalid config: %s %v (must be >= 0)", field, d)
}
