package cache

import (
	"fmt"
	"time"
)

// Predefined errors
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = fmt.Errorf("cache: invalid config")
	// ErrRefresh marks a failed refresh, the returned items are the fallback
	ErrRefresh = fmt.Errorf("cache: refresh failed")
	// ErrNoSource is returned when a coordinator is built without a Source
	ErrNoSource = fmt.Errorf("cache: source is required")
)

// Error constructors

// ErrRefreshFailed wraps a refresh error of collection name
func ErrRefreshFailed(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRefresh, name, err)
}

// ErrInvalidName returns an error for invalid name
func ErrInvalidName(name string) error {
	return fmt.Errorf("cache: invalid name: %q (must be non-empty and contain no ':')", name)
}

// ErrInvalidMaxAge returns an error for invalid max age
func ErrInvalidMaxAge(d time.Duration) error {
	return fmt.Errorf("cache: invalid max age: %v (must be > 0)", d)
}

// ErrInvalidSyncTimeout returns an error for invalid sync timeout
func ErrInvalidSyncTimeout(timeout time.Duration) error {
	return fmt.Errorf("cache: invalid sync timeout: %v (must be > 0)", timeout)
}

// ErrInvalidMaxRetries returns an error for invalid max retries
func ErrInvalidMaxRetries(retries int) error {
	return fmt.Errorf("cache: invalid max retries: %d (must be >= 1)", retries)
}

// ErrInvalidExpr wraps a Criteria.Expr compile or evaluation error
func ErrInvalidExpr(expr string, err error) error {
	return fmt.Errorf("cache: invalid filter expression %q: %w", expr, err)
}

// ErrStore wraps a persistent store failure
func ErrStore(op string, err error) error {
	return fmt.Errorf("cache: store %s failed: %w", op, err)
}
