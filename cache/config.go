package cache

import (
	"strings"
	"time"
)

// Config holds configuration for a Coordinator
type Config struct {
	// Name is the entity collection, used as store namespace and in logs (required)
	Name string `mapstructure:"name" yaml:"name"`
	// Prefix scopes the namespace, typically to a session or tenant
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	// MaxAge is how long an entry stays fresh
	// default: 5 * time.Minute
	MaxAge time.Duration `mapstructure:"max_age" yaml:"max_age"`
	// SyncTimeout bounds a whole refresh, retries and backoffs included
	// default: 30 * time.Second
	SyncTimeout time.Duration `mapstructure:"sync_timeout" yaml:"sync_timeout"`
	// MaxRetries is the number of attempts per refresh for retryable errors
	// default: 1 (no retry)
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// RetryBackoff is the wait before the second attempt, doubled afterwards
	// default: 1 * time.Second
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	// PageSizeHint is passed to the backend so one page holds the collection
	// default: 1000
	PageSizeHint int `mapstructure:"page_size_hint" yaml:"page_size_hint"`
}

// DefaultConfig returns the default configuration for a Coordinator.
// Name has no default and must be set.
func DefaultConfig() *Config {
	return &Config{
		MaxAge:       5 * time.Minute,
		SyncTimeout:  30 * time.Second,
		MaxRetries:   1,
		RetryBackoff: time.Second,
		PageSizeHint: 1000,
	}
}

// MergeDefaults fills zero fields from DefaultConfig and returns c
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.MaxAge == 0 {
		c.MaxAge = defaults.MaxAge
	}
	if c.SyncTimeout == 0 {
		c.SyncTimeout = defaults.SyncTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	if c.PageSizeHint == 0 {
		c.PageSizeHint = defaults.PageSizeHint
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Name == "" || strings.Contains(c.Name, ":") {
		return ErrInvalidName(c.Name)
	}
	if c.MaxAge <= 0 {
		return ErrInvalidMaxAge(c.MaxAge)
	}
	if c.SyncTimeout <= 0 {
		return ErrInvalidSyncTimeout(c.SyncTimeout)
	}
	if c.MaxRetries < 1 {
		return ErrInvalidMaxRetries(c.MaxRetries)
	}
	if c.RetryBackoff < 0 {
		return ErrInvalidConfig
	}
	if c.PageSizeHint < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Namespace is the store namespace of the collection
func (c *Config) Namespace() string {
	if c.Prefix == "" {
		return c.Name
	}
	return c.Prefix + ":" + c.Name
}
