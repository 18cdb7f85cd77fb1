package remote

import (
	"strings"
	"time"
)

// Config holds configuration for the backend REST client
type Config struct {
	// BaseURL is the API root, e.g. https://admin.example.com/api (required)
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// Timeout bounds one HTTP request including reading the body
	// default: 30 * time.Second
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Headers are sent with every request, e.g. an Authorization header
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
	// MaxIdleConns limits idle keep-alive connections to the backend
	// default: 10
	MaxIdleConns int `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
}

// DefaultConfig returns the default configuration.
// BaseURL has no default and must be set.
func DefaultConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		MaxIdleConns: 10,
	}
}

// MergeDefaults fills zero fields from DefaultConfig and returns c
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = defaults.MaxIdleConns
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrInvalidConfig("base_url is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return ErrInvalidConfig("base_url must start with http:// or https://")
	}
	if c.Timeout <= 0 {
		return ErrInvalidConfig("timeout must be > 0")
	}
	if c.MaxIdleConns < 0 {
		return ErrInvalidConfig("max_idle_conns must be >= 0")
	}
	return nil
}
