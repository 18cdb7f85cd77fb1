package cron

import "time"

// Config holds configuration for scheduled revalidation
type Config struct {
	// Enabled turns scheduled revalidation on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Spec is the six-field cron spec of the revalidation chain
	// default: "0 * * * * *" (every minute)
	Spec string `mapstructure:"spec" yaml:"spec"`
	// MaxAge overrides each collection's own max age when > 0
	MaxAge time.Duration `mapstructure:"max_age" yaml:"max_age"`
	// Timeout bounds one task run
	// default: 2 * time.Minute
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Spec:    "0 * * * * *",
		Timeout: 2 * time.Minute,
	}
}

// MergeDefaults fills zero fields from DefaultConfig and returns c
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.Spec == "" {
		c.Spec = defaults.Spec
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	return c
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := specParser.Parse(c.Spec); err != nil {
		return ErrSpec(c.Spec, err)
	}
	if c.MaxAge < 0 || c.Timeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}
