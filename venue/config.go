package venue

import (
	"slices"
	"time"

	"github.com/venueops/entitycache/cache"
)

// Config holds configuration shared by the coordinators of a Session
type Config struct {
	// Cache is the template of every collection; Name and Prefix are set per collection
	Cache cache.Config `mapstructure:"cache" yaml:"cache"`
	// MaxAge overrides Cache.MaxAge per collection, e.g. bookings: 1m
	MaxAge map[string]time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// DefaultConfig returns the default configuration.
// Bookings change often at the front desk and go stale after one minute.
func DefaultConfig() *Config {
	return &Config{
		Cache: *cache.DefaultConfig(),
		MaxAge: map[string]time.Duration{
			CollectionBookings: time.Minute,
		},
	}
}

// MergeDefaults fills zero cache fields and the max age of collections
// without an override, and returns c
func (c *Config) MergeDefaults() *Config {
	c.Cache.MergeDefaults()
	if c.MaxAge == nil {
		c.MaxAge = make(map[string]time.Duration)
	}
	for name, d := range DefaultConfig().MaxAge {
		if _, ok := c.MaxAge[name]; !ok {
			c.MaxAge[name] = d
		}
	}
	return c
}

// collectionConfig returns the coordinator config of collection name for session id
func (c *Config) collectionConfig(sessionID, name string) *cache.Config {
	cfg := c.Cache
	cfg.Name = name
	cfg.Prefix = sessionID
	if d, ok := c.MaxAge[name]; ok && d > 0 {
		cfg.MaxAge = d
	}
	cfg.MergeDefaults()
	return &cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for name, d := range c.MaxAge {
		if !slices.Contains(Collections, name) {
			return ErrUnknownCollection(name)
		}
		if d < 0 {
			return cache.ErrInvalidMaxAge(d)
		}
	}
	for _, name := range Collections {
		if err := c.collectionConfig("", name).Validate(); err != nil {
			return err
		}
	}
	return nil
}
