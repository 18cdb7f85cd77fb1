package config

import (
	"slices"

	"github.com/venueops/entitycache/db"
	"github.com/venueops/entitycache/logger"
	"github.com/venueops/entitycache/store"
)

// Store drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMySQL  = "mysql"
	// DriverNone runs without persistence; every read goes to the backend
	DriverNone = "none"
)

var drivers = []string{DriverMemory, DriverSQLite, DriverRedis, DriverMySQL, DriverNone}

// StoreConfig selects and configures the persistent store
type StoreConfig struct {
	// Driver is one of memory, sqlite, redis, mysql, none
	// default: "memory"
	Driver string              `mapstructure:"driver" yaml:"driver"`
	SQLite *store.SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
	Redis  *store.RedisConfig  `mapstructure:"redis" yaml:"redis"`
	MySQL  *db.Config          `mapstructure:"mysql" yaml:"mysql"`
}

// DefaultStoreConfig returns the in-memory store configuration
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{Driver: DriverMemory}
}

// MergeDefaults fills zero fields and returns c
func (c *StoreConfig) MergeDefaults() *StoreConfig {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.Redis != nil {
		c.Redis.MergeDefaults()
	}
	if c.MySQL != nil {
		c.MySQL.MergeDefaults()
	}
	return c
}

// Validate checks that the section of the selected driver is present and valid
func (c *StoreConfig) Validate() error {
	if !slices.Contains(drivers, c.Driver) {
		return ErrUnknownDriver(c.Driver)
	}
	switch c.Driver {
	case DriverSQLite:
		if c.SQLite == nil {
			return ErrMissing("sqlite")
		}
		return c.SQLite.Validate()
	case DriverRedis:
		if c.Redis == nil {
			return ErrMissing("redis")
		}
		return c.Redis.Validate()
	case DriverMySQL:
		if c.MySQL == nil {
			return ErrMissing("mysql")
		}
		return c.MySQL.Validate()
	}
	return nil
}

// Open connects the selected store
func (c *StoreConfig) Open(log logger.Logger) (store.Store, error) {
	switch c.Driver {
	case DriverSQLite:
		return opened(store.NewSQLite(log, c.SQLite))
	case DriverRedis:
		return opened(store.NewRedis(log, c.Redis))
	case DriverMySQL:
		return opened(db.OpenCacheStore(log, c.MySQL))
	case DriverNone:
		return store.Unavailable{}, nil
	case DriverMemory, "":
		return store.NewMemory(), nil
	}
	return nil, ErrUnknownDriver(c.Driver)
}

// opened keeps a failed constructor from returning a typed nil store
func opened[S store.Store](s S, err error) (store.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
