// Package db opens the MySQL connection backing the shared relational cache
// store. Several admin instances of one venue can point at the same
// database so a warm cache is reused across them.
package db

import (
	"context"

	"github.com/venueops/entitycache/logger"
	"github.com/venueops/entitycache/store"
	"gorm.io/gorm"
)

// Database is the interface for the database
type Database interface {
	DB() (*gorm.DB, error)
	Ping(ctx context.Context) error
	Close() error
}

// CacheStore is a store.Store that also owns its database connection
type CacheStore struct {
	*store.Gorm
	database Database
}

// Close closes the underlying database connection
func (s *CacheStore) Close() error {
	return s.database.Close()
}

// OpenCacheStore connects to MySQL and returns a cache store on top of it
func OpenCacheStore(log logger.Logger, cfg *Config) (*CacheStore, error) {
	database, err := NewMySQL(log, cfg)
	if err != nil {
		return nil, err
	}
	return newCacheStore(log, database, cfg != nil && cfg.AutoMigrate)
}

func newCacheStore(log logger.Logger, database Database, migrate bool) (*CacheStore, error) {
	gdb, err := database.DB()
	if err != nil {
		return nil, err
	}
	gs, err := store.NewGorm(log, gdb, migrate)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return &CacheStore{Gorm: gs, database: database}, nil
}
