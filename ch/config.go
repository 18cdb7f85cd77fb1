package ch

import (
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Config is the ClickHouse audit sink configuration
type Config struct {
	Hosts       []string      `mapstructure:"hosts" yaml:"hosts"`
	Database    string        `mapstructure:"database" yaml:"database"`
	Username    string        `mapstructure:"username" yaml:"username"`
	Password    string        `mapstructure:"password" yaml:"password"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	Debug       bool          `mapstructure:"debug" yaml:"debug"`
	// server settings, see https://clickhouse.com/docs/operations/settings/settings
	Settings clickhouse.Settings `mapstructure:"settings" yaml:"settings"`
	// AuditTable receives one row per cache event
	// default: "cache_events"
	AuditTable TableName `mapstructure:"audit_table" yaml:"audit_table"`
	// WriterConfig enables batch writing when set
	WriterConfig *WriterConfig `mapstructure:"writer" yaml:"writer"`
}

// WriterConfig controls when buffered rows are flushed
type WriterConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
	FlushSize     int           `mapstructure:"flush_size" yaml:"flush_size"`
	// MinFlushSize is the minimum batch size for an interval flush.
	// 0 flushes on every interval.
	MinFlushSize int `mapstructure:"min_flush_size" yaml:"min_flush_size"`
	// MaxWaitTime forces an interval flush once the oldest buffered row is
	// this old, regardless of MinFlushSize. 0 waits for MinFlushSize.
	MaxWaitTime time.Duration `mapstructure:"max_wait_time" yaml:"max_wait_time"`
}

// DefaultConfig returns the default connection config
func DefaultConfig() *Config {
	return &Config{
		Database:    "default",
		DialTimeout: 10 * time.Second,
		AuditTable:  "cache_events",
	}
}

// DefaultWriterConfig returns the default writer config
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		FlushInterval: 10 * time.Second,
		FlushSize:     5000,
		MinFlushSize:  500,
		MaxWaitTime:   60 * time.Second,
	}
}

// MergeDefaults fills zero fields from DefaultConfig and returns c.
// A nil WriterConfig stays nil.
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.Database == "" {
		c.Database = defaults.Database
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.AuditTable == "" {
		c.AuditTable = defaults.AuditTable
	}
	if w := c.WriterConfig; w != nil {
		wd := DefaultWriterConfig()
		if w.FlushInterval == 0 {
			w.FlushInterval = wd.FlushInterval
		}
		if w.FlushSize == 0 {
			w.FlushSize = wd.FlushSize
		}
	}
	return c
}

// Validate validates the config
func (c *Config) Validate() error {
	if len(c.Hosts) == 0 {
		return ErrInvalidConfig("hosts are required")
	}
	if c.Username == "" {
		return ErrInvalidConfig("username is required")
	}
	if c.Password == "" {
		return ErrInvalidConfig("password is required")
	}
	if c.WriterConfig != nil {
		return c.WriterConfig.Validate()
	}
	return nil
}

// Validate validates the writer config
func (w *WriterConfig) Validate() error {
	if w.FlushInterval <= 0 {
		return ErrInvalidConfig("writer.flush_interval is required")
	}
	if w.FlushSize <= 0 {
		return ErrInvalidConfig("writer.flush_size is required")
	}
	if w.MinFlushSize < 0 {
		return ErrInvalidConfig("writer.min_flush_size cannot be negative")
	}
	if w.MinFlushSize > w.FlushSize {
		return ErrInvalidConfig("writer.min_flush_size cannot be greater than writer.flush_size")
	}
	if w.MaxWaitTime < 0 {
		return ErrInvalidConfig("writer.max_wait_time cannot be negative")
	}
	return nil
}
