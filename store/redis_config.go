package store

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis store
type RedisConfig struct {
	// Addr is host:port of the redis server (required)
	Addr string `mapstructure:"addr" yaml:"addr"`
	// Username for ACL authentication (redis >= 6)
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	// default: 10
	PoolSize     int `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
	MaxRetries   int `mapstructure:"max_retries" yaml:"max_retries"`
	// default: 5s
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// KeyPrefix is prepended to every namespace hash key
	// default: "entitycache"
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
	// TTL expires a namespace this long after its last write, 0 keeps it forever
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// DefaultRedisConfig returns the default configuration for the Redis store
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:        "localhost:6379",
		PoolSize:    10,
		DialTimeout: 5 * time.Second,
		KeyPrefix:   "entitycache",
	}
}

// MergeDefaults fills zero fields from DefaultRedisConfig and returns c
func (c *RedisConfig) MergeDefaults() *RedisConfig {
	defaults := DefaultRedisConfig()
	if c.Addr == "" {
		c.Addr = defaults.Addr
	}
	if c.PoolSize == 0 {
		c.PoolSize = defaults.PoolSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaults.DialTimeout
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = defaults.KeyPrefix
	}
	return c
}

// Validate validates the configuration
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return ErrInvalidConfig("addr is required")
	}
	if c.DB < 0 {
		return ErrInvalidConfig("db must be >= 0")
	}
	if c.PoolSize < 0 {
		return ErrInvalidConfig("pool_size must be >= 0")
	}
	if c.MinIdleConns < 0 {
		return ErrInvalidConfig("min_idle_conns must be >= 0")
	}
	if c.MaxRetries < 0 {
		return ErrInvalidConfig("max_retries must be >= 0")
	}
	if c.DialTimeout < 0 {
		return ErrInvalidTimeout("dial_timeout", c.DialTimeout)
	}
	if c.ReadTimeout < 0 {
		return ErrInvalidTimeout("read_timeout", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return ErrInvalidTimeout("write_timeout", c.WriteTimeout)
	}
	if c.TTL < 0 {
		return ErrInvalidTimeout("ttl", c.TTL)
	}
	return nil
}

// Options converts the configuration into go-redis client options
func (c *RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}
