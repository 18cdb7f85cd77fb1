package db

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// Config is the MySQL connection used by the shared relational cache store.
// The timeouts are short: a cache that cannot reach its database should fail
// fast and let the coordinator fall through to the backend.
type Config struct {
	Host     string `mapstructure:"host" yaml:"host"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	// default: 3306
	Port int `mapstructure:"port" yaml:"port"`

	// default: 10
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	// default: 5
	MaxIdleConns int `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	// default: 30m
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	// default: 10m
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`

	// DialTimeout bounds establishing a connection
	// default: 3s
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	// IOTimeout bounds a single read or write on a connection
	// default: 5s
	IOTimeout time.Duration `mapstructure:"io_timeout" yaml:"io_timeout"`

	// LogLevel is gorm's log level: silent, error, warn or info
	// default: "warn"
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// SlowThreshold marks statements slower than this as slow sql
	// default: 500ms
	SlowThreshold time.Duration `mapstructure:"slow_threshold" yaml:"slow_threshold"`
	// default: "utf8mb4"
	Charset string `mapstructure:"charset" yaml:"charset"`
	// Loc is the time zone DATETIME values are read in
	// default: "UTC"
	Loc string `mapstructure:"loc" yaml:"loc"`
	// AutoMigrate creates the cache_entries table on connect
	AutoMigrate bool `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// DefaultConfig returns the default configuration for the database
func DefaultConfig() *Config {
	return &Config{
		Port:            3306,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
		DialTimeout:     3 * time.Second,
		IOTimeout:       5 * time.Second,
		LogLevel:        "warn",
		SlowThreshold:   500 * time.Millisecond,
		Charset:         "utf8mb4",
		Loc:             "UTC",
	}
}

// MergeDefaults fills zero fields from DefaultConfig and returns c
func (c *Config) MergeDefaults() *Config {
	d := DefaultConfig()
	setDefault(&c.Port, d.Port)
	setDefault(&c.MaxOpenConns, d.MaxOpenConns)
	setDefault(&c.MaxIdleConns, d.MaxIdleConns)
	setDefault(&c.ConnMaxLifetime, d.ConnMaxLifetime)
	setDefault(&c.ConnMaxIdleTime, d.ConnMaxIdleTime)
	setDefault(&c.DialTimeout, d.DialTimeout)
	setDefault(&c.IOTimeout, d.IOTimeout)
	setDefault(&c.LogLevel, d.LogLevel)
	setDefault(&c.SlowThreshold, d.SlowThreshold)
	setDefault(&c.Charset, d.Charset)
	setDefault(&c.Loc, d.Loc)
	return c
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

var validLogLevels = []string{"silent", "error", "warn", "info"}

// Validate validates the configuration
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"host":     c.Host,
		"user":     c.User,
		"password": c.Password,
		"database": c.Database,
	} {
		if v == "" {
			return ErrInvalidConfig(name + " is required")
		}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidConfig(fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return ErrInvalidConfig("max_idle_conns cannot exceed max_open_conns")
	}
	if c.DialTimeout < 0 || c.IOTimeout < 0 {
		return ErrInvalidConfig("timeouts cannot be negative")
	}
	if !slices.ContainsFunc(validLogLevels, func(level string) bool {
		return strings.EqualFold(c.LogLevel, level)
	}) {
		return ErrInvalidConfig(fmt.Sprintf("log_level %q must be one of: %s", c.LogLevel, strings.Join(validLogLevels, ", ")))
	}
	if _, err := time.LoadLocation(c.Loc); err != nil {
		return ErrInvalidConfig(fmt.Sprintf("loc %q: %v", c.Loc, err))
	}
	return nil
}

// DSN renders the go-sql-driver/mysql connection string. c must be valid.
func (c *Config) DSN() string {
	dc := mysqldriver.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.Timeout = c.DialTimeout
	dc.ReadTimeout = c.IOTimeout
	dc.WriteTimeout = c.IOTimeout
	dc.Params = map[string]string{"charset": c.Charset}
	if loc, err := time.LoadLocation(c.Loc); err == nil {
		dc.Loc = loc
	}
	return dc.FormatDSN()
}
