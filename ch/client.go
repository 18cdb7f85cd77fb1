package ch

import (
	"context"
	"errors"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
)

// client shares one connection between the audit writer and DDL statements
type client struct {
	config *Config
	logger logger.Logger
	conn   driver.Conn

	mu     sync.RWMutex
	closed bool
	writer *defaultWriter
}

// NewClient opens a ClickHouse connection and pings it within DialTimeout
func NewClient(log logger.Logger, config *Config) (Client, error) {
	log = logger.OrGlobal(log)
	if config == nil {
		config = DefaultConfig()
	}
	config.MergeDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: config.Hosts,
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		DialTimeout: config.DialTimeout,
		Debug:       config.Debug,
		Settings:    config.Settings,
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct{ Name, Version string }{{Name: "venuecache", Version: "1"}},
		},
	})
	if err != nil {
		return nil, ErrConnection(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, ErrConnection(err)
	}

	log.Info("clickhouse connected",
		zap.Strings("hosts", config.Hosts),
		zap.String("database", config.Database),
		zap.String("audit_table", string(config.AuditTable)),
	)
	return &client{config: config, logger: log, conn: conn}, nil
}

// Writer returns the batch writer, creating it on first use.
// The caller must Start it; Close on the client closes it.
func (c *client) Writer() (Writer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.config.WriterConfig == nil {
		return nil, ErrWriterDisabled
	}
	if c.writer == nil {
		c.writer = newWriter(connInserter{conn: c.conn}, c.config.WriterConfig, c.logger)
	}
	return c.writer, nil
}

// Exec runs a statement that returns no rows
func (c *client) Exec(ctx context.Context, query string, args ...any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	if err := c.conn.Exec(ctx, query, args...); err != nil {
		c.logger.Error("clickhouse exec failed", zap.String("query", query), zap.Error(err))
		return err
	}
	return nil
}

// Close flushes and closes the writer, if any, then the connection
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.writer != nil {
		errs = append(errs, c.writer.Close())
	}
	errs = append(errs, c.conn.Close())

	err := errors.Join(errs...)
	if err != nil {
		c.logger.Error("clickhouse shutdown incomplete", zap.Error(err))
	} else {
		c.logger.Info("clickhouse disconnected")
	}
	return err
}
