package db

import (
	"context"
	"database/sql"

	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQL is a gorm connection pool to MySQL logging through zap
type MySQL struct {
	db *gorm.DB
}

// NewMySQL opens the pool described by cfg and pings it once
func NewMySQL(log logger.Logger, cfg *Config) (*MySQL, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger:      newGormLogger(log, cfg.LogLevel, cfg.SlowThreshold),
		PrepareStmt: true,
		// cache rows are replaced wholesale, per-statement transactions only add latency
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, ErrConnection(err)
	}
	sqldb, err := gdb.DB()
	if err != nil {
		return nil, ErrConnection(err)
	}
	configurePool(sqldb, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, ErrConnection(err)
	}

	log.Info("cache database connected",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Duration("io_timeout", cfg.IOTimeout),
	)
	return &MySQL{db: gdb}, nil
}

func configurePool(sqldb *sql.DB, cfg *Config) {
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// DB returns the gorm handle
func (m *MySQL) DB() (*gorm.DB, error) {
	if m == nil || m.db == nil {
		return nil, ErrConnectionNotEstablished
	}
	return m.db, nil
}

// Ping checks the pool can still reach the server
func (m *MySQL) Ping(ctx context.Context) error {
	sqldb, err := m.sqlDB()
	if err != nil {
		return err
	}
	return sqldb.PingContext(ctx)
}

// Close closes the pool
func (m *MySQL) Close() error {
	sqldb, err := m.sqlDB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}

func (m *MySQL) sqlDB() (*sql.DB, error) {
	gdb, err := m.DB()
	if err != nil {
		return nil, err
	}
	sqldb, err := gdb.DB()
	if err != nil {
		return nil, ErrConnection(err)
	}
	return sqldb, nil
}
