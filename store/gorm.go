package store

import (
	"context"
	"errors"
	"time"

	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheRecord is the row layout of the gorm backed store
type CacheRecord struct {
	Namespace string    `gorm:"primaryKey;size:191"`
	EntryKey  string    `gorm:"primaryKey;size:64"`
	Value     []byte    `gorm:"type:longblob;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName implements gorm's tabler interface
func (CacheRecord) TableName() string {
	return "cache_entries"
}

// Gorm stores namespaces in a relational table through gorm. It is meant for
// deployments that share one MySQL database between admin instances.
type Gorm struct {
	logger logger.Logger
	db     *gorm.DB
}

// NewGorm wraps an open gorm connection, creating the table when migrate is set
func NewGorm(log logger.Logger, db *gorm.DB, migrate bool) (*Gorm, error) {
	if db == nil {
		return nil, ErrInvalidConfig("gorm db is required")
	}
	if migrate {
		if err := db.AutoMigrate(&CacheRecord{}); err != nil {
			return nil, ErrConnection(err)
		}
		log.Info("gorm store migrated", zap.String("table", CacheRecord{}.TableName()))
	}
	return &Gorm{logger: log, db: db}, nil
}

func (g *Gorm) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	var rec CacheRecord
	err := g.db.WithContext(ctx).
		Where("namespace = ? AND entry_key = ?", namespace, key).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ErrOperation("get", namespace, err)
	}
	return rec.Value, true, nil
}

func (g *Gorm) Put(ctx context.Context, namespace, key string, value []byte) error {
	return g.PutAll(ctx, namespace, map[string][]byte{key: value})
}

func (g *Gorm) PutAll(ctx context.Context, namespace string, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now()
	records := make([]CacheRecord, 0, len(values))
	for k, v := range values {
		records = append(records, CacheRecord{Namespace: namespace, EntryKey: k, Value: v, UpdatedAt: now})
	}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&records).Error
	})
	if err != nil {
		return ErrOperation("put", namespace, err)
	}
	return nil
}

func (g *Gorm) DeleteNamespace(ctx context.Context, namespace string) (bool, error) {
	res := g.db.WithContext(ctx).Where("namespace = ?", namespace).Delete(&CacheRecord{})
	if res.Error != nil {
		return false, ErrOperation("delete", namespace, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Close is a no-op: the connection belongs to whoever opened the gorm db
func (g *Gorm) Close() error {
	return nil
}
