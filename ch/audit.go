package ch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/venueops/entitycache/cache"
	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
)

// auditColumns matches the table created by EnsureAuditTable
var auditColumns = []string{"event_id", "source", "entity", "namespace", "affected_id", "item_count", "at"}

// AuditRow is one cache event as stored in the audit table
type AuditRow struct {
	Table      TableName
	EventID    string
	Source     string
	Entity     string
	Namespace  string
	AffectedID string
	Count      uint32
	At         time.Time
}

// NewAuditRow converts e into a row of table
func NewAuditRow(table TableName, e cache.Event) *AuditRow {
	return &AuditRow{
		Table:      table,
		EventID:    uuid.NewString(),
		Source:     string(e.Source),
		Entity:     e.Entity,
		Namespace:  e.Namespace,
		AffectedID: e.AffectedID,
		Count:      uint32(max(e.Count, 0)),
		At:         e.At.UTC(),
	}
}

func (r *AuditRow) TableName() TableName { return r.Table }
func (r *AuditRow) Columns() []string    { return auditColumns }

func (r *AuditRow) Values() []any {
	return []any{r.EventID, r.Source, r.Entity, r.Namespace, r.AffectedID, r.Count, r.At}
}

// EnsureAuditTable creates table if it does not exist
func EnsureAuditTable(ctx context.Context, c Client, table TableName) error {
	return c.Exec(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (\n"+
		"  event_id    UUID,\n"+
		"  source      LowCardinality(String),\n"+
		"  entity      LowCardinality(String),\n"+
		"  namespace   String,\n"+
		"  affected_id String,\n"+
		"  item_count  UInt32,\n"+
		"  at          DateTime64(3, 'UTC')\n"+
		") ENGINE = MergeTree\n"+
		"PARTITION BY toYYYYMM(at)\n"+
		"ORDER BY (namespace, at)", table))
}

// Auditor writes every event of a bus to the audit table
type Auditor struct {
	log         logger.Logger
	table       TableName
	writer      Writer
	unsubscribe func()
}

// NewAuditor subscribes to bus. The writer must be started by the caller.
func NewAuditor(log logger.Logger, table TableName, writer Writer, bus *cache.EventBus) (*Auditor, error) {
	log = logger.OrGlobal(log)
	if writer == nil || bus == nil {
		return nil, ErrInvalidConfig("writer and event bus are required")
	}
	if table == "" {
		table = DefaultConfig().AuditTable
	}

	a := &Auditor{log: log, table: table, writer: writer}
	a.unsubscribe = bus.Subscribe(a.record)
	return a, nil
}

func (a *Auditor) record(e cache.Event) {
	if err := a.writer.Write(context.Background(), []Table{NewAuditRow(a.table, e)}); err != nil {
		a.log.Warn("failed to record cache event",
			zap.String("entity", e.Entity),
			zap.String("source", string(e.Source)),
			zap.Error(err),
		)
	}
}

// Close stops recording; the writer stays open
func (a *Auditor) Close() {
	a.unsubscribe()
}
