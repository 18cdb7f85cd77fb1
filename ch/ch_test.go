package ch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/venueops/entitycache/cache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type batch struct {
	table   TableName
	columns []string
	rows    [][]any
}

// fakeInserter records inserted batches
type fakeInserter struct {
	mu      sync.Mutex
	batches []batch
	err     error
}

func (f *fakeInserter) insert(_ context.Context, table TableName, columns []string, rows [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, batch{table: table, columns: columns, rows: rows})
	return nil
}

func (f *fakeInserter) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = len(b.rows)
	}
	return sizes
}

// fakeWriter records written rows
type fakeWriter struct {
	mu   sync.Mutex
	rows []Table
	err  error
}

func (w *fakeWriter) Start() error { return nil }
func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) Write(_ context.Context, rows []Table) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, rows...)
	return nil
}

func auditRows(n int) []Table {
	rows := make([]Table, n)
	for i := range rows {
		rows[i] = NewAuditRow("cache_events", cache.Event{Source: cache.SourceAPI, Entity: "rooms", Count: i})
	}
	return rows
}

func TestWriter_FlushBySize(t *testing.T) {
	sink := &fakeInserter{}
	w := newWriter(sink, &WriterConfig{FlushInterval: time.Hour, FlushSize: 2}, zap.NewNop())
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := w.Write(context.Background(), auditRows(5)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	sizes := sink.sizes()
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("expected batches [2 2 1], got %v", sizes)
	}
	b := sink.batches[0]
	if b.table != "cache_events" || len(b.columns) != len(auditColumns) {
		t.Errorf("unexpected batch %+v", b)
	}
}

func TestWriter_FlushByInterval(t *testing.T) {
	sink := &fakeInserter{}
	w := newWriter(sink, &WriterConfig{FlushInterval: 10 * time.Millisecond, FlushSize: 100}, zap.NewNop())
	_ = w.Start()
	defer w.Close()

	if err := w.Write(context.Background(), auditRows(1)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.sizes()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("interval flush did not happen")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWriter_ShouldFlush(t *testing.T) {
	w := newWriter(&fakeInserter{}, &WriterConfig{
		FlushInterval: time.Hour,
		FlushSize:     100,
		MinFlushSize:  10,
		MaxWaitTime:   time.Minute,
	}, zap.NewNop())
	defer w.Close()

	now := time.Now()
	if w.shouldFlush(3, now) {
		t.Error("small fresh batch must wait")
	}
	if !w.shouldFlush(10, now) {
		t.Error("batch at min flush size must flush")
	}
	if !w.shouldFlush(3, now.Add(-2*time.Minute)) {
		t.Error("batch older than max wait time must flush")
	}

	w.config.MinFlushSize = 0
	if !w.shouldFlush(1, now) {
		t.Error("zero min flush size flushes every interval")
	}
}

func TestWriter_Close(t *testing.T) {
	sink := &fakeInserter{}
	w := newWriter(sink, &WriterConfig{FlushInterval: time.Hour, FlushSize: 100}, zap.NewNop())

	// rows written before Start are flushed by Close
	_ = w.Write(context.Background(), auditRows(3))
	_ = w.Close()
	_ = w.Close()

	if sizes := sink.sizes(); len(sizes) != 1 || sizes[0] != 3 {
		t.Errorf("expected one batch of 3, got %v", sizes)
	}
	if err := w.Write(context.Background(), auditRows(1)); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("expected ErrWriterClosed, got %v", err)
	}
	if err := w.Start(); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("expected ErrWriterClosed from Start, got %v", err)
	}
}

func TestWriter_InsertFailureIsLogged(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	sink := &fakeInserter{err: errors.New("table is read only")}
	w := newWriter(sink, &WriterConfig{FlushInterval: time.Hour, FlushSize: 100}, zap.New(core))
	_ = w.Start()

	_ = w.Write(context.Background(), auditRows(2))
	_ = w.Close()

	if recorded.FilterMessage("failed to batch insert").Len() != 1 {
		t.Error("expected insert failure log")
	}
	flushed := recorded.FilterMessage("flush completed").All()
	if len(flushed) != 1 || flushed[0].ContextMap()["failed_rows"] != int64(2) {
		t.Errorf("expected 2 failed rows, got %v", flushed)
	}
}

type shortRow struct{}

func (shortRow) TableName() TableName { return "cache_events" }
func (shortRow) Columns() []string    { return []string{"a", "b"} }
func (shortRow) Values() []any        { return []any{1} }

func TestBatchInsert_ColumnMismatch(t *testing.T) {
	w := newWriter(&fakeInserter{}, DefaultWriterConfig(), zap.NewNop())
	defer w.Close()

	if err := w.batchInsert(context.Background(), "cache_events", []Table{shortRow{}}); err == nil {
		t.Error("expected column mismatch error")
	}
}

func TestInsertQuery(t *testing.T) {
	got := insertQuery("cache_events", []string{"event_id", "at"})
	want := "INSERT INTO `cache_events` (`event_id`, `at`)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNewAuditRow(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	row := NewAuditRow("audit", cache.Event{
		Source:     cache.SourceDelete,
		Entity:     "bookings",
		Namespace:  "s1:bookings",
		AffectedID: "7",
		Count:      4,
		At:         at,
	})

	if row.EventID == "" || row.TableName() != "audit" {
		t.Errorf("unexpected row %+v", row)
	}
	if len(row.Values()) != len(row.Columns()) {
		t.Fatal("values and columns must line up")
	}
	if row.Source != "delete" || row.Count != 4 || row.At.Location() != time.UTC || !row.At.Equal(at) {
		t.Errorf("unexpected row %+v", row)
	}
	if other := NewAuditRow("audit", cache.Event{}); other.EventID == row.EventID {
		t.Error("event ids must be unique")
	}
}

func TestAuditor(t *testing.T) {
	core, recorded := observer.New(zapcore.WarnLevel)
	bus := cache.NewEventBus(nil)
	w := &fakeWriter{}

	a, err := NewAuditor(zap.New(core), "", w, bus)
	if err != nil {
		t.Fatalf("NewAuditor failed: %v", err)
	}

	bus.Publish(cache.Event{Source: cache.SourceAdd, Entity: "rooms", AffectedID: "3"})
	bus.Publish(cache.Event{Source: cache.SourceClear, Entity: "rooms"})
	if len(w.rows) != 2 || w.rows[0].TableName() != "cache_events" {
		t.Fatalf("expected 2 rows in the default table, got %v", w.rows)
	}

	w.err = ErrWriterClosed
	bus.Publish(cache.Event{Source: cache.SourceAPI, Entity: "rooms"})
	if recorded.FilterMessage("failed to record cache event").Len() != 1 {
		t.Error("expected write failure log")
	}

	a.Close()
	if bus.Len() != 0 {
		t.Error("Close must unsubscribe")
	}

	if _, err := NewAuditor(nil, "", nil, bus); err == nil {
		t.Error("expected missing writer error")
	}
}

func TestConfig(t *testing.T) {
	cfg := (&Config{
		Hosts:        []string{"ch:9000"},
		Username:     "default",
		Password:     "secret",
		WriterConfig: &WriterConfig{},
	}).MergeDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.AuditTable != "cache_events" || cfg.WriterConfig.FlushSize != 5000 {
		t.Errorf("defaults not merged: %+v %+v", cfg, cfg.WriterConfig)
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no hosts", Config{Username: "u", Password: "p"}},
		{"no password", Config{Hosts: []string{"h"}, Username: "u"}},
		{"min above size", Config{Hosts: []string{"h"}, Username: "u", Password: "p",
			WriterConfig: &WriterConfig{FlushInterval: time.Second, FlushSize: 10, MinFlushSize: 20}}},
		{"negative wait", Config{Hosts: []string{"h"}, Username: "u", Password: "p",
			WriterConfig: &WriterConfig{FlushInterval: time.Second, FlushSize: 10, MaxWaitTime: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
