package ch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/smallnest/chanx"
	"github.com/venueops/entitycache/logger"
	"github.com/venueops/entitycache/routine"
	"go.uber.org/zap"
)

type defaultWriter struct {
	config *WriterConfig
	logger logger.Logger
	runner routine.Runner

	sink inserter

	// channel-based batch insert
	dataChan    *chanx.UnboundedChan[Table]
	flushTicker *time.Ticker
	cancel      context.CancelFunc

	started atomic.Bool
	// mu guards closed and the close of dataChan.In
	mu     sync.RWMutex
	closed bool
}

func newWriter(sink inserter, config *WriterConfig, log logger.Logger) *defaultWriter {
	if config == nil {
		config = DefaultWriterConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	writer := &defaultWriter{
		config:      config,
		logger:      log,
		runner:      routine.New(log),
		sink:        sink,
		dataChan:    chanx.NewUnboundedChan[Table](ctx, config.FlushSize),
		flushTicker: time.NewTicker(config.FlushInterval),
		cancel:      cancel,
	}

	log.Info("clickhouse writer initialized",
		zap.Duration("flush_interval", config.FlushInterval),
		zap.Int("flush_size", config.FlushSize),
		zap.Int("min_flush_size", config.MinFlushSize),
		zap.Duration("max_wait_time", config.MaxWaitTime),
	)

	return writer
}

// Start runs the process loop; calling it again has no effect
func (w *defaultWriter) Start() error {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return ErrWriterClosed
	}
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}
	w.runner.GoNamed("clickhouse-writer", w.processLoop)
	w.logger.Info("clickhouse writer started")
	return nil
}

// Write buffers rows; they are inserted by the process loop
func (w *defaultWriter) Write(ctx context.Context, rows []Table) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}

	for _, row := range rows {
		select {
		case w.dataChan.In <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops the process loop after flushing everything buffered
func (w *defaultWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.dataChan.In)
	w.mu.Unlock()

	w.logger.Info("clickhouse writer shutting down", zap.Int("pending_rows", w.dataChan.Len()))

	w.flushTicker.Stop()
	if w.started.CompareAndSwap(false, true) {
		// flush what was written without a Start
		w.runner.GoNamed("clickhouse-writer", w.processLoop)
	}
	w.runner.Wait()
	w.cancel()

	w.logger.Info("clickhouse writer shutdown complete")
	return nil
}

// processLoop batches rows until the data channel is closed and drained
func (w *defaultWriter) processLoop() {
	buffer := make(map[TableName][]Table)
	totalRows := 0
	var firstDataTime time.Time // when the first row of the current batch arrived

	reset := func() {
		buffer = make(map[TableName][]Table)
		totalRows = 0
		firstDataTime = time.Time{}
	}

	for {
		select {
		case row, ok := <-w.dataChan.Out:
			if !ok {
				if totalRows > 0 {
					w.flush(buffer)
				}
				w.logger.Info("process loop stopped")
				return
			}
			if row == nil {
				continue
			}
			if totalRows == 0 {
				firstDataTime = time.Now()
			}
			tableName := row.TableName()
			buffer[tableName] = append(buffer[tableName], row)
			totalRows++

			if totalRows >= w.config.FlushSize {
				w.flush(buffer)
				reset()
			}

		case <-w.flushTicker.C:
			if totalRows == 0 {
				continue
			}
			if w.shouldFlush(totalRows, firstDataTime) {
				w.flush(buffer)
				reset()
			} else {
				w.logger.Debug("skipping flush, waiting for more data",
					zap.Int("current_rows", totalRows),
					zap.Int("min_flush_size", w.config.MinFlushSize),
					zap.Duration("waited", time.Since(firstDataTime)),
					zap.Duration("max_wait_time", w.config.MaxWaitTime),
				)
			}
		}
	}
}

// shouldFlush applies the MinFlushSize and MaxWaitTime strategy to an interval flush
func (w *defaultWriter) shouldFlush(totalRows int, firstDataTime time.Time) bool {
	if w.config.MinFlushSize == 0 {
		return true
	}

	if totalRows >= w.config.MinFlushSize {
		return true
	}

	if w.config.MaxWaitTime > 0 && time.Since(firstDataTime) >= w.config.MaxWaitTime {
		w.logger.Debug("max wait time exceeded, forcing flush",
			zap.Int("current_rows", totalRows),
			zap.Duration("waited", time.Since(firstDataTime)),
		)
		return true
	}

	return false
}

// flush inserts every buffered table; failed batches are logged and dropped
func (w *defaultWriter) flush(buffer map[TableName][]Table) {
	successRows := 0
	failedRows := 0
	totalRows := 0

	for table, rows := range buffer {
		totalRows += len(rows)

		if err := w.batchInsert(context.Background(), table, rows); err != nil {
			w.logger.Error("failed to batch insert", zap.Error(err))
			failedRows += len(rows)
		} else {
			successRows += len(rows)
		}
	}

	w.logger.Info("flush completed",
		zap.Int("total_rows", totalRows),
		zap.Int("success_rows", successRows),
		zap.Int("failed_rows", failedRows),
	)
}

func (w *defaultWriter) batchInsert(ctx context.Context, table TableName, rows []Table) error {
	if len(rows) == 0 {
		return nil
	}

	columns := rows[0].Columns()
	values := make([][]any, 0, len(rows))
	for _, row := range rows {
		v := row.Values()
		if len(v) != len(columns) {
			return ErrInsert(table, fmt.Errorf("row has %d values for %d columns", len(v), len(columns)))
		}
		values = append(values, v)
	}

	if err := w.sink.insert(ctx, table, columns, values); err != nil {
		return ErrInsert(table, err)
	}
	return nil
}

// connInserter inserts batches over a native ClickHouse connection
type connInserter struct {
	conn driver.Conn
}

func (c connInserter) insert(ctx context.Context, table TableName, columns []string, rows [][]any) error {
	batch, err := c.conn.PrepareBatch(ctx, insertQuery(table, columns))
	if err != nil {
		return err
	}
	for _, values := range rows {
		if err := batch.Append(values...); err != nil {
			_ = batch.Abort()
			return err
		}
	}
	return batch.Send()
}

func insertQuery(table TableName, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = "`" + c + "`"
	}
	return fmt.Sprintf("INSERT INTO `%s` (%s)", table, strings.Join(quoted, ", "))
}
