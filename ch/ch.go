// Package ch records cache events in ClickHouse for auditing. Rows are
// buffered in an unbounded channel and inserted in batches, flushed by size,
// by interval and on close.
package ch

import (
	"context"
)

// TableName is the name of a ClickHouse table
type TableName string

// Table is one row of a ClickHouse table
type Table interface {
	TableName() TableName
	// Columns and Values are positional and of equal length
	Columns() []string
	Values() []any
}

// Writer buffers rows and inserts them in batches
type Writer interface {
	Start() error
	Close() error
	Write(ctx context.Context, rows []Table) error
}

// Client is a ClickHouse connection with a lazily created batch writer
type Client interface {
	// Writer returns the batch writer, ErrWriterDisabled when not configured
	Writer() (Writer, error)
	// Exec runs a statement that returns no rows
	Exec(ctx context.Context, query string, args ...any) error
	// Close closes the writer, flushing buffered rows, and the connection
	Close() error
}

// inserter sends one batch of rows to a table
type inserter interface {
	insert(ctx context.Context, table TableName, columns []string, rows [][]any) error
}
