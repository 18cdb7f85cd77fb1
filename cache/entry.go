package cache

import (
	"encoding/json"
	"time"
)

const (
	dataKey = "data"
	metaKey = "meta"
)

// Pagination is the paging context reported by the backend
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// Scope describes which subset of the backend an entry represents
type Scope struct {
	LocationID int64 `json:"location_id,omitempty"`
	UserID     int64 `json:"user_id,omitempty"`
}

// Entry is the cached collection
type Entry[T any] struct {
	Items          []T         `json:"items"`
	Pagination     *Pagination `json:"pagination,omitempty"`
	RequestFilters *FilterSet  `json:"request_filters,omitempty"`
}

// Metadata is the staleness bookkeeping written with every Entry
type Metadata struct {
	LastUpdatedAt time.Time `json:"last_updated_at"`
	Scope         *Scope    `json:"scope,omitempty"`
	TotalRecords  int       `json:"total_records"`
	// Version increases by one on every write of the namespace
	Version uint64 `json:"version"`
}

// Age returns how long ago the entry was written
func (m Metadata) Age(now time.Time) time.Duration {
	return now.Sub(m.LastUpdatedAt)
}

func encodeEntry[T any](e *Entry[T]) ([]byte, error) {
	if e.Items == nil {
		e.Items = []T{}
	}
	return json.Marshal(e)
}

func decodeEntry[T any](b []byte) (*Entry[T], error) {
	var e Entry[T]
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func encodeMetadata(m *Metadata) ([]byte, error) {
	return json.Marshal(m)
}

func decodeMetadata(b []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
