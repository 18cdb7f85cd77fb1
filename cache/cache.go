// Package cache provides the read-through, stale-while-revalidate cache that
// backs the admin entity lists (attractions, packages, add-ons, rooms,
// customers, bookings).
//
// One Coordinator owns one entity collection of one session:
//   - reads are served from the persistent store and refreshed in the
//     background once they are older than MaxAge
//   - at most one fetch against the backend is in flight per collection
//   - create/update/delete results are patched into the cached list without
//     a full refresh
//   - every change is announced on an EventBus so views can re-render
//   - Warmup fills an empty cache once per process, Clear wipes everything on logout
//
// The collection is stored as one entry, not one entry per filter: filtered
// views are derived in memory with FilterLocal.
package cache

import (
	"context"
	"time"
)

// Entity is a cached item with a stable identifier
type Entity[K comparable] interface {
	EntityID() K
}

// Scoped entities belong to a location and/or a user.
// A zero id means the entity is not bound to that dimension.
type Scoped interface {
	ScopeLocationID() int64
	ScopeUserID() int64
}

// Activatable entities carry an active flag
type Activatable interface {
	IsActive() bool
}

// Searchable entities expose the text fields matched by Criteria.Search
type Searchable interface {
	SearchFields() []string
}

// Page is one result of a backend list call
type Page[T any] struct {
	Items      []T
	Pagination *Pagination
}

// Source lists entities from the backend.
// The context carries the refresh timeout and should be honoured.
type Source[T any] interface {
	List(ctx context.Context, filters FilterSet, pageSizeHint int) (Page[T], error)
}

// SourceFunc adapts a function to the Source interface
type SourceFunc[T any] func(ctx context.Context, filters FilterSet, pageSizeHint int) (Page[T], error)

// List calls f
func (f SourceFunc[T]) List(ctx context.Context, filters FilterSet, pageSizeHint int) (Page[T], error) {
	return f(ctx, filters, pageSizeHint)
}

// Syncer is the entity-agnostic side of a Coordinator, used by schedulers
// and message handlers that do not know the entity type.
type Syncer interface {
	// Name returns the entity collection name
	Name() string

	// IsStale reports whether the cache has no metadata or is older than maxAge.
	// maxAge <= 0 uses the configured MaxAge.
	IsStale(ctx context.Context, maxAge time.Duration) bool

	// Sync forces a refresh and reports only its error
	Sync(ctx context.Context, filters FilterSet) error
}

// Coordinator is a cached entity collection
type Coordinator[K comparable, T Entity[K]] interface {
	Syncer

	// Get returns the cached items, refreshing as needed.
	//
	// A non-empty cache is returned immediately; when it is stale a background
	// refresh is scheduled and its outcome is only logged. An empty cache, or
	// WithForceRefresh, waits for a refresh.
	//
	// Items are always returned, possibly empty. When the awaited refresh
	// fails the previously cached items (or an empty slice) come back together
	// with an error wrapping ErrRefresh, so callers can tell "failed" from "no
	// data". Callers that only want data may ignore the error.
	//
	// The returned slice is a copy; elements that are reference types are shared.
	Get(ctx context.Context, filters FilterSet, opts ...GetOption) ([]T, error)

	// ForceRefresh is Get with WithForceRefresh
	ForceRefresh(ctx context.Context, filters FilterSet) ([]T, error)

	// HasCachedData reports whether an entry exists, even an empty one
	HasCachedData(ctx context.Context) bool

	// Metadata returns the bookkeeping of the current entry
	Metadata(ctx context.Context) (Metadata, bool)

	// GetOne looks id up in the cached list without contacting the backend
	GetOne(ctx context.Context, id K) (T, bool)

	// FilterLocal applies criteria to the cached list without contacting the backend
	FilterLocal(ctx context.Context, criteria Criteria) ([]T, error)

	// Upsert replaces the item with the same id in place, or appends it
	Upsert(ctx context.Context, entity T) error

	// Remove drops id from the cached list
	Remove(ctx context.Context, id K) error

	// Warmup fills an empty cache once per process lifetime
	Warmup(ctx context.Context, filters FilterSet) error

	// WarmupCompleted reports whether Warmup ran since the last Clear
	WarmupCompleted() bool

	// Clear deletes the entry and its metadata and resets the warmup flag
	Clear(ctx context.Context) error

	// Subscribe registers h for change events and returns its unsubscribe func
	Subscribe(h Handler) (unsubscribe func())

	// Wait blocks until scheduled background refreshes have finished
	Wait()
}

// GetOption customizes a Get call
type GetOption func(*getOptions)

type getOptions struct {
	forceRefresh bool
}

// WithForceRefresh bypasses the cached entry and waits for a refresh
func WithForceRefresh() GetOption {
	return func(o *getOptions) {
		o.forceRefresh = true
	}
}
