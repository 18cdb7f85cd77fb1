package cache

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/venueops/entitycache/logger"
	"github.com/venueops/entitycache/routine"
	"github.com/venueops/entitycache/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// refreshKey is the single-flight key; one collection has one refresh at a time
const refreshKey = "refresh"

// Option customizes a Coordinator
type Option func(*options)

type options struct {
	clock  func() time.Time
	runner routine.Runner
	bus    *EventBus
}

// WithClock replaces time.Now for staleness and metadata timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithRunner runs background refreshes on r instead of a private runner
func WithRunner(r routine.Runner) Option {
	return func(o *options) {
		o.runner = r
	}
}

// WithEventBus publishes events on a shared bus instead of a private one
func WithEventBus(b *EventBus) Option {
	return func(o *options) {
		o.bus = b
	}
}

// coordinator implements Coordinator
type coordinator[K comparable, T Entity[K]] struct {
	// Dependencies
	logger logger.Logger
	store  store.Store
	source Source[T]
	runner routine.Runner
	bus    *EventBus
	now    func() time.Time

	// Configuration
	cfg       Config
	namespace string

	// Runtime state
	flight     singleflight.Group
	mu         sync.Mutex // serializes read-modify-write of the namespace
	warmupMu   sync.Mutex
	warmupDone atomic.Bool
	revalidate atomic.Bool   // a background refresh is scheduled
	generation atomic.Uint64 // bumped by Clear, stale refresh results are dropped
}

// New creates a Coordinator for one entity collection.
// A nil store behaves like store.Unavailable: every read misses and the
// coordinator serves straight from src.
func New[K comparable, T Entity[K]](
	log logger.Logger,
	cfg *Config,
	st store.Store,
	src Source[T],
	opts ...Option,
) (Coordinator[K, T], error) {
	if cfg == nil {
		return nil, ErrInvalidName("")
	}
	merged := *cfg
	merged.MergeDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, ErrNoSource
	}
	if st == nil {
		st = store.Unavailable{}
	}

	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	log = logger.With(log, zap.String("cache", merged.Name))
	if o.runner == nil {
		o.runner = routine.New(log)
	}
	if o.bus == nil {
		o.bus = NewEventBus(log)
	}

	return &coordinator[K, T]{
		logger:    log,
		store:     st,
		source:    src,
		runner:    o.runner,
		bus:       o.bus,
		now:       o.clock,
		cfg:       merged,
		namespace: merged.Namespace(),
	}, nil
}

func (c *coordinator[K, T]) Name() string {
	return c.cfg.Name
}

func (c *coordinator[K, T]) Get(ctx context.Context, filters FilterSet, opts ...GetOption) ([]T, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !o.forceRefresh {
		if entry, meta := c.load(ctx); entry != nil && len(entry.Items) > 0 {
			if c.stale(meta, c.cfg.MaxAge) {
				c.scheduleRefresh(filters)
			}
			return slices.Clone(entry.Items), nil
		}
	}
	return c.refresh(ctx, filters)
}

func (c *coordinator[K, T]) ForceRefresh(ctx context.Context, filters FilterSet) ([]T, error) {
	return c.Get(ctx, filters, WithForceRefresh())
}

func (c *coordinator[K, T]) Sync(ctx context.Context, filters FilterSet) error {
	_, err := c.refresh(ctx, filters)
	return err
}

func (c *coordinator[K, T]) IsStale(ctx context.Context, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = c.cfg.MaxAge
	}
	return c.stale(c.loadMetadata(ctx), maxAge)
}

func (c *coordinator[K, T]) HasCachedData(ctx context.Context) bool {
	return c.loadEntry(ctx) != nil
}

func (c *coordinator[K, T]) Metadata(ctx context.Context) (Metadata, bool) {
	meta := c.loadMetadata(ctx)
	if meta == nil {
		return Metadata{}, false
	}
	return *meta, true
}

func (c *coordinator[K, T]) Subscribe(h Handler) func() {
	return c.bus.Subscribe(h)
}

func (c *coordinator[K, T]) Wait() {
	c.runner.Wait()
}

func (c *coordinator[K, T]) stale(meta *Metadata, maxAge time.Duration) bool {
	if meta == nil {
		return true
	}
	return meta.Age(c.now()) > maxAge
}

// scheduleRefresh starts a detached refresh unless one is already scheduled
func (c *coordinator[K, T]) scheduleRefresh(filters FilterSet) {
	if !c.revalidate.CompareAndSwap(false, true) {
		return
	}
	c.runner.GoNamed(c.cfg.Name+"-revalidate", func() {
		defer c.revalidate.Store(false)
		if _, err := c.refresh(context.Background(), filters); err != nil {
			c.logger.Warn("background refresh failed, serving stale data", zap.Error(err))
		}
	})
}

// flightResult is the value shared by the callers of one refresh
type flightResult[T any] struct {
	items []T
	gen   uint64 // generation the flight started under
}

// refresh joins the in-flight refresh or starts one.
// On failure it returns the cached items (or an empty slice) with the error.
func (c *coordinator[K, T]) refresh(ctx context.Context, filters FilterSet) ([]T, error) {
	items, _, err := c.refreshGen(ctx, filters)
	return items, err
}

// refreshGen is refresh that also reports the generation of the joined flight
func (c *coordinator[K, T]) refreshGen(ctx context.Context, filters FilterSet) ([]T, uint64, error) {
	ch := c.flight.DoChan(refreshKey, func() (any, error) {
		return c.fetch(filters)
	})

	select {
	case res := <-ch:
		r := res.Val.(flightResult[T])
		if res.Err != nil {
			return c.fallback(ctx), r.gen, res.Err
		}
		return slices.Clone(r.items), r.gen, nil
	case <-ctx.Done():
		return c.fallback(context.WithoutCancel(ctx)), c.generation.Load(), ctx.Err()
	}
}

func (c *coordinator[K, T]) fallback(ctx context.Context) []T {
	if entry := c.loadEntry(ctx); entry != nil && entry.Items != nil {
		return entry.Items
	}
	return []T{}
}

// fetch runs inside the single flight. It is detached from the callers'
// contexts so one caller giving up does not fail the others.
func (c *coordinator[K, T]) fetch(filters FilterSet) (flightResult[T], error) {
	gen := c.generation.Load()
	log := logger.With(c.logger, zap.String("refresh_id", uuid.NewString()))
	start := time.Now()

	listCtx, cancelList := context.WithTimeout(context.Background(), c.cfg.SyncTimeout)
	page, err := c.listWithRetry(listCtx, log, filters)
	cancelList()
	if err != nil {
		log.Error("refresh failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return flightResult[T]{gen: gen}, ErrRefreshFailed(c.cfg.Name, err)
	}

	items := page.Items
	if items == nil {
		items = []T{}
	}
	f := filters
	entry := &Entry[T]{Items: items, Pagination: page.Pagination, RequestFilters: &f}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SyncTimeout)
	defer cancel()

	c.mu.Lock()
	if c.generation.Load() != gen {
		c.mu.Unlock()
		log.Info("cache cleared during refresh, result not stored")
		return flightResult[T]{items: items, gen: gen}, nil
	}
	// a failed write is logged; the fetched items are still returned
	written, _ := c.persistLocked(ctx, entry, c.loadMetadata(ctx), filters.Scope())
	c.mu.Unlock()

	log.Debug("refresh completed",
		zap.Int("count", len(items)),
		zap.Bool("stored", written),
		zap.Duration("duration", time.Since(start)),
	)
	if written {
		c.publish(SourceAPI, "", len(items))
	}
	return flightResult[T]{items: items, gen: gen}, nil
}

// listWithRetry calls the source with exponential backoff between attempts.
// Every attempt and every backoff share the deadline of ctx.
func (c *coordinator[K, T]) listWithRetry(ctx context.Context, log logger.Logger, filters FilterSet) (Page[T], error) {
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		// backoff: RetryBackoff, 2x, 4x, ...
		if attempt > 0 {
			backoff := c.cfg.RetryBackoff << (attempt - 1)
			log.Warn("retrying refresh after backoff",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return Page[T]{}, ctx.Err()
			}
		}

		page, err := c.list(ctx, filters)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryableError(err) {
			return Page[T]{}, err
		}
		log.Warn("refresh attempt failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", c.cfg.MaxRetries),
		)
	}
	return Page[T]{}, lastErr
}

// list calls the source bounded by ctx, even when the source ignores
// it: a hung call must not hold the single-flight key forever.
func (c *coordinator[K, T]) list(ctx context.Context, filters FilterSet) (Page[T], error) {
	type result struct {
		page Page[T]
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: routine.ErrPanic(rec)}
			}
		}()
		page, err := c.source.List(ctx, filters, c.cfg.PageSizeHint)
		done <- result{page: page, err: err}
	}()

	select {
	case r := <-done:
		return r.page, r.err
	case <-ctx.Done():
		return Page[T]{}, ctx.Err()
	}
}

// load reads the entry and, when present, its metadata
func (c *coordinator[K, T]) load(ctx context.Context) (*Entry[T], *Metadata) {
	entry := c.loadEntry(ctx)
	if entry == nil {
		return nil, nil
	}
	return entry, c.loadMetadata(ctx)
}

func (c *coordinator[K, T]) loadEntry(ctx context.Context) *Entry[T] {
	b, ok := c.read(ctx, dataKey)
	if !ok {
		return nil
	}
	entry, err := decodeEntry[T](b)
	if err != nil {
		c.logger.Warn("cached entry unreadable, treating as miss", zap.Error(err))
		return nil
	}
	return entry
}

func (c *coordinator[K, T]) loadMetadata(ctx context.Context) *Metadata {
	b, ok := c.read(ctx, metaKey)
	if !ok {
		return nil
	}
	meta, err := decodeMetadata(b)
	if err != nil {
		c.logger.Warn("cached metadata unreadable, treating as miss", zap.Error(err))
		return nil
	}
	return meta
}

// read degrades every store failure to a miss
func (c *coordinator[K, T]) read(ctx context.Context, key string) ([]byte, bool) {
	b, ok, err := c.store.Get(ctx, c.namespace, key)
	if err != nil {
		c.logStoreError("read", err)
		return nil, false
	}
	return b, ok
}

// persistLocked writes entry and fresh metadata in one store call.
// The caller holds c.mu. written is false when the write was skipped or
// failed; err is set only for failures other than an unavailable store.
func (c *coordinator[K, T]) persistLocked(ctx context.Context, entry *Entry[T], prev *Metadata, scope *Scope) (written bool, err error) {
	meta := &Metadata{
		LastUpdatedAt: c.now(),
		Scope:         scope,
		TotalRecords:  len(entry.Items),
	}
	if prev != nil {
		meta.Version = prev.Version + 1
	}

	data, err := encodeEntry(entry)
	if err != nil {
		c.logger.Error("failed to encode cache entry", zap.Error(err))
		return false, ErrStore("encode", err)
	}
	metaBytes, err := encodeMetadata(meta)
	if err != nil {
		c.logger.Error("failed to encode cache metadata", zap.Error(err))
		return false, ErrStore("encode", err)
	}

	err = c.store.PutAll(ctx, c.namespace, map[string][]byte{
		dataKey: data,
		metaKey: metaBytes,
	})
	if err != nil {
		c.logStoreError("write", err)
		if errors.Is(err, store.ErrUnavailable) {
			return false, nil
		}
		return false, ErrStore("write", err)
	}
	return true, nil
}

func (c *coordinator[K, T]) logStoreError(op string, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		c.logger.Debug("store unavailable, skipping "+op, zap.String("namespace", c.namespace))
		return
	}
	c.logger.Warn("store "+op+" failed", zap.String("namespace", c.namespace), zap.Error(err))
}

func (c *coordinator[K, T]) publish(source EventSource, affectedID string, count int) {
	c.bus.Publish(Event{
		Source:     source,
		Entity:     c.cfg.Name,
		Namespace:  c.namespace,
		AffectedID: affectedID,
		Count:      count,
		At:         c.now(),
	})
}

// isRetryableError reports whether err looks like a transient transport failure
func isRetryableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	retryableErrors := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"too many connections",
		"temporary failure",
		"network is unreachable",
		"status 502",
		"status 503",
		"status 504",
	}
	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}
