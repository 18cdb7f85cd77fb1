package cron

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/venueops/entitycache/cache"
	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
)

// RevalidateChain is the name of the chain added by NewRevalidator
const RevalidateChain = "revalidate"

// StaleKey is the SharedData key under which ScanTask stores the names of
// the stale collections, as []string
const StaleKey = "stale_collections"

// ScanTask records which collections are stale
type ScanTask struct {
	Syncers []cache.Syncer
	// MaxAge overrides each collection's configured max age when > 0
	MaxAge time.Duration
}

// Name returns the task name
func (t *ScanTask) Name() string { return "scan-stale" }

// Run stores the stale collection names in the chain's SharedData
func (t *ScanTask) Run(ctx context.Context) error {
	stale := make([]string, 0, len(t.Syncers))
	for _, s := range t.Syncers {
		if s.IsStale(ctx, t.MaxAge) {
			stale = append(stale, s.Name())
		}
	}
	if shared := GetSharedData(ctx); shared != nil {
		shared.Set(StaleKey, stale)
	}
	return nil
}

// RefreshTask refreshes the collections found by ScanTask.
// Without a preceding scan it checks staleness itself.
type RefreshTask struct {
	Syncers []cache.Syncer
	Filters cache.FilterSet
	MaxAge  time.Duration
	Logger  logger.Logger
}

// Name returns the task name
func (t *RefreshTask) Name() string { return "refresh-stale" }

// Run refreshes every stale collection. All are attempted; the joined
// errors of the failed ones are returned.
func (t *RefreshTask) Run(ctx context.Context) error {
	log := logger.OrGlobal(t.Logger)

	targets, scanned := Lookup[[]string](GetSharedData(ctx), StaleKey)
	isTarget := func(s cache.Syncer) bool {
		if !scanned {
			return s.IsStale(ctx, t.MaxAge)
		}
		return slices.Contains(targets, s.Name())
	}

	var errs []error
	refreshed := 0
	for _, s := range t.Syncers {
		if !isTarget(s) {
			continue
		}
		if err := s.Sync(ctx, t.Filters); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		refreshed++
	}

	log.Debug("stale collections revalidated",
		zap.Int("refreshed", refreshed),
		zap.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

// NewRevalidateChain returns the chain that scans syncers for staleness and
// refreshes the stale ones with filters
func NewRevalidateChain(log logger.Logger, cfg *Config, syncers []cache.Syncer, filters cache.FilterSet) Chain {
	return Chain{
		Name: RevalidateChain,
		Spec: cfg.Spec,
		Tasks: []Task{
			&ScanTask{Syncers: syncers, MaxAge: cfg.MaxAge},
			&RefreshTask{Syncers: syncers, Filters: filters, MaxAge: cfg.MaxAge, Logger: log},
		},
	}
}

// NewRevalidator creates a cron manager with the revalidation chain added.
// The caller starts and closes it.
func NewRevalidator(log logger.Logger, cfg *Config, syncers []cache.Syncer, filters cache.FilterSet) (Cron, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	merged := *cfg
	merged.MergeDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	c := NewCron(log, WithTimeout(merged.Timeout))
	if err := c.AddChain(NewRevalidateChain(log, &merged, syncers, filters)); err != nil {
		return nil, err
	}
	return c, nil
}
