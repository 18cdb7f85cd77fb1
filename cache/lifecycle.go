package cache

import (
	"context"
	"errors"

	"github.com/venueops/entitycache/store"
	"go.uber.org/zap"
)

func (c *coordinator[K, T]) Warmup(ctx context.Context, filters FilterSet) error {
	c.warmupMu.Lock()
	defer c.warmupMu.Unlock()

	if c.warmupDone.Load() {
		return nil
	}
	gen := c.generation.Load()

	if entry := c.loadEntry(ctx); entry != nil && len(entry.Items) > 0 {
		c.logger.Debug("warmup skipped, cache already populated", zap.Int("count", len(entry.Items)))
		c.markWarm(gen)
		return nil
	}

	items, flightGen, err := c.refreshGen(ctx, filters)
	// a failed warmup is not repeated either, the staleness path takes over.
	// A flight started before the last Clear stored nothing and does not count.
	if flightGen == gen {
		c.markWarm(gen)
	}
	if err != nil {
		c.logger.Warn("warmup refresh failed", zap.Error(err))
		return err
	}
	c.logger.Info("cache warmed up", zap.Int("count", len(items)))
	return nil
}

// markWarm sets the warmup flag unless a Clear ran since gen was read
func (c *coordinator[K, T]) markWarm(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation.Load() == gen {
		c.warmupDone.Store(true)
	}
}

func (c *coordinator[K, T]) WarmupCompleted() bool {
	return c.warmupDone.Load()
}

func (c *coordinator[K, T]) Clear(ctx context.Context) error {
	c.mu.Lock()
	// a refresh in flight keeps its single-flight key; the bump stops it
	// from storing, and callers joining it get its items unstored
	c.generation.Add(1)
	c.warmupDone.Store(false)
	removed, err := c.store.DeleteNamespace(ctx, c.namespace)
	c.mu.Unlock()

	c.publish(SourceClear, "", 0)

	if err != nil && !errors.Is(err, store.ErrUnavailable) {
		c.logger.Error("failed to clear cache", zap.String("namespace", c.namespace), zap.Error(err))
		return ErrStore("clear", err)
	}
	c.logger.Info("cache cleared", zap.Bool("removed", removed))
	return nil
}
