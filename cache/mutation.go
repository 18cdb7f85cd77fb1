package cache

import (
	"context"
	"fmt"
	"slices"
)

func (c *coordinator[K, T]) GetOne(ctx context.Context, id K) (T, bool) {
	var zero T
	entry := c.loadEntry(ctx)
	if entry == nil {
		return zero, false
	}
	i := indexOf(entry.Items, id)
	if i < 0 {
		return zero, false
	}
	return entry.Items[i], true
}

func (c *coordinator[K, T]) FilterLocal(ctx context.Context, criteria Criteria) ([]T, error) {
	m, err := compileCriteria[T](criteria)
	if err != nil {
		return nil, err
	}
	entry := c.loadEntry(ctx)
	if entry == nil {
		return []T{}, nil
	}

	out := make([]T, 0, len(entry.Items))
	for _, item := range entry.Items {
		ok, err := m.match(item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (c *coordinator[K, T]) Upsert(ctx context.Context, entity T) error {
	id := entity.EntityID()

	c.mu.Lock()
	entry, meta := c.loadForUpdate(ctx)
	source := SourceAdd
	if i := indexOf(entry.Items, id); i >= 0 {
		entry.Items[i] = entity
		source = SourceUpdate
	} else {
		entry.Items = append(entry.Items, entity)
	}
	written, err := c.persistLocked(ctx, entry, meta, scopeOf(meta))
	c.mu.Unlock()

	if written {
		c.publish(source, formatID(id), len(entry.Items))
	}
	return err
}

func (c *coordinator[K, T]) Remove(ctx context.Context, id K) error {
	c.mu.Lock()
	entry, meta := c.loadForUpdate(ctx)
	entry.Items = slices.DeleteFunc(entry.Items, func(item T) bool {
		return item.EntityID() == id
	})
	written, err := c.persistLocked(ctx, entry, meta, scopeOf(meta))
	c.mu.Unlock()

	if written {
		c.publish(SourceDelete, formatID(id), len(entry.Items))
	}
	return err
}

// loadForUpdate returns the current entry, or a new empty one
func (c *coordinator[K, T]) loadForUpdate(ctx context.Context) (*Entry[T], *Metadata) {
	entry, meta := c.load(ctx)
	if entry == nil {
		entry = &Entry[T]{Items: []T{}}
	}
	return entry, meta
}

func indexOf[K comparable, T Entity[K]](items []T, id K) int {
	return slices.IndexFunc(items, func(item T) bool {
		return item.EntityID() == id
	})
}

func scopeOf(meta *Metadata) *Scope {
	if meta == nil {
		return nil
	}
	return meta.Scope
}

func formatID[K comparable](id K) string {
	return fmt.Sprint(id)
}
