package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/venueops/entitycache/cache"
	"github.com/venueops/entitycache/venue"
)

// collection is the untyped view of one coordinator used by the commands
type collection interface {
	list(ctx context.Context, filters cache.FilterSet, criteria cache.Criteria, force bool) ([]any, error)
	get(ctx context.Context, id int64) (any, bool)
	metadata(ctx context.Context) (cache.Metadata, bool)
}

type typed[T cache.Entity[int64]] struct {
	c cache.Coordinator[int64, T]
}

func (t typed[T]) list(ctx context.Context, filters cache.FilterSet, criteria cache.Criteria, force bool) ([]any, error) {
	var opts []cache.GetOption
	if force {
		opts = append(opts, cache.WithForceRefresh())
	}
	// a failed refresh still leaves the cached items to filter
	_, refreshErr := t.c.Get(ctx, filters, opts...)
	if refreshErr != nil && !errors.Is(refreshErr, cache.ErrRefresh) {
		return nil, refreshErr
	}

	items, err := t.c.FilterLocal(ctx, criteria)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out, refreshErr
}

func (t typed[T]) get(ctx context.Context, id int64) (any, bool) {
	return t.c.GetOne(ctx, id)
}

func (t typed[T]) metadata(ctx context.Context) (cache.Metadata, bool) {
	return t.c.Metadata(ctx)
}

func collections(s *venue.Session) map[string]collection {
	return map[string]collection{
		venue.CollectionAttractions: typed[venue.Attraction]{s.Attractions},
		venue.CollectionPackages:    typed[venue.Package]{s.Packages},
		venue.CollectionAddOns:      typed[venue.AddOn]{s.AddOns},
		venue.CollectionRooms:       typed[venue.Room]{s.Rooms},
		venue.CollectionCustomers:   typed[venue.Customer]{s.Customers},
		venue.CollectionBookings:    typed[venue.Booking]{s.Bookings},
	}
}

func lookup(s *venue.Session, name string) (collection, error) {
	if !slices.Contains(venue.Collections, name) {
		return nil, fmt.Errorf("unknown collection %q, expected one of %v", name, venue.Collections)
	}
	return collections(s)[name], nil
}

// label is the first non-empty search field of item, or "-"
func label(item any) string {
	if s, ok := item.(cache.Searchable); ok {
		for _, f := range s.SearchFields() {
			if f != "" {
				return f
			}
		}
	}
	return "-"
}

func entityID(item any) int64 {
	if e, ok := item.(cache.Entity[int64]); ok {
		return e.EntityID()
	}
	return 0
}
