// Package venue defines the cached admin entities and the Session that owns
// one cache coordinator per entity collection for a signed-in staff member.
package venue

import (
	"context"
	"errors"
	"strings"

	"github.com/venueops/entitycache/cache"
	"github.com/venueops/entitycache/logger"
	"github.com/venueops/entitycache/remote"
	"github.com/venueops/entitycache/routine"
	"github.com/venueops/entitycache/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sources are the backend list calls of every collection
type Sources struct {
	Attractions cache.Source[Attraction]
	Packages    cache.Source[Package]
	AddOns      cache.Source[AddOn]
	Rooms       cache.Source[Room]
	Customers   cache.Source[Customer]
	Bookings    cache.Source[Booking]
}

// HTTPSources binds every collection to its REST list endpoint
func HTTPSources(client *remote.Client) (Sources, error) {
	var (
		s   Sources
		err error
	)
	if s.Attractions, err = httpSource[Attraction](client, CollectionAttractions); err != nil {
		return Sources{}, err
	}
	if s.Packages, err = httpSource[Package](client, CollectionPackages); err != nil {
		return Sources{}, err
	}
	if s.AddOns, err = httpSource[AddOn](client, CollectionAddOns); err != nil {
		return Sources{}, err
	}
	if s.Rooms, err = httpSource[Room](client, CollectionRooms); err != nil {
		return Sources{}, err
	}
	if s.Customers, err = httpSource[Customer](client, CollectionCustomers); err != nil {
		return Sources{}, err
	}
	if s.Bookings, err = httpSource[Booking](client, CollectionBookings); err != nil {
		return Sources{}, err
	}
	return s, nil
}

func httpSource[T any](client *remote.Client, path string) (cache.Source[T], error) {
	src, err := remote.NewSource[T](client, path)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Session holds the cached collections of one signed-in staff member.
// All coordinators share one event bus and one background runner.
type Session struct {
	ID string

	Attractions cache.Coordinator[int64, Attraction]
	Packages    cache.Coordinator[int64, Package]
	AddOns      cache.Coordinator[int64, AddOn]
	Rooms       cache.Coordinator[int64, Room]
	Customers   cache.Coordinator[int64, Customer]
	Bookings    cache.Coordinator[int64, Booking]

	log     logger.Logger
	bus     *cache.EventBus
	runner  routine.Runner
	syncers map[string]cache.Syncer
}

// NewSession creates the coordinators of session id over st.
// A nil cfg uses DefaultConfig; a nil st disables persistence.
func NewSession(log logger.Logger, id string, cfg *Config, st store.Store, src Sources, opts ...cache.Option) (*Session, error) {
	if id == "" || strings.Contains(id, ":") {
		return nil, ErrInvalidSessionID
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logger.With(log, zap.String("session", id))

	s := &Session{
		ID:      id,
		log:     log,
		bus:     cache.NewEventBus(log),
		runner:  routine.New(log),
		syncers: make(map[string]cache.Syncer, len(Collections)),
	}
	// caller options come last so a clock can be injected
	opts = append([]cache.Option{cache.WithEventBus(s.bus), cache.WithRunner(s.runner)}, opts...)

	var err error
	if s.Attractions, err = newCoordinator(s, cfg, CollectionAttractions, st, src.Attractions, opts); err != nil {
		return nil, err
	}
	if s.Packages, err = newCoordinator(s, cfg, CollectionPackages, st, src.Packages, opts); err != nil {
		return nil, err
	}
	if s.AddOns, err = newCoordinator(s, cfg, CollectionAddOns, st, src.AddOns, opts); err != nil {
		return nil, err
	}
	if s.Rooms, err = newCoordinator(s, cfg, CollectionRooms, st, src.Rooms, opts); err != nil {
		return nil, err
	}
	if s.Customers, err = newCoordinator(s, cfg, CollectionCustomers, st, src.Customers, opts); err != nil {
		return nil, err
	}
	if s.Bookings, err = newCoordinator(s, cfg, CollectionBookings, st, src.Bookings, opts); err != nil {
		return nil, err
	}
	return s, nil
}

func newCoordinator[T cache.Entity[int64]](
	s *Session,
	cfg *Config,
	name string,
	st store.Store,
	src cache.Source[T],
	opts []cache.Option,
) (cache.Coordinator[int64, T], error) {
	if src == nil {
		return nil, ErrCollection(name, ErrMissingSource)
	}
	c, err := cache.New[int64, T](s.log, cfg.collectionConfig(s.ID, name), st, src, opts...)
	if err != nil {
		return nil, ErrCollection(name, err)
	}
	s.syncers[name] = c
	return c, nil
}

// Syncer returns the coordinator of collection name
func (s *Session) Syncer(name string) (cache.Syncer, bool) {
	c, ok := s.syncers[name]
	return c, ok
}

// Syncers returns every coordinator in warmup order
func (s *Session) Syncers() []cache.Syncer {
	out := make([]cache.Syncer, 0, len(Collections))
	for _, name := range Collections {
		out = append(out, s.syncers[name])
	}
	return out
}

// WarmupAll warms every collection concurrently. Each collection fetches at
// most once per session lifetime; the first failure is returned after all
// collections finished.
func (s *Session) WarmupAll(ctx context.Context, filters cache.FilterSet) error {
	var g errgroup.Group
	warm := []func() error{
		func() error { return s.Attractions.Warmup(ctx, filters) },
		func() error { return s.Packages.Warmup(ctx, filters) },
		func() error { return s.AddOns.Warmup(ctx, filters) },
		func() error { return s.Rooms.Warmup(ctx, filters) },
		func() error { return s.Customers.Warmup(ctx, filters) },
		func() error { return s.Bookings.Warmup(ctx, filters) },
	}
	for i, fn := range warm {
		name := Collections[i]
		g.Go(func() error {
			if err := fn(); err != nil {
				return ErrCollection(name, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		s.log.Warn("session warmup incomplete", zap.Error(err))
	} else {
		s.log.Info("session warmed up")
	}
	return err
}

// WarmupCompleted reports whether every collection finished its warmup
func (s *Session) WarmupCompleted() bool {
	return s.Attractions.WarmupCompleted() &&
		s.Packages.WarmupCompleted() &&
		s.AddOns.WarmupCompleted() &&
		s.Rooms.WarmupCompleted() &&
		s.Customers.WarmupCompleted() &&
		s.Bookings.WarmupCompleted()
}

// ClearAll clears every collection, typically on logout.
// All collections are cleared even when one fails.
func (s *Session) ClearAll(ctx context.Context) error {
	clears := []interface{ Clear(context.Context) error }{
		s.Attractions, s.Packages, s.AddOns, s.Rooms, s.Customers, s.Bookings,
	}
	var errs []error
	for i, c := range clears {
		if err := c.Clear(ctx); err != nil {
			errs = append(errs, ErrCollection(Collections[i], err))
		}
	}
	s.log.Info("session cleared", zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}

// Subscribe registers h for the events of every collection of the session
func (s *Session) Subscribe(h cache.Handler) (unsubscribe func()) {
	return s.bus.Subscribe(h)
}

// Events returns the bus shared by the session's coordinators
func (s *Session) Events() *cache.EventBus {
	return s.bus
}

// Wait blocks until background refreshes of every collection have finished
func (s *Session) Wait() {
	s.runner.Wait()
}
