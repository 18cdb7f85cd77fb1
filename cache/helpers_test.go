package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/venueops/entitycache/store"
	"go.uber.org/zap"
)

type room struct {
	ID         int64  `json:"id" expr:"id"`
	Name       string `json:"name" expr:"name"`
	LocationID int64  `json:"location_id" expr:"location_id"`
	Active     bool   `json:"active" expr:"active"`
	Capacity   int    `json:"capacity" expr:"capacity"`
}

func (r room) EntityID() int64        { return r.ID }
func (r room) ScopeLocationID() int64 { return r.LocationID }
func (r room) ScopeUserID() int64     { return 0 }
func (r room) IsActive() bool         { return r.Active }
func (r room) SearchFields() []string { return []string{r.Name} }

// fakeSource counts List calls and can hold them until released
type fakeSource struct {
	mu      sync.Mutex
	items   []room
	errs    []error // consumed one per call before items are returned
	block   chan struct{}
	started chan struct{}
	calls   atomic.Int32
	filters []FilterSet
}

func newFakeSource(items ...room) *fakeSource {
	return &fakeSource{items: items, started: make(chan struct{}, 64)}
}

func (s *fakeSource) List(ctx context.Context, filters FilterSet, _ int) (Page[room], error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.filters = append(s.filters, filters)
	block := s.block
	s.mu.Unlock()

	s.started <- struct{}{}
	if block != nil {
		<-block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return Page[room]{}, err
		}
	}
	items := append([]room(nil), s.items...)
	return Page[room]{
		Items:      items,
		Pagination: &Pagination{Page: 1, PageSize: len(items), Total: len(items)},
	}, nil
}

func (s *fakeSource) setItems(items ...room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

func (s *fakeSource) failNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
}

// hold makes List block until the returned func is called
func (s *fakeSource) hold() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.block = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.block = nil
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *fakeSource) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-s.started:
	case <-time.After(2 * time.Second):
		t.Fatal("source was not called")
	}
}

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore fails every write with err and reads from an embedded memory store
type failingStore struct {
	*store.Memory
	err error
}

func (s *failingStore) PutAll(context.Context, string, map[string][]byte) error {
	return s.err
}

func (s *failingStore) DeleteNamespace(context.Context, string) (bool, error) {
	return false, s.err
}

var errBoom = errors.New("boom")

func newTestCoordinator(t *testing.T, st store.Store, src Source[room], opts ...Option) Coordinator[int64, room] {
	t.Helper()
	return newTestCoordinatorWithConfig(t, &Config{Name: "rooms", Prefix: "session-1"}, st, src, opts...)
}

func newTestCoordinatorWithConfig(t *testing.T, cfg *Config, st store.Store, src Source[room], opts ...Option) Coordinator[int64, room] {
	t.Helper()
	c, err := New[int64, room](zap.NewNop(), cfg, st, src, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(c.Wait)
	return c
}

func ids(items []room) []int64 {
	out := make([]int64, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
