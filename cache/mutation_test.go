package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/venueops/entitycache/store"
)

func TestCoordinator_Upsert(t *testing.T) {
	src := newFakeSource(room{ID: 1, Name: "Hall"}, room{ID: 2, Name: "Loft"})
	c := newTestCoordinator(t, store.NewMemory(), src)
	ctx := context.Background()

	if _, err := c.Get(ctx, FilterSet{}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	var events []Event
	c.Subscribe(func(e Event) { events = append(events, e) })

	if err := c.Upsert(ctx, room{ID: 1, Name: "Great Hall"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := c.Upsert(ctx, room{ID: 3, Name: "Cellar"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	items, err := c.Get(ctx, FilterSet{})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !slices.Equal(ids(items), []int64{1, 2, 3}) {
		t.Errorf("update must keep position and add must append, got %v", ids(items))
	}
	if items[0].Name != "Great Hall" {
		t.Errorf("expected replaced item, got %q", items[0].Name)
	}
	if src.calls.Load() != 1 {
		t.Errorf("mutations must not fetch, got %d fetches", src.calls.Load())
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Source != SourceUpdate || events[0].AffectedID != "1" {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[1].Source != SourceAdd || events[1].AffectedID != "3" || events[1].Count != 3 {
		t.Errorf("unexpected second event %+v", events[1])
	}
}

func TestCoordinator_UpsertWithoutEntry(t *testing.T) {
	src := newFakeSource()
	c := newTestCoordinator(t, store.NewMemory(), src)
	ctx := context.Background()

	if err := c.Upsert(ctx, room{ID: 9}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	got, ok := c.GetOne(ctx, 9)
	if !ok || got.ID != 9 {
		t.Fatalf("expected upserted item, got %+v ok=%v", got, ok)
	}
	meta, ok := c.Metadata(ctx)
	if !ok || meta.TotalRecords != 1 {
		t.Errorf("expected metadata for the new entry, got %+v ok=%v", meta, ok)
	}
	if src.calls.Load() != 0 {
		t.Errorf("expected no fetch, got %d", src.calls.Load())
	}
}

func TestCoordinator_Remove(t *testing.T) {
	src := newFakeSource(room{ID: 1}, room{ID: 2}, room{ID: 3})
	c := newTestCoordinator(t, store.NewMemory(), src)
	ctx := context.Background()

	if _, err := c.Get(ctx, FilterSet{LocationID: 4}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	var events []Event
	c.Subscribe(func(e Event) { events = append(events, e) })

	if err := c.Remove(ctx, 2); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	// removing an unknown id still rewrites the entry
	if err := c.Remove(ctx, 99); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	items, _ := c.Get(ctx, FilterSet{})
	if !slices.Equal(ids(items), []int64{1, 3}) {
		t.Errorf("unexpected items %v", ids(items))
	}
	if _, ok := c.GetOne(ctx, 2); ok {
		t.Error("removed item still found")
	}
	meta, _ := c.Metadata(ctx)
	if meta.Scope == nil || meta.Scope.LocationID != 4 {
		t.Errorf("mutations must keep the entry scope, got %+v", meta.Scope)
	}
	if len(events) != 2 || events[0].Source != SourceDelete || events[0].AffectedID != "2" || events[0].Count != 2 {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestCoordinator_GetOne(t *testing.T) {
	src := newFakeSource(room{ID: 1, Name: "Hall"})
	c := newTestCoordinator(t, store.NewMemory(), src)
	ctx := context.Background()

	if _, ok := c.GetOne(ctx, 1); ok {
		t.Error("GetOne must not fetch on a miss")
	}
	if _, err := c.Get(ctx, FilterSet{}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got, ok := c.GetOne(ctx, 1)
	if !ok || got.Name != "Hall" {
		t.Errorf("unexpected GetOne result %+v ok=%v", got, ok)
	}
	if _, ok := c.GetOne(ctx, 2); ok {
		t.Error("unknown id found")
	}
}

func TestCoordinator_ConcurrentMutations(t *testing.T) {
	c := newTestCoordinator(t, store.NewMemory(), newFakeSource())
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := c.Upsert(ctx, room{ID: id, Name: fmt.Sprintf("room-%d", id)}); err != nil {
				t.Errorf("Upsert %d failed: %v", id, err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	items, err := c.FilterLocal(ctx, Criteria{})
	if err != nil {
		t.Fatalf("FilterLocal failed: %v", err)
	}
	if len(items) != n {
		t.Errorf("expected %d items, lost updates left %d", n, len(items))
	}
	meta, _ := c.Metadata(ctx)
	if meta.Version != n-1 {
		t.Errorf("expected version %d, got %d", n-1, meta.Version)
	}
}

func TestCoordinator_FilterLocal(t *testing.T) {
	active, inactive := true, false
	src := newFakeSource(
		room{ID: 1, Name: "Main Hall", LocationID: 1, Active: true, Capacity: 120},
		room{ID: 2, Name: "Party Room", LocationID: 1, Active: false, Capacity: 12},
		room{ID: 3, Name: "Main Arena", LocationID: 2, Active: true, Capacity: 40},
	)
	c := newTestCoordinator(t, store.NewMemory(), src)
	ctx := context.Background()

	got, err := c.FilterLocal(ctx, Criteria{})
	if err != nil || len(got) != 0 {
		t.Fatalf("FilterLocal on empty cache: %v %v", ids(got), err)
	}
	if _, err := c.Get(ctx, FilterSet{}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	tests := []struct {
		name     string
		criteria Criteria
		want     []int64
	}{
		{name: "everything", criteria: Criteria{}, want: []int64{1, 2, 3}},
		{name: "location", criteria: Criteria{LocationID: 1}, want: []int64{1, 2}},
		{name: "user scope excludes all", criteria: Criteria{UserID: 5}, want: []int64{}},
		{name: "active", criteria: Criteria{Active: &active}, want: []int64{1, 3}},
		{name: "inactive", criteria: Criteria{Active: &inactive}, want: []int64{2}},
		{name: "search is case insensitive", criteria: Criteria{Search: "  main "}, want: []int64{1, 3}},
		{name: "combined", criteria: Criteria{LocationID: 1, Search: "main"}, want: []int64{1}},
		{name: "expression", criteria: Criteria{Expr: `capacity >= 40 && name startsWith "Main"`}, want: []int64{1, 3}},
		{name: "expression with criteria", criteria: Criteria{Active: &active, Expr: `location_id == 2`}, want: []int64{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.FilterLocal(ctx, tt.criteria)
			if err != nil {
				t.Fatalf("FilterLocal failed: %v", err)
			}
			if !slices.Equal(ids(got), tt.want) {
				t.Errorf("got %v, want %v", ids(got), tt.want)
			}
		})
	}

	if src.calls.Load() != 1 {
		t.Errorf("FilterLocal must not fetch, got %d fetches", src.calls.Load())
	}
}

func TestCoordinator_FilterLocalInvalidExpr(t *testing.T) {
	c := newTestCoordinator(t, store.NewMemory(), newFakeSource(room{ID: 1}))
	ctx := context.Background()

	tests := []string{
		`capacity >=`,
		`unknown_field == 1`,
		`capacity + 1`,
	}
	for _, e := range tests {
		_, err := c.FilterLocal(ctx, Criteria{Expr: e})
		if err == nil {
			t.Errorf("expected error for %q", e)
		}
	}

	var target error = ErrInvalidExpr("x", errBoom)
	if !errors.Is(target, errBoom) {
		t.Error("ErrInvalidExpr must wrap its cause")
	}
}
