package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

// runStoreContract exercises the behaviour every backend must share
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, ok, err := s.Get(ctx, "rooms", "data")
		if err != nil || ok {
			t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("put and get", func(t *testing.T) {
		if err := s.Put(ctx, "rooms", "data", []byte(`[1,2]`)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		v, ok, err := s.Get(ctx, "rooms", "data")
		if err != nil || !ok || string(v) != `[1,2]` {
			t.Fatalf("unexpected get: %q ok=%v err=%v", v, ok, err)
		}
	})

	t.Run("put all overwrites", func(t *testing.T) {
		err := s.PutAll(ctx, "rooms", map[string][]byte{
			"data": []byte(`[3]`),
			"meta": []byte(`{"total_records":1}`),
		})
		if err != nil {
			t.Fatalf("PutAll failed: %v", err)
		}
		v, _, _ := s.Get(ctx, "rooms", "data")
		m, _, _ := s.Get(ctx, "rooms", "meta")
		if string(v) != `[3]` || string(m) != `{"total_records":1}` {
			t.Fatalf("unexpected values data=%q meta=%q", v, m)
		}
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		if err := s.Put(ctx, "bookings", "data", []byte(`[]`)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		removed, err := s.DeleteNamespace(ctx, "rooms")
		if err != nil || !removed {
			t.Fatalf("expected rooms removed, got %v err=%v", removed, err)
		}
		if _, ok, _ := s.Get(ctx, "rooms", "meta"); ok {
			t.Error("rooms meta should be gone")
		}
		if _, ok, _ := s.Get(ctx, "bookings", "data"); !ok {
			t.Error("bookings should survive deleting rooms")
		}
	})

	t.Run("delete missing namespace", func(t *testing.T) {
		removed, err := s.DeleteNamespace(ctx, "rooms")
		if err != nil || removed {
			t.Fatalf("expected no-op delete, got %v err=%v", removed, err)
		}
	})
}

func TestMemory_Contract(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	runStoreContract(t, s)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	in := []byte("abc")
	_ = s.Put(ctx, "ns", "k", in)
	in[0] = 'x'

	out, _, _ := s.Get(ctx, "ns", "k")
	if string(out) != "abc" {
		t.Fatalf("stored value was aliased: %q", out)
	}
	out[0] = 'y'
	again, _, _ := s.Get(ctx, "ns", "k")
	if string(again) != "abc" {
		t.Fatalf("returned value was aliased: %q", again)
	}
}

func TestMemory_Closed(t *testing.T) {
	s := NewMemory()
	_ = s.Close()
	if _, _, err := s.Get(context.Background(), "ns", "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSQLite_Contract(t *testing.T) {
	s, err := NewSQLite(zap.NewNop(), &SQLiteConfig{Path: filepath.Join(t.TempDir(), "cache.db")})
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer s.Close()
	runStoreContract(t, s)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := NewSQLite(zap.NewNop(), &SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	if err := s.Put(ctx, "customers", "data", []byte(`[{"id":1}]`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	_ = s.Close()

	s, err = NewSQLite(zap.NewNop(), &SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	v, ok, err := s.Get(ctx, "customers", "data")
	if err != nil || !ok || string(v) != `[{"id":1}]` {
		t.Fatalf("expected value to persist, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestSQLiteConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *SQLiteConfig
		wantErr bool
	}{
		{"valid", &SQLiteConfig{Path: ":memory:"}, false},
		{"empty path", &SQLiteConfig{}, true},
		{"negative busy timeout", &SQLiteConfig{Path: "x.db", BusyTimeout: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUnavailable(t *testing.T) {
	var s Store = Unavailable{}
	ctx := context.Background()
	if _, _, err := s.Get(ctx, "ns", "k"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get: expected ErrUnavailable, got %v", err)
	}
	if err := s.PutAll(ctx, "ns", nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("PutAll: expected ErrUnavailable, got %v", err)
	}
	if _, err := s.DeleteNamespace(ctx, "ns"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("DeleteNamespace: expected ErrUnavailable, got %v", err)
	}
}

func TestGorm_NilDB(t *testing.T) {
	if _, err := NewGorm(zap.NewNop(), nil, false); err == nil {
		t.Error("expected error for nil db")
	}
}
