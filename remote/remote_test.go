package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/venueops/entitycache/cache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type room struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (r room) EntityID() int64 { return r.ID }

func newTestSource(t *testing.T, url string, headers map[string]string) *Source[room] {
	t.Helper()
	client, err := NewClient(zap.NewNop(), &Config{BaseURL: url, Headers: headers})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	src, err := NewSource[room](client, "rooms")
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	return src
}

func TestSource_List(t *testing.T) {
	requests := make(chan *http.Request, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rooms" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		requests <- r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"Hall"},{"id":2,"name":"Loft"}],"pagination":{"page":1,"page_size":1000,"total":2}}`))
	}))
	defer server.Close()

	src := newTestSource(t, server.URL+"/api/", map[string]string{"Authorization": "Bearer token"})
	active := true
	page, err := src.List(context.Background(), cache.FilterSet{LocationID: 1, Active: &active, Search: "main hall"}, 1000)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(page.Items) != 2 || page.Items[1].Name != "Loft" {
		t.Errorf("unexpected items %+v", page.Items)
	}
	if page.Pagination == nil || page.Pagination.Total != 2 {
		t.Errorf("unexpected pagination %+v", page.Pagination)
	}
	r := <-requests
	if r.URL.RawQuery != "active=true&location_id=1&page_size=1000&search=main+hall" {
		t.Errorf("unexpected query %q", r.URL.RawQuery)
	}
	if r.Header.Get("Authorization") != "Bearer token" {
		t.Errorf("expected configured header, got %q", r.Header.Get("Authorization"))
	}
}

func TestSource_ListEmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":null}`))
	}))
	defer server.Close()

	page, err := newTestSource(t, server.URL, nil).List(context.Background(), cache.FilterSet{}, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Items == nil || len(page.Items) != 0 {
		t.Errorf("expected empty non-nil items, got %v", page.Items)
	}
}

func TestSource_ListErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream down", http.StatusServiceUnavailable)
			},
			check: func(t *testing.T, err error) {
				if !strings.Contains(err.Error(), "status 503") {
					t.Errorf("expected status in error, got %v", err)
				}
			},
		},
		{
			name: "bad request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			check: func(t *testing.T, err error) {
				if !strings.Contains(err.Error(), "status 400") {
					t.Errorf("expected status in error, got %v", err)
				}
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data":[`))
			},
			check: func(t *testing.T, err error) {
				if !strings.Contains(err.Error(), "decode rooms") {
					t.Errorf("expected decode error, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := newTestSource(t, server.URL, nil).List(context.Background(), cache.FilterSet{}, 10)
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestSource_ListLogsRejectedBody(t *testing.T) {
	core, recorded := observer.New(zapcore.WarnLevel)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such location", http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewClient(zap.New(core), &Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	src, _ := NewSource[room](client, "rooms")
	if _, err := src.List(context.Background(), cache.FilterSet{}, 0); err == nil {
		t.Fatal("expected error")
	}

	entries := recorded.FilterMessage("backend list request rejected").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(entries))
	}
	if !strings.Contains(entries[0].ContextMap()["body"].(string), "no such location") {
		t.Errorf("expected body in log, got %v", entries[0].ContextMap())
	}
}

func TestSource_ListHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestSource(t, server.URL, nil).List(ctx, cache.FilterSet{}, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestSource_WithCoordinator(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":[{"id":7,"name":"Cellar"}]}`))
	}))
	defer server.Close()

	c, err := cache.New[int64, room](zap.NewNop(), &cache.Config{Name: "rooms"}, nil, newTestSource(t, server.URL, nil))
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	items, err := c.Get(context.Background(), cache.FilterSet{})
	if err != nil || len(items) != 1 || items[0].ID != 7 {
		t.Fatalf("unexpected Get result %v %v", items, err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 request, got %d", calls.Load())
	}
}

func TestEncodeQuery(t *testing.T) {
	tests := []struct {
		name    string
		filters cache.FilterSet
		hint    int
		want    string
	}{
		{name: "empty", want: ""},
		{name: "hint", hint: 500, want: "page_size=500"},
		{name: "explicit page size wins", filters: cache.FilterSet{Page: 2, PageSize: 50}, hint: 500, want: "page=2&page_size=50"},
		{name: "user", filters: cache.FilterSet{UserID: 9}, want: "user_id=9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeQuery(tt.filters, tt.hint).Encode(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{BaseURL: "https://admin.example.com/api"}},
		{name: "missing url", cfg: Config{}, wantErr: true},
		{name: "bad scheme", cfg: Config{BaseURL: "ftp://x"}, wantErr: true},
		{name: "negative idle conns", cfg: Config{BaseURL: "http://x", MaxIdleConns: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.MergeDefaults().Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	cfg := (&Config{BaseURL: "http://x/api/"}).MergeDefaults()
	if cfg.BaseURL != "http://x/api" || cfg.Timeout != 30*time.Second {
		t.Errorf("unexpected merged config %+v", cfg)
	}
	if _, err := NewSource[room](nil, "rooms"); !errors.Is(err, ErrNilClient) {
		t.Errorf("expected ErrNilClient, got %v", err)
	}
}
