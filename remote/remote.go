// Package remote lists entities from the admin backend REST API.
//
// A Client holds the HTTP connection pool and the common headers; a Source
// binds it to one list endpoint and implements cache.Source.
package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/venueops/entitycache/cache"
	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
)

// maxErrorBody caps how much of an error response is logged
const maxErrorBody = 512

// Client performs requests against the backend
type Client struct {
	log    logger.Logger
	cfg    Config
	client *http.Client
}

// NewClient creates a Client from cfg
func NewClient(log logger.Logger, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	merged := *cfg
	merged.MergeDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrGlobal(log)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = merged.MaxIdleConns
	transport.MaxIdleConnsPerHost = merged.MaxIdleConns

	return &Client{
		log: log,
		cfg: merged,
		client: &http.Client{
			Timeout:   merged.Timeout,
			Transport: transport,
		},
	}, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// listResponse is the envelope of every list endpoint
type listResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination *cache.Pagination `json:"pagination"`
}

// Source lists one entity collection, e.g. path "rooms"
type Source[T any] struct {
	client *Client
	path   string
}

// NewSource binds client to the list endpoint at path
func NewSource[T any](client *Client, path string) (*Source[T], error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if path == "" {
		return nil, ErrInvalidConfig("path is required")
	}
	return &Source[T]{client: client, path: path}, nil
}

// List calls GET <base>/<path> with the filters as query parameters
func (s *Source[T]) List(ctx context.Context, filters cache.FilterSet, pageSizeHint int) (cache.Page[T], error) {
	start := time.Now()
	endpoint := s.client.cfg.BaseURL + "/" + s.path + "?" + encodeQuery(filters, pageSizeHint).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return cache.Page[T]{}, ErrRequest(s.path, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.client.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.client.Do(req)
	if err != nil {
		return cache.Page[T]{}, ErrRequest(s.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		s.client.log.Warn("backend list request rejected",
			zap.String("path", s.path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return cache.Page[T]{}, ErrStatus(s.path, resp.StatusCode)
	}

	var out listResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return cache.Page[T]{}, ErrDecode(s.path, err)
	}
	if out.Data == nil {
		out.Data = []T{}
	}

	s.client.log.Debug("backend list request completed",
		zap.String("path", s.path),
		zap.Int("count", len(out.Data)),
		zap.Duration("duration", time.Since(start)),
	)
	return cache.Page[T]{Items: out.Data, Pagination: out.Pagination}, nil
}

// encodeQuery renders the non-zero filters. The explicit page size wins
// over the hint.
func encodeQuery(f cache.FilterSet, pageSizeHint int) url.Values {
	q := url.Values{}
	if f.LocationID != 0 {
		q.Set("location_id", strconv.FormatInt(f.LocationID, 10))
	}
	if f.UserID != 0 {
		q.Set("user_id", strconv.FormatInt(f.UserID, 10))
	}
	if f.Active != nil {
		q.Set("active", strconv.FormatBool(*f.Active))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	switch {
	case f.PageSize > 0:
		q.Set("page_size", strconv.Itoa(f.PageSize))
	case pageSizeHint > 0:
		q.Set("page_size", strconv.Itoa(pageSizeHint))
	}
	return q
}
