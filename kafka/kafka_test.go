package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/venueops/entitycache/cache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeProducer records produced messages
type fakeProducer struct {
	mu   sync.Mutex
	msgs []*Message
	err  error
}

func (p *fakeProducer) Produce(_ context.Context, msg *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) messages() []*Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Message(nil), p.msgs...)
}

// fakeSyncer records Sync calls
type fakeSyncer struct {
	name    string
	err     error
	mu      sync.Mutex
	filters []cache.FilterSet
}

func (s *fakeSyncer) Name() string                                { return s.name }
func (s *fakeSyncer) IsStale(context.Context, time.Duration) bool { return false }

func (s *fakeSyncer) Sync(_ context.Context, f cache.FilterSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = append(s.filters, f)
	return s.err
}

func (s *fakeSyncer) synced() []cache.FilterSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cache.FilterSet(nil), s.filters...)
}

func TestFeed_PublishesEventsInOrder(t *testing.T) {
	bus := cache.NewEventBus(nil)
	producer := &fakeProducer{}

	feed, err := NewFeed(zap.NewNop(), &FeedConfig{Topic: "cache-events"}, producer, bus)
	if err != nil {
		t.Fatalf("NewFeed failed: %v", err)
	}

	bus.Publish(cache.Event{Source: cache.SourceAPI, Entity: "rooms", Namespace: "s1:rooms", Count: 3})
	bus.Publish(cache.Event{Source: cache.SourceUpdate, Entity: "rooms", Namespace: "s1:rooms", AffectedID: "42", Count: 3})
	bus.Publish(cache.Event{Source: cache.SourceClear, Entity: "bookings", Namespace: "s1:bookings"})

	if err := feed.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	msgs := producer.messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	var e cache.Event
	if err := json.Unmarshal(msgs[1].Value, &e); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if e.Source != cache.SourceUpdate || e.AffectedID != "42" {
		t.Errorf("unexpected event %+v", e)
	}
	if string(msgs[1].Key) != "s1:rooms" {
		t.Errorf("expected namespace key, got %q", msgs[1].Key)
	}
	if *msgs[1].TopicPartition.Topic != "cache-events" || msgs[1].TopicPartition.Partition != PartitionAny {
		t.Errorf("unexpected topic partition %+v", msgs[1].TopicPartition)
	}
	if string(msgs[2].GetHeader(HeaderSource)) != "clear" {
		t.Errorf("expected clear source header, got %q", msgs[2].GetHeader(HeaderSource))
	}
}

func TestFeed_Close(t *testing.T) {
	bus := cache.NewEventBus(nil)
	producer := &fakeProducer{}

	feed, err := NewFeed(nil, &FeedConfig{Topic: "cache-events"}, producer, bus)
	if err != nil {
		t.Fatalf("NewFeed failed: %v", err)
	}
	if bus.Len() != 1 {
		t.Fatalf("expected feed subscription, got %d", bus.Len())
	}

	_ = feed.Close()
	_ = feed.Close()

	if bus.Len() != 0 {
		t.Error("Close must unsubscribe")
	}
	bus.Publish(cache.Event{Source: cache.SourceAPI, Entity: "rooms"})
	if len(producer.messages()) != 0 {
		t.Error("no event may be published after Close")
	}
}

func TestFeed_ProduceFailureIsLogged(t *testing.T) {
	core, recorded := observer.New(zapcore.ErrorLevel)
	bus := cache.NewEventBus(nil)
	producer := &fakeProducer{err: ErrClosed}

	feed, err := NewFeed(zap.New(core), &FeedConfig{Topic: "cache-events"}, producer, bus)
	if err != nil {
		t.Fatalf("NewFeed failed: %v", err)
	}
	bus.Publish(cache.Event{Source: cache.SourceDelete, Entity: "addons"})
	_ = feed.Close()

	logs := recorded.FilterMessage("failed to publish cache event").All()
	if len(logs) != 1 || logs[0].ContextMap()["entity"] != "addons" {
		t.Errorf("expected one publish failure log, got %v", logs)
	}
}

func TestNewFeed_Validation(t *testing.T) {
	bus := cache.NewEventBus(nil)
	if _, err := NewFeed(nil, &FeedConfig{}, &fakeProducer{}, bus); err == nil {
		t.Error("expected missing topic error")
	}
	if _, err := NewFeed(nil, &FeedConfig{Topic: "t"}, nil, bus); err == nil {
		t.Error("expected missing producer error")
	}
	if _, err := NewFeed(nil, &FeedConfig{Topic: "t"}, &fakeProducer{}, nil); err == nil {
		t.Error("expected missing bus error")
	}
}

func TestInvalidationHandler(t *testing.T) {
	ctx := context.Background()
	bookings := &fakeSyncer{name: "bookings"}
	rooms := &fakeSyncer{name: "rooms", err: errors.New("status 503")}
	handler := InvalidationHandler(zap.NewNop(), []cache.Syncer{bookings, rooms})

	err := handler(ctx, &Message{Value: []byte(`{"entity":"bookings","location_id":1,"user_id":7}`)})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	got := bookings.synced()
	if len(got) != 1 || got[0].LocationID != 1 || got[0].UserID != 7 {
		t.Errorf("unexpected sync filters %+v", got)
	}

	err = handler(ctx, &Message{Value: []byte(`{"entity":"rooms"}`)})
	if err == nil || !strings.Contains(err.Error(), "invalidate rooms") {
		t.Errorf("expected refresh error to be returned, got %v", err)
	}
}

func TestInvalidationHandler_DropsBadMessages(t *testing.T) {
	core, recorded := observer.New(zapcore.WarnLevel)
	bookings := &fakeSyncer{name: "bookings"}
	handler := InvalidationHandler(zap.New(core), []cache.Syncer{bookings})

	for _, value := range []string{`not json`, `{}`, `{"entity":"invoices"}`} {
		if err := handler(context.Background(), &Message{Value: []byte(value)}); err != nil {
			t.Errorf("%s: expected message to be acknowledged, got %v", value, err)
		}
	}
	if len(bookings.synced()) != 0 {
		t.Error("no collection may be refreshed")
	}
	if recorded.FilterMessage("dropping malformed invalidation").Len() != 2 {
		t.Error("expected two malformed logs")
	}
	if recorded.FilterMessage("dropping invalidation for unknown collection").Len() != 1 {
		t.Error("expected unknown collection log")
	}
}

func TestRetryHandler(t *testing.T) {
	errTemp := errors.New("temporary")
	calls := 0
	handler := func(context.Context, *Message) error {
		calls++
		if calls < 3 {
			return errTemp
		}
		return nil
	}
	if err := retryHandler(context.Background(), 3, &Message{}, handler); err != nil {
		t.Errorf("expected success on third attempt, got %v", err)
	}

	calls = 0
	if err := retryHandler(context.Background(), 2, &Message{}, handler); !errors.Is(err, errTemp) {
		t.Errorf("expected last error after 2 attempts, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls = 0
	_ = retryHandler(ctx, 5, &Message{}, handler)
	if calls != 1 {
		t.Errorf("cancelled context must stop retries, got %d calls", calls)
	}
}

func TestToMessage(t *testing.T) {
	topic := "invalidations"
	msg := toMessage(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 2, Offset: 17},
		Key:            []byte("k"),
		Value:          []byte(`{"entity":"rooms"}`),
		Headers:        []kafka.Header{{Key: "origin", Value: []byte("backend")}},
	})

	if *msg.TopicPartition.Topic != topic || msg.TopicPartition.Partition != 2 || msg.TopicPartition.Offset != 17 {
		t.Errorf("unexpected topic partition %+v", msg.TopicPartition)
	}
	if string(msg.GetHeader("origin")) != "backend" {
		t.Errorf("unexpected header %q", msg.GetHeader("origin"))
	}
	if msg.GetHeader("missing") != nil {
		t.Error("expected nil for a missing header")
	}
}

func TestConsumerConfig(t *testing.T) {
	cfg := (&ConsumerConfig{
		Brokers: []string{"b1:9092", "b2:9092"},
		GroupID: "entitycache",
		Topics:  []string{"invalidations"},
	}).MergeDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.AutoOffsetReset != "latest" || cfg.MaxRetries != 3 {
		t.Errorf("defaults not merged: %+v", cfg)
	}

	m := cfg.BuildConfigMap()
	if v, _ := m.Get("bootstrap.servers", ""); v != "b1:9092,b2:9092" {
		t.Errorf("unexpected bootstrap.servers %v", v)
	}
	if v, _ := m.Get("auto.commit.interval.ms", nil); v != nil {
		t.Error("auto commit interval must only be set with auto commit")
	}

	bad := *cfg
	bad.AutoOffsetReset = "newest"
	if err := bad.Validate(); err == nil {
		t.Error("expected invalid auto_offset_reset")
	}
	bad = *cfg
	bad.Topics = nil
	if err := bad.Validate(); err == nil {
		t.Error("expected missing topics")
	}
}

func TestProducerConfig(t *testing.T) {
	cfg := (&ProducerConfig{Brokers: []string{"b1:9092"}, ClientID: "venuecache"}).MergeDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	m := cfg.BuildConfigMap()
	if v, _ := m.Get("client.id", ""); v != "venuecache" {
		t.Errorf("unexpected client.id %v", v)
	}
	if v, _ := m.Get("acks", ""); v != "all" {
		t.Errorf("unexpected acks %v", v)
	}

	cfg.Acks = "most"
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid acks")
	}
	if err := (&ProducerConfig{}).Validate(); err == nil {
		t.Error("expected missing brokers")
	}
}

func TestMissingTopics(t *testing.T) {
	md := &kafka.Metadata{Topics: map[string]kafka.TopicMetadata{
		"venue.invalidations": {Topic: "venue.invalidations"},
		"venue.deleted":       {Topic: "venue.deleted", Error: kafka.NewError(kafka.ErrUnknownTopicOrPart, "unknown", false)},
	}}

	got := missingTopics(md, []string{"venue.invalidations", "venue.deleted", "venue.typo", "^venue\\..*"})
	if len(got) != 2 || got[0] != "venue.deleted" || got[1] != "venue.typo" {
		t.Errorf("unexpected missing topics %v", got)
	}
	if got := missingTopics(md, nil); len(got) != 0 {
		t.Errorf("no topics requested, got %v", got)
	}
}
