package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/smallnest/chanx"
	"github.com/venueops/entitycache/cache"
	"github.com/venueops/entitycache/logger"
	"github.com/venueops/entitycache/routine"
	"go.uber.org/zap"
)

// HeaderSource carries the cache event source (api, add, update, delete, clear)
const HeaderSource = "source"

// Feed publishes cache events to a topic. Events are buffered in an
// unbounded channel so a slow broker never blocks a cache mutation.
type Feed struct {
	log      logger.Logger
	producer Producer
	topic    string
	runner   routine.Runner

	events *chanx.UnboundedChan[cache.Event]
	cancel context.CancelFunc

	mu          sync.Mutex
	closed      bool
	unsubscribe func()
}

// NewFeed subscribes to bus and starts publishing its events with producer.
// The feed does not own producer.
func NewFeed(log logger.Logger, cfg *FeedConfig, producer Producer, bus *cache.EventBus) (*Feed, error) {
	log = logger.OrGlobal(log)
	if cfg == nil {
		cfg = DefaultFeedConfig()
	}
	cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if producer == nil || bus == nil {
		return nil, ErrInvalidConfig("producer and event bus are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Feed{
		log:      log,
		producer: producer,
		topic:    cfg.Topic,
		runner:   routine.New(log),
		events:   chanx.NewUnboundedChan[cache.Event](ctx, cfg.BufferSize),
		cancel:   cancel,
	}
	f.runner.GoNamed("kafka-feed", f.publishLoop)
	f.unsubscribe = bus.Subscribe(f.enqueue)

	log.Info("cache change feed started", zap.String("topic", cfg.Topic))
	return f, nil
}

func (f *Feed) enqueue(e cache.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events.In <- e
}

func (f *Feed) publishLoop() {
	for e := range f.events.Out {
		if err := f.publish(context.Background(), e); err != nil {
			f.log.Error("failed to publish cache event",
				zap.String("entity", e.Entity),
				zap.String("source", string(e.Source)),
				zap.Error(err),
			)
		}
	}
}

func (f *Feed) publish(ctx context.Context, e cache.Event) error {
	msg, err := eventMessage(f.topic, e)
	if err != nil {
		return err
	}
	return f.producer.Produce(ctx, msg)
}

// eventMessage encodes e as JSON, keyed by namespace so one collection's
// events stay ordered within a partition
func eventMessage(topic string, e cache.Event) (*Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return &Message{
		Value: value,
		Key:   []byte(e.Namespace),
		TopicPartition: TopicPartition{
			Topic:     &topic,
			Partition: PartitionAny,
		},
		Headers: []Header{{Key: HeaderSource, Value: []byte(e.Source)}},
	}, nil
}

// Pending returns the number of buffered events not yet handed to the producer
func (f *Feed) Pending() int {
	return f.events.Len()
}

// Close unsubscribes from the bus and publishes the buffered events before
// returning. It is safe to call more than once.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.unsubscribe()
	close(f.events.In)
	f.runner.Wait()
	f.cancel()
	return nil
}
