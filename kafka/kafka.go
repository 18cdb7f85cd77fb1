// Package kafka connects the cache to Kafka in both directions:
//   - Feed publishes every cache event (refresh, add, update, delete, clear)
//     to a change feed topic
//   - InvalidationHandler consumes invalidation messages sent by the backend
//     and forces a refresh of the named collection
package kafka

import (
	"context"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Message is a kafka message decoupled from the librdkafka types
type Message struct {
	Value          []byte
	Key            []byte
	Timestamp      time.Time
	TopicPartition TopicPartition
	Headers        []Header
}

// GetHeader returns the value of header k, nil when absent
func (m *Message) GetHeader(k string) []byte {
	for _, header := range m.Headers {
		if header.Key == k {
			return header.Value
		}
	}
	return nil
}

// PartitionAny lets the producer pick the partition
const PartitionAny = kafka.PartitionAny

// TopicPartition is the topic and partition of a kafka message
type TopicPartition struct {
	Topic     *string
	Partition int32
	Offset    Offset
}

// Offset is the offset of a kafka message
type Offset int64

// Header is the header of a kafka message
type Header struct {
	Key   string
	Value []byte
}

// ConsumerMsgHandler handles one consumed message.
// A returned error is retried up to ConsumerConfig.MaxRetries times.
type ConsumerMsgHandler func(ctx context.Context, msg *Message) error

// Consumer consumes the configured topics
type Consumer interface {
	Start(ctx context.Context, handler ConsumerMsgHandler) error
	Close() error
}

// Producer produces messages
type Producer interface {
	Produce(ctx context.Context, msg *Message) error
	Close() error
}
