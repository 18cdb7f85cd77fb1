package kafka

import "fmt"

var (
	// ErrNoConsumerInstances no consumer instances
	ErrNoConsumerInstances = fmt.Errorf("kafka: no consumer instances")

	// ErrClosed is returned when producing on a closed producer or feed
	ErrClosed = fmt.Errorf("kafka: closed")
)

// ErrInvalidConfig Kafka configuration error
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("kafka: invalid config: %s", msg)
}

// ErrConnection Kafka connection error
func ErrConnection(err error) error {
	return fmt.Errorf("kafka: connection failed: %w", err)
}

// ErrSubscribe subscribe error
func ErrSubscribe(topics []string, err error) error {
	return fmt.Errorf("kafka: subscribe to topics %v failed: %w", topics, err)
}

// ErrConsume consume message error
func ErrConsume(err error) error {
	return fmt.Errorf("kafka: consume message failed: %w", err)
}

// ErrCommit commit message error
func ErrCommit(err error) error {
	return fmt.Errorf("kafka: commit offsets failed: %w", err)
}

// ErrProduce wraps a failed produce call for topic
func ErrProduce(topic string, err error) error {
	return fmt.Errorf("kafka: produce to %s failed: %w", topic, err)
}

// ErrInvalidation wraps a failed invalidation of entity
func ErrInvalidation(entity string, err error) error {
	return fmt.Errorf("kafka: invalidate %s failed: %w", entity, err)
}
