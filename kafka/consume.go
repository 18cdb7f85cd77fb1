package kafka

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/venueops/entitycache/logger"
	"github.com/venueops/entitycache/routine"
	"go.uber.org/zap"
)

// pollTimeout bounds each Poll so a cancelled context is noticed
const pollTimeout = 500 // ms

// consumeInstance is one member of the consumer group
type consumeInstance struct {
	logger logger.Logger
	runner routine.Runner

	config *ConsumerConfig
	name   string
	c      *kafka.Consumer

	closed atomic.Bool
}

func newConsumeInstance(name string, config *ConsumerConfig, log logger.Logger, runner routine.Runner) (*consumeInstance, error) {
	consumer, err := kafka.NewConsumer(config.BuildConfigMap())
	if err != nil {
		return nil, ErrConnection(err)
	}

	if err := consumer.SubscribeTopics(config.Topics, nil); err != nil {
		consumer.Close()
		return nil, ErrSubscribe(config.Topics, err)
	}

	return &consumeInstance{
		config: config,
		name:   name,
		c:      consumer,
		logger: log,
		runner: runner,
	}, nil
}

// Start runs the consume loop in the background until ctx is done
func (c *consumeInstance) Start(ctx context.Context, handler ConsumerMsgHandler) error {
	c.runner.GoNamedWithContext(ctx, c.name, func(ctx context.Context) {
		if err := c.consumeLoop(ctx, handler); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka consumer loop exited with error",
				zap.String("instance_name", c.name),
				zap.Error(err))
		}
	})
	c.logger.Info("kafka consumer instance started", zap.String("instance_name", c.name))
	return nil
}

// stop makes the consume loop return after its current poll
func (c *consumeInstance) stop() {
	c.closed.Store(true)
}

// Close closes the underlying consumer. The consume loop must have returned.
func (c *consumeInstance) Close() error {
	c.stop()
	if err := c.c.Close(); err != nil {
		return err
	}
	c.logger.Info("kafka consumer instance closed", zap.String("instance_name", c.name))
	return nil
}

func (c *consumeInstance) consumeLoop(ctx context.Context, handler ConsumerMsgHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		default:
			if c.closed.Load() {
				return nil
			}
			ev := c.c.Poll(pollTimeout)
			if ev == nil {
				continue
			}

			switch e := ev.(type) {
			case *kafka.Message:
				// a failed message is logged and skipped so the partition keeps moving
				if err := c.handleMessage(ctx, e, handler); err != nil {
					c.logger.Error("kafka consumer handle message failed",
						zap.String("topic", *e.TopicPartition.Topic),
						zap.Int32("partition", e.TopicPartition.Partition),
						zap.Int64("offset", int64(e.TopicPartition.Offset)),
						zap.Error(err),
					)
				}
			case kafka.Error:
				c.logger.Error("kafka consumer error", zap.Int("code", int(e.Code())), zap.String("error", e.String()))

				if e.Code() == kafka.ErrAllBrokersDown {
					return ErrConsume(e)
				}
			case kafka.OffsetsCommitted:
				if e.Error != nil {
					c.logger.Error("failed to commit offsets", zap.Error(e.Error))
				}
			default:
				c.logger.Debug("received unknown event", zap.String("type", fmt.Sprintf("%T", e)))
			}
		}
	}
}

// toMessage converts a librdkafka message
func toMessage(msg *kafka.Message) *Message {
	message := &Message{
		Value:     msg.Value,
		Key:       msg.Key,
		Timestamp: msg.Timestamp,
		TopicPartition: TopicPartition{
			Topic:     msg.TopicPartition.Topic,
			Partition: msg.TopicPartition.Partition,
			Offset:    Offset(msg.TopicPartition.Offset),
		},
		Headers: make([]Header, len(msg.Headers)),
	}

	for i, header := range msg.Headers {
		message.Headers[i] = Header{
			Key:   header.Key,
			Value: header.Value,
		}
	}

	return message
}

// handleMessage runs handler up to MaxRetries times and commits on success
func (c *consumeInstance) handleMessage(ctx context.Context, msg *kafka.Message, handler ConsumerMsgHandler) error {
	startTime := time.Now()

	if err := retryHandler(ctx, c.config.MaxRetries, toMessage(msg), handler); err != nil {
		return err
	}

	if !c.config.EnableAutoCommit {
		if _, err := c.c.CommitMessage(msg); err != nil {
			return ErrCommit(err)
		}
	}

	c.logger.Debug("kafka consumer instance processed message successfully",
		zap.String("topic", *msg.TopicPartition.Topic),
		zap.Int32("partition", msg.TopicPartition.Partition),
		zap.Int64("offset", int64(msg.TopicPartition.Offset)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return nil
}

// retryHandler calls handler until it succeeds, ctx is done or attempts run out
func retryHandler(ctx context.Context, attempts int, msg *Message, handler ConsumerMsgHandler) error {
	var err error
	for i := 0; i < max(attempts, 1); i++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}
