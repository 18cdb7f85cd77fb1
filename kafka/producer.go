package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/venueops/entitycache/logger"
	"github.com/venueops/entitycache/routine"
	"go.uber.org/zap"
)

// flushTimeout bounds how long Close waits for queued messages
const flushTimeout = 10 * time.Second

type defaultProducer struct {
	logger logger.Logger
	runner routine.Runner

	p *kafka.Producer

	// done is closed by Close or when all brokers are down
	done     chan struct{}
	stopOnce sync.Once
	closed   sync.Once
}

// NewProducer connects a producer to the configured brokers
func NewProducer(log logger.Logger, config *ProducerConfig) (Producer, error) {
	log = logger.OrGlobal(log)
	if config == nil {
		config = DefaultProducerConfig()
	}
	config.MergeDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := checkCluster(log, config.Brokers, nil); err != nil {
		return nil, err
	}

	configMap := config.BuildConfigMap()

	var producer *kafka.Producer
	var err error

	maxRetries := 3
	retryDelay := 3 * time.Second
	for i := 0; i < maxRetries; i++ {
		producer, err = kafka.NewProducer(configMap)
		if err == nil {
			break
		}

		if i < maxRetries-1 {
			log.Warn("failed to create kafka producer, retrying...",
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("max_retries", maxRetries),
			)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		return nil, ErrConnection(fmt.Errorf("after %d attempts: %w", maxRetries, err))
	}

	kp := &defaultProducer{
		p:      producer,
		logger: log,
		runner: routine.New(log),
		done:   make(chan struct{}),
	}
	kp.runner.GoNamed("kafka-delivery-reports", kp.handleDeliveryReports)

	log.Info("kafka producer initialized and validated", zap.Strings("brokers", config.Brokers))
	return kp, nil
}

func (kp *defaultProducer) stop() {
	kp.stopOnce.Do(func() { close(kp.done) })
}

// handleDeliveryReports logs delivery failures until the producer stops
func (kp *defaultProducer) handleDeliveryReports() {
	for {
		select {
		case <-kp.done:
			return
		case e := <-kp.p.Events():
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					kp.logger.Error("failed to deliver message",
						zap.Error(ev.TopicPartition.Error),
						zap.String("topic", *ev.TopicPartition.Topic),
					)
				} else {
					kp.logger.Debug("message delivered",
						zap.String("topic", *ev.TopicPartition.Topic),
						zap.Int32("partition", ev.TopicPartition.Partition),
						zap.Int64("offset", int64(ev.TopicPartition.Offset)),
					)
				}
			case kafka.Error:
				kp.logger.Error("kafka producer error",
					zap.Int("code", int(ev.Code())),
					zap.String("error", ev.String()),
				)
				if ev.Code() == kafka.ErrAllBrokersDown {
					kp.stop()
					return
				}
			default:
				kp.logger.Debug("received unknown event", zap.String("type", fmt.Sprintf("%T", ev)))
			}
		}
	}
}

// Produce enqueues msg; delivery is reported asynchronously
func (kp *defaultProducer) Produce(ctx context.Context, msg *Message) error {
	if msg.TopicPartition.Topic == nil {
		return ErrInvalidConfig("topic is required")
	}
	if msg.Value == nil {
		return ErrInvalidConfig("value is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-kp.done:
		return ErrClosed
	default:
	}

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     msg.TopicPartition.Topic,
			Partition: kafka.PartitionAny,
		},
		Value: msg.Value,
		Key:   msg.Key,
	}

	if msg.TopicPartition.Partition != PartitionAny {
		message.TopicPartition.Partition = msg.TopicPartition.Partition
	}
	for _, header := range msg.Headers {
		message.Headers = append(message.Headers, kafka.Header{Key: header.Key, Value: header.Value})
	}

	if err := kp.p.Produce(message, nil); err != nil {
		return ErrProduce(*msg.TopicPartition.Topic, err)
	}
	return nil
}

// Close flushes queued messages and closes the producer
func (kp *defaultProducer) Close() error {
	kp.closed.Do(func() {
		kp.stop()
		kp.runner.Wait()

		if remaining := kp.p.Flush(int(flushTimeout.Milliseconds())); remaining > 0 {
			kp.logger.Warn("kafka producer closed with undelivered messages", zap.Int("remaining", remaining))
		}
		kp.p.Close()
	})
	return nil
}
