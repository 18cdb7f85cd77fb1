package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/venueops/entitycache/logger"
	"github.com/venueops/entitycache/routine"
)

type defaultConsumer struct {
	consumerInstances []*consumeInstance
	runner            routine.Runner

	closed atomic.Bool
}

// NewConsumer connects InstanceNum consumers of the configured group
func NewConsumer(log logger.Logger, config *ConsumerConfig) (Consumer, error) {
	log = logger.OrGlobal(log)
	if config == nil {
		config = DefaultConsumerConfig()
	}
	config.MergeDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := checkCluster(log, config.Brokers, config.Topics); err != nil {
		return nil, err
	}

	consumer := &defaultConsumer{runner: routine.New(log)}
	for i := 0; i < config.InstanceNum; i++ {
		instanceName := fmt.Sprintf("%s-instance-%d", config.GroupID, i+1)
		instance, err := newConsumeInstance(instanceName, config, log, consumer.runner)
		if err != nil {
			_ = consumer.Close()
			return nil, err
		}
		consumer.consumerInstances = append(consumer.consumerInstances, instance)
	}
	return consumer, nil
}

// Start starts every instance with handler
func (c *defaultConsumer) Start(ctx context.Context, handler ConsumerMsgHandler) error {
	if len(c.consumerInstances) == 0 {
		return ErrNoConsumerInstances
	}

	for _, instance := range c.consumerInstances {
		if err := instance.Start(ctx, handler); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every instance and waits for the consume loops to return
func (c *defaultConsumer) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, instance := range c.consumerInstances {
		instance.stop()
	}
	c.runner.Wait()

	var errs []error
	for _, instance := range c.consumerInstances {
		if err := instance.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
