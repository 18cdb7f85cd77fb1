// Package config loads the YAML file that configures every part of the
// entity cache: logging, the persistent store, the backend, the per-session
// coordinators and the optional revalidation, Kafka and ClickHouse sinks.
package config

import (
	"errors"
	"os"

	"github.com/venueops/entitycache/ch"
	"github.com/venueops/entitycache/cron"
	"github.com/venueops/entitycache/kafka"
	"github.com/venueops/entitycache/logger"
	"github.com/venueops/entitycache/remote"
	"github.com/venueops/entitycache/venue"
	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file
type Config struct {
	Logger *logger.Config `mapstructure:"logger" yaml:"logger"`
	Store  *StoreConfig   `mapstructure:"store" yaml:"store"`
	Remote *remote.Config `mapstructure:"remote" yaml:"remote"`
	Venue  *venue.Config  `mapstructure:"venue" yaml:"venue"`
	// Revalidate schedules refreshes of stale collections
	Revalidate *cron.Config `mapstructure:"revalidate" yaml:"revalidate"`
	// Kafka is optional, nil disables the change feed and invalidations
	Kafka *KafkaConfig `mapstructure:"kafka" yaml:"kafka"`
	// ClickHouse is optional, nil disables the event audit
	ClickHouse *ch.Config `mapstructure:"clickhouse" yaml:"clickhouse"`
}

// KafkaConfig groups the Kafka producer, change feed and invalidation consumer
type KafkaConfig struct {
	Producer *kafka.ProducerConfig `mapstructure:"producer" yaml:"producer"`
	Feed     *kafka.FeedConfig     `mapstructure:"feed" yaml:"feed"`
	// Consumer is optional, nil disables remote invalidation
	Consumer *kafka.ConsumerConfig `mapstructure:"consumer" yaml:"consumer"`
}

// DefaultConfig returns a configuration with an in-memory store and no sinks
func DefaultConfig() *Config {
	return &Config{
		Logger:     logger.DefaultConfig(),
		Store:      DefaultStoreConfig(),
		Remote:     remote.DefaultConfig(),
		Venue:      venue.DefaultConfig(),
		Revalidate: cron.DefaultConfig(),
	}
}

// Load reads, defaults and validates the YAML file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrRead(path, err)
	}
	return Parse(data)
}

// Parse defaults and validates a YAML document
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, ErrParse(err)
	}
	cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeDefaults fills missing sections and zero fields and returns c
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
	c.Logger.MergeDefaults()

	if c.Store == nil {
		c.Store = defaults.Store
	}
	c.Store.MergeDefaults()

	if c.Remote == nil {
		c.Remote = defaults.Remote
	}
	c.Remote.MergeDefaults()

	if c.Venue == nil {
		c.Venue = defaults.Venue
	}
	c.Venue.MergeDefaults()

	if c.Revalidate == nil {
		c.Revalidate = defaults.Revalidate
	}
	c.Revalidate.MergeDefaults()

	if k := c.Kafka; k != nil {
		if k.Producer != nil {
			k.Producer.MergeDefaults()
		}
		if k.Feed != nil {
			k.Feed.MergeDefaults()
		}
		if k.Consumer != nil {
			k.Consumer.MergeDefaults()
		}
	}
	if c.ClickHouse != nil {
		c.ClickHouse.MergeDefaults()
	}
	return c
}

// Validate validates every section; all failures are returned together
func (c *Config) Validate() error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, ErrSection(section, err))
		}
	}

	add("logger", c.Logger.Validate())
	add("store", c.Store.Validate())
	add("remote", c.Remote.Validate())
	add("venue", c.Venue.Validate())
	if c.Revalidate.Enabled {
		add("revalidate", c.Revalidate.Validate())
	}
	if k := c.Kafka; k != nil {
		if k.Producer == nil || k.Feed == nil {
			add("kafka", ErrMissing("producer and feed"))
		} else {
			add("kafka.producer", k.Producer.Validate())
			add("kafka.feed", k.Feed.Validate())
		}
		if k.Consumer != nil {
			add("kafka.consumer", k.Consumer.Validate())
		}
	}
	if c.ClickHouse != nil {
		add("clickhouse", c.ClickHouse.Validate())
		if c.ClickHouse.WriterConfig == nil {
			add("clickhouse", ErrMissing("writer"))
		}
	}
	return errors.Join(errs...)
}
