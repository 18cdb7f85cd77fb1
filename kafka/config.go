package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// ConsumerConfig is the configuration of the invalidation consumer
type ConsumerConfig struct {
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`
	GroupID string   `mapstructure:"group_id" yaml:"group_id"`
	Topics  []string `mapstructure:"topics" yaml:"topics"`

	// MaxRetries is how often a failing message is handled before it is skipped
	// default: 3
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// InstanceNum is the number of consumer instances in the group
	// default: 1
	InstanceNum int `mapstructure:"instance_num" yaml:"instance_num"`

	// AutoOffsetReset applies when the group has no committed offset: "earliest" or "latest".
	// Invalidations older than the process are meaningless, so latest is the default.
	// default: "latest"
	AutoOffsetReset string `mapstructure:"auto_offset_reset" yaml:"auto_offset_reset"`

	// EnableAutoCommit commits offsets in the background instead of after each message
	// default: false
	EnableAutoCommit bool `mapstructure:"enable_auto_commit" yaml:"enable_auto_commit"`

	// AutoCommitInterval is only used when EnableAutoCommit is true
	// default: 5s
	AutoCommitInterval time.Duration `mapstructure:"auto_commit_interval" yaml:"auto_commit_interval"`

	// default: 30s
	SessionTimeout time.Duration `mapstructure:"session_timeout" yaml:"session_timeout"`

	// MaxPollInterval is the maximum time between two polls; a refresh runs
	// inside the handler, so keep it above the cache sync timeout
	// default: 120s
	MaxPollInterval time.Duration `mapstructure:"max_poll_interval" yaml:"max_poll_interval"`

	// SecurityProtocol, only PLAINTEXT is supported for now
	// default: "PLAINTEXT"
	SecurityProtocol string `mapstructure:"security_protocol" yaml:"security_protocol"`

	// Debug enables librdkafka consumer debug logs
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// DefaultConsumerConfig returns the default consumer configuration
func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		MaxRetries:         3,
		InstanceNum:        1,
		AutoOffsetReset:    "latest",
		EnableAutoCommit:   false,
		AutoCommitInterval: 5 * time.Second,
		SessionTimeout:     30 * time.Second,
		MaxPollInterval:    120 * time.Second,
		SecurityProtocol:   "PLAINTEXT",
		Debug:              false,
	}
}

// MergeDefaults fills zero fields from DefaultConsumerConfig and returns c
func (c *ConsumerConfig) MergeDefaults() *ConsumerConfig {
	defaults := DefaultConsumerConfig()
	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.InstanceNum == 0 {
		c.InstanceNum = defaults.InstanceNum
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = defaults.AutoOffsetReset
	}
	if c.AutoCommitInterval == 0 {
		c.AutoCommitInterval = defaults.AutoCommitInterval
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = defaults.SessionTimeout
	}
	if c.MaxPollInterval == 0 {
		c.MaxPollInterval = defaults.MaxPollInterval
	}
	if c.SecurityProtocol == "" {
		c.SecurityProtocol = defaults.SecurityProtocol
	}
	return c
}

// Validate validates the consumer configuration
func (c *ConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrInvalidConfig("brokers are required")
	}
	if c.GroupID == "" {
		return ErrInvalidConfig("group_id is required")
	}
	if len(c.Topics) == 0 {
		return ErrInvalidConfig("topics are required")
	}
	if c.MaxRetries < 1 {
		return ErrInvalidConfig("max_retries must be at least 1")
	}
	if c.InstanceNum < 1 {
		return ErrInvalidConfig("instance_num must be at least 1")
	}

	if c.AutoOffsetReset != "earliest" && c.AutoOffsetReset != "latest" {
		return ErrInvalidConfig(
			fmt.Sprintf("invalid auto_offset_reset: %s, must be either 'earliest' or 'latest'", c.AutoOffsetReset),
		)
	}

	if c.EnableAutoCommit && c.AutoCommitInterval <= 0 {
		return ErrInvalidConfig("auto_commit_interval must be greater than 0 when enable_auto_commit is true")
	}

	if c.SessionTimeout <= 0 {
		return ErrInvalidConfig("session_timeout must be greater than 0")
	}

	if c.MaxPollInterval <= 0 {
		return ErrInvalidConfig("max_poll_interval must be greater than 0")
	}

	return nil
}

// BuildConfigMap returns the librdkafka consumer settings
func (c *ConsumerConfig) BuildConfigMap() *kafka.ConfigMap {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":    strings.Join(c.Brokers, ","),
		"group.id":             c.GroupID,
		"auto.offset.reset":    strings.ToLower(c.AutoOffsetReset),
		"enable.auto.commit":   c.EnableAutoCommit,
		"session.timeout.ms":   int(c.SessionTimeout.Milliseconds()),
		"max.poll.interval.ms": int(c.MaxPollInterval.Milliseconds()),
		"security.protocol":    c.SecurityProtocol,
	}

	if c.EnableAutoCommit {
		_ = configMap.SetKey("auto.commit.interval.ms", int(c.AutoCommitInterval.Milliseconds()))
	}

	if c.Debug {
		_ = configMap.SetKey("debug", "consumer,cgrp,topic,fetch")
	}

	return configMap
}

// ProducerConfig is the configuration of the change feed producer
type ProducerConfig struct {
	Brokers []string `mapstructure:"brokers" yaml:"brokers"`

	// ClientID identifies this producer in broker logs
	ClientID string `mapstructure:"client_id" yaml:"client_id"`

	// Acks is the number of broker acknowledgements: "all", "1" or "0"
	// default: "all"
	Acks string `mapstructure:"acks" yaml:"acks"`

	// Compression codec: none, gzip, snappy, lz4, zstd
	// default: "none"
	Compression string `mapstructure:"compression" yaml:"compression"`

	// LingerMs is how long the producer waits to batch messages
	// default: 0 (send immediately)
	LingerMs int `mapstructure:"linger_ms" yaml:"linger_ms"`

	// BatchSize is the maximum batch size in bytes
	// default: 100KB
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// SecurityProtocol, only PLAINTEXT is supported for now
	// default: "PLAINTEXT"
	SecurityProtocol string `mapstructure:"security_protocol" yaml:"security_protocol"`

	// MaxRetries for a failed produce request
	// default: 3
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// DefaultProducerConfig returns the default producer configuration
func DefaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		Acks:             "all",
		Compression:      "none",
		LingerMs:         0,
		BatchSize:        100 * 1024, // 100KB
		SecurityProtocol: "PLAINTEXT",
		MaxRetries:       3,
	}
}

// MergeDefaults fills zero fields from DefaultProducerConfig and returns p
func (p *ProducerConfig) MergeDefaults() *ProducerConfig {
	defaults := DefaultProducerConfig()
	if p.Acks == "" {
		p.Acks = defaults.Acks
	}
	if p.Compression == "" {
		p.Compression = defaults.Compression
	}
	if p.BatchSize == 0 {
		p.BatchSize = defaults.BatchSize
	}
	if p.SecurityProtocol == "" {
		p.SecurityProtocol = defaults.SecurityProtocol
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = defaults.MaxRetries
	}
	return p
}

// Validate validates the producer configuration
func (p *ProducerConfig) Validate() error {
	if len(p.Brokers) == 0 {
		return ErrInvalidConfig("brokers are required")
	}
	switch strings.ToLower(p.Acks) {
	case "all", "-1", "0", "1":
	default:
		return ErrInvalidConfig(fmt.Sprintf("invalid acks: %s", p.Acks))
	}
	if p.LingerMs < 0 || p.BatchSize < 0 {
		return ErrInvalidConfig("linger_ms and batch_size must not be negative")
	}
	return nil
}

// BuildConfigMap returns the librdkafka producer settings
func (p *ProducerConfig) BuildConfigMap() *kafka.ConfigMap {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers": strings.Join(p.Brokers, ","),
		"compression.type":  strings.ToLower(p.Compression),
		"acks":              strings.ToLower(p.Acks),
		"linger.ms":         p.LingerMs,
		"batch.size":        p.BatchSize,
		"retries":           p.MaxRetries,
		"security.protocol": p.SecurityProtocol,
	}

	if p.ClientID != "" {
		_ = configMap.SetKey("client.id", p.ClientID)
	}

	return configMap
}

// FeedConfig is the configuration of the cache change feed
type FeedConfig struct {
	// Topic receives one message per cache event (required)
	Topic string `mapstructure:"topic" yaml:"topic"`
	// BufferSize is the initial capacity of the unbounded event buffer
	// default: 256
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// DefaultFeedConfig returns the default feed configuration
func DefaultFeedConfig() *FeedConfig {
	return &FeedConfig{BufferSize: 256}
}

// MergeDefaults fills zero fields from DefaultFeedConfig and returns f
func (f *FeedConfig) MergeDefaults() *FeedConfig {
	if f.BufferSize == 0 {
		f.BufferSize = DefaultFeedConfig().BufferSize
	}
	return f
}

// Validate validates the feed configuration
func (f *FeedConfig) Validate() error {
	if f.Topic == "" {
		return ErrInvalidConfig("feed topic is required")
	}
	if f.BufferSize < 0 {
		return ErrInvalidConfig("buffer_size must not be negative")
	}
	return nil
}
