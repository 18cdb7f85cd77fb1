package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
)

const (
	metadataTimeout = 10 * time.Second
	adminAttempts   = 3
	adminRetryDelay = 2 * time.Second
)

// checkCluster fetches the cluster metadata and verifies every topic exists,
// so a wrong broker list or a mistyped invalidation topic fails at startup
// instead of leaving the consumer idle
func checkCluster(log logger.Logger, brokers, topics []string) error {
	admin, err := newAdminClient(log, brokers)
	if err != nil {
		return err
	}
	defer admin.Close()

	md, err := admin.GetMetadata(nil, true, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return ErrConnection(err)
	}
	if missing := missingTopics(md, topics); len(missing) > 0 {
		return ErrConnection(fmt.Errorf("unknown topics %v", missing))
	}

	log.Info("kafka cluster checked",
		zap.Strings("brokers", brokers),
		zap.Int("broker_count", len(md.Brokers)),
		zap.Strings("topics", topics),
	)
	return nil
}

func newAdminClient(log logger.Logger, brokers []string) (*kafka.AdminClient, error) {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(brokers, ","),
		"request.timeout.ms": int(metadataTimeout.Milliseconds()),
	}

	var err error
	for attempt := 1; attempt <= adminAttempts; attempt++ {
		var admin *kafka.AdminClient
		if admin, err = kafka.NewAdminClient(configMap); err == nil {
			return admin, nil
		}
		if attempt < adminAttempts {
			log.Warn("kafka admin client unavailable, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt),
			)
			time.Sleep(adminRetryDelay)
		}
	}
	return nil, ErrConnection(fmt.Errorf("admin client after %d attempts: %w", adminAttempts, err))
}

// missingTopics returns the topics absent from md. Regex subscriptions
// (leading "^") are not checked.
func missingTopics(md *kafka.Metadata, topics []string) []string {
	var missing []string
	for _, t := range topics {
		if strings.HasPrefix(t, "^") {
			continue
		}
		tm, ok := md.Topics[t]
		if !ok || tm.Error.Code() == kafka.ErrUnknownTopicOrPart {
			missing = append(missing, t)
		}
	}
	return missing
}
