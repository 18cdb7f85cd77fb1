package kafka

import (
	"context"
	"encoding/json"

	"github.com/venueops/entitycache/cache"
	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
)

// Invalidation is the message the backend sends when a collection changed
// outside this process
type Invalidation struct {
	Entity     string `json:"entity"`
	LocationID int64  `json:"location_id,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
}

// Filters returns the refresh filters for the invalidated scope
func (i Invalidation) Filters() cache.FilterSet {
	return cache.FilterSet{LocationID: i.LocationID, UserID: i.UserID}
}

// InvalidationHandler returns a consumer handler that force-refreshes the
// collection named by each message.
//
// Malformed messages and unknown collections are logged and acknowledged.
// A failed refresh is returned so the consumer retries it.
func InvalidationHandler(log logger.Logger, syncers []cache.Syncer) ConsumerMsgHandler {
	log = logger.OrGlobal(log)
	byName := make(map[string]cache.Syncer, len(syncers))
	for _, s := range syncers {
		byName[s.Name()] = s
	}

	return func(ctx context.Context, msg *Message) error {
		var inv Invalidation
		if err := json.Unmarshal(msg.Value, &inv); err != nil || inv.Entity == "" {
			log.Warn("dropping malformed invalidation",
				zap.ByteString("value", msg.Value),
				zap.Error(err),
			)
			return nil
		}

		s, ok := byName[inv.Entity]
		if !ok {
			log.Warn("dropping invalidation for unknown collection", zap.String("entity", inv.Entity))
			return nil
		}

		if err := s.Sync(ctx, inv.Filters()); err != nil {
			return ErrInvalidation(inv.Entity, err)
		}
		log.Debug("collection invalidated",
			zap.String("entity", inv.Entity),
			zap.Int64("location_id", inv.LocationID),
			zap.Int64("user_id", inv.UserID),
		)
		return nil
	}
}
