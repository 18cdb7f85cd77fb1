package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/venueops/entitycache/logger"
	"go.uber.org/zap"
)

// Redis keeps each namespace in one hash, so a namespace survives process
// restarts and can be shared by every process of one session.
type Redis struct {
	logger logger.Logger
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to redis and verifies the connection with a ping
func NewRedis(log logger.Logger, cfg *RedisConfig) (*Redis, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(cfg.Options())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, ErrConnection(err)
	}

	log.Info("redis store connected",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("key_prefix", cfg.KeyPrefix),
	)

	return &Redis{
		logger: log,
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
	}, nil
}

func (r *Redis) hashKey(namespace string) string {
	if r.prefix == "" {
		return namespace
	}
	return r.prefix + ":" + namespace
}

func (r *Redis) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	v, err := r.client.HGet(ctx, r.hashKey(namespace), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ErrOperation("get", namespace, err)
	}
	return v, true, nil
}

func (r *Redis) Put(ctx context.Context, namespace, key string, value []byte) error {
	return r.PutAll(ctx, namespace, map[string][]byte{key: value})
}

func (r *Redis) PutAll(ctx context.Context, namespace string, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	hk := r.hashKey(namespace)
	fields := make([]any, 0, len(values)*2)
	for k, v := range values {
		fields = append(fields, k, v)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hk, fields...)
		if r.ttl > 0 {
			pipe.Expire(ctx, hk, r.ttl)
		}
		return nil
	})
	if err != nil {
		return ErrOperation("put", namespace, err)
	}
	return nil
}

func (r *Redis) DeleteNamespace(ctx context.Context, namespace string) (bool, error) {
	n, err := r.client.Del(ctx, r.hashKey(namespace)).Result()
	if err != nil {
		return false, ErrOperation("delete", namespace, err)
	}
	return n > 0, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Unwrap returns the underlying go-redis client
func (r *Redis) Unwrap() *redis.Client {
	return r.client
}
