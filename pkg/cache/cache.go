// Package cache keeps a short-lived copy of dispatched notifications in
// Redis for later inspection.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kart-io/notifyrelay/pkg/errors"
	"github.com/kart-io/notifyrelay/pkg/logger"
	"github.com/kart-io/notifyrelay/pkg/notification"
)

// DefaultTTL is how long a cached notification lives.
const DefaultTTL = 24 * time.Hour

// Store persists notifications.
type Store interface {
	Store(ctx context.Context, n *notification.Notification) error
	Ping(ctx context.Context) error
}

// cmdable is the part of a redis client the store needs.
type cmdable interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStore writes notification envelopes to Redis with an expiry.
type RedisStore struct {
	client cmdable
	ttl    time.Duration
	logger logger.Logger
}

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *RedisStore) { s.logger = logger.OrDiscard(l) }
}

// NewRedisStore creates a store over client.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	return newRedisStore(client, opts...)
}

func newRedisStore(client cmdable, opts ...Option) *RedisStore {
	s := &RedisStore{
		client: client,
		ttl:    DefaultTTL,
		logger: logger.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store writes n under notification:<id> as a JSON envelope.
func (s *RedisStore) Store(ctx context.Context, n *notification.Notification) error {
	data, err := json.Marshal(notification.NewEnvelope(n))
	if err != nil {
		return errors.Wrap(err, errors.ErrCacheEncode, "encode notification").
			WithMetadata("notification_id", n.ID)
	}

	key := notification.CacheKey(n.ID)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCacheWrite, "cache notification").
			WithMetadata("key", key)
	}

	s.logger.Debug("Notification cached", "key", key, "ttl", s.ttl)
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCacheConnection, "redis healthcheck failed")
	}
	return nil
}

// NopStore discards everything. Used when no Redis URL is configured.
type NopStore struct{}

// Store does nothing.
func (NopStore) Store(context.Context, *notification.Notification) error { return nil }

// Ping always succeeds.
func (NopStore) Ping(context.Context) error { return nil }
