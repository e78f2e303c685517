package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kart-io/notifyrelay/pkg/errors"
)

// Config holds Redis connection settings.
type Config struct {
	URL            string        `env:"URL"` // redis://:password@localhost:6379/0
	RetryAttempts  int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
	TTL            time.Duration `env:"TTL" envDefault:"24h"`
}

// Enabled reports whether a Redis URL is set.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// Connect parses cfg.URL and pings the server, retrying up to
// cfg.RetryAttempts times.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New(errors.ErrMissingConfig, "empty redis connection URL")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidConfig, "failed to parse redis connection string")
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client := redis.NewClient(opts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		if attempt == attempts {
			break
		}
		if err := errors.Sleep(ctx, cfg.RetryInterval); err != nil {
			lastErr = err
			break
		}
	}

	return nil, errors.Wrap(lastErr, errors.ErrCacheConnection, "redis did not become ready").
		WithAttemptCount(attempts)
}
