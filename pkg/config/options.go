package config

import (
	"fmt"
	"time"

	"github.com/kart-io/notifyrelay/pkg/logger"
	"github.com/kart-io/notifyrelay/pkg/platforms/email"
)

// WithHTTPAddr sets the listen address
func WithHTTPAddr(addr string) Option {
	return func(cfg *Config) error {
		if addr == "" {
			return fmt.Errorf("http address cannot be empty")
		}
		cfg.HTTP.Addr = addr
		return nil
	}
}

// WithLogLevel sets the log level by name
func WithLogLevel(level string) Option {
	return func(cfg *Config) error {
		cfg.LogLevel = level
		return nil
	}
}

// WithLogger sets a custom logger instance
func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) error {
		cfg.Logger = l
		return nil
	}
}

// WithSMTP selects the SMTP transport
func WithSMTP(smtp email.SMTPConfig) Option {
	return func(cfg *Config) error {
		cfg.Transport = TransportSMTP
		cfg.SMTP = smtp
		return nil
	}
}

// WithPostmark selects the Postmark transport
func WithPostmark(pm email.PostmarkConfig) Option {
	return func(cfg *Config) error {
		cfg.Transport = TransportPostmark
		cfg.Postmark = pm
		return nil
	}
}

// WithSender overrides the transport sender address
func WithSender(from string) Option {
	return func(cfg *Config) error {
		cfg.Sender = from
		return nil
	}
}

// WithRecipientDomain turns bare recipient ids into addresses at domain
func WithRecipientDomain(domain string) Option {
	return func(cfg *Config) error {
		cfg.RecipientDomain = domain
		return nil
	}
}

// WithRetry sets the durable retry policy
func WithRetry(maxAttempts int, baseDelay, increment time.Duration) Option {
	return func(cfg *Config) error {
		if maxAttempts < 1 {
			return fmt.Errorf("max attempts must be at least 1")
		}
		cfg.Retry.MaxAttempts = maxAttempts
		cfg.Retry.BaseDelay = baseDelay
		cfg.Retry.Increment = increment
		return nil
	}
}

// WithRedisURL enables the Redis cache
func WithRedisURL(url string) Option {
	return func(cfg *Config) error {
		cfg.Redis.URL = url
		return nil
	}
}

// WithTelemetry enables OTLP trace export to endpoint
func WithTelemetry(endpoint string) Option {
	return func(cfg *Config) error {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.OTLPEndpoint = endpoint
		return nil
	}
}

// WithTestDefaults provides safe defaults for testing
func WithTestDefaults() Option {
	return func(cfg *Config) error {
		testDefaults := []Option{
			WithHTTPAddr("127.0.0.1:0"),
			WithRetry(3, 0, 0),
			WithLogger(logger.Discard),
		}
		for _, opt := range testDefaults {
			if err := opt(cfg); err != nil {
				return err
			}
		}
		cfg.Telemetry.Enabled = false
		cfg.Redis.URL = ""
		return nil
	}
}
