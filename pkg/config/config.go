// Package config loads notifyrelay configuration from the environment and
// functional options.
package config

import (
	stderrors "errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/kart-io/notifyrelay/pkg/cache"
	"github.com/kart-io/notifyrelay/pkg/errors"
	"github.com/kart-io/notifyrelay/pkg/logger"
	"github.com/kart-io/notifyrelay/pkg/observability"
	"github.com/kart-io/notifyrelay/pkg/platforms/email"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "NOTIFYRELAY_"

// Durable transports.
const (
	TransportSMTP     = "smtp"
	TransportPostmark = "postmark"
)

// Config represents the service configuration
type Config struct {
	HTTP HTTPConfig `envPrefix:"HTTP_"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json or text

	// Durable channel
	Transport       string               `env:"EMAIL_TRANSPORT" envDefault:"smtp"`
	Sender          string               `env:"EMAIL_SENDER"`
	RecipientDomain string               `env:"RECIPIENT_DOMAIN"`
	SMTP            email.SMTPConfig     `envPrefix:"SMTP_"`
	Postmark        email.PostmarkConfig `envPrefix:"POSTMARK_"`
	Retry           RetryConfig          `envPrefix:"RETRY_"`

	Realtime  RealtimeConfig       `envPrefix:"WS_"`
	Redis     cache.Config         `envPrefix:"REDIS_"`
	Telemetry observability.Config `envPrefix:"OTEL_"`

	// Logger overrides LogLevel and LogFormat when set.
	Logger logger.Logger
}

// HTTPConfig configures the HTTP listener
type HTTPConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// RetryConfig configures durable delivery retries
type RetryConfig struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	BaseDelay   time.Duration `env:"BASE_DELAY" envDefault:"1s"`
	Increment   time.Duration `env:"INCREMENT" envDefault:"1s"`
	MaxDelay    time.Duration `env:"MAX_DELAY"`
}

// Policy builds the retry policy
func (r RetryConfig) Policy() errors.RetryPolicy {
	return errors.NewLinearBackoffPolicy(r.BaseDelay, r.Increment, r.MaxDelay, r.MaxAttempts)
}

// RealtimeConfig configures websocket connections
type RealtimeConfig struct {
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
	PongWait       time.Duration `env:"PONG_WAIT" envDefault:"60s"`
	MaxMessageSize int64         `env:"MAX_MESSAGE_SIZE" envDefault:"65536"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Option defines a functional option for configuration
type Option func(*Config) error

// New creates a configuration from defaults and options only; the process
// environment is ignored.
func New(opts ...Option) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoadFail, "apply configuration defaults")
	}
	return apply(cfg, opts)
}

// Load reads a .env file when present, then NOTIFYRELAY_* environment
// variables, then applies opts.
func Load(opts ...Option) (*Config, error) {
	if err := LoadEnvFiles(); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoadFail, "parse environment")
	}
	return apply(cfg, opts)
}

// LoadEnvFiles loads variables from the given files (".env" when none are
// given) without overriding variables already set.
func LoadEnvFiles(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return err
		}
		return errors.Wrap(err, errors.ErrConfigLoadFail, "load env file").
			WithDetails(strings.Join(paths, ", "))
	}
	return nil
}

func apply(cfg *Config, opts []Option) (*Config, error) {
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would make the service misbehave. Missing
// transport credentials are allowed; the durable channel reports them when
// a send is attempted.
func (c *Config) Validate() error {
	var problems []string

	if c.HTTP.Addr == "" {
		problems = append(problems, "http address is required")
	}
	switch c.Transport {
	case TransportSMTP, TransportPostmark:
	default:
		problems = append(problems, "email transport must be smtp or postmark, got "+c.Transport)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		problems = append(problems, "log format must be json or text, got "+c.LogFormat)
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry max attempts must be at least 1")
	}
	if c.Retry.BaseDelay < 0 || c.Retry.Increment < 0 || c.Retry.MaxDelay < 0 {
		problems = append(problems, "retry delays must not be negative")
	}
	if c.Realtime.WriteTimeout <= 0 {
		problems = append(problems, "websocket write timeout must be positive")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		problems = append(problems, "telemetry sample rate must be within [0, 1]")
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		problems = append(problems, "OTLP endpoint is required when telemetry is enabled")
	}

	if len(problems) > 0 {
		return errors.New(errors.ErrInvalidConfig, "invalid configuration").
			WithDetails(strings.Join(problems, "; "))
	}
	return nil
}

// TransportConfigured reports whether the selected transport has credentials.
func (c *Config) TransportConfigured() bool {
	if c.Transport == TransportPostmark {
		return c.Postmark.Configured()
	}
	return c.SMTP.Configured()
}

// BuildLogger returns Logger when set, otherwise a slog logger writing to w
// in LogFormat at LogLevel.
func (c *Config) BuildLogger(w io.Writer) logger.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	level := logger.ParseLevel(c.LogLevel)
	if strings.EqualFold(c.LogFormat, "text") {
		return logger.NewText(w, level)
	}
	return logger.NewJSON(w, level)
}
