// Command notifyrelay serves the notification API, the realtime websocket
// endpoint and the health check.
//
// Configuration comes from NOTIFYRELAY_* environment variables, optionally
// loaded from a .env file in the working directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/notifyrelay/pkg/cache"
	"github.com/kart-io/notifyrelay/pkg/config"
	"github.com/kart-io/notifyrelay/pkg/dispatcher"
	"github.com/kart-io/notifyrelay/pkg/logger"
	"github.com/kart-io/notifyrelay/pkg/observability"
	"github.com/kart-io/notifyrelay/pkg/platforms/email"
	"github.com/kart-io/notifyrelay/pkg/realtime"
	transporthttp "github.com/kart-io/notifyrelay/transport/http"
	"github.com/kart-io/notifyrelay/transport/http/handlers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "notifyrelay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := cfg.BuildLogger(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.NewTelemetryProvider(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	store, closeCache, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	transport := newTransport(cfg, log)
	if !cfg.TransportConfigured() {
		log.Warn("Durable transport has no credentials; sends will fail", "transport", transport.Name())
	}
	durable := email.NewChannel(transport,
		email.WithRetryPolicy(cfg.Retry.Policy()),
		email.WithSender(cfg.Sender),
		email.WithLogger(log),
	)

	rtOpts := []realtime.Option{realtime.WithLogger(log)}
	dispatchOpts := []dispatcher.Option{
		dispatcher.WithLogger(log),
		dispatcher.WithTelemetry(telemetry),
		dispatcher.WithTransportName(transport.Name()),
	}
	var pinger handlers.Pinger
	if store != nil {
		rtOpts = append(rtOpts, realtime.WithPersister(store))
		dispatchOpts = append(dispatchOpts, dispatcher.WithPersister(store))
		pinger = store
	}
	if cfg.RecipientDomain != "" {
		dispatchOpts = append(dispatchOpts, dispatcher.WithResolver(dispatcher.DomainResolver(cfg.RecipientDomain)))
	}

	channel := realtime.NewChannel(realtime.NewRegistry(), rtOpts...)
	d := dispatcher.New(durable, channel, dispatchOpts...)

	srv, err := transporthttp.NewServer(cfg, transporthttp.Deps{
		Dispatcher: d,
		Realtime:   channel,
		Cache:      pinger,
		Transport:  transport.Name(),
		Logger:     log,
	})
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openCache connects to Redis when a URL is configured. A nil store means
// caching is disabled.
func openCache(ctx context.Context, cfg *config.Config, log logger.Logger) (cache.Store, func(), error) {
	if !cfg.Redis.Enabled() {
		log.Info("Redis cache disabled")
		return nil, func() {}, nil
	}
	client, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Redis cache connected", "addr", client.Options().Addr)

	store := cache.NewRedisStore(client, cache.WithTTL(cfg.Redis.TTL), cache.WithLogger(log))
	return store, func() {
		if err := client.Close(); err != nil {
			log.Warn("Redis close failed", "error", err)
		}
	}, nil
}

func newTransport(cfg *config.Config, log logger.Logger) email.Transport {
	if cfg.Transport == config.TransportPostmark {
		return email.NewPostmarkTransport(cfg.Postmark, log)
	}
	return email.NewSMTPTransport(cfg.SMTP, log)
}
