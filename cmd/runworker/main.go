// Command runworker runs a channel worker together with a WebSocket gateway
// serving a room-based chat. The channel layer backend is selected with
// CHANNEL_LAYER (memory, redis or postgres); memory keeps everything in one
// process, the other two let the gateway and workers scale independently.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/channeled/core/channel"
	"github.com/dmitrymomot/channeled/core/config"
	"github.com/dmitrymomot/channeled/core/health"
	"github.com/dmitrymomot/channeled/core/worker"
	"github.com/dmitrymomot/channeled/gateway"
	pglayer "github.com/dmitrymomot/channeled/integration/layer/postgres"
	redislayer "github.com/dmitrymomot/channeled/integration/layer/redis"
)

type appConfig struct {
	Layer           string        `env:"CHANNEL_LAYER" envDefault:"memory"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        slog.Level    `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("runworker failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, logger *slog.Logger) error {
	layer, cleanup, err := buildLayer(ctx, cfg.Layer, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	chat := &chatService{layer: layer, logger: logger.With(slog.String("component", "chat"))}

	w, err := worker.New(layer, chat.router(),
		worker.WithLogger(logger.With(slog.String("component", "worker"))))
	if err != nil {
		return err
	}

	gw, err := gateway.New(layer,
		gateway.WithAllowAnyOrigin(),
		gateway.WithLogger(logger.With(slog.String("component", "gateway"))))
	if err != nil {
		return err
	}

	checks := []func(context.Context) error{w.Healthcheck}
	if hc, ok := layer.(interface {
		Healthcheck(context.Context) error
	}); ok {
		checks = append(checks, hc.Healthcheck)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws/", http.StripPrefix("/ws", gw))
	mux.Handle("/health/live", health.Liveness())
	mux.Handle("/health/ready", health.Readiness(logger, checks...))
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	logger.InfoContext(ctx, "runworker starting",
		slog.String("layer", cfg.Layer),
		slog.String("addr", cfg.HTTPAddr),
		slog.Any("channels", w.Channels()))

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(w.Run(ctx))

	if runner, ok := layer.(interface {
		Run(context.Context) func() error
	}); ok {
		eg.Go(runner.Run(ctx))
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// buildLayer constructs the configured channel layer backend. The returned
// cleanup releases the backend's connections.
func buildLayer(ctx context.Context, kind string, logger *slog.Logger) (channel.Layer, func(), error) {
	var chCfg channel.Config
	config.MustLoad(&chCfg)

	layerLogger := logger.With(slog.String("component", "layer"))

	switch kind {
	case "memory":
		layer := channel.NewMemoryLayerFromConfig(chCfg, channel.WithMemoryLayerLogger(layerLogger))
		return layer, func() {}, nil

	case "redis":
		var rcfg redislayer.Config
		config.MustLoad(&rcfg)

		client, err := redislayer.Connect(ctx, rcfg)
		if err != nil {
			return nil, nil, err
		}
		layer := redislayer.NewLayer(client, chCfg,
			redislayer.WithKeyPrefix(rcfg.KeyPrefix),
			redislayer.WithLayerLogger(layerLogger))
		return layer, func() { _ = client.Close() }, nil

	case "postgres":
		var pcfg pglayer.Config
		config.MustLoad(&pcfg)

		pool, err := pglayer.Connect(ctx, pcfg)
		if err != nil {
			return nil, nil, err
		}
		if err := pglayer.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		layer := pglayer.NewLayer(pool, chCfg,
			pglayer.WithPollInterval(pcfg.PollInterval),
			pglayer.WithCleanupInterval(pcfg.CleanupInterval),
			pglayer.WithLayerLogger(layerLogger))
		return layer, pool.Close, nil

	default:
		return nil, nil, errors.New("unknown channel layer: " + kind)
	}
}

// newLogger writes colorized output on a terminal, JSON otherwise.
func newLogger(level slog.Level) *slog.Logger {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
