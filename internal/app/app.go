// Package app wires the license service together: configuration, logging,
// telemetry, store pools, the authority, and the HTTP server, with graceful
// shutdown on SIGINT/SIGTERM.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"keygate/internal/config"
	"keygate/internal/infrastructure"
	"keygate/internal/license"
	"keygate/internal/store"
	transport "keygate/internal/transport/http"
)

// Application holds the assembled service.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pools     *store.Pools
	Authority *license.Authority

	server            *http.Server
	telemetryShutdown func(context.Context) error
}

// NewApplication loads configuration and assembles every dependency. The
// authoritative clock is probed before the server is created: a deployment
// that cannot answer "what day is it" must not come up, because every
// expiration decision depends on that answer.
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := infrastructure.InitLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(logger)

	logger.Info("license service starting",
		slog.Int("port", cfg.Server.Port),
		slog.Bool("local_clock_fallback", cfg.Clock.AllowLocalFallback),
	)

	telemetryShutdown, err := infrastructure.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	pools, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	licenses := store.NewLicenses(pools.Read, pools.Write)
	clock := license.NewStoreClock(licenses, cfg.Clock.AllowLocalFallback, logger)

	// Startup probe. Fail here, not on the first verification request.
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	today, err := clock.Today(probeCtx)
	if err != nil {
		pools.Close()
		return nil, fmt.Errorf("authoritative clock probe: %w", err)
	}
	logger.Info("authoritative clock ready", slog.Time("today", today))

	authority := license.NewAuthority(licenses, clock, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := transport.NewRouter(cfg, transport.RouterDeps{
		Authority: authority,
		Logger:    logger,
		Registry:  registry,
		Probes: map[string]transport.Prober{
			"store_read":  transport.ProbeFunc(pools.Read.PingContext),
			"store_write": transport.ProbeFunc(pools.Write.PingContext),
			"clock": transport.ProbeFunc(func(ctx context.Context) error {
				_, err := clock.Today(ctx)
				return err
			}),
		},
	})

	app := &Application{
		Config:    cfg,
		Logger:    logger,
		Pools:     pools,
		Authority: authority,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		telemetryShutdown: telemetryShutdown,
	}
	return app, nil
}

// Run serves until the context is cancelled or a termination signal
// arrives, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	a.shutdown(closeCtx)

	a.Logger.Info("shutdown complete")
	return err
}

func (a *Application) shutdown(ctx context.Context) {
	if a.telemetryShutdown != nil {
		if err := a.telemetryShutdown(ctx); err != nil {
			a.Logger.Error("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}
	if err := a.Pools.Close(); err != nil {
		a.Logger.Error("store close failed", slog.String("error", err.Error()))
	}
}
