package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/pricebulk/pricebulk/pkg/api"
	"github.com/pricebulk/pricebulk/pkg/config"
	"github.com/pricebulk/pricebulk/pkg/observability"
	"github.com/pricebulk/pricebulk/pkg/storage"
	"github.com/pricebulk/pricebulk/pkg/usage"
	"github.com/pricebulk/pricebulk/pkg/webhooks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	logger.WithFields(logrus.Fields{
		"version": version,
		"storage": cfg.Storage.Type,
	}).Info("Starting pricebulk")

	if err := usage.ValidateTiers(usage.Tiers); err != nil {
		logger.Fatalf("Invalid plan tiers: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	backend, err := storage.Open(ctx, cfg.Storage, cfg.Cache, logger, metrics)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	shutdown.RegisterShutdownFunc("storage", func(ctx context.Context) error {
		return backend.Close()
	})

	ledger := usage.New(backend.Store,
		usage.WithLogger(logger),
		usage.WithMetrics(metrics),
		usage.WithTracer(providers.Tracer()),
	)

	if metrics != nil && cfg.Observability.MetricsRefreshSchedule != "" {
		refresher, err := observability.StartPlanGaugeRefresher(cfg.Observability.MetricsRefreshSchedule, ledger, metrics, logger)
		if err != nil {
			logger.Fatalf("Failed to start metrics refresh: %v", err)
		}
		shutdown.RegisterShutdownFunc("metrics refresh", func(ctx context.Context) error {
			select {
			case <-refresher.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	apiServer := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(api.RouterConfig{
			Usage:   api.NewUsageHandlers(ledger, logger),
			Privacy: webhooks.NewPrivacyHandler(ledger, logger, metrics),
			Logger:  logger,
			Metrics: metrics,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(backend, backend.Redis, version))
	observability.RegisterMetricsEndpoint(healthRouter, registry)

	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Servers stop first; storage and the exporter are flushed after in-flight requests finish
	shutdown.RegisterShutdownFunc("health server", healthServer.Shutdown)
	shutdown.RegisterShutdownFunc("api server", apiServer.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.Infof("Health and metrics server listening on %s", healthServer.Addr)
		return serve(healthServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		return shutdown.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

// serve runs srv until it is shut down
func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
