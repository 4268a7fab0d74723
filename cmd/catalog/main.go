package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/catalog/pkg/api"
	"github.com/platinummonkey/catalog/pkg/async"
	"github.com/platinummonkey/catalog/pkg/config"
	"github.com/platinummonkey/catalog/pkg/httputil"
	"github.com/platinummonkey/catalog/pkg/importer"
	"github.com/platinummonkey/catalog/pkg/observability"
	"github.com/platinummonkey/catalog/pkg/search"
	"github.com/platinummonkey/catalog/pkg/storage/blob"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "catalog: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)
	ctx, cancel := context.WithCancel(observability.WithLogger(context.Background(), logger))
	defer cancel()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	backend, err := openStorage(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	blobs, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		backend.close()
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	resolver := taxonomy.NewResolver(backend.store, cfg.Taxonomy.Resolver)
	searcher := search.NewService(backend.store, resolver, logger, cfg.Search)
	searcher.SetRecorder(metrics)

	imp := importer.New(backend.store, logger)
	imp.SetRecorder(metrics)
	imp.AfterImport(func(ctx context.Context, nid, version string) error {
		resolver.Invalidate()
		return backend.warm(ctx, nid, version)
	})

	server := api.NewServer(api.Options{
		Store:            backend.store,
		Blobs:            blobs,
		Resolver:         resolver,
		Search:           searcher,
		Logger:           logger,
		Tokens:           cfg.Server.APITokens,
		OnTaxonomyChange: backend.warm,
	})
	if cfg.Observability.MetricsEnabled {
		server.Router().Use(observability.HTTPMetricsMiddleware(metrics))
	}

	var handler http.Handler = httputil.Chain(
		httputil.RequestIDMiddleware(logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
	)(server)
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "catalog-api")
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(cfg.Observability.OTelServiceVersion)
	health.AddCheck("storage", true, backend.base.HealthCheck)
	health.AddCheck("blobs", true, blobs.HealthCheck)
	if backend.cache != nil {
		health.AddCheck("redis", false, backend.cache.Ping)
	}
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, health)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, healthServer)

	scheduler, err := startJobs(ctx, cfg, backend, metrics, logger)
	if err != nil {
		backend.close()
		return err
	}
	shutdown.RegisterShutdownFunc("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if dir := cfg.Taxonomy.ImportDir; dir != "" {
		if err := startImporter(ctx, imp, dir, logger); err != nil {
			backend.close()
			return err
		}
	}

	shutdown.RegisterShutdownFunc("storage", func(context.Context) error {
		cancel()
		return backend.close()
	})
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	serverErrs := make(chan error, 2)
	for _, srv := range []*http.Server{httpServer, healthServer} {
		srv := srv
		go func() {
			logger.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrs <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}()
	}

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	go func() {
		if err := <-serverErrs; err != nil {
			logger.WithError(err).Error("HTTP server failed")
			stopWaiting()
		}
	}()

	if err := shutdown.WaitForShutdown(waitCtx); err != nil {
		return err
	}
	logger.Info("catalog stopped")
	return nil
}

// startImporter loads every taxonomy file under dir, then keeps watching it
func startImporter(ctx context.Context, imp *importer.Importer, dir string, logger *observability.Logger) error {
	results, errs := imp.ImportDir(ctx, dir, 4)
	for _, err := range errs {
		logger.WithError(err).Error("taxonomy import failed")
	}
	for _, res := range results {
		if len(res.Rejected) > 0 {
			logger.WithFields(map[string]interface{}{
				"path":     res.Path,
				"rejected": res.Rejected,
			}).Warn("taxonomy entries rejected")
		}
	}

	watcher, err := importer.NewWatcher(imp, dir, time.Second)
	if err != nil {
		return err
	}
	async.SafeGo(ctx, 0, "taxonomy watcher", watcher.Run)
	return nil
}
