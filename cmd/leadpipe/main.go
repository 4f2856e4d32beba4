// Command leadpipe runs the lead-acquisition pipeline as a single
// long-lived process: load Sources and stage Config from a YAML file,
// wire every stage's Deps, start the Orchestrator, and serve a small
// status/metrics HTTP surface until a signal asks it to drain and exit.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"leadpipe/internal/classifier"
	"leadpipe/internal/config"
	"leadpipe/internal/enricher"
	"leadpipe/internal/exporter"
	"leadpipe/internal/exporter/crmtest"
	"leadpipe/internal/extractor"
	"leadpipe/internal/fetcher"
	"leadpipe/internal/governor"
	"leadpipe/internal/leadmodel"
	"leadpipe/internal/orchestrator"
	"leadpipe/internal/registry"
	"leadpipe/internal/secrets"
	"leadpipe/internal/store"
	"leadpipe/internal/telemetry/metrics"
	"leadpipe/internal/telemetry/tracing"
)

func main() {
	var (
		configPath  string
		statusAddr  string
		postgresDSN string
		redisAddr   string
		hotReload   bool
	)
	flag.StringVar(&configPath, "config", "leadpipe.yaml", "path to the pipeline config file")
	flag.StringVar(&statusAddr, "status-addr", "", "serve /status and /metrics on this address (e.g. :9090)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string; empty uses the in-memory store")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address for the enrichment cache; empty uses an in-process LRU")
	flag.BoolVar(&hotReload, "hot-reload", true, "watch -config and push classifier changes live")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("leadpipe: load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Global.LogLevel)}))

	metricsProvider := buildMetricsProvider(cfg.Global)
	lpMetrics := metrics.New(metricsProvider)

	tracer := tracing.Noop()
	if cfg.Global.TracingEnabled {
		tracer = tracing.New()
	}

	leadStore, closeStore := buildStore(cfg.Store, postgresDSN, logger)
	defer closeStore()

	reg := registry.New()
	for _, s := range cfg.Sources {
		reg.Upsert(s)
	}

	gov := governor.New(cfg.Governor, governor.GopsutilSampler{})
	fetch := fetcher.New(buildTransports(), fetcher.RetryPolicy{
		BaseDelay:   cfg.Orchestrator.RetryBaseDelay,
		MaxDelay:    cfg.Orchestrator.RetryMaxDelay,
		MaxAttempts: cfg.Orchestrator.RetryMaxAttempts,
	}, cfg.Orchestrator.FetchTimeout)
	extract := extractor.New(buildHandlers())
	classify := classifier.New(cfg.Classifier)
	enrich := enricher.New(nil, buildEnrichCache(redisAddr), cfg.Enricher)
	// crmtest.Client stands in for a real crm.Client: the CRM's wire
	// protocol is deliberately out of scope, so this is the only
	// crm.Client implementation in the tree.
	exportSvc := exporter.New(crmtest.New(), cfg.Exporter)

	orch := orchestrator.New(orchestrator.Deps{
		Registry:   reg,
		Governor:   gov,
		Fetcher:    fetch,
		Extractor:  extract,
		Classifier: classify,
		Enricher:   enrich,
		Store:      leadStore,
		Exporter:   exportSvc,
		Logger:     logger,
		Metrics:    lpMetrics,
		Tracer:     tracer,
	}, cfg.Orchestrator)

	var watcher *config.Watcher
	if hotReload {
		watcher, err = config.NewWatcher(configPath, func(next config.Config) {
			classify.Reconfigure(next.Classifier)
			logger.Info("leadpipe: classifier keyword tables reloaded")
		})
		if err != nil {
			logger.Error("leadpipe: hot reload disabled, watcher setup failed", "error", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go watcher.Watch(ctx)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("leadpipe: signal received, draining")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Orchestrator.ShutdownDeadline+5*time.Second)
		defer shutdownCancel()
		if err := orch.Shutdown(shutdownCtx); err != nil {
			logger.Error("leadpipe: shutdown did not drain cleanly", "error", err)
		}
		if watcher != nil {
			_ = watcher.Stop()
		}
		os.Exit(0)
	}()

	if statusAddr != "" {
		go serveStatus(statusAddr, orch, metricsProvider, logger)
	}

	<-ctx.Done()
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildMetricsProvider(g config.GlobalSettings) metrics.Provider {
	switch g.MetricsBackend {
	case "prometheus":
		return metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{})
	case "otel":
		return metrics.NewOTelProvider(metrics.OTelProviderOptions{ServiceName: g.ServiceName})
	default:
		return metrics.Noop()
	}
}

func buildStore(cfg store.Config, dsn string, logger *slog.Logger) (store.LeadStore, func()) {
	if dsn == "" {
		return store.NewMemStore(cfg), func() {}
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		logger.Error("leadpipe: open postgres, falling back to in-memory store", "error", err)
		return store.NewMemStore(cfg), func() {}
	}
	if err := db.Ping(); err != nil {
		logger.Error("leadpipe: ping postgres, falling back to in-memory store", "error", err)
		return store.NewMemStore(cfg), func() {}
	}
	return store.NewPostgresStore(db, cfg), func() { _ = db.Close() }
}

func buildEnrichCache(redisAddr string) enricher.Cache {
	if redisAddr == "" {
		return enricher.NewLRUCache(1024)
	}
	return enricher.NewRedisCache(redis.NewClient(&redis.Options{Addr: redisAddr}))
}

func buildTransports() map[leadmodel.SourceType]fetcher.Transport {
	resolver := secrets.EnvResolver{Prefix: "LEADPIPE_"}
	return map[leadmodel.SourceType]fetcher.Transport{
		leadmodel.SourceTypeFeed:        fetcher.NewFeedTransport(),
		leadmodel.SourceTypeWebPortal:   fetcher.NewWebPortalTransport(30 * time.Second),
		leadmodel.SourceTypeHTMLNews:    fetcher.NewHTMLNewsTransport("leadpipe/1.0", 30*time.Second),
		leadmodel.SourceTypeJSONAPI:     fetcher.NewJSONAPITransport(resolver),
		leadmodel.SourceTypeDocumentAPI: fetcher.NewDocumentAPITransport(),
	}
}

func buildHandlers() map[leadmodel.SourceType]extractor.Handler {
	return map[leadmodel.SourceType]extractor.Handler{
		leadmodel.SourceTypeFeed:        &extractor.FeedHandler{},
		leadmodel.SourceTypeWebPortal:   &extractor.HTMLHandler{},
		leadmodel.SourceTypeHTMLNews:    &extractor.HTMLHandler{},
		leadmodel.SourceTypeJSONAPI:     &extractor.JSONHandler{},
		leadmodel.SourceTypeDocumentAPI: &extractor.DocumentHandler{},
	}
}

func serveStatus(addr string, orch *orchestrator.Orchestrator, mp metrics.Provider, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(orch.Status())
	})
	if pp, ok := mp.(*metrics.PrometheusProvider); ok {
		mux.Handle("/metrics", pp.MetricsHandler())
	}
	logger.Info("leadpipe: status server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("leadpipe: status server exited", "error", err)
	}
}
