// Package decisionintel is the Decision Intelligence Service lifecycle: a
// network-accessible server that agents consult before, during, and after
// making decisions. It stores each decision as a durable record, retrieves
// precedent via hybrid semantic+keyword search, evaluates guardrails and
// circuit breakers, tracks confidence calibration against observed
// outcomes, and auto-captures the deliberation trace that preceded a
// decision.
//
//	app, err := decisionintel.New(ctx, logger, version)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// internal/* packages never import this package — it is the single place
// every subsystem is wired together.
package decisionintel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tfatykhov/decisionintel/internal/breaker"
	"github.com/tfatykhov/decisionintel/internal/calibration"
	"github.com/tfatykhov/decisionintel/internal/config"
	"github.com/tfatykhov/decisionintel/internal/dispatch"
	"github.com/tfatykhov/decisionintel/internal/embedding"
	"github.com/tfatykhov/decisionintel/internal/graph"
	"github.com/tfatykhov/decisionintel/internal/guardrail"
	"github.com/tfatykhov/decisionintel/internal/mcptransport"
	"github.com/tfatykhov/decisionintel/internal/model"
	"github.com/tfatykhov/decisionintel/internal/retrieval"
	"github.com/tfatykhov/decisionintel/internal/storage"
	"github.com/tfatykhov/decisionintel/internal/telemetry"
	"github.com/tfatykhov/decisionintel/internal/tracker"
	"github.com/tfatykhov/decisionintel/internal/vectorstore"
	"github.com/tfatykhov/decisionintel/migrations"
)

// shutdownHTTPTimeout bounds how long Shutdown waits for in-flight MCP
// requests to drain before the listener is forced closed.
const shutdownHTTPTimeout = 15 * time.Second

// App is the service lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	db           *storage.DB
	tracker      *tracker.Tracker
	breakers     *breaker.Manager
	graph        *graph.Graph
	keyword      *retrieval.Keyword
	vectors      vectorstore.Store // nil when Qdrant is not configured
	httpSrv      *http.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New connects to the database, runs migrations, wires every subsystem
// (Decision Store, Retrieval Engine, Deliberation Tracker, Guardrail
// Engine, Circuit Breaker Manager, Calibration Service, Decision Graph,
// Dispatcher) and the MCP transport, and returns a ready-to-run App. The
// only goroutines it starts are background workers (the Deliberation
// Tracker's TTL sweeper, and the OpenTelemetry exporters when an endpoint is
// configured); it does not accept connections — call Run().
func New(ctx context.Context, logger *slog.Logger, version string) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger.Info("decisionintel starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(ctx, cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("storage: %w", err)
	}

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close(ctx)
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("migrations: %w", err)
	}

	var schemaOK bool
	if err := db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'decisions')`,
	).Scan(&schemaOK); err != nil {
		db.Close(ctx)
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("schema verification: %w", err)
	}
	if !schemaOK {
		db.Close(ctx)
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("critical table 'decisions' does not exist after migration — check that the pgvector extension is created")
	}

	store := storage.NewStore(db, logger)
	embedder := embedding.New(cfg, logger)

	var vectors vectorstore.Store
	if cfg.QdrantURL != "" {
		qdrantStore, err := vectorstore.NewQdrantStore(vectorstore.Config{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			db.Close(ctx)
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("vectorstore: %w", err)
		}
		if err := qdrantStore.Initialize(ctx); err != nil {
			_ = qdrantStore.Close()
			db.Close(ctx)
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("vectorstore initialize: %w", err)
		}
		vectors = qdrantStore
		logger.Info("vectorstore: qdrant enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("vectorstore: disabled (no QDRANT_URL) — retrieval degrades to keyword-only")
	}

	keyword := retrieval.NewKeyword(store)
	if err := keyword.Ensure(ctx); err != nil {
		logger.Warn("keyword index: initial build failed, will retry on next reindex", "error", err)
	}
	retrievalEngine := retrieval.New(store, embedder, vectors, keyword, logger)

	var guardrailSource guardrail.Source = guardrail.StaticSource{}
	if cfg.GuardrailDir != "" {
		guardrailSource = guardrail.FileSource{Dir: cfg.GuardrailDir}
		logger.Info("guardrails: loading from directory", "dir", cfg.GuardrailDir)
	} else {
		logger.Info("guardrails: no documents loaded (no DECISIONINTEL_GUARDRAIL_DIR) — checkGuardrails reports circuit-breaker violations only")
	}
	guardrailEngine := guardrail.New(guardrailSource, store, retrievalEngine, logger)

	breakerJournal, err := storage.OpenJournal(cfg.BreakerJournalPath)
	if err != nil {
		db.Close(ctx)
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("breaker journal: %w", err)
	}
	breakerMgr := breaker.New(breakerJournal, func(scope string) {
		logger.Warn("circuit breaker opened", "scope", scope)
	}, logger)
	breakerMgr.Configure("global", model.BreakerConfig{
		Threshold:  cfg.BreakerThreshold,
		Window:     cfg.BreakerWindow,
		CooldownMs: time.Duration(cfg.BreakerCooldownMs) * time.Millisecond,
	})
	if err := breakerMgr.Replay(); err != nil {
		logger.Warn("breaker journal replay failed — starting with a clean state", "error", err)
	}

	graphJournal, err := storage.OpenJournal(cfg.GraphJournalPath)
	if err != nil {
		db.Close(ctx)
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("graph journal: %w", err)
	}
	decisionGraph := graph.New(store, graphJournal, 0)
	if err := decisionGraph.Replay(); err != nil {
		logger.Warn("decision graph replay failed — starting with an empty graph", "error", err)
	}

	calib := calibration.New(store, cfg.CalibrationBaselineDays)

	trk := tracker.New(cfg.TrackerSessionTTL)

	dispatcher := dispatch.New(store, trk, guardrailEngine, breakerMgr, calib, decisionGraph, retrievalEngine, keyword, embedder, logger)

	mcpSrv := mcptransport.New(dispatcher, logger, version)

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv.MCPServer()))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return &App{
		cfg:          cfg,
		db:           db,
		tracker:      trk,
		breakers:     breakerMgr,
		graph:        decisionGraph,
		keyword:      keyword,
		vectors:      vectors,
		httpSrv:      httpSrv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the background reindex loop and the MCP HTTP listener, then
// blocks until ctx is cancelled or the listener fails. On return, Shutdown
// is called automatically — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	go a.reindexLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops accepting new connections, drains in-flight requests, and
// closes the database pool and OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("decisionintel shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, shutdownHTTPTimeout)
	defer cancel()
	if err := a.httpSrv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	a.tracker.Close()
	if a.vectors != nil {
		if closer, ok := a.vectors.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	_ = a.otelShutdown(context.Background())
	a.db.Close(context.Background())

	a.logger.Info("decisionintel stopped")
	return nil
}

// reindexLoop rebuilds the BM25 keyword index on a fixed interval so newly
// recorded decisions become findable via keyword search without a manual
// reindex call.
func (a *App) reindexLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.ReindexInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Keyword rebuild cost scales with decision count; bound each
			// cycle so a large corpus can't delay shutdown indefinitely.
			opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			a.keyword.Invalidate()
			if err := a.keyword.Ensure(opCtx); err != nil {
				a.logger.Warn("reindex cycle failed", "error", err)
			}
			cancel()
		}
	}
}
