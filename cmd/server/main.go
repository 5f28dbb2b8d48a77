package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"consentgate/internal/audit"
	"consentgate/internal/consent/metrics"
	"consentgate/internal/consent/models"
	"consentgate/internal/consent/state"
	"consentgate/internal/consent/store"
	"consentgate/internal/loader"
	"consentgate/internal/loader/analytics"
	"consentgate/internal/loader/marketing"
	"consentgate/internal/loader/tracer"
	"consentgate/internal/platform/config"
	"consentgate/internal/platform/health"
	"consentgate/internal/platform/logger"
	httptransport "consentgate/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal packages.
func main() {
	cfg, err := config.Load()
	log := logger.New(cfg.LogLevel)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log.Info("initializing consentgate",
		"addr", cfg.Addr,
		"storage_path", cfg.StoragePath,
		"analytics_configured", cfg.AnalyticsID != "",
		"marketing_configured", cfg.PixelID != "",
	)

	// Durable storage failure degrades to session-only consent, never to a
	// crash: the machine keeps working off its in-memory state.
	var kv store.KV
	sqliteKV, err := store.OpenSQLite(cfg.StoragePath)
	if err != nil {
		log.Warn("durable storage unavailable, consent is session-only", "error", err)
		kv = store.NewMemoryKV()
	} else {
		defer sqliteKV.Close()
		kv = sqliteKV
	}

	mx := metrics.New()

	auditor := audit.NewPublisher(audit.NewInMemoryStore(),
		audit.WithAsyncBuffer(64),
		audit.WithPublisherLogger(log),
	)
	defer auditor.Close()

	recordStore := store.New(kv, store.WithLogger(log))
	machine := state.NewMachine(recordStore,
		state.WithLogger(log),
		state.WithMetrics(mx),
		state.WithAuditor(auditor),
	)

	head := loader.NewHead()
	tr := tracer.NewOTel()

	analyticsLoader := loader.New(loader.Config{
		Vendor:   analytics.New(cfg.AnalyticsID, loader.NewLogShim("analytics", loader.EnsureShim(), log)),
		Document: head,
		Logger:   log,
		Metrics:  mx,
		Tracer:   tr,
	})
	marketingLoader := loader.New(loader.Config{
		Vendor:   marketing.New(cfg.PixelID, loader.NewLogShim("marketing", loader.EnsureShim(), log)),
		Document: head,
		Logger:   log,
		Metrics:  mx,
		Tracer:   tr,
	})

	// The head's load hook is the script tag's load event: once a vendor tag
	// is in, its loader becomes ready and drains any queued events.
	head.OnScriptLoad(func(marker string) {
		ctx := context.Background()
		switch marker {
		case analytics.ScriptMarker:
			analyticsLoader.SignalReady(ctx)
		case marketing.ScriptMarker:
			marketingLoader.SignalReady(ctx)
		}
	})

	// Loaders react to every record change; fan-out is synchronous so consent
	// is applied before any intent returns to its caller.
	machine.Subscribe(func(rec models.Record) {
		ctx := context.Background()
		analyticsLoader.ApplyConsent(ctx, rec.Analytics)
		marketingLoader.ApplyConsent(ctx, rec.Marketing)
	})

	machine.Init(context.Background())

	healthHandler := health.New()
	if sqliteKV != nil {
		healthHandler.RegisterCheck("storage", func() error {
			return sqliteKV.Ping(context.Background())
		})
	}

	router := httptransport.NewRouter(
		httptransport.NewHandler(machine, log),
		healthHandler,
		promhttp.Handler(),
		log,
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
