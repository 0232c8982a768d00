package main

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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sipdeck/sipdeck/internal/ai"
	"github.com/sipdeck/sipdeck/internal/api"
	"github.com/sipdeck/sipdeck/internal/api/middleware"
	"github.com/sipdeck/sipdeck/internal/call"
	"github.com/sipdeck/sipdeck/internal/config"
	"github.com/sipdeck/sipdeck/internal/database"
	"github.com/sipdeck/sipdeck/internal/engine"
	"github.com/sipdeck/sipdeck/internal/history"
	"github.com/sipdeck/sipdeck/internal/metrics"
	"github.com/sipdeck/sipdeck/internal/recording"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting sipdeck",
		"http_port", cfg.HTTPPort,
		"sip_domain", cfg.SIP.Domain,
		"sip_username", cfg.SIP.Username,
		"data_dir", cfg.DataDir,
	)

	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	callRepo := database.NewCallRepository(db)
	contactRepo := database.NewContactRepository(db)
	adminRepo := database.NewAdminUserRepository(db)

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Post-call analytics pipeline. Optional; without an AI service URL
	// call records stay in the "skipped" state.
	var pipeline *ai.Pipeline
	var analytics history.Enqueuer
	if cfg.AIEnabled() {
		client := ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey)
		pipeline = ai.NewPipeline(client, callRepo, logger)
		pipeline.Start(appCtx)
		analytics = pipeline
		slog.Info("analytics pipeline enabled", "url", cfg.AIBaseURL)
	} else {
		slog.Info("analytics pipeline disabled, no ai-url configured")
	}

	recorder := history.NewRecorder(callRepo, analytics, logger)

	// SIP engine and call controller reference each other, so construction
	// happens in two steps.
	eng, err := engine.New(cfg.SIP, cfg.RecordingDir(), cfg.AutoRecord, logger)
	if err != nil {
		slog.Error("failed to create sip engine", "error", err)
		os.Exit(1)
	}
	ctrl := call.NewController(eng, call.Options{
		Domain:       cfg.SIP.Domain,
		OnTerminated: recorder.HandleTerminated,
		Logger:       logger,
	})
	eng.SetEvents(ctrl)

	if err := eng.Start(appCtx); err != nil {
		slog.Error("failed to start sip engine", "error", err)
		os.Exit(1)
	}

	recording.StartCleanupTicker(appCtx, callRepo, cfg.RetentionDays, time.Hour)

	// Prometheus collector over a private registry.
	var analyticsStats metrics.AnalyticsStatsProvider
	if pipeline != nil {
		analyticsStats = pipeline
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(ctrl, ctrl, callRepo, analyticsStats, time.Now()))
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("invalid jwt secret", "error", err)
		os.Exit(1)
	}

	handler := api.NewServer(cfg, ctrl, callRepo, contactRepo, adminRepo, jwtSecret, metricsHandler)
	defer handler.Close()
	middleware.StartCleanupTicker(appCtx, handler.Sessions(), 15*time.Minute)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")

	// Hang up any live call so the record is persisted before the engine
	// goes away.
	if err := ctrl.Hangup(ctx); err != nil {
		slog.Warn("failed to hang up on shutdown", "error", err)
	}
	eng.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// Let queued analytics jobs finish their current step.
	appCancel()
	if pipeline != nil {
		pipeline.Wait()
	}

	slog.Info("sipdeck stopped")
}
