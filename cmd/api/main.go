package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/paulgrammer/comfyrelay/internal/clock"
	"github.com/paulgrammer/comfyrelay/internal/config"
	"github.com/paulgrammer/comfyrelay/internal/httpapi"
	"github.com/paulgrammer/comfyrelay/internal/jobs"
	"github.com/paulgrammer/comfyrelay/internal/runpod"
	"github.com/paulgrammer/comfyrelay/internal/webhook"
	"github.com/paulgrammer/comfyrelay/internal/workflow"
)

func main() {
	// .env is optional; real env vars always win
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	level := parseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	// Fail fast on a broken template instead of at first request
	tpl, err := workflow.Load(cfg.Workflow.TemplatePath)
	if err != nil {
		slog.Error("workflow template rejected", "error", err)
		os.Exit(1)
	}
	bindings := workflow.Bindings{
		PositiveNode:  cfg.Workflow.PositiveNode,
		SecondaryNode: cfg.Workflow.SecondaryNode,
		NegativeNode:  cfg.Workflow.NegativeNode,
		SamplerNode:   cfg.Workflow.SamplerNode,
	}
	if missing := bindings.Missing(tpl); len(missing) > 0 {
		slog.Warn("workflow bindings not found in template, prompt/seed injection will skip them",
			"missing", missing,
			"text_nodes", tpl.FindByClass("CLIPTextEncode"),
			"sampler_nodes", tpl.FindByClass("KSampler"),
		)
	}

	// Core components
	store := jobs.NewInMemoryStore()
	sender := webhook.NewHTTPSender(time.Duration(cfg.Webhook.TimeoutSec)*time.Second, cfg.Webhook.MaxRetries)
	streamer := jobs.NewProgressStreamer()
	client := runpod.NewClient(cfg.Endpoint.APIBase, cfg.Endpoint.EndpointID, cfg.Endpoint.Token)

	manager, err := jobs.NewManager(jobs.ManagerConfig{
		PoolSize:          cfg.PoolSize,
		TemplatePath:      cfg.Workflow.TemplatePath,
		Bindings:          bindings,
		WebhookURL:        cfg.Webhook.URL,
		SyncPollInterval:  cfg.SyncInterval(),
		SyncPollBudget:    cfg.SyncBudget(),
		AsyncPollInterval: cfg.AsyncInterval(),
		AsyncPollBudget:   cfg.AsyncBudget(),
	}, store, client, sender, streamer)
	if err != nil {
		slog.Error("failed to initialize manager", "error", err)
		os.Exit(1)
	}
	defer manager.Stop()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sweeper := jobs.NewSweeper(store, clock.Real(), cfg.Retention(), cfg.SweepInterval())
	go sweeper.Run(sweepCtx)

	mux := httpapi.NewRouter(manager, streamer)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Blocking generate holds the connection for up to the sync
		// poll budget
		WriteTimeout: cfg.SyncBudget() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr, "endpoint_id", cfg.Endpoint.EndpointID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "INFO", "info":
		return slog.LevelInfo
	case "WARN", "warning", "warn":
		return slog.LevelWarn
	case "ERROR", "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
