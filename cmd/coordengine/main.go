// coordengine server: provides the HTTP API, manages queue workers, and
// orchestrates coordination analysis processing.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dshield-labs/coordengine/pkg/agent"
	"github.com/dshield-labs/coordengine/pkg/api"
	"github.com/dshield-labs/coordengine/pkg/cache"
	"github.com/dshield-labs/coordengine/pkg/cleanup"
	"github.com/dshield-labs/coordengine/pkg/config"
	"github.com/dshield-labs/coordengine/pkg/database"
	"github.com/dshield-labs/coordengine/pkg/events"
	"github.com/dshield-labs/coordengine/pkg/llm"
	"github.com/dshield-labs/coordengine/pkg/notify"
	"github.com/dshield-labs/coordengine/pkg/queue"
	"github.com/dshield-labs/coordengine/pkg/services"
	"github.com/dshield-labs/coordengine/pkg/state"
	"github.com/dshield-labs/coordengine/pkg/tools"
	"github.com/dshield-labs/coordengine/pkg/version"
	"github.com/dshield-labs/coordengine/pkg/workflow"
)

func main() {
	// Parse command-line flags
	envFile := flag.String("env-file", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envFile)
	}

	// 1. Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting coordengine",
		"version", version.Full(),
		"http_port", cfg.Server.Port,
		"workers", cfg.Queue.WorkerCount)

	ctx := context.Background()

	// 2. Initialize Redis
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load Redis config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()
	slog.Info("Connected to Redis", "addr", dbConfig.Addr)

	// 3. Initialize storage layers
	resultCache := cache.New(dbClient, cfg.Cache)
	limiter := cache.NewLimiter(dbClient, cfg.RateLimit)
	stateStore := state.NewStore(dbClient, cfg.Cache)

	// 4. Create LLM client. Unavailability is non-fatal: analyses degrade to
	// keyword heuristics until the service returns.
	llmClient := llm.NewClient(cfg.LLM).WithCache(resultCache)
	if err := llmClient.Health(ctx); err != nil {
		slog.Warn("LLM service unavailable at startup, analyses will use fallback heuristics",
			"base_url", cfg.LLM.BaseURL, "error", err)
	} else {
		slog.Info("LLM client initialized", "base_url", cfg.LLM.BaseURL, "model", cfg.LLM.Model)
	}

	// 5. Assemble the analysis pipeline
	registry := tools.NewRegistry()
	coordinator := tools.NewCoordinator(registry, resultCache, cfg.Analysis.ToolConcurrency)

	publisher := events.NewPublisher(dbClient)
	engine := workflow.NewEngine(workflow.Stages{
		Orchestrator:     agent.NewOrchestrator(),
		PatternAnalyzer:  agent.NewPatternAnalyzer(llmClient),
		ToolCoordinator:  agent.NewToolCoordinatorStage(coordinator),
		ConfidenceScorer: agent.NewConfidenceScorer(llmClient),
		Enricher:         agent.NewEnricher(resultCache),
	}, stateStore).WithPublisher(publisher)

	notifier := notify.NewCallbackNotifier()
	executor := queue.NewRealAnalysisExecutor(stateStore, resultCache, engine, notifier, publisher)

	// 6. Start worker pool (before HTTP server)
	workerPool := queue.NewWorkerPool(cfg.Queue, executor)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	analysisService := services.NewAnalysisService(stateStore, resultCache, workerPool, cfg.Analysis)

	// Background janitor for the state-store indexes
	cleanupService := cleanup.NewService(cfg.Retention, stateStore)
	cleanupService.Start(ctx)

	slog.Info("Services initialized")

	// 7. Create HTTP server
	httpServer := api.NewServer(cfg, dbClient, analysisService, stateStore, resultCache, limiter, llmClient, workerPool)

	// 8. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Server.Port
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("coordengine started successfully")

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown
	cleanupService.Stop()

	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer workerCancel()

	// Stop worker pool (wait for active analyses to complete)
	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, incomplete analyses will be checkpoint-recovered")
	}

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
