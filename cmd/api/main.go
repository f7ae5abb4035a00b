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

	"github.com/jwebster45206/story-relay/internal/config"
	"github.com/jwebster45206/story-relay/internal/handlers"
	"github.com/jwebster45206/story-relay/internal/logger"
	"github.com/jwebster45206/story-relay/internal/middleware"
	"github.com/jwebster45206/story-relay/internal/services"
	"github.com/jwebster45206/story-relay/internal/storage"
	"github.com/jwebster45206/story-relay/pkg/scenario"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Story Relay API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"model", services.OpenRouterModel,
		"redis", cfg.RedisURL != "")

	llmService := services.NewOpenRouterService(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, log)
	if !llmService.Configured() {
		log.Warn("OPENROUTER_API_KEY is not set; chat requests will fail until it is")
	}

	store, err := openStorage(cfg, log)
	if err != nil {
		log.Error("Failed to open scenario storage", "error", err)
		os.Exit(1)
	}

	builtin, err := scenario.Builtin()
	if err != nil {
		log.Error("Failed to load built-in scenarios", "error", err)
		os.Exit(1)
	}
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := storage.Seed(seedCtx, store, builtin); err != nil {
		seedCancel()
		log.Error("Failed to seed scenario library", "error", err)
		os.Exit(1)
	}
	seedCancel()
	log.Info("Scenario library ready", "scenarios", len(builtin))

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(store, llmService, log)
	mux.Handle("/health", healthHandler)

	relayHandler := handlers.NewRelayHandler(llmService, log)
	mux.Handle("/api/chat", relayHandler)

	scenarioHandler := handlers.NewScenarioHandler(log, store)
	mux.Handle("/v1/scenarios", scenarioHandler)
	mux.Handle("/v1/scenarios/", scenarioHandler)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.Logger(log, mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout: it would cut off long streams
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}

// openStorage returns the Redis library when REDIS_URL is set and an
// in-memory one otherwise.
func openStorage(cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	if cfg.RedisURL == "" {
		log.Info("REDIS_URL not set, using in-memory scenario library")
		return storage.NewMemoryStorage(), nil
	}

	rs, err := storage.NewRedisStorage(cfg.RedisURL, log)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := rs.WaitForConnection(ctx, 30, 2*time.Second); err != nil {
		_ = rs.Close()
		return nil, err
	}
	return rs, nil
}
