// Lucia orchestrator server: routes user utterances across agents, persists
// conversations as durable tasks, and streams pipeline events to dashboards.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/lucia-home/lucia/pkg/a2a"
	"github.com/lucia-home/lucia/pkg/agent"
	"github.com/lucia-home/lucia/pkg/api"
	"github.com/lucia-home/lucia/pkg/config"
	"github.com/lucia-home/lucia/pkg/events"
	"github.com/lucia-home/lucia/pkg/llm"
	"github.com/lucia-home/lucia/pkg/llm/openai"
	"github.com/lucia-home/lucia/pkg/orchestrator"
	"github.com/lucia-home/lucia/pkg/registry"
	"github.com/lucia-home/lucia/pkg/taskstore"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("LUCIA_CONFIG", "./deploy/lucia.yaml"),
		"Path to the configuration file")
	flag.Parse()

	// Load .env from the config directory before reading the config, since
	// the YAML may reference environment variables.
	envPath := filepath.Join(filepath.Dir(*configPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Durable store. The Redis client dials lazily; a store outage
	// degrades requests to in-memory contexts instead of failing startup.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("Redis not reachable at startup, tasks will not persist until it returns",
			"addr", cfg.Redis.Address, "error", err)
	} else {
		slog.Info("Connected to Redis", "addr", cfg.Redis.Address)
	}
	pingCancel()

	store := taskstore.New(taskstore.NewRedisKV(rdb))

	// 3. Chat client
	chatClient, err := openai.New(cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		slog.Error("Failed to initialize chat client", "error", err)
		os.Exit(1)
	}
	clients := llm.Clients{llm.DefaultClientKey: chatClient}
	slog.Info("Chat client initialized", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	// 4. Agent registry
	reg, err := registry.New(cfg.Agents)
	if err != nil {
		slog.Error("Failed to build agent registry", "error", err)
		os.Exit(1)
	}
	slog.Info("Agent registry built", "agents", reg.Count())

	// 5. Observer bus and live delivery
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	liveStream := events.NewLiveStream(cfg.Events.BufferSize)
	bus.Subscribe(liveStream.Handle)

	connManager := events.NewConnectionManager(cfg.EventWriteTimeout)
	go connManager.Pump(ctx, liveStream)

	// 6. Engine
	engine, err := orchestrator.New(orchestrator.Config{
		Store:             store,
		Bus:               bus,
		Registry:          reg,
		Clients:           clients,
		Deliverer:         a2a.NewClient(),
		LocalAgents:       map[string]agent.LocalAgent{},
		RouterOptions:     cfg.Router,
		WrapperOptions:    cfg.Wrapper,
		AggregatorOptions: cfg.Aggregator,
		SessionCache:      cfg.SessionCache,
	})
	if err != nil {
		slog.Error("Failed to build engine", "error", err)
		os.Exit(1)
	}

	// 7. HTTP server
	server := api.NewServer(engine, connManager,
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		cfg.Server.AllowedWSOrigins)

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Lucia started successfully", "agents", reg.Count())

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
