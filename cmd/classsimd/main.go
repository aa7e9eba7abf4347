// Classroom simulation server — provides the HTTP API, the realtime
// WebSocket namespaces, and the turn orchestrator.
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

	"github.com/joho/godotenv"

	"github.com/edusim/classsim/pkg/api"
	"github.com/edusim/classsim/pkg/classroom"
	"github.com/edusim/classsim/pkg/config"
	"github.com/edusim/classsim/pkg/database"
	"github.com/edusim/classsim/pkg/events"
	"github.com/edusim/classsim/pkg/llm"
	"github.com/edusim/classsim/pkg/memory"
	"github.com/edusim/classsim/pkg/orchestrator"
	"github.com/edusim/classsim/pkg/version"
)

const wsWriteTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	slog.Info("Starting classsim", "version", version.Full())

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Classroom read model: PostgreSQL, or the built-in demo roster in dev mode.
	var classrooms classroom.Store
	var dbClient *database.Client
	if cfg.SkipDatabase {
		classrooms = classroom.NewStaticStore(classroom.DemoClassroom())
		slog.Info("Database skipped, serving the built-in demo classroom")
	} else {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		classrooms = classroom.NewPGStore(dbClient.Pool())
		slog.Info("Connected to PostgreSQL database")
	}

	// LLM tool: Gemini in production, the deterministic mock in dev mode.
	var tool llm.Tool
	if cfg.LLMMock {
		tool = llm.NewMock("")
		slog.Info("Using mock LLM tool")
	} else {
		gemini, err := llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		})
		if err != nil {
			slog.Error("Failed to initialize Gemini client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := gemini.Close(); err != nil {
				slog.Error("Error closing Gemini client", "error", err)
			}
		}()
		tool = gemini
		slog.Info("Gemini client initialized", "model", cfg.GeminiModel)
	}

	connManager := events.NewConnectionManager(wsWriteTimeout)
	service := orchestrator.NewService(memory.NewStore(), classrooms, tool, connManager)
	connManager.SetWhisperHandler(func(_ context.Context, sessionID, hint string) error {
		return service.SubmitSupervisorHint(sessionID, hint)
	})

	server := api.NewServer(service, connManager, cfg.CORSOrigins)
	if dbClient != nil {
		server.SetDatabaseClient(dbClient)
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
