// Command mock-backend serves the portal API locally for development and
// demos. Accounts, applications and the organization tree live in the
// configured KV store.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gradpush/extrapoints/internal/config"
	"github.com/gradpush/extrapoints/internal/mockserver"
	"github.com/gradpush/extrapoints/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("starting mock-backend",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage", cfg.Server.StorageDriver,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	kv, err := storage.Open(initCtx, cfg.MockStorageOptions())
	if err != nil {
		slog.Error("failed to open storage", "driver", cfg.Server.StorageDriver, "error", err)
		os.Exit(1)
	}

	server, err := mockserver.New(initCtx, cfg.Server, kv, logger)
	if err != nil {
		slog.Error("failed to create mock server", "error", err)
		os.Exit(1)
	}

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Disconnect event subscribers before draining requests
	server.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := kv.Close(); err != nil {
		slog.Error("storage close error", "error", err)
	}

	slog.Info("mock-backend stopped")
}
