// Command extrapoints is the command line client of the graduate bonus
// points portal: students submit applications, reviewers work through
// the pending queue and administrators maintain rules and documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gradpush/extrapoints/internal/config"
	"github.com/gradpush/extrapoints/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Logs go to stderr so command output stays clean
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		slog.Error("failed to open state store", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	cli := newCommandLine(cfg, kv, os.Stdin, os.Stdout, logger)
	if err := cli.run(ctx, os.Args[1:]); err != nil {
		if !errors.Is(err, errHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		kv.Close()
		os.Exit(1)
	}
}
