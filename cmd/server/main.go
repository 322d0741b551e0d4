// Command server runs the wishlist backend: the REST API, the realtime change
// feed and the retention cleanup.
//
// Configuration comes from the environment (see internal/config), optionally
// seeded from a .env file in the working directory.
package main

import (
	"log/slog"
	"os"

	"github.com/sakif/wishlist/internal/config"
	"github.com/sakif/wishlist/internal/server"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel)

	if err := server.EnsureDBDir(cfg.DBPath); err != nil {
		logger.Error("failed to create database directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
