package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ccheshirecat/volterm/internal/server/app"
	"github.com/ccheshirecat/volterm/internal/server/config"
	"github.com/ccheshirecat/volterm/internal/server/db/sqlite"
	"github.com/ccheshirecat/volterm/internal/shared/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.New("voltermd")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		logger.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}

	daemon, err := app.New(cfg, logger, store, app.Params{})
	if err != nil {
		logger.Error("init app", "error", err)
		_ = store.Close(context.Background())
		os.Exit(1)
	}

	logger.Info("starting", "shell", cfg.Shell, "llm", cfg.LLMURL, "model", cfg.LLMModel)
	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exit", "error", err)
		os.Exit(1)
	}
}
