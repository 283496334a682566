package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tenderq/internal/config"
	"tenderq/internal/daemon"
	"tenderq/internal/logging"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(os.Getenv(configEnv))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg, "tenderqd")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "build components", "startup_failed", logging.Error(err))
		os.Exit(1)
	}

	d, err := daemon.New(cfg, comps, logger)
	if err != nil {
		closeComponents(comps)
		logging.ErrorWithContext(logger, "create daemon", "startup_failed", logging.Error(err))
		os.Exit(1)
	}

	if err := d.Start(ctx); err != nil {
		_ = d.Close()
		hint := "check the preflight results above"
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			hint = "stop the other tenderqd instance or point state_dir elsewhere"
		}
		logging.ErrorWithContext(logger, "daemon start", "startup_failed",
			logging.Error(err),
			logging.Hint(hint),
		)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
		logger.Info("tenderqd shutting down")
	case <-d.Done():
	}

	runErr := d.Err()
	if err := d.Close(); err != nil {
		logging.WarnWithContext(logger, "close daemon", "shutdown_error", logging.Error(err))
	}
	if runErr != nil {
		logging.ErrorWithContext(logger, "daemon stopped with error", "daemon_failed", logging.Error(runErr))
		os.Exit(1)
	}
}
