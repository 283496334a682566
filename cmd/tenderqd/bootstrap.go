package main

import (
	"context"
	"fmt"
	"log/slog"

	"tenderq/internal/config"
	"tenderq/internal/daemon"
	"tenderq/internal/fetch"
	"tenderq/internal/logging"
	"tenderq/internal/notifications"
	"tenderq/internal/status"
	"tenderq/internal/store"
	"tenderq/internal/transform"
	"tenderq/internal/transport"
)

// configEnv names the variable that overrides the config file location.
const configEnv = "TENDERQ_CONFIG"

func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (daemon.Components, error) {
	s, err := store.Open(ctx, cfg)
	if err != nil {
		return daemon.Components{}, fmt.Errorf("open store: %w", err)
	}

	t, err := transport.OpenWithStore(ctx, cfg, cfg.Worker.ID, s)
	if err != nil {
		_ = s.Close()
		return daemon.Components{}, fmt.Errorf("open transport: %w", err)
	}

	transformer := transform.NewFromConfig(cfg, logger)
	if !transformer.SupportsPDF() {
		logging.WarnWithContext(logger, "pdftotext not found; PDF documents will fail to transform", "dependency_missing",
			logging.String("binary", cfg.Transform.PDFToText),
			logging.Hint("install poppler-utils or set transform.pdftotext"),
		)
	}

	return daemon.Components{
		Store:       s,
		Transport:   t,
		Fetcher:     fetch.NewFromConfig(cfg, logger),
		Transformer: transformer,
		Recorder:    status.NewFile(cfg.Status.Path, cfg.Status.RecentCap, logger),
		Notifier:    notifications.NewService(cfg),
	}, nil
}

func closeComponents(comps daemon.Components) {
	if comps.Transport != nil {
		_ = comps.Transport.Close()
	}
	if comps.Store != nil {
		_ = comps.Store.Close()
	}
}
