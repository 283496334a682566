package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tenderq/internal/config"
	"tenderq/internal/logging"
	"tenderq/internal/status"
	"tenderq/internal/store"
	"tenderq/internal/transport"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// logger builds a process logger writing to stdout and <log_dir>/<process>.log.
func (c *commandContext) logger(process string) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg, process)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func (c *commandContext) withStore(ctx context.Context, fn func(store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()
	return fn(s)
}

// openTransport connects the configured transport; s backs the store backend
// and may be nil for every other one.
func (c *commandContext) openTransport(ctx context.Context, consumer string, s store.Store) (transport.Transport, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	t, err := transport.OpenWithStore(ctx, cfg, consumer, s)
	if err != nil {
		return nil, fmt.Errorf("open transport: %w", err)
	}
	return t, nil
}

func (c *commandContext) recorder(logger *slog.Logger) (*status.File, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return status.NewFile(cfg.Status.Path, cfg.Status.RecentCap, logger), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
