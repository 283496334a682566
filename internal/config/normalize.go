package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeTransport()
	c.normalizeWorker()
	c.normalizeFetch()
	if err := c.normalizeStatus(); err != nil {
		return err
	}
	c.normalizeNotify()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PDFDir) == "" {
		c.Paths.PDFDir = filepath.Join(c.Paths.StateDir, "pdf")
	}
	if c.Paths.PDFDir, err = expandPath(c.Paths.PDFDir); err != nil {
		return fmt.Errorf("paths.pdf_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = filepath.Join(c.Paths.StateDir, "output")
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.MergedPath) == "" {
		c.Paths.MergedPath = filepath.Join(c.Paths.StateDir, "fulldata", "data.json")
	}
	if c.Paths.MergedPath, err = expandPath(c.Paths.MergedPath); err != nil {
		return fmt.Errorf("paths.merged_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	c.Store.DatabaseURL = strings.TrimSpace(c.Store.DatabaseURL)
	if c.Store.DatabaseURL == "" {
		c.Store.DatabaseURL = lookupEnv("TENDERQ_DATABASE_URL", "DATABASE_URL")
	}
	var err error
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = filepath.Join(c.Paths.StateDir, "tenderq.db")
	}
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	if c.Store.MaxConns <= 0 {
		c.Store.MaxConns = 8
	}
	return nil
}

func (c *Config) normalizeTransport() {
	c.Transport.Backend = strings.ToLower(strings.TrimSpace(c.Transport.Backend))
	if c.Transport.Backend == "" {
		c.Transport.Backend = BackendRedis
	}
	c.Transport.Mode = strings.ToLower(strings.TrimSpace(c.Transport.Mode))
	if c.Transport.Mode == "" {
		c.Transport.Mode = ModeList
	}
	if value := lookupEnv("TENDERQ_REDIS_URL", "REDIS_URL"); value != "" {
		c.Transport.RedisURL = value
	}
	if value := lookupEnv("TENDERQ_NATS_URL", "NATS_URL"); value != "" {
		c.Transport.NATSURL = value
	}
	c.Transport.RedisURL = strings.TrimSpace(c.Transport.RedisURL)
	c.Transport.NATSURL = strings.TrimSpace(c.Transport.NATSURL)
	if strings.TrimSpace(c.Transport.QueueName) == "" {
		c.Transport.QueueName = defaultQueueName
	}
	if strings.TrimSpace(c.Transport.StreamName) == "" {
		c.Transport.StreamName = defaultStreamName
	}
	if strings.TrimSpace(c.Transport.Group) == "" {
		c.Transport.Group = defaultGroup
	}
	if c.Transport.StorePollMillis <= 0 {
		c.Transport.StorePollMillis = defaultStorePoll
	}
}

func (c *Config) normalizeWorker() {
	c.Worker.ID = strings.TrimSpace(c.Worker.ID)
	if c.Worker.ID == "" {
		c.Worker.ID = lookupEnv("TENDERQ_WORKER_ID")
	}
	if c.Worker.ID == "" {
		c.Worker.ID = defaultWorkerID()
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 1
	}
}

func (c *Config) normalizeFetch() {
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = defaultUserAgent
	}
	c.Transform.PDFToText = strings.TrimSpace(c.Transform.PDFToText)
}

func (c *Config) normalizeStatus() error {
	var err error
	if strings.TrimSpace(c.Status.Path) == "" {
		c.Status.Path = filepath.Join(c.Paths.StateDir, "status.json")
	}
	if c.Status.Path, err = expandPath(c.Status.Path); err != nil {
		return fmt.Errorf("status.path: %w", err)
	}
	if c.Status.RecentCap <= 0 {
		c.Status.RecentCap = defaultRecentCap
	}
	return nil
}

func (c *Config) normalizeNotify() {
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	if c.Notify.NtfyTopic == "" {
		c.Notify.NtfyTopic = lookupEnv("TENDERQ_NTFY_TOPIC")
	}
	if c.Notify.RequestTimeoutSeconds <= 0 {
		c.Notify.RequestTimeoutSeconds = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
