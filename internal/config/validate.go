package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("store.database_url is required for postgres. Set TENDERQ_DATABASE_URL or edit %s (create with 'tenderq config init')", defaultPath)
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q (want sqlite or postgres)", c.Store.Driver)
	}
	return nil
}

func (c *Config) validateTransport() error {
	switch c.Transport.Mode {
	case ModeList, ModeStream:
	default:
		return fmt.Errorf("transport.mode: unsupported value %q (want list or stream)", c.Transport.Mode)
	}
	switch c.Transport.Backend {
	case BackendRedis:
		if c.Transport.RedisURL == "" {
			return errors.New("transport.redis_url must be set when transport.backend is redis")
		}
	case BackendNATS:
		if c.Transport.NATSURL == "" {
			return errors.New("transport.nats_url must be set when transport.backend is nats")
		}
	case BackendMemory, BackendStore:
		if c.Transport.Mode != ModeList {
			return fmt.Errorf("transport.backend %s only supports list mode", c.Transport.Backend)
		}
	default:
		return fmt.Errorf("transport.backend: unsupported value %q (want redis, nats, memory, or store)", c.Transport.Backend)
	}
	if c.Transport.ClaimIdleSeconds < 0 {
		return errors.New("transport.claim_idle_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateTiming() error {
	if err := ensurePositiveMap(map[string]int{
		"producer.batch_size":               c.Producer.BatchSize,
		"producer.interval_seconds":         c.Producer.IntervalSeconds,
		"producer.error_backoff_seconds":    c.Producer.ErrorBackoffSeconds,
		"producer.max_consecutive_errors":   c.Producer.MaxConsecutiveErrors,
		"worker.poll_timeout_seconds":       c.Worker.PollTimeoutSeconds,
		"worker.task_timeout_seconds":       c.Worker.TaskTimeoutSeconds,
		"worker.max_attempts":               c.Worker.MaxAttempts,
		"worker.heartbeat_interval_seconds": c.Worker.HeartbeatIntervalSeconds,
		"worker.error_backoff_seconds":      c.Worker.ErrorBackoffSeconds,
		"worker.max_consecutive_errors":     c.Worker.MaxConsecutiveErrors,
		"fetch.timeout_seconds":             c.Fetch.TimeoutSeconds,
		"sweep.stale_after_seconds":         c.Sweep.StaleAfterSeconds,
		"sweep.interval_seconds":            c.Sweep.IntervalSeconds,
		"run.workers":                       c.Run.Workers,
		"run.poll_interval_seconds":         c.Run.PollIntervalSeconds,
		"run.empty_polls":                   c.Run.EmptyPolls,
	}); err != nil {
		return err
	}
	if c.Fetch.Retries < 0 {
		return errors.New("fetch.retries must be >= 0")
	}
	if c.Fetch.RetryDelayMillis < 0 {
		return errors.New("fetch.retry_delay_ms must be >= 0")
	}
	if c.Sweep.QueuedStaleAfterSeconds < 0 {
		return errors.New("sweep.queued_stale_after_seconds must be >= 0")
	}
	if c.Sweep.StaleAfterSeconds <= c.Worker.HeartbeatIntervalSeconds {
		return errors.New("sweep.stale_after_seconds must be greater than worker.heartbeat_interval_seconds")
	}
	if c.Transform.MinConfidence < 0 || c.Transform.MinConfidence > 1 {
		return errors.New("transform.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateNotify() error {
	topic := c.Notify.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notify.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
