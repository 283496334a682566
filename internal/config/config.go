package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"tenderq/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	PDFDir    string `toml:"pdf_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`

	// MergedPath receives every result document merged into one JSON object.
	MergedPath string `toml:"merged_path"`
}

// Store selects and configures the durable work store.
type Store struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	DatabaseURL string `toml:"database_url"`
	MaxConns    int    `toml:"max_conns"`
}

// Transport selects the queue backend and delivery mode.
type Transport struct {
	Backend          string `toml:"backend"`
	Mode             string `toml:"mode"`
	RedisURL         string `toml:"redis_url"`
	NATSURL          string `toml:"nats_url"`
	QueueName        string `toml:"queue_name"`
	StreamName       string `toml:"stream_name"`
	Group            string `toml:"group"`
	ClaimIdleSeconds int    `toml:"claim_idle_seconds"`
	// StorePollMillis is the idle poll cadence of the store backend.
	StorePollMillis  int    `toml:"store_poll_ms"`
}

// Producer contains batch selection settings.
type Producer struct {
	BatchSize            int `toml:"batch_size"`
	IntervalSeconds      int `toml:"interval_seconds"`
	ErrorBackoffSeconds  int `toml:"error_backoff_seconds"`
	MaxConsecutiveErrors int `toml:"max_consecutive_errors"`
}

// Worker contains consumer settings.
type Worker struct {
	ID                       string `toml:"id"`
	Concurrency              int    `toml:"concurrency"`
	PollTimeoutSeconds       int    `toml:"poll_timeout_seconds"`
	TaskTimeoutSeconds       int    `toml:"task_timeout_seconds"`
	MaxAttempts              int    `toml:"max_attempts"`
	HeartbeatIntervalSeconds int    `toml:"heartbeat_interval_seconds"`
	ErrorBackoffSeconds      int    `toml:"error_backoff_seconds"`
	MaxConsecutiveErrors     int    `toml:"max_consecutive_errors"`
}

// Fetch contains document download settings.
type Fetch struct {
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	Retries          int    `toml:"retries"`
	RetryDelayMillis int    `toml:"retry_delay_ms"`
	UserAgent        string `toml:"user_agent"`
}

// Transform contains field extraction settings.
type Transform struct {
	PDFToText     string  `toml:"pdftotext"`
	MinConfidence float64 `toml:"min_confidence"`
}

// Sweep contains stale claim recovery settings.
type Sweep struct {
	StaleAfterSeconds       int `toml:"stale_after_seconds"`
	QueuedStaleAfterSeconds int `toml:"queued_stale_after_seconds"`
	IntervalSeconds         int `toml:"interval_seconds"`
}

// Status contains aggregate status document settings.
type Status struct {
	Path      string `toml:"path"`
	RecentCap int    `toml:"recent_cap"`
}

// Notify contains ntfy notification settings. An empty topic disables notifications.
type Notify struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Run contains settings for the one-shot pipeline run.
type Run struct {
	Workers             int `toml:"workers"`
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	EmptyPolls          int `toml:"empty_polls"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tenderq.
//
// Configuration sections by subsystem:
//   - Paths: state, document, output, and log directories
//   - Store: work store driver (sqlite or postgres)
//   - Transport: queue backend (redis, nats, memory, store) and mode (list or stream)
//   - Producer: batch size and polling cadence
//   - Worker: identity, concurrency, timeouts, and retry limit
//   - Fetch: download timeout and retries
//   - Transform: text extraction settings
//   - Sweep: stale claim recovery
//   - Status: aggregate status document
//   - Notify: ntfy alerts for exhausted items and daemon failures
//   - Run: worker count and drain detection for tenderq run
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Store     Store     `toml:"store"`
	Transport Transport `toml:"transport"`
	Producer  Producer  `toml:"producer"`
	Worker    Worker    `toml:"worker"`
	Fetch     Fetch     `toml:"fetch"`
	Transform Transform `toml:"transform"`
	Sweep     Sweep     `toml:"sweep"`
	Status    Status    `toml:"status"`
	Notify    Notify    `toml:"notify"`
	Run       Run       `toml:"run"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tenderq.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories workers and the producer write into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.PDFDir, c.Paths.OutputDir, c.Paths.LogDir}
	if c.Paths.MergedPath != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.MergedPath))
	}
	if c.Store.Driver == DriverSQLite && c.Store.SQLitePath != "" {
		dirs = append(dirs, filepath.Dir(c.Store.SQLitePath))
	}
	if c.Status.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Status.Path))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollTimeout is how long a worker blocks on the transport before reporting idle.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Worker.PollTimeoutSeconds) * time.Second
}

// TaskTimeout bounds one fetch and transform cycle.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Worker.TaskTimeoutSeconds) * time.Second
}

// StaleAfter is the claim age after which the sweep reclaims a processing item.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Sweep.StaleAfterSeconds) * time.Second
}

// StorePollInterval is how often the store backend looks for claimable rows.
func (c *Config) StorePollInterval() time.Duration {
	return time.Duration(c.Transport.StorePollMillis) * time.Millisecond
}

// QueuedStaleAfter is the age after which a queued item is handed back to the producer.
// Zero disables the stranded queued sweep.
func (c *Config) QueuedStaleAfter() time.Duration {
	return time.Duration(c.Sweep.QueuedStaleAfterSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// ErrSampleExists is returned by CreateSample when path is already taken.
var ErrSampleExists = errors.New("config file already exists")

// Sample returns the annotated sample configuration.
func Sample() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path. An existing file is
// only replaced when overwrite is set.
func CreateSample(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w at %s", ErrSampleExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("check config path: %w", err)
		}
	}
	if err := fileutil.WriteAtomic(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	var b strings.Builder
	enc := toml.NewEncoder(&b)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return b.String(), nil
}
