package config

const (
	defaultConfigPath = "~/.config/tenderq/config.toml"

	defaultStateDir  = "~/.local/share/tenderq"
	defaultPDFDir    = "~/.local/share/tenderq/pdf"
	defaultOutputDir = "~/.local/share/tenderq/output"
	defaultLogDir    = "~/.local/share/tenderq/logs"
	defaultMerged    = "~/.local/share/tenderq/fulldata/data.json"

	defaultQueueName  = "gem_tasks"
	defaultStreamName = "pdf_stream"
	defaultGroup      = "pdf_consumers"

	defaultBatchSize          = 500
	defaultProducerInterval   = 10
	defaultMaxAttempts        = 3
	defaultPollTimeout        = 5
	defaultTaskTimeout        = 300
	defaultHeartbeatInterval  = 15
	defaultStaleAfter         = 180
	defaultQueuedStaleAfter   = 600
	defaultSweepInterval      = 30
	defaultClaimIdle          = 300
	defaultFetchTimeout       = 60
	defaultFetchRetries       = 2
	defaultFetchRetryDelay    = 500
	defaultUserAgent          = "tenderq-fetcher/1.0"
	defaultRecentCap          = 80
	defaultErrorBackoff       = 5
	defaultMaxConsecutiveErrs = 10
	defaultNotifyTimeout      = 10
	defaultStorePoll          = 500
	defaultRunWorkers         = 4
	defaultRunPollInterval    = 3
	defaultRunEmptyPolls      = 3
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Transport backends.
const (
	BackendRedis  = "redis"
	BackendNATS   = "nats"
	BackendMemory = "memory"
	BackendStore  = "store"
)

// Transport modes.
const (
	ModeList   = "list"
	ModeStream = "stream"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			PDFDir:     defaultPDFDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			MergedPath: defaultMerged,
		},
		Store: Store{
			Driver:   DriverSQLite,
			MaxConns: 8,
		},
		Transport: Transport{
			Backend:          BackendRedis,
			Mode:             ModeList,
			RedisURL:         "redis://127.0.0.1:6379/0",
			NATSURL:          "nats://127.0.0.1:4222",
			QueueName:        defaultQueueName,
			StreamName:       defaultStreamName,
			Group:            defaultGroup,
			ClaimIdleSeconds: defaultClaimIdle,
			StorePollMillis:  defaultStorePoll,
		},
		Producer: Producer{
			BatchSize:            defaultBatchSize,
			IntervalSeconds:      defaultProducerInterval,
			ErrorBackoffSeconds:  defaultErrorBackoff,
			MaxConsecutiveErrors: defaultMaxConsecutiveErrs,
		},
		Worker: Worker{
			Concurrency:              1,
			PollTimeoutSeconds:       defaultPollTimeout,
			TaskTimeoutSeconds:       defaultTaskTimeout,
			MaxAttempts:              defaultMaxAttempts,
			HeartbeatIntervalSeconds: defaultHeartbeatInterval,
			ErrorBackoffSeconds:      defaultErrorBackoff,
			MaxConsecutiveErrors:     defaultMaxConsecutiveErrs,
		},
		Fetch: Fetch{
			TimeoutSeconds:   defaultFetchTimeout,
			Retries:          defaultFetchRetries,
			RetryDelayMillis: defaultFetchRetryDelay,
			UserAgent:        defaultUserAgent,
		},
		Transform: Transform{
			PDFToText: "pdftotext",
		},
		Sweep: Sweep{
			StaleAfterSeconds:       defaultStaleAfter,
			QueuedStaleAfterSeconds: defaultQueuedStaleAfter,
			IntervalSeconds:         defaultSweepInterval,
		},
		Status: Status{
			RecentCap: defaultRecentCap,
		},
		Notify: Notify{
			RequestTimeoutSeconds: defaultNotifyTimeout,
		},
		Run: Run{
			Workers:             defaultRunWorkers,
			PollIntervalSeconds: defaultRunPollInterval,
			EmptyPolls:          defaultRunEmptyPolls,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
