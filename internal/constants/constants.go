// Package constants provides shared configuration values used across minerd.
package constants

import "time"

// Configuration file defaults
const (
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "minerd.yaml"

	// EnvPrefix is the prefix for environment variable overrides (MINERD_ADDRESS, ...)
	EnvPrefix = "MINERD"

	// AddressPlaceholder is replaced with the miner address in worker arguments
	AddressPlaceholder = "{{address}}"

	// DefaultMinerAddress is used when the prompt is left empty
	DefaultMinerAddress = "aleo1d5hg2z3ma00382pngntdp68e74zv54jdxy249qhaujhks9c72yrs33ddah"

	// DefaultCommand is the node launch command
	DefaultCommand = "cargo"

	// DefaultStopSignal is sent to the worker first; the node shuts down cleanly on Ctrl+C
	DefaultStopSignal = "SIGINT"

	// DefaultAPIHost is the default host for the status API
	DefaultAPIHost = "127.0.0.1"

	// DefaultAPIPort is the default port for the status API
	DefaultAPIPort = 9090

	// DefaultLogLevel is the default supervisor log level
	DefaultLogLevel = "info"
)

// DefaultArgs is the node argument list. AddressPlaceholder is substituted.
var DefaultArgs = []string{
	"run", "--release", "--",
	"--miner", AddressPlaceholder,
	"--trial",
	"--verbosity", "2",
}

// Timeout and duration defaults
const (
	// DefaultMaxRuntime is how long a worker runs before a forced restart
	DefaultMaxRuntime = 30 * time.Minute

	// DefaultGracePeriod is how long a worker may take to exit after the stop signal
	DefaultGracePeriod = 10 * time.Second

	// DefaultKillWait is how long to wait for exit after SIGKILL
	DefaultKillWait = time.Second

	// DefaultRestartInterval is the pause between two iterations of the loop
	DefaultRestartInterval = 2 * time.Second

	// DefaultSpawnBackoffInitial is the first delay after a failed spawn
	DefaultSpawnBackoffInitial = time.Second

	// DefaultSpawnBackoffMax caps the delay between spawn attempts
	DefaultSpawnBackoffMax = 30 * time.Second

	// DefaultUpdateTimeout bounds a single update check
	DefaultUpdateTimeout = 2 * time.Minute

	// DefaultShutdownTimeout bounds API server shutdown
	DefaultShutdownTimeout = 10 * time.Second

	// OutputDrainTimeout is the maximum time to wait for output readers after the worker exits
	OutputDrainTimeout = 5 * time.Second
)

// Log configuration
const (
	// DefaultLogLimit is the default number of log lines to return
	DefaultLogLimit = 100

	// MaxLogLines is the maximum number of log lines that can be requested
	MaxLogLines = 10000
)

// Buffer sizes
const (
	// DefaultLogBufferSize is the number of worker output lines kept in memory
	DefaultLogBufferSize = 1000

	// DefaultSubscriptionBuffer is the default size for subscription buffers
	DefaultSubscriptionBuffer = 100

	// ScannerBufferSize is the initial buffer size for log line scanning
	ScannerBufferSize = 64 * 1024 // 64KB

	// ScannerMaxBufferSize is the maximum buffer size for log line scanning
	ScannerMaxBufferSize = 1024 * 1024 // 1MB
)
