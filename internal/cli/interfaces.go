package cli

import (
	"time"

	"github.com/mrz1836/dappbridge/internal/config"
	"github.com/mrz1836/dappbridge/internal/output"
)

// Compile-time interface checks.
var (
	_ ConfigProvider = (*config.Config)(nil)
	_ LogWriter      = (*config.Logger)(nil)
	_ FormatProvider = (*output.Formatter)(nil)
)

// ConfigProvider provides read access to configuration values.
type ConfigProvider interface {
	// GetHome returns the dappbridge home directory path.
	GetHome() string

	// GetListen returns the transport listen address.
	GetListen() string

	// GetDefaultNetwork returns the network for hosts with none recorded.
	GetDefaultNetwork() string

	// GetRPCOverrides returns configured RPC endpoints keyed by hex chain id.
	GetRPCOverrides() map[string]string

	// GetStorageFile returns the storage document path.
	GetStorageFile() string

	// GetProxyTimeout returns the per-call proxy timeout.
	GetProxyTimeout() time.Duration

	// GetWriteTimeout returns the per-message transport write timeout.
	GetWriteTimeout() time.Duration

	// GetLoggingLevel returns the configured logging level.
	GetLoggingLevel() string

	// GetLoggingFile returns the configured log file path.
	GetLoggingFile() string

	// GetOutputFormat returns the default output format.
	GetOutputFormat() string

	// IsVerbose returns true if verbose output is enabled.
	IsVerbose() bool
}

// LogWriter is the logging surface shared by the bridge, the transport and the CLI.
type LogWriter interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)

	// Close closes the logger and releases resources.
	Close() error
}

// FormatProvider provides output format information.
type FormatProvider interface {
	// Format returns the current output format.
	Format() output.Format
}
