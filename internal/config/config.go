// Package config provides configuration management for dappbridge.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Home      string          `yaml:"home"`
	Server    ServerConfig    `yaml:"server"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Networks  NetworksConfig  `yaml:"networks"`
	Storage   StorageConfig   `yaml:"storage"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig defines the page/extension transport settings.
type ServerConfig struct {
	Listen         string   `yaml:"listen"`
	OriginPatterns []string `yaml:"origin_patterns"`
	Metrics        bool     `yaml:"metrics"`
	WriteTimeoutMs int      `yaml:"write_timeout_ms"`
}

// BridgeConfig defines per-page bridge behavior.
type BridgeConfig struct {
	DefaultNetwork string `yaml:"default_network"`
	MailboxSize    int    `yaml:"mailbox_size"`
}

// ProxyConfig defines how passive RPC reads are forwarded.
type ProxyConfig struct {
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	RatePerSecond   float64 `yaml:"rate_per_second"`
	Burst           int     `yaml:"burst"`
	RetryAttempts   int     `yaml:"retry_attempts"`
	BreakerFailures int     `yaml:"breaker_failures"`
}

// NetworksConfig defines RPC endpoint overrides keyed by hex chain id.
// Entries here apply when the storage document carries no override.
type NetworksConfig struct {
	RPCOverrides map[string]string `yaml:"rpc_overrides,omitempty"`
}

// StorageConfig defines where the wallet storage document lives.
type StorageConfig struct {
	File    string `yaml:"file"`
	Encrypt bool   `yaml:"encrypt"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// TelemetryConfig defines tracing settings.
type TelemetryConfig struct {
	TraceStdout bool `yaml:"trace_stdout"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// GetHome returns the dappbridge home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetListen returns the transport listen address.
func (c *Config) GetListen() string {
	return c.Server.Listen
}

// GetDefaultNetwork returns the hex chain id used for hosts with no recorded network.
func (c *Config) GetDefaultNetwork() string {
	return c.Bridge.DefaultNetwork
}

// GetRPCOverrides returns the configured RPC endpoint overrides.
func (c *Config) GetRPCOverrides() map[string]string {
	return c.Networks.RPCOverrides
}

// GetStorageFile returns the storage document path with the home directory expanded.
func (c *Config) GetStorageFile() string {
	if c.Storage.File != "" {
		return ExpandHome(c.Storage.File)
	}
	return filepath.Join(ExpandHome(c.Home), "storage.json")
}

// GetProxyTimeout returns the per-call proxy timeout.
func (c *Config) GetProxyTimeout() time.Duration {
	if c.Proxy.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Proxy.TimeoutSeconds) * time.Second
}

// GetWriteTimeout returns the per-message transport write timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	if c.Server.WriteTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Server.WriteTimeoutMs) * time.Millisecond
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// DefaultHome returns the default dappbridge home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dappbridge"
	}
	return filepath.Join(home, ".dappbridge")
}

// ExpandHome expands a leading "~/" to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
