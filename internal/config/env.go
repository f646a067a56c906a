package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Environment variable names.
const (
	EnvHome              = "DAPPBRIDGE_HOME"
	EnvListen            = "DAPPBRIDGE_LISTEN"
	EnvOrigins           = "DAPPBRIDGE_ORIGINS"
	EnvTraceStdout       = "DAPPBRIDGE_TRACE_STDOUT"
	EnvDefaultNetwork    = "DAPPBRIDGE_DEFAULT_NETWORK"
	EnvETHRPC            = "DAPPBRIDGE_ETH_RPC"
	EnvOutputFormat      = "DAPPBRIDGE_OUTPUT_FORMAT"
	EnvVerbose           = "DAPPBRIDGE_VERBOSE"
	EnvLogLevel          = "DAPPBRIDGE_LOG_LEVEL"
	EnvStoragePassphrase = "DAPPBRIDGE_STORAGE_PASSPHRASE" // #nosec G101 -- false positive, this is a const name not a credential
	EnvNoColor           = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvListen); v != "" {
		cfg.Server.Listen = strings.TrimSpace(v)
	}

	// DAPPBRIDGE_ORIGINS is a comma-separated list of accepted page origins
	if v := os.Getenv(EnvOrigins); v != "" {
		var patterns []string
		for p := range strings.SplitSeq(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		if len(patterns) > 0 {
			cfg.Server.OriginPatterns = patterns
		}
	}

	if v := os.Getenv(EnvDefaultNetwork); v != "" {
		cfg.Bridge.DefaultNetwork = strings.ToLower(strings.TrimSpace(v))
	}

	// DAPPBRIDGE_ETH_RPC overrides the mainnet endpoint
	if v := os.Getenv(EnvETHRPC); v != "" {
		if cfg.Networks.RPCOverrides == nil {
			cfg.Networks.RPCOverrides = map[string]string{}
		}
		cfg.Networks.RPCOverrides[DefaultNetworkHexID] = SanitizeURL(v)
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv(EnvTraceStdout); v != "" {
		cfg.Telemetry.TraceStdout = parseBool(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// StoragePassphrase returns the storage passphrase from the environment, if any.
func StoragePassphrase() (string, bool) {
	v, ok := os.LookupEnv(EnvStoragePassphrase)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL cleans a URL string by removing invalid characters and trimming whitespace.
// This is useful for cleaning user-provided RPC URLs that may contain copy-paste artifacts.
func SanitizeURL(url string) string {
	return sanitize.URL(strings.TrimSpace(url))
}
