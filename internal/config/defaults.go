package config

// DefaultListen is the default transport listen address.
// Loopback only: pages reach the bridge through the injected script on the same machine.
const DefaultListen = "127.0.0.1:8546"

// DefaultNetworkHexID is Ethereum mainnet.
const DefaultNetworkHexID = "0x1"

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.dappbridge",
		Server: ServerConfig{
			Listen:         DefaultListen,
			OriginPatterns: []string{"*"},
			Metrics:        true,
			WriteTimeoutMs: 5000,
		},
		Bridge: BridgeConfig{
			DefaultNetwork: DefaultNetworkHexID,
			MailboxSize:    64,
		},
		Proxy: ProxyConfig{
			TimeoutSeconds:  30,
			RatePerSecond:   5,
			Burst:           10,
			RetryAttempts:   3,
			BreakerFailures: 5,
		},
		Networks: NetworksConfig{
			RPCOverrides: map[string]string{},
		},
		Storage: StorageConfig{
			File:    "~/.dappbridge/storage.json",
			Encrypt: false,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.dappbridge/dappbridge.log",
		},
		Telemetry: TelemetryConfig{
			TraceStdout: false,
		},
	}
}
