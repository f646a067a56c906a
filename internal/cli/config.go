package cli

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/dappbridge/internal/config"
	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/output"
	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify dappbridge configuration settings.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.dappbridge/config.yaml.

An existing file is only replaced when --force is given.`,
	Example: `  dappbridge config init
  dappbridge config init --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:     "show",
	Short:   "Show current configuration",
	Long:    `Display the effective configuration after environment overrides.`,
	Example: `  dappbridge config show -o json`,
	Args:    cobra.NoArgs,
	RunE:    runConfigShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long:  `Get one configuration value by its dotted path.`,
	Example: `  dappbridge config get server.listen
  dappbridge config get networks.rpc_overrides.0x1`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long:  `Set one configuration value by its dotted path and save the file.`,
	Example: `  dappbridge config set bridge.default_network 0x89
  dappbridge config set logging.level debug`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configCmd.GroupID = groupConfig
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configGetCmd, configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

// configField reads and writes one dotted configuration path.
type configField struct {
	get func(c *config.Config) string
	set func(c *config.Config, v string) error
}

const rpcOverridePrefix = "networks.rpc_overrides."

//nolint:gochecknoglobals // static lookup table
var configFields = map[string]configField{
	"home": {
		get: func(c *config.Config) string { return c.Home },
		set: func(c *config.Config, v string) error { c.Home = v; return nil },
	},
	"server.listen": {
		get: func(c *config.Config) string { return c.Server.Listen },
		set: func(c *config.Config, v string) error { c.Server.Listen = v; return nil },
	},
	"server.metrics": {
		get: func(c *config.Config) string { return strconv.FormatBool(c.Server.Metrics) },
		set: func(c *config.Config, v string) error { return setBool(&c.Server.Metrics, v) },
	},
	"server.write_timeout_ms": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Server.WriteTimeoutMs) },
		set: func(c *config.Config, v string) error { return setPositiveInt(&c.Server.WriteTimeoutMs, v) },
	},
	"bridge.default_network": {
		get: func(c *config.Config) string { return c.Bridge.DefaultNetwork },
		set: func(c *config.Config, v string) error {
			id, err := network.ParseHexID(v)
			if err != nil {
				return err
			}
			if _, ok := network.NewMap(nil).Find(id); !ok {
				return bridgeerr.WithDetails(bridgeerr.ErrNetworkNotFound, map[string]string{"chainId": id.String()})
			}
			c.Bridge.DefaultNetwork = id.String()
			return nil
		},
	},
	"bridge.mailbox_size": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Bridge.MailboxSize) },
		set: func(c *config.Config, v string) error { return setPositiveInt(&c.Bridge.MailboxSize, v) },
	},
	"proxy.timeout_seconds": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Proxy.TimeoutSeconds) },
		set: func(c *config.Config, v string) error { return setPositiveInt(&c.Proxy.TimeoutSeconds, v) },
	},
	"proxy.rate_per_second": {
		get: func(c *config.Config) string { return strconv.FormatFloat(c.Proxy.RatePerSecond, 'f', -1, 64) },
		set: func(c *config.Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 {
				return invalidValue(v, "a non-negative number")
			}
			c.Proxy.RatePerSecond = f
			return nil
		},
	},
	"proxy.burst": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Proxy.Burst) },
		set: func(c *config.Config, v string) error { return setPositiveInt(&c.Proxy.Burst, v) },
	},
	"proxy.retry_attempts": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Proxy.RetryAttempts) },
		set: func(c *config.Config, v string) error { return setPositiveInt(&c.Proxy.RetryAttempts, v) },
	},
	"proxy.breaker_failures": {
		get: func(c *config.Config) string { return strconv.Itoa(c.Proxy.BreakerFailures) },
		set: func(c *config.Config, v string) error { return setPositiveInt(&c.Proxy.BreakerFailures, v) },
	},
	"storage.file": {
		get: func(c *config.Config) string { return c.Storage.File },
		set: func(c *config.Config, v string) error { c.Storage.File = v; return nil },
	},
	"storage.encrypt": {
		get: func(c *config.Config) string { return strconv.FormatBool(c.Storage.Encrypt) },
		set: func(c *config.Config, v string) error { return setBool(&c.Storage.Encrypt, v) },
	},
	"output.default_format": {
		get: func(c *config.Config) string { return c.Output.DefaultFormat },
		set: func(c *config.Config, v string) error {
			return setOneOf(&c.Output.DefaultFormat, v, "text", "json", "auto")
		},
	},
	"output.color": {
		get: func(c *config.Config) string { return c.Output.Color },
		set: func(c *config.Config, v string) error {
			return setOneOf(&c.Output.Color, v, "auto", "always", "never")
		},
	},
	"output.verbose": {
		get: func(c *config.Config) string { return strconv.FormatBool(c.Output.Verbose) },
		set: func(c *config.Config, v string) error { return setBool(&c.Output.Verbose, v) },
	},
	"logging.level": {
		get: func(c *config.Config) string { return c.Logging.Level },
		set: func(c *config.Config, v string) error {
			return setOneOf(&c.Logging.Level, v, "off", "error", "info", "debug")
		},
	},
	"logging.file": {
		get: func(c *config.Config) string { return c.Logging.File },
		set: func(c *config.Config, v string) error { c.Logging.File = v; return nil },
	},
	"telemetry.trace_stdout": {
		get: func(c *config.Config) string { return strconv.FormatBool(c.Telemetry.TraceStdout) },
		set: func(c *config.Config, v string) error { return setBool(&c.Telemetry.TraceStdout, v) },
	},
}

func invalidValue(v, valid string) error {
	return bridgeerr.WithDetails(bridgeerr.ErrInvalidFormat, map[string]string{"value": v, "valid": valid})
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return invalidValue(v, "true or false")
	}
	*dst = b
	return nil
}

func setPositiveInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return invalidValue(v, "a positive integer")
	}
	*dst = n
	return nil
}

func setOneOf(dst *string, v string, valid ...string) error {
	if !slices.Contains(valid, v) {
		return invalidValue(v, strings.Join(valid, ", "))
	}
	*dst = v
	return nil
}

func unknownKey(path string) error {
	return bridgeerr.WithSuggestion(
		bridgeerr.WithDetails(bridgeerr.ErrUnknownConfigKey, map[string]string{"path": path}),
		fmt.Sprintf("configuration path '%s' not found", path),
	)
}

// getConfigValue retrieves a value from the config using dot notation.
func getConfigValue(c *config.Config, path string) (string, error) {
	if id, ok := strings.CutPrefix(path, rpcOverridePrefix); ok {
		hex, err := network.ParseHexID(id)
		if err != nil {
			return "", err
		}
		return c.Networks.RPCOverrides[hex.String()], nil
	}
	f, ok := configFields[path]
	if !ok {
		return "", unknownKey(path)
	}
	return f.get(c), nil
}

// setConfigValue sets a value in the config using dot notation.
func setConfigValue(c *config.Config, path, value string) error {
	if id, ok := strings.CutPrefix(path, rpcOverridePrefix); ok {
		hex, err := network.ParseHexID(id)
		if err != nil {
			return err
		}
		if c.Networks.RPCOverrides == nil {
			c.Networks.RPCOverrides = map[string]string{}
		}
		if value == "" {
			delete(c.Networks.RPCOverrides, hex.String())
			return nil
		}
		u := config.SanitizeURL(value)
		if err := network.ValidateRPCURL(u); err != nil {
			return err
		}
		c.Networks.RPCOverrides[hex.String()] = u
		return nil
	}
	f, ok := configFields[path]
	if !ok {
		return unknownKey(path)
	}
	return f.set(c, strings.TrimSpace(value))
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	configPath := config.Path(cfg.Home)

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return bridgeerr.WithSuggestion(
			bridgeerr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", configPath),
		)
	}

	defaultCfg := config.Defaults()
	defaultCfg.Home = cfg.Home
	if err := config.Save(defaultCfg, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - server.listen: address pages and the wallet UI connect to")
	outln(w, "  - bridge.default_network: network for sites with none recorded")
	outln(w, "  - networks.rpc_overrides: RPC endpoints keyed by hex chain id")
	outln(w, "  - storage.encrypt: seal the storage file with a passphrase")
	return nil
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	values := make(map[string]string, len(configFields)+len(cfg.Networks.RPCOverrides))
	for p, f := range configFields {
		values[p] = f.get(cfg)
	}
	for id, u := range cfg.Networks.RPCOverrides {
		values[rpcOverridePrefix+id] = u
	}

	return formatter.Emit(values, func(w io.Writer) error {
		table := output.NewTable("KEY", "VALUE")
		for _, p := range slices.Sorted(maps.Keys(values)) {
			table.AddRow(p, dash(values[p]))
		}
		return table.Render(w)
	})
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	value, err := getConfigValue(cfg, args[0])
	if err != nil {
		return err
	}
	outln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path, value := args[0], args[1]

	configPath := config.Path(cfg.Home)
	current, err := config.Load(configPath)
	if err != nil {
		// If file doesn't exist, start with defaults
		current = config.Defaults()
		current.Home = cfg.Home
	}

	if err := setConfigValue(current, path, value); err != nil {
		return err
	}
	if err := config.Save(current, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	out(cmd.OutOrStdout(), "Set %s = %s\n", path, value)
	return nil
}
