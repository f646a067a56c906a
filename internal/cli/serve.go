package cli

import (
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/dappbridge/internal/bridge"
	"github.com/mrz1836/dappbridge/internal/config"
	"github.com/mrz1836/dappbridge/internal/metrics"
	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/output"
	"github.com/mrz1836/dappbridge/internal/rpc"
	"github.com/mrz1836/dappbridge/internal/telemetry"
	"github.com/mrz1836/dappbridge/internal/transport"
	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the provider bridge",
	Long: `Listen for page and wallet UI WebSocket connections and run one bridge per page.

Endpoints:
  /provider   one WebSocket per page; the Origin header names the site
  /extension  the wallet UI; a newer connection replaces the previous one
  /health     liveness and session counts
  /metrics    Prometheus metrics (server.metrics)`,
	Example: `  dappbridge serve
  dappbridge serve --listen 127.0.0.1:9000 --log-stderr`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	serveListen    string
	serveLogStderr bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	serveCmd.GroupID = groupBridge
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default: server.listen)")
	serveCmd.Flags().BoolVar(&serveLogStderr, "log-stderr", false, "write logs to stderr instead of the log file")
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := bridge.Logger(logger)
	if serveLogStderr {
		log = config.NewWriterLogger(config.ParseLogLevel(cfg.GetLoggingLevel()), cmd.ErrOrStderr())
	}

	if cfg.Telemetry.TraceStdout {
		tp, err := telemetry.StartStdout(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Stop(); err != nil {
				log.Error("serve: flushing traces: %v", err)
			}
		}()
	}

	srv, err := buildServer(log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listen := srv.Addr()
	output.Infof(cmd.ErrOrStderr(), "dappbridge %s listening on %s", FormatVersion(buildInfo), listen)
	log.Info("serve: starting on %s", listen)
	if slices.Contains(cfg.Server.OriginPatterns, "*") {
		output.Warnf(cmd.ErrOrStderr(), "any origin may open a provider session; narrow server.origin_patterns to trusted sites")
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		return bridgeerr.Wrap(err, "serving on %s", listen)
	}
	log.Info("serve: stopped")
	return nil
}

// buildServer wires the storage, the proxy and the metrics into a transport server.
func buildServer(log bridge.Logger) (*transport.Server, error) {
	defaultNetwork, err := network.ParseHexID(cfg.GetDefaultNetwork())
	if err != nil {
		return nil, bridgeerr.WithDetails(bridgeerr.ErrConfigInvalid,
			map[string]string{"bridge.default_network": cfg.GetDefaultNetwork()})
	}

	store, err := cmdCtx.OpenStore()
	if err != nil {
		return nil, err
	}
	// Fail fast on a corrupt or undecryptable file rather than per page.
	if _, err := store.Load(); err != nil {
		return nil, err
	}

	retry := rpc.DefaultRetryConfig()
	if cfg.Proxy.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.Proxy.RetryAttempts
	}
	proxy := rpc.NewProxy(rpc.ProxyConfig{
		Timeout:         cfg.GetProxyTimeout(),
		RatePerSecond:   cfg.Proxy.RatePerSecond,
		Burst:           cfg.Proxy.Burst,
		Retry:           retry,
		BreakerFailures: cfg.Proxy.BreakerFailures,
		Logger:          log,
	})

	m := metrics.Global
	tcfg := transport.Config{
		Listen:         listenAddress(),
		OriginPatterns: cfg.Server.OriginPatterns,
		WriteTimeout:   cfg.GetWriteTimeout(),
		Logger:         log,
		Bridge: bridge.Config{
			Store:          store,
			Forwarder:      proxy,
			Capturer:       bridge.NewLogCapturer(log, m),
			Logger:         log,
			Metrics:        m,
			DefaultNetwork: defaultNetwork,
			RPCOverrides:   cfg.GetRPCOverrides(),
			MailboxSize:    cfg.Bridge.MailboxSize,
			Now:            time.Now,
		},
	}
	if cfg.Server.Metrics {
		tcfg.Gatherer = metrics.NewRegistry(m)
	}
	return transport.New(tcfg), nil
}

func listenAddress() string {
	if serveListen != "" {
		return serveListen
	}
	return cfg.GetListen()
}
