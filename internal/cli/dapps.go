package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/dappbridge/internal/connection"
	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/output"
	"github.com/mrz1836/dappbridge/internal/storage"
	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

// dappsCmd is the parent command for per-site connection records.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var dappsCmd = &cobra.Command{
	Use:   "dapps",
	Short: "Manage site connections",
	Long:  `Inspect and revoke the connection state recorded for each site hostname.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var dappsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List sites with a recorded state",
	Long:    `List every hostname with a recorded connection state, its account and network.`,
	Example: `  dappbridge dapps list -o json`,
	Args:    cobra.NoArgs,
	RunE:    runDappsList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var dappsShowCmd = &cobra.Command{
	Use:     "show <hostname>",
	Short:   "Show one site's connection state",
	Long:    `Show the connection state recorded for a hostname.`,
	Example: `  dappbridge dapps show app.uniswap.org`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDappsShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var dappsDisconnectCmd = &cobra.Command{
	Use:   "disconnect <hostname>",
	Short: "Revoke a site's account access",
	Long: `Move a site to the disconnected state. The site keeps its network and must
ask for accounts again. Open pages pick the change up on their next reload.`,
	Example: `  dappbridge dapps disconnect app.uniswap.org`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDappsDisconnect,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var dappsForgetCmd = &cobra.Command{
	Use:     "forget <hostname>",
	Short:   "Remove everything recorded for a site",
	Long:    `Delete a site's record so it is treated as never seen before.`,
	Example: `  dappbridge dapps forget app.uniswap.org --yes`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDappsForget,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var forgetYes bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	dappsCmd.GroupID = groupData
	rootCmd.AddCommand(dappsCmd)
	dappsCmd.AddCommand(dappsListCmd, dappsShowCmd, dappsDisconnectCmd, dappsForgetCmd)

	dappsForgetCmd.Flags().BoolVarP(&forgetYes, "yes", "y", false, "skip the confirmation prompt")
}

// dappView is the reportable form of a connection state.
type dappView struct {
	Hostname    string          `json:"hostname"`
	State       connection.Kind `json:"state"`
	Account     string          `json:"account,omitempty"`
	Network     string          `json:"networkHexId,omitempty"`
	ConnectedAt string          `json:"connectedAt,omitempty"`
}

func viewOf(s connection.State) dappView {
	v := dappView{Hostname: s.DApp.Hostname, State: s.Kind}
	if id, ok := s.NetworkHexID(); ok {
		v.Network = id.String()
	}
	if s.Kind == connection.Connected {
		v.Account = s.Address.Hex()
		if s.ConnectedAtMs > 0 {
			v.ConnectedAt = time.UnixMilli(s.ConnectedAtMs).UTC().Format(time.RFC3339)
		}
	}
	return v
}

func (v dappView) cells() []string {
	return []string{v.Hostname, string(v.State), dash(v.Account), dash(v.Network)}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// normalizeHostname accepts a bare hostname or an origin and returns the hostname.
func normalizeHostname(raw string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(raw))
	h = strings.TrimPrefix(strings.TrimPrefix(h, "https://"), "http://")
	h = strings.TrimSuffix(h, "/")
	if i := strings.LastIndex(h, ":"); i >= 0 {
		h = h[:i]
	}
	if h == "" || strings.ContainsAny(h, "/ ?#@") {
		return "", bridgeerr.WithDetails(bridgeerr.ErrInvalidHostname, map[string]string{"hostname": raw})
	}
	return h, nil
}

// recordedState returns the stored state of hostname or ErrDAppNotFound.
func recordedState(doc *storage.Document, hostname string) (connection.State, error) {
	s := doc.ConnectionState(hostname)
	if s.Kind == connection.NotInteracted {
		return s, bridgeerr.WithSuggestion(
			bridgeerr.WithDetails(bridgeerr.ErrDAppNotFound, map[string]string{"hostname": hostname}),
			"list recorded sites with: dappbridge dapps list",
		)
	}
	return s, nil
}

func runDappsList(_ *cobra.Command, _ []string) error {
	_, doc, err := loadDocument()
	if err != nil {
		return err
	}

	views := make([]dappView, 0, len(doc.DApps))
	for _, h := range doc.Hostnames() {
		views = append(views, viewOf(doc.DApps[h]))
	}

	return formatter.Emit(views, func(w io.Writer) error {
		if len(views) == 0 {
			outln(w, "No sites recorded.")
			return nil
		}
		table := output.NewTable("HOSTNAME", "STATE", "ACCOUNT", "NETWORK")
		for _, v := range views {
			table.AddRow(v.cells()...)
		}
		return table.Render(w)
	})
}

func runDappsShow(_ *cobra.Command, args []string) error {
	hostname, err := normalizeHostname(args[0])
	if err != nil {
		return err
	}
	_, doc, err := loadDocument()
	if err != nil {
		return err
	}
	s, err := recordedState(doc, hostname)
	if err != nil {
		return err
	}

	v := viewOf(s)
	return formatter.Emit(v, func(w io.Writer) error {
		out(w, "Hostname:  %s\n", v.Hostname)
		out(w, "State:     %s\n", v.State)
		if v.Account != "" {
			out(w, "Account:   %s\n", v.Account)
		}
		if v.Network != "" {
			name := v.Network
			if n, ok := doc.Networks().Find(network.HexID(v.Network)); ok {
				name = fmt.Sprintf("%s (%s)", n.Name, v.Network)
			}
			out(w, "Network:   %s\n", name)
		}
		if v.ConnectedAt != "" {
			out(w, "Connected: %s\n", v.ConnectedAt)
		}
		return nil
	})
}

func runDappsDisconnect(cmd *cobra.Command, args []string) error {
	hostname, err := normalizeHostname(args[0])
	if err != nil {
		return err
	}
	fallback, err := network.ParseHexID(cfg.GetDefaultNetwork())
	if err != nil {
		return bridgeerr.WithDetails(bridgeerr.ErrConfigInvalid, map[string]string{"bridge.default_network": cfg.GetDefaultNetwork()})
	}

	var next connection.State
	err = updateDocument(func(doc *storage.Document) error {
		s, err := recordedState(doc, hostname)
		if err != nil {
			return err
		}
		next = s.Disconnect(fallback)
		doc.SetConnectionState(next)
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("cli: disconnected %s", hostname)
	return output.FormatSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s is now %s", hostname, next), formatter.Format())
}

func runDappsForget(cmd *cobra.Command, args []string) error {
	hostname, err := normalizeHostname(args[0])
	if err != nil {
		return err
	}
	if !forgetYes && !promptConfirmFn(fmt.Sprintf("Forget everything recorded for %s?", hostname)) {
		return bridgeerr.WithSuggestion(bridgeerr.ErrInvalidInput, "cancelled; pass --yes to skip the prompt")
	}

	err = updateDocument(func(doc *storage.Document) error {
		if _, err := recordedState(doc, hostname); err != nil {
			return err
		}
		doc.SetConnectionState(connection.NewNotInteracted(hostname))
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("cli: forgot %s", hostname)
	return output.FormatSuccess(cmd.OutOrStdout(), "forgot "+hostname, formatter.Format())
}
