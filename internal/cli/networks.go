package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrz1836/dappbridge/internal/config"
	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/output"
	"github.com/mrz1836/dappbridge/internal/storage"
	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "Manage networks and RPC endpoints",
	Long:  `List the networks pages can switch to and override their RPC endpoints.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var networksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List predefined and custom networks",
	Long: `List every network with its chain id, type and the RPC endpoint passive
reads are forwarded to. Storage overrides win over config overrides, which win
over the network default.`,
	Example: `  dappbridge networks list`,
	Args:    cobra.NoArgs,
	RunE:    runNetworksList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var networksSetRPCCmd = &cobra.Command{
	Use:   "set-rpc <chain-id> [url]",
	Short: "Override a network's RPC endpoint",
	Long:  `Store an RPC endpoint override for a network, or remove it with --clear.`,
	Example: `  dappbridge networks set-rpc 0x89 https://polygon.example.org
  dappbridge networks set-rpc 0x89 --clear`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runNetworksSetRPC,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var setRPCClear bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	networksCmd.GroupID = groupData
	rootCmd.AddCommand(networksCmd)
	networksCmd.AddCommand(networksListCmd, networksSetRPCCmd)

	networksSetRPCCmd.Flags().BoolVar(&setRPCClear, "clear", false, "remove the stored override")
}

type networkView struct {
	HexID     network.HexID `json:"hexChainId"`
	ChainID   string        `json:"chainId"`
	Name      string        `json:"name"`
	Type      network.Type  `json:"type"`
	Supported bool          `json:"supported"`
	RPC       string        `json:"rpcUrl,omitempty"`
}

func runNetworksList(_ *cobra.Command, _ []string) error {
	_, doc, err := loadDocument()
	if err != nil {
		return err
	}

	var views []networkView
	for _, n := range doc.Networks().Sorted() {
		v := networkView{
			HexID:     n.HexID,
			ChainID:   n.HexID.Decimal(),
			Name:      n.Name,
			Type:      n.Type,
			Supported: n.Eligible(),
		}
		if u, err := network.Endpoint(n, doc.NetworkRPCMap, cfg.GetRPCOverrides()); err == nil {
			v.RPC = u
		}
		views = append(views, v)
	}

	return formatter.Emit(views, func(w io.Writer) error {
		table := output.NewTable("CHAIN", "ID", "NAME", "TYPE", "SUPPORTED", "RPC")
		for _, v := range views {
			table.AddRow(v.HexID.String(), v.ChainID, v.Name, string(v.Type), strconv.FormatBool(v.Supported), dash(v.RPC))
		}
		return table.Render(w)
	})
}

func runNetworksSetRPC(cmd *cobra.Command, args []string) error {
	id, err := network.ParseHexID(args[0])
	if err != nil {
		return err
	}
	if setRPCClear == (len(args) == 2) {
		return bridgeerr.WithSuggestion(bridgeerr.ErrInvalidInput, "pass either a URL or --clear")
	}

	var rpcURL string
	if !setRPCClear {
		rpcURL = config.SanitizeURL(args[1])
		if err := network.ValidateRPCURL(rpcURL); err != nil {
			return err
		}
	}

	err = updateDocument(func(doc *storage.Document) error {
		if _, ok := doc.Networks().Find(id); !ok {
			return bridgeerr.WithSuggestion(
				bridgeerr.WithDetails(bridgeerr.ErrNetworkNotFound, map[string]string{"chainId": id.String()}),
				"list networks with: dappbridge networks list",
			)
		}
		if setRPCClear {
			delete(doc.NetworkRPCMap, id)
		} else {
			doc.NetworkRPCMap[id] = rpcURL
		}
		return nil
	})
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("%s now uses %s", id, rpcURL)
	if setRPCClear {
		msg = fmt.Sprintf("%s override removed", id)
	}
	logger.Info("cli: %s", msg)
	return output.FormatSuccess(cmd.OutOrStdout(), msg, formatter.Format())
}
