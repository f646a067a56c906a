package cli

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/mrz1836/dappbridge/internal/output"
	"github.com/mrz1836/dappbridge/internal/storage"
	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage wallet accounts",
	Long:  `Manage the accounts pages can be connected to.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List wallet accounts",
	Long:    `List wallet accounts. The selected account is marked with an asterisk.`,
	Example: `  dappbridge accounts list`,
	Args:    cobra.NoArgs,
	RunE:    runAccountsList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsAddCmd = &cobra.Command{
	Use:     "add <address>",
	Short:   "Add or relabel an account",
	Long:    `Add a watch address as a wallet account. Adding an existing address updates its label.`,
	Example: `  dappbridge accounts add 0xcd2a3d9f938e13cd947ec05abc7fe734df8dd826 --label main`,
	Args:    cobra.ExactArgs(1),
	RunE:    runAccountsAdd,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountsSelectCmd = &cobra.Command{
	Use:     "select <address>",
	Short:   "Select the default account",
	Long:    `Select the account the wallet UI offers first when a site asks to connect.`,
	Example: `  dappbridge accounts select 0xcd2a3d9f938e13cd947ec05abc7fe734df8dd826`,
	Args:    cobra.ExactArgs(1),
	RunE:    runAccountsSelect,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var accountLabel string

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	accountsCmd.GroupID = groupData
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd, accountsAddCmd, accountsSelectCmd)

	accountsAddCmd.Flags().StringVar(&accountLabel, "label", "", "display label for the account")
}

type accountView struct {
	Address  string `json:"address"`
	Label    string `json:"label,omitempty"`
	Selected bool   `json:"selected"`
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, bridgeerr.WithDetails(bridgeerr.ErrInvalidAddress, map[string]string{"address": raw})
	}
	return common.HexToAddress(raw), nil
}

func runAccountsList(_ *cobra.Command, _ []string) error {
	_, doc, err := loadDocument()
	if err != nil {
		return err
	}

	selected, hasSelected := doc.SelectedAccount()
	views := make([]accountView, 0, len(doc.Accounts))
	for _, a := range doc.SortedAccounts() {
		views = append(views, accountView{
			Address:  a.Address.Hex(),
			Label:    a.Label,
			Selected: hasSelected && a.Address == selected,
		})
	}

	return formatter.Emit(views, func(w io.Writer) error {
		if len(views) == 0 {
			outln(w, "No accounts. Add one with: dappbridge accounts add <address>")
			return nil
		}
		table := output.NewTable("", "ADDRESS", "LABEL")
		for _, v := range views {
			mark := ""
			if v.Selected {
				mark = "*"
			}
			table.AddRow(mark, v.Address, dash(v.Label))
		}
		return table.Render(w)
	})
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	if err := updateDocument(func(doc *storage.Document) error {
		doc.AddAccount(addr, accountLabel)
		return nil
	}); err != nil {
		return err
	}

	logger.Info("cli: account %s added", addr.Hex())
	return output.FormatSuccess(cmd.OutOrStdout(), "added "+addr.Hex(), formatter.Format())
}

func runAccountsSelect(cmd *cobra.Command, args []string) error {
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	err = updateDocument(func(doc *storage.Document) error {
		if !doc.HasAccount(addr) {
			return bridgeerr.WithSuggestion(
				bridgeerr.WithDetails(bridgeerr.ErrAccountNotFound, map[string]string{"address": addr.Hex()}),
				fmt.Sprintf("add it with: dappbridge accounts add %s", addr.Hex()),
			)
		}
		doc.SelectedAddress = &addr
		return nil
	})
	if err != nil {
		return err
	}

	return output.FormatSuccess(cmd.OutOrStdout(), "selected "+addr.Hex(), formatter.Format())
}
