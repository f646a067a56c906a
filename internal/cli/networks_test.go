package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/storage"
	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

func listNetworks(t *testing.T, store storage.Store) map[network.HexID]networkView {
	t.Helper()
	out, err := runCLI(t, store, "networks", "list", "-o", "json")
	require.NoError(t, err)

	var views []networkView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	byID := make(map[network.HexID]networkView, len(views))
	for _, v := range views {
		byID[v.HexID] = v
	}
	return byID
}

func TestNetworksList(t *testing.T) {
	views := listNetworks(t, seededStore(t, nil))

	mainnet := views["0x1"]
	assert.Equal(t, "1", mainnet.ChainID)
	assert.Equal(t, "Ethereum", mainnet.Name)
	assert.True(t, mainnet.Supported)
	assert.Equal(t, "https://ethereum-rpc.publicnode.com", mainnet.RPC)

	assert.False(t, views["0xfa"].Supported)
	assert.Equal(t, network.TypeTestnet, views["0xaa36a7"].Type)
}

func TestNetworksList_StoredOverrideWins(t *testing.T) {
	store := seededStore(t, func(doc *storage.Document) {
		doc.NetworkRPCMap["0x89"] = "https://polygon.example.org"
	})
	assert.Equal(t, "https://polygon.example.org", listNetworks(t, store)["0x89"].RPC)
}

func TestNetworksSetRPC(t *testing.T) {
	store := seededStore(t, nil)

	_, err := runCLI(t, store, "networks", "set-rpc", "0x89", " https://polygon.example.org ")
	require.NoError(t, err)
	assert.Equal(t, "https://polygon.example.org", loadStore(t, store).NetworkRPCMap["0x89"])

	_, err = runCLI(t, store, "networks", "set-rpc", "0x89", "--clear")
	require.NoError(t, err)
	assert.Empty(t, loadStore(t, store).NetworkRPCMap)
}

func TestNetworksSetRPC_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown chain", []string{"0x2a", "https://x.example.org"}, bridgeerr.ErrNetworkNotFound},
		{"bad chain id", []string{"0xzz", "https://x.example.org"}, bridgeerr.ErrInvalidChainID},
		{"url and clear", []string{"0x1", "https://x.example.org", "--clear"}, bridgeerr.ErrInvalidInput},
		{"neither url nor clear", []string{"0x1"}, bridgeerr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore(t, nil)
			_, err := runCLI(t, store, append([]string{"networks", "set-rpc"}, tt.args...)...)
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, loadStore(t, store).NetworkRPCMap)
		})
	}
}

func TestNetworksSetRPC_RejectsNonHTTP(t *testing.T) {
	_, err := runCLI(t, seededStore(t, nil), "networks", "set-rpc", "0x1", "ftp://node.example.org")
	require.ErrorIs(t, err, network.ErrInvalidRPCURL)
}
