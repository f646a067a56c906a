package storage

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/dappbridge/internal/connection"
	"github.com/mrz1836/dappbridge/internal/network"
)

var (
	addrA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	addrB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestDocument_Accounts(t *testing.T) {
	t.Parallel()

	doc := NewDocument()
	_, ok := doc.SelectedAccount()
	assert.False(t, ok)

	doc.AddAccount(addrB, " savings ")
	doc.AddAccount(addrA, "main")

	selected, ok := doc.SelectedAccount()
	require.True(t, ok)
	assert.Equal(t, addrB, selected, "first account added becomes selected")
	assert.Equal(t, "savings", doc.Accounts[addrB].Label)

	sorted := doc.SortedAccounts()
	require.Len(t, sorted, 2)
	assert.Equal(t, addrA, sorted[0].Address)

	delete(doc.Accounts, addrB)
	_, ok = doc.SelectedAccount()
	assert.False(t, ok, "selection pointing at a removed account is ignored")
}

func TestDocument_ConnectionStates(t *testing.T) {
	t.Parallel()

	doc := NewDocument()
	assert.Equal(t, connection.NotInteracted, doc.ConnectionState("a.example").Kind)

	doc.SetConnectionState(connection.NewDisconnected("a.example", "0x1"))
	doc.SetConnectionState(connection.NewConnectedToMetaMask("b.example"))
	assert.Equal(t, []string{"a.example", "b.example"}, doc.Hostnames())

	doc.SetConnectionState(connection.NewNotInteracted("a.example"))
	assert.Equal(t, []string{"b.example"}, doc.Hostnames())
}

func TestDocument_HostnameFollowsMapKey(t *testing.T) {
	t.Parallel()

	doc, err := decode([]byte(`{"dApps":{"app.example.org":{"type":"disconnected","networkHexId":"0x1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "app.example.org", doc.DApps["app.example.org"].DApp.Hostname)

	moved, ok := doc.ConnectionState("app.example.org").WithNetwork("0xa")
	require.True(t, ok)
	doc.SetConnectionState(moved)
	assert.Equal(t, []string{"app.example.org"}, doc.Hostnames())
	assert.Equal(t, network.HexID("0xa"), doc.DApps["app.example.org"].Network)
}

func TestDocument_CloneIsDeep(t *testing.T) {
	t.Parallel()

	doc := NewDocument()
	doc.AddAccount(addrA, "main")
	doc.SetConnectionState(connection.NewConnected("a.example", addrA, "0x1", 1))
	doc.RecordTransaction(TransactionRequest{ID: "1", From: addrA})

	clone := doc.Clone()
	clone.AddAccount(addrB, "other")
	clone.SetConnectionState(connection.NewDisconnected("a.example", "0x1"))
	clone.RecordTransaction(TransactionRequest{ID: "2", From: addrA})
	*clone.SelectedAddress = addrB

	assert.Len(t, doc.Accounts, 1)
	assert.Equal(t, connection.Connected, doc.ConnectionState("a.example").Kind)
	assert.Len(t, doc.TransactionRequests[addrA], 1)
	assert.Equal(t, addrA, *doc.SelectedAddress)
}

func TestDocument_RecordTransactionBounded(t *testing.T) {
	t.Parallel()

	doc := NewDocument()
	for i := 0; i < maxTransactionsPerAccount+5; i++ {
		doc.RecordTransaction(TransactionRequest{From: addrA, SubmittedAtMs: int64(i)})
	}

	list := doc.TransactionRequests[addrA]
	require.Len(t, list, maxTransactionsPerAccount)
	assert.Equal(t, int64(5), list[0].SubmittedAtMs)
}

func TestDocument_NetworksIncludesCustom(t *testing.T) {
	t.Parallel()

	doc := NewDocument()
	custom, err := network.NewCustom("0x539", "Dev", "http://127.0.0.1:8545", network.Currency{Symbol: "ETH"}, "")
	require.NoError(t, err)
	doc.CustomNetworkMap[custom.HexID] = custom

	_, ok := doc.Networks().Find("0x539")
	assert.True(t, ok)
}

func TestFeePreset_Valid(t *testing.T) {
	t.Parallel()
	assert.True(t, FeeFast.Valid())
	assert.False(t, FeePreset("turbo").Valid())
}
