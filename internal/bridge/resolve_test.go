package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/dappbridge/internal/connection"
	"github.com/mrz1836/dappbridge/internal/interaction"
	"github.com/mrz1836/dappbridge/internal/message"
	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/rpc"
	"github.com/mrz1836/dappbridge/internal/storage"
)

const txHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

func TestConnect_Approve(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(1, "eth_requestAccounts", "[]")
	ir := h.opened()
	assert.Equal(t, interaction.KindConnect, ir.Kind)
	assert.Equal(t, testHost, ir.Hostname)
	assert.Nil(t, ir.Account)

	h.answer(ir.ID, interaction.ActionApprove, withAddress(h.account))
	h.closed(ir.ID)
	assert.JSONEq(t, `["`+h.addr()+`"]`, string(h.success(1)))

	change, ok := h.nextPage().(message.AccountChange)
	require.True(t, ok)
	assert.Equal(t, h.account, *change.Account)

	state := h.storedState()
	assert.Equal(t, connection.NewConnected(testHost, h.account, "0x1", 1_700_000_000_000), state)

	h.send(2, "eth_accounts", "[]")
	assert.JSONEq(t, `["`+h.addr()+`"]`, string(h.success(2)))
}

func TestConnect_ApproveOnChosenNetwork(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(1, "eth_requestAccounts", "[]")
	ir := h.opened()
	h.answer(ir.ID, interaction.ActionApprove, withAddress(h.account), func(m *message.InteractionResponse) {
		m.NetworkHexID = "0x89"
	})
	h.closed(ir.ID)
	h.success(1)

	_, ok := h.nextPage().(message.AccountChange)
	require.True(t, ok)
	change, ok := h.nextPage().(message.NetworkChange)
	require.True(t, ok)
	assert.Equal(t, network.HexID("0x89"), change.ChainID)
	assert.Equal(t, network.HexID("0x89"), h.storedState().Network)
}

func TestConnect_ApproveUnknownAccount(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(1, "eth_requestAccounts", "[]")
	ir := h.opened()
	h.answer(ir.ID, interaction.ActionApprove, withAddress(common.HexToAddress("0x3333333333333333333333333333333333333333")))
	h.closed(ir.ID)
	h.failure(1, rpc.ReasonInternal)

	assert.Len(t, h.capt.all(), 1)
	assert.Equal(t, connection.NotInteracted, h.storedState().Kind)
}

func TestConnect_ApproveAccountAddedMeanwhile(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(1, "eth_requestAccounts", "[]")
	ir := h.opened()

	added := common.HexToAddress("0x3333333333333333333333333333333333333333")
	doc := h.stored()
	doc.AddAccount(added, "new")
	require.NoError(t, h.store.Save(doc))

	h.answer(ir.ID, interaction.ActionApprove, withAddress(added))
	h.closed(ir.ID)
	assert.JSONEq(t, `["0x3333333333333333333333333333333333333333"]`, string(h.success(1)))
}

func TestConnect_ApproveWithoutAddressKeepsOverlay(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(1, "eth_requestAccounts", "[]")
	ir := h.opened()
	h.answer(ir.ID, interaction.ActionApprove)
	h.sync()
	assert.Len(t, h.capt.all(), 1)

	pending, ok, err := h.b.PendingInteraction(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.ID, pending.ID)

	h.answer(ir.ID, interaction.ActionClose)
	h.closed(ir.ID)
	h.failure(1, rpc.ReasonUserRejected)
}

func TestSendTransaction_RejectClearsPending(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "eth_sendTransaction", h.validParams()[rpc.EthSendTransaction])
	ir := h.opened()
	assert.Equal(t, interaction.KindSendTransaction, ir.Kind)
	assert.Equal(t, "1 ETH", ir.Summary.Amount)
	require.NotNil(t, ir.Account)
	assert.Equal(t, h.account, *ir.Account)

	// The page stays responsive while the overlay is open.
	h.send(2, "eth_chainId", "[]")
	h.success(2)

	h.answer(ir.ID, interaction.ActionReject)
	h.closed(ir.ID)
	reason := h.failure(1, rpc.ReasonUserRejected)
	assert.Equal(t, rpc.CodeUserRejected, reason.Code)

	_, ok, err := h.b.PendingInteraction(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	snap := h.metrics.Snapshot()
	assert.Equal(t, int64(1), snap.InteractionsTotal)
	assert.Zero(t, snap.InteractionsPending)
}

func TestSendTransaction_ApproveRecordsHistory(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "eth_sendTransaction", h.validParams()[rpc.EthSendTransaction])
	ir := h.opened()
	h.answer(ir.ID, interaction.ActionApprove, withResult(txHash), func(m *message.InteractionResponse) {
		m.FeePreset = storage.FeeFast
	})
	h.closed(ir.ID)
	assert.JSONEq(t, `"`+txHash+`"`, string(h.success(1)))

	doc := h.stored()
	history := doc.TransactionRequests[h.account]
	require.Len(t, history, 1)
	assert.Equal(t, ir.ID, history[0].ID)
	assert.Equal(t, common.HexToHash(txHash), history[0].Hash)
	assert.Equal(t, testHost, history[0].Hostname)
	assert.Equal(t, network.HexID("0x1"), history[0].NetworkHexID)
	assert.Equal(t, "0xde0b6b3a7640000", history[0].Value)
	assert.Equal(t, storage.FeeFast, doc.FeePresetMap["0x1"])
}

func TestSendTransaction_ApproveBadHash(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "eth_sendTransaction", h.validParams()[rpc.EthSendTransaction])
	ir := h.opened()
	h.answer(ir.ID, interaction.ActionApprove, withResult("0x1234"))
	h.closed(ir.ID)
	h.failure(1, rpc.ReasonInternal)
	assert.Empty(t, h.stored().TransactionRequests)
}

func TestSecondInteractionIsRequestPending(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "personal_sign", h.validParams()[rpc.PersonalSign])
	ir := h.opened()

	h.send(2, "eth_sendTransaction", h.validParams()[rpc.EthSendTransaction])
	reason := h.failure(2, rpc.ReasonRequestPending)
	assert.Equal(t, rpc.CodeResourceUnavailable, reason.Code)
	h.noUI()

	h.answer(ir.ID, interaction.ActionReject)
	h.closed(ir.ID)
	h.failure(1, rpc.ReasonUserRejected)

	// The guard lifts once the first interaction is resolved.
	h.send(3, "eth_sendTransaction", h.validParams()[rpc.EthSendTransaction])
	h.opened()
}

func TestPersonalSign_ApproveVerifiesSigner(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "personal_sign", h.validParams()[rpc.PersonalSign])
	ir := h.opened()
	assert.Equal(t, "hello", ir.Summary.Message)

	sig := h.personalSignature([]byte("hello"))
	h.answer(ir.ID, interaction.ActionApprove, withResult(sig))
	h.closed(ir.ID)
	assert.JSONEq(t, `"`+sig+`"`, string(h.success(1)))
	assert.Empty(t, h.capt.all())
}

func TestPersonalSign_ApproveWrongSigner(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "personal_sign", h.validParams()[rpc.PersonalSign])
	ir := h.opened()

	sig := h.personalSignature([]byte("something else"))
	h.answer(ir.ID, interaction.ActionApprove, withResult(sig))
	h.closed(ir.ID)
	h.failure(1, rpc.ReasonInternal)

	diags := h.capt.all()
	require.Len(t, diags, 1)
	assert.ErrorIs(t, diags[0].Err, errSignerMismatch)
}

func TestSignTypedDataV4_ApproveVerifiesSigner(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "eth_signTypedData_v4", h.validParams()[rpc.EthSignTypedDataV4])
	ir := h.opened()
	assert.Equal(t, interaction.KindSignTypedData, ir.Kind)
	assert.Equal(t, "Ether Mail: Mail", ir.Summary.Message)

	var td apitypes.TypedData
	require.NoError(t, json.Unmarshal([]byte(mailTypedData), &td))
	hash, _, err := apitypes.TypedDataAndHash(td)
	require.NoError(t, err)
	sig, err := crypto.Sign(hash, h.key)
	require.NoError(t, err)

	h.answer(ir.ID, interaction.ActionApprove, withResult(hexutil.Encode(sig)))
	h.closed(ir.ID)
	assert.JSONEq(t, `"`+hexutil.Encode(sig)+`"`, string(h.success(1)))
}

func TestSignTypedDataLegacy_ApprovePassesThrough(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "eth_signTypedData", h.validParams()[rpc.EthSignTypedData])
	ir := h.opened()
	h.answer(ir.ID, interaction.ActionApprove, withResult("0xabcdef"))
	h.closed(ir.ID)
	assert.JSONEq(t, `"0xabcdef"`, string(h.success(1)))
}

func TestAddChain_ApproveStoresAndSwitches(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "wallet_addEthereumChain", h.validParams()[rpc.WalletAddEthereumChain])
	ir := h.opened()
	assert.Equal(t, interaction.KindAddNetwork, ir.Kind)
	assert.Equal(t, "Kovan", ir.Summary.Network)

	h.answer(ir.ID, interaction.ActionApprove)
	h.closed(ir.ID)
	change, ok := h.nextPage().(message.NetworkChange)
	require.True(t, ok)
	assert.Equal(t, network.HexID("0x2a"), change.ChainID)
	h.success(1)

	doc := h.stored()
	custom, ok := doc.CustomNetworkMap["0x2a"]
	require.True(t, ok)
	assert.Equal(t, "https://kovan.example.org", custom.DefaultRPC)
	assert.Equal(t, network.HexID("0x2a"), doc.ConnectionState(testHost).Network)

	h.send(2, "eth_chainId", "[]")
	assert.JSONEq(t, `"0x2a"`, string(h.success(2)))
}

func TestAlternativeProviderHandOff(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.sendRaw(`{"type":"provider_announcement_msg","provider":"metamask"}`)
	h.send(7, "eth_requestAccounts", "[]")
	ir := h.opened()

	h.answer(ir.ID, interaction.ActionUseAlternativeProvider)
	h.closed(ir.ID)

	sel, ok := h.nextPage().(message.SelectMetaMaskProvider)
	require.True(t, ok)
	assert.Equal(t, int64(7), sel.ID)
	assert.Equal(t, rpc.EthRequestAccounts, sel.EthRequestAccounts.Method)
	assert.Equal(t, int64(7), sel.EthRequestAccounts.ID)

	// No rpc_response for id 7 precedes the next answer.
	h.sync()
	assert.Equal(t, connection.ConnectedToMetaMask, h.storedState().Kind)
}

func TestAlternativeProviderWithoutAnnouncement(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(1, "eth_requestAccounts", "[]")
	ir := h.opened()
	h.answer(ir.ID, interaction.ActionUseAlternativeProvider)
	h.closed(ir.ID)
	h.failure(1, rpc.ReasonInternal)
	assert.Len(t, h.capt.all(), 1)
	assert.Equal(t, connection.NotInteracted, h.storedState().Kind)
}

func TestAlternativeProviderOnlyForConnect(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "personal_sign", h.validParams()[rpc.PersonalSign])
	ir := h.opened()
	h.answer(ir.ID, interaction.ActionUseAlternativeProvider)
	h.sync()
	require.Len(t, h.capt.all(), 1)
	assert.ErrorIs(t, h.capt.all()[0].Err, interaction.ErrActionNotAllowed)
}

func TestResolveUnknownInteraction(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.answer("does-not-exist", interaction.ActionApprove)
	h.sync()

	diags := h.capt.all()
	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticInvariant, diags[0].Kind)
	assert.ErrorIs(t, diags[0].Err, interaction.ErrInteractionUnknown)
}

func TestStopWithdrawsPendingInteraction(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "personal_sign", h.validParams()[rpc.PersonalSign])
	ir := h.opened()

	h.b.Stop()
	closed, ok := h.nextUI().(message.InteractionClosed)
	require.True(t, ok)
	assert.Equal(t, ir.ID, closed.InteractionID)
	assert.Zero(t, h.metrics.Snapshot().InteractionsPending)
	assert.Zero(t, h.metrics.Snapshot().ActiveSessions)
}

func TestInteractionRequestCarriesOriginalCall(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(42, "personal_sign", h.validParams()[rpc.PersonalSign])
	ir := h.opened()

	raw, err := json.Marshal(ir.RPC)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42,"method":"personal_sign","params":["0x68656c6c6f","`+h.addr()+`"]}`, string(raw))
	assert.NotEmpty(t, ir.ID)
}
