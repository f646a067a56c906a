package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/dappbridge/internal/connection"
	"github.com/mrz1836/dappbridge/internal/interaction"
	"github.com/mrz1836/dappbridge/internal/message"
	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/rpc"
	"github.com/mrz1836/dappbridge/internal/storage"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	page := SinkFunc(func(context.Context, message.Message) error { return nil })
	base := Config{Hostname: testHost, Store: storage.NewMemoryStore(nil), Page: page, Forwarder: &fakeForwarder{}}

	_, err := New(base)
	require.NoError(t, err)

	noHost := base
	noHost.Hostname = ""
	_, err = New(noHost)
	require.ErrorIs(t, err, errMissingHostname)

	noStore := base
	noStore.Store = nil
	_, err = New(noStore)
	require.Error(t, err)

	custom := base
	custom.DefaultNetwork = "0x2a"
	_, err = New(custom)
	require.Error(t, err)

	garbage := base
	garbage.DefaultNetwork = "polygon"
	_, err = New(garbage)
	require.Error(t, err)
}

func TestStart_Greeting(t *testing.T) {
	t.Parallel()

	t.Run("not interacted", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		assert.Nil(t, h.greeting.Account)
		assert.Equal(t, network.HexID("0x1"), h.greeting.ChainID)
	})

	t.Run("connected", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, connectedOn("0x89"))
		require.NotNil(t, h.greeting.Account)
		assert.Equal(t, h.account, *h.greeting.Account)
		assert.Equal(t, network.HexID("0x89"), h.greeting.ChainID)
	})

	t.Run("disconnected keeps its network", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, disconnectedOn("0xa"))
		assert.Nil(t, h.greeting.Account)
		assert.Equal(t, network.HexID("0xa"), h.greeting.ChainID)
	})
}

func TestStart_Twice(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.ErrorIs(t, h.b.Start(), ErrAlreadyStarted)
}

func TestStop_RejectsFurtherMessages(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.b.Stop()
	h.b.Stop()
	require.ErrorIs(t, h.b.HandlePage(context.Background(), []byte(`{}`)), ErrStopped)

	select {
	case <-h.b.Done():
	default:
		t.Fatal("done should be closed after Stop")
	}
}

func TestStop_WithoutStart(t *testing.T) {
	t.Parallel()

	b, err := New(Config{
		Hostname:  testHost,
		Store:     storage.NewMemoryStore(nil),
		Page:      SinkFunc(func(context.Context, message.Message) error { return nil }),
		Forwarder: &fakeForwarder{},
	})
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		b.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("Stop blocked on a bridge that never started")
	}
	require.ErrorIs(t, b.Start(), ErrAlreadyStarted)
}

// Every rpc_request gets exactly one rpc_response carrying its id, for every
// method in every connection state. Interactions are rejected to finish them.
func TestEveryRequestAnsweredOnce(t *testing.T) {
	t.Parallel()

	states := map[string][]seed{
		"not_interacted":         nil,
		"disconnected":           {disconnectedOn("0x1")},
		"connected":              {connectedOn("0x1")},
		"connected_to_meta_mask": {delegated()},
	}

	for name, seeds := range states {
		for _, method := range rpc.Methods {
			t.Run(name+"/"+string(method), func(t *testing.T) {
				t.Parallel()
				h := newHarness(t, seeds...)

				params, ok := h.validParams()[method]
				if !ok {
					params = "[]"
				}
				h.send(1, string(method), params)

				for answered := false; !answered; {
					switch m := h.nextPage().(type) {
					case message.RPCResponse:
						require.Equal(t, int64(1), m.ID)
						answered = true
					case message.ChangeIframeSize:
						if m.Size == message.IframeExpanded {
							req, ok := h.nextUI().(message.InteractionRequest)
							require.True(t, ok)
							h.answer(req.Request.ID, interaction.ActionReject)
						}
					case message.NetworkChange:
					default:
						t.Fatalf("unexpected %T before the response", m)
					}
				}
				// No second response for id 1 may precede this one.
				h.sync()
			})
		}
	}
}

func TestLocal_Methods(t *testing.T) {
	t.Parallel()

	h := newHarness(t, connectedOn("0x89"))

	h.send(1, "eth_chainId", "[]")
	assert.JSONEq(t, `"0x89"`, string(h.success(1)))

	h.send(2, "net_version", "[]")
	assert.JSONEq(t, `"137"`, string(h.success(2)))

	h.send(3, "eth_coinbase", "[]")
	assert.JSONEq(t, `"`+h.addr()+`"`, string(h.success(3)))

	h.send(4, "wallet_watchAsset", "[]")
	assert.JSONEq(t, `true`, string(h.success(4)))

	h.send(5, "personal_ecRecover", `["hello","`+h.personalSignature([]byte("hello"))+`"]`)
	assert.JSONEq(t, `"`+h.addr()+`"`, string(h.success(5)))

	assert.Empty(t, h.fwd.called())
	h.noUI()
}

func TestLocal_NotConnected(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(1, "eth_accounts", "[]")
	assert.JSONEq(t, `[]`, string(h.success(1)))

	h.send(2, "eth_coinbase", "[]")
	assert.JSONEq(t, `null`, string(h.success(2)))
}

func TestConnected_EthAccounts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "eth_accounts", "[]")
	assert.JSONEq(t, `["`+h.addr()+`"]`, string(h.success(1)))
	h.noUI()
}

func TestConnected_RequestAccountsTwice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "eth_requestAccounts", "[]")
	first := h.success(1)
	h.send(2, "eth_requestAccounts", "[]")
	second := h.success(2)

	assert.JSONEq(t, `["`+h.addr()+`"]`, string(first))
	assert.JSONEq(t, string(first), string(second))
	h.noUI()
	assert.Zero(t, h.metrics.Snapshot().InteractionsTotal)
}

func TestDisconnected_SendTransactionUnauthorized(t *testing.T) {
	t.Parallel()
	h := newHarness(t, disconnectedOn("0x1"))

	h.send(1, "eth_sendTransaction", h.validParams()[rpc.EthSendTransaction])
	reason := h.failure(1, rpc.ReasonUnauthorized)
	assert.Equal(t, rpc.CodeUnauthorized, reason.Code)
	h.noUI()
}

func TestGatedProxy_Unauthorized(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(1, "eth_getTransactionCount", `["0x2222222222222222222222222222222222222222","latest"]`)
	h.failure(1, rpc.ReasonUnauthorized)
	assert.Empty(t, h.fwd.called())
}

func TestGatedProxy_ConnectedForwards(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "eth_getStorageAt", `["0x2222222222222222222222222222222222222222","0x0","latest"]`)
	assert.JSONEq(t, `"0x1"`, string(h.success(1)))

	calls := h.fwd.called()
	require.Len(t, calls, 1)
	assert.Equal(t, rpc.EthGetStorageAt, calls[0].method)
}

func TestSendRawTransaction_ChainMismatch(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "eth_sendRawTransaction", `["`+h.rawTransaction(137)+`"]`)
	reason := h.failure(1, rpc.ReasonRawError)
	assert.Contains(t, reason.Message, "0x89")
	assert.Empty(t, h.fwd.called())

	h.send(2, "eth_sendRawTransaction", `["`+h.rawTransaction(1)+`"]`)
	h.success(2)
}

func TestSigningRequiresConnectedSigner(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	other := "0x2222222222222222222222222222222222222222"
	h.send(1, "personal_sign", `["0x68656c6c6f","`+other+`"]`)
	h.failure(1, rpc.ReasonUnauthorized)

	h.send(2, "eth_sendTransaction", `[{"from":"`+other+`","value":"0x1"}]`)
	h.failure(2, rpc.ReasonUnauthorized)
	h.noUI()
}

func TestPassive_ProxiedInAnyState(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(1, "eth_blockNumber", "[]")
	assert.JSONEq(t, `"0x1"`, string(h.success(1)))

	calls := h.fwd.called()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://ethereum-rpc.publicnode.com", calls[0].endpoint)
}

func TestPassive_EndpointOverrides(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(doc *storage.Document, _ common.Address) {
		doc.NetworkRPCMap[network.MustHexID("0x1")] = "https://my-node.example.org"
	})

	h.send(1, "eth_gasPrice", "[]")
	h.success(1)
	assert.Equal(t, "https://my-node.example.org", h.fwd.called()[0].endpoint)
}

func TestPassive_NodeError(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.fwd.fn = func(context.Context, rpc.Method) (json.RawMessage, error) {
		return nil, &rpc.Error{Code: 3, Message: "execution reverted", Data: json.RawMessage(`"0x08c379a0"`)}
	}

	h.send(1, "eth_call", `[{"to":"0x2222222222222222222222222222222222222222"},"latest"]`)
	reason := h.failure(1, rpc.ReasonRPCError)
	assert.Equal(t, 3, reason.Code)
	assert.Equal(t, "execution reverted", reason.Message)
	assert.JSONEq(t, `"0x08c379a0"`, string(reason.Data))
}

func TestPassive_TransportError(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.fwd.fn = func(context.Context, rpc.Method) (json.RawMessage, error) {
		return nil, context.DeadlineExceeded
	}

	h.send(1, "eth_getCode", `["0x2222222222222222222222222222222222222222","latest"]`)
	reason := h.failure(1, rpc.ReasonRawError)
	assert.Equal(t, rpc.CodeInternal, reason.Code)
	assert.Contains(t, reason.Message, "deadline")
	assert.Equal(t, int64(1), h.metrics.Snapshot().ProxyErrorsTotal)
}

func TestPassive_OutOfOrderResponses(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	release := make(chan struct{})
	h.fwd.fn = func(ctx context.Context, method rpc.Method) (json.RawMessage, error) {
		if method == rpc.EthCall {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return json.RawMessage(`"slow"`), nil
		}
		return json.RawMessage(`"fast"`), nil
	}

	h.send(1, "eth_call", "[]")
	h.send(2, "eth_blockNumber", "[]")

	assert.JSONEq(t, `"fast"`, string(h.success(2)))
	close(release)
	assert.JSONEq(t, `"slow"`, string(h.success(1)))
}

func TestUnknownMethod(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(1, "foo_bar", "[]")
	reason := h.failure(1, rpc.ReasonUnsupportedMethod)
	assert.Equal(t, rpc.CodeUnsupportedMethod, reason.Code)

	diags := h.capt.all()
	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticParse, diags[0].Kind)
	assert.Equal(t, "foo_bar", diags[0].Method)
	assert.Equal(t, testHost, diags[0].Hostname)

	h.send(2, "eth_chainId", "[]")
	h.success(2)
}

func TestUnknownMethod_Suggestion(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(1, "eth_chainID", "[]")
	h.failure(1, rpc.ReasonUnsupportedMethod)

	diags := h.capt.all()
	require.Len(t, diags, 1)
	assert.Equal(t, rpc.EthChainID, diags[0].Suggestion)
}

func TestInvalidParams(t *testing.T) {
	t.Parallel()
	h := newHarness(t, connectedOn("0x1"))

	h.send(1, "personal_sign", `["only one"]`)
	h.failure(1, rpc.ReasonUnsupportedMethod)
	require.Len(t, h.capt.all(), 1)
	h.noUI()
}

func TestRequestWithoutUsableID(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.sendRaw(`{"type":"rpc_request","request":{"id":"abc","method":"eth_chainId","params":[]}}`)
	h.sync()
	assert.Len(t, h.capt.all(), 1)
}

func TestMalformedMethodStillAnswered(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.sendRaw(`{"type":"rpc_request","request":{"id":7,"method":42,"params":[]}}`)
	h.failure(7, rpc.ReasonUnsupportedMethod)

	diags := h.capt.all()
	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticParse, diags[0].Kind)
	require.ErrorIs(t, diags[0].Err, rpc.ErrMalformedRequest)

	h.send(8, "foo_bar", "[]")
	h.failure(8, rpc.ReasonUnsupportedMethod)
}

func TestMalformedPageMessage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.sendRaw(`not json`)
	h.sendRaw(`{"type":"init_provider"}`)
	h.sync()

	diags := h.capt.all()
	require.Len(t, diags, 2)
	assert.Equal(t, DiagnosticProtocol, diags[0].Kind)
	assert.Equal(t, DiagnosticProtocol, diags[1].Kind)
}

func TestDelegated_UnexpectedMethod(t *testing.T) {
	t.Parallel()
	h := newHarness(t, delegated())

	h.send(1, "eth_blockNumber", "[]")
	h.failure(1, rpc.ReasonInternal)

	diags := h.capt.all()
	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticUnexpectedMethod, diags[0].Kind)
	assert.Empty(t, h.fwd.called())

	h.send(2, "eth_accounts", "[]")
	assert.JSONEq(t, `[]`, string(h.success(2)))
	assert.Len(t, h.capt.all(), 1)
}

func TestDelegated_RequestAccountsOpensOverlay(t *testing.T) {
	t.Parallel()
	h := newHarness(t, delegated())

	h.send(1, "eth_requestAccounts", "[]")
	ir := h.opened()
	assert.Equal(t, interaction.KindConnect, ir.Kind)

	h.answer(ir.ID, interaction.ActionApprove, withAddress(h.account))
	h.closed(ir.ID)
	assert.JSONEq(t, `["`+h.addr()+`"]`, string(h.success(1)))

	state := h.storedState()
	assert.Equal(t, connection.Connected, state.Kind)
	assert.Equal(t, h.account, state.Address)
}

func TestMetrics_Counted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(1, "eth_chainId", "[]")
	h.success(1)
	h.send(2, "foo_bar", "[]")
	h.failure(2, rpc.ReasonUnsupportedMethod)
	h.send(3, "eth_blockNumber", "[]")
	h.success(3)

	snap := h.metrics.Snapshot()
	assert.Equal(t, int64(3), snap.RequestsTotal)
	assert.Equal(t, int64(2), snap.ResponsesSuccess)
	assert.Equal(t, int64(1), snap.ResponsesFailure)
	assert.Equal(t, int64(1), snap.ProxyCallsTotal)
	assert.Equal(t, int64(1), snap.ActiveSessions)
}
