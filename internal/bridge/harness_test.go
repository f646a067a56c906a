package bridge

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/dappbridge/internal/connection"
	"github.com/mrz1836/dappbridge/internal/interaction"
	"github.com/mrz1836/dappbridge/internal/message"
	"github.com/mrz1836/dappbridge/internal/metrics"
	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/rpc"
	"github.com/mrz1836/dappbridge/internal/storage"
)

const (
	testHost    = "app.example.org"
	testSession = "session-1"
	syncID      = 1_000_000
	waitFor     = 2 * time.Second
)

var errSinkFull = errors.New("sink full")

const mailTypedData = `{
	"types": {
		"EIP712Domain": [
			{"name": "name", "type": "string"},
			{"name": "version", "type": "string"},
			{"name": "chainId", "type": "uint256"}
		],
		"Mail": [
			{"name": "from", "type": "address"},
			{"name": "contents", "type": "string"}
		]
	},
	"primaryType": "Mail",
	"domain": {"name": "Ether Mail", "version": "1", "chainId": 1},
	"message": {"from": "0xcd2a3d9f938e13cd947ec05abc7fe734df8dd826", "contents": "Hello, Bob!"}
}`

type recordingCapturer struct {
	mu    sync.Mutex
	diags []Diagnostic
}

func (c *recordingCapturer) Capture(d Diagnostic) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = append(c.diags, d)
	return fmt.Sprintf("evt-%d", len(c.diags))
}

func (c *recordingCapturer) all() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.diags))
	copy(out, c.diags)
	return out
}

type forwardCall struct {
	endpoint string
	method   rpc.Method
}

type fakeForwarder struct {
	mu    sync.Mutex
	calls []forwardCall
	fn    func(ctx context.Context, method rpc.Method) (json.RawMessage, error)
}

func (f *fakeForwarder) Forward(ctx context.Context, endpoint string, method rpc.Method, _ json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, forwardCall{endpoint: endpoint, method: method})
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, method)
	}
	return json.RawMessage(`"0x1"`), nil
}

func (f *fakeForwarder) called() []forwardCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]forwardCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type harness struct {
	t        *testing.T
	b        *Bridge
	store    *storage.MemoryStore
	page     chan message.Message
	ui       chan message.Message
	fwd      *fakeForwarder
	capt     *recordingCapturer
	metrics  *metrics.Metrics
	key      *ecdsa.PrivateKey
	account  common.Address
	greeting message.InitProvider
}

// seed prepares the stored document before the bridge starts.
type seed func(doc *storage.Document, account common.Address)

func connectedOn(id string) seed {
	return func(doc *storage.Document, account common.Address) {
		doc.SetConnectionState(connection.NewConnected(testHost, account, network.MustHexID(id), 1))
	}
}

func disconnectedOn(id string) seed {
	return func(doc *storage.Document, _ common.Address) {
		doc.SetConnectionState(connection.NewDisconnected(testHost, network.MustHexID(id)))
	}
}

func delegated() seed {
	return func(doc *storage.Document, _ common.Address) {
		doc.SetConnectionState(connection.NewConnectedToMetaMask(testHost))
	}
}

func newHarness(t *testing.T, seeds ...seed) *harness {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	account := crypto.PubkeyToAddress(key.PublicKey)

	doc := storage.NewDocument()
	doc.AddAccount(account, "main")
	for _, s := range seeds {
		s(doc, account)
	}

	h := &harness{
		t:       t,
		store:   storage.NewMemoryStore(doc),
		page:    make(chan message.Message, 128),
		ui:      make(chan message.Message, 128),
		fwd:     &fakeForwarder{},
		capt:    &recordingCapturer{},
		metrics: &metrics.Metrics{},
		key:     key,
		account: account,
	}

	sink := func(ch chan message.Message) Sink {
		return SinkFunc(func(ctx context.Context, m message.Message) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			select {
			case ch <- m:
				return nil
			default:
				return errSinkFull
			}
		})
	}

	h.b, err = New(Config{
		SessionID:      testSession,
		Hostname:       testHost,
		Store:          h.store,
		Forwarder:      h.fwd,
		Page:           sink(h.page),
		UI:             sink(h.ui),
		Capturer:       h.capt,
		Metrics:        h.metrics,
		DefaultNetwork: network.MustHexID("0x1"),
		Now:            func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	})
	require.NoError(t, err)
	require.NoError(t, h.b.Start())
	t.Cleanup(h.b.Stop)

	initMsg, ok := h.nextPage().(message.InitProvider)
	require.True(t, ok, "first message must be init_provider")
	h.greeting = initMsg
	_, ok = h.nextPage().(message.Ready)
	require.True(t, ok, "second message must be ready")
	return h
}

func (h *harness) send(id int64, method, params string) {
	h.t.Helper()
	raw := fmt.Sprintf(`{"type":"rpc_request","request":{"id":%d,"method":%q,"params":%s}}`, id, method, params)
	h.sendRaw(raw)
}

func (h *harness) sendRaw(raw string) {
	h.t.Helper()
	require.NoError(h.t, h.b.HandlePage(context.Background(), []byte(raw)))
}

func (h *harness) extension(m message.Message) {
	h.t.Helper()
	require.NoError(h.t, h.b.HandleExtension(context.Background(), m))
}

func (h *harness) nextPage() message.Message {
	h.t.Helper()
	select {
	case m := <-h.page:
		return m
	case <-time.After(waitFor):
		h.t.Fatal("timed out waiting for a page message")
		return nil
	}
}

func (h *harness) nextUI() message.Message {
	h.t.Helper()
	select {
	case m := <-h.ui:
		return m
	case <-time.After(waitFor):
		h.t.Fatal("timed out waiting for a wallet UI message")
		return nil
	}
}

func (h *harness) response(id int64) rpc.Response {
	h.t.Helper()
	m := h.nextPage()
	resp, ok := m.(message.RPCResponse)
	require.True(h.t, ok, "expected rpc_response, got %T", m)
	require.Equal(h.t, id, resp.ID)
	return resp.Response
}

func (h *harness) failure(id int64, reason rpc.ReasonType) rpc.Reason {
	h.t.Helper()
	resp := h.response(id)
	require.Equal(h.t, rpc.ResponseFailure, resp.Type, "data: %s", resp.Data)
	require.Equal(h.t, reason, resp.Reason.Type)
	return *resp.Reason
}

func (h *harness) success(id int64) json.RawMessage {
	h.t.Helper()
	resp := h.response(id)
	require.Equal(h.t, rpc.ResponseSuccess, resp.Type, "reason: %+v", resp.Reason)
	return resp.Data
}

// sync proves the actor has drained everything sent before it: the next
// page message must be the answer to a fresh eth_chainId.
func (h *harness) sync() {
	h.t.Helper()
	h.send(syncID, "eth_accounts", "[]")
	h.success(syncID)
}

func (h *harness) noUI() {
	h.t.Helper()
	select {
	case m := <-h.ui:
		h.t.Fatalf("unexpected wallet UI message %T", m)
	default:
	}
}

// opened consumes the overlay announcement and returns the interaction.
func (h *harness) opened() interaction.Request {
	h.t.Helper()
	size, ok := h.nextPage().(message.ChangeIframeSize)
	require.True(h.t, ok, "expected change_iframe_size")
	require.Equal(h.t, message.IframeExpanded, size.Size)

	req, ok := h.nextUI().(message.InteractionRequest)
	require.True(h.t, ok, "expected interaction_request")
	require.Equal(h.t, testSession, req.SessionID)
	return req.Request
}

// closed consumes the overlay teardown.
func (h *harness) closed(id string) {
	h.t.Helper()
	c, ok := h.nextUI().(message.InteractionClosed)
	require.True(h.t, ok, "expected interaction_closed")
	require.Equal(h.t, id, c.InteractionID)

	size, ok := h.nextPage().(message.ChangeIframeSize)
	require.True(h.t, ok, "expected change_iframe_size")
	require.Equal(h.t, message.IframeIcon, size.Size)
}

func (h *harness) answer(id string, action interaction.Action, opts ...func(*message.InteractionResponse)) {
	h.t.Helper()
	m := message.InteractionResponse{SessionID: testSession, InteractionID: id, Action: action}
	for _, o := range opts {
		o(&m)
	}
	h.extension(m)
}

func withAddress(a common.Address) func(*message.InteractionResponse) {
	return func(m *message.InteractionResponse) { m.Address = &a }
}

func withResult(v string) func(*message.InteractionResponse) {
	return func(m *message.InteractionResponse) { m.Result = json.RawMessage(`"` + v + `"`) }
}

func (h *harness) stored() *storage.Document {
	h.t.Helper()
	doc, err := h.store.Load()
	require.NoError(h.t, err)
	return doc
}

func (h *harness) storedState() connection.State {
	h.t.Helper()
	return h.stored().ConnectionState(testHost)
}

func (h *harness) addr() string {
	return strings.ToLower(h.account.Hex())
}

func (h *harness) personalSignature(msg []byte) string {
	h.t.Helper()
	sig, err := crypto.Sign(accounts.TextHash(msg), h.key)
	require.NoError(h.t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func (h *harness) rawTransaction(chainID int64) string {
	h.t.Helper()
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tx, err := types.SignNewTx(h.key, types.LatestSignerForChainID(big.NewInt(chainID)), &types.DynamicFeeTx{
		ChainID:   big.NewInt(chainID),
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})
	require.NoError(h.t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(h.t, err)
	return hexutil.Encode(raw)
}

// validParams returns well-formed params for every supported method, signed
// by the harness account where the method needs it.
func (h *harness) validParams() map[rpc.Method]string {
	addr := h.addr()
	return map[rpc.Method]string{
		rpc.EthSendTransaction:        `[{"from":"` + addr + `","to":"0x2222222222222222222222222222222222222222","value":"0xde0b6b3a7640000"}]`,
		rpc.EthSendRawTransaction:     `["` + h.rawTransaction(1) + `"]`,
		rpc.PersonalSign:              `["0x68656c6c6f","` + addr + `"]`,
		rpc.PersonalECRecover:         `["hello","` + h.personalSignature([]byte("hello")) + `"]`,
		rpc.EthSignTypedData:          `[[{"type":"string","name":"m","value":"hi"}],"` + addr + `"]`,
		rpc.EthSignTypedDataV3:        `["` + addr + `",` + mailTypedData + `]`,
		rpc.EthSignTypedDataV4:        `["` + addr + `",` + mailTypedData + `]`,
		rpc.WalletAddEthereumChain:    `[{"chainId":"0x2a","chainName":"Kovan","rpcUrls":["https://kovan.example.org"]}]`,
		rpc.WalletSwitchEthereumChain: `[{"chainId":"0x89"}]`,
		rpc.WalletWatchAsset:          `[{"type":"ERC20","options":{"address":"0x2222222222222222222222222222222222222222","symbol":"TKN","decimals":18}}]`,
		rpc.EthGetBalance:             `["` + addr + `","latest"]`,
	}
}
