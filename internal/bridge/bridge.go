// Package bridge runs the provider state machine for one page connection.
//
// Each Bridge is an actor: a single goroutine owns the connection state, the
// storage snapshot and the pending interaction, and processes page messages,
// wallet UI messages and proxied results one at a time from its mailbox.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/dappbridge/internal/connection"
	"github.com/mrz1836/dappbridge/internal/interaction"
	"github.com/mrz1836/dappbridge/internal/message"
	"github.com/mrz1836/dappbridge/internal/metrics"
	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/rpc"
	"github.com/mrz1836/dappbridge/internal/storage"
)

const defaultMailboxSize = 64

var (
	// ErrStopped is returned when posting to a bridge that has shut down.
	ErrStopped = errors.New("bridge stopped")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("bridge already started")

	errMissingHostname = errors.New("hostname is required")
)

// Sink delivers messages to one peer.
type Sink interface {
	Send(ctx context.Context, m message.Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, m message.Message) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, m message.Message) error {
	return f(ctx, m)
}

// Forwarder sends a passive read to an RPC endpoint.
type Forwarder interface {
	Forward(ctx context.Context, endpoint string, method rpc.Method, params json.RawMessage) (json.RawMessage, error)
}

// Logger is the logging surface the bridge needs.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Config wires a Bridge to its collaborators.
type Config struct {
	// SessionID identifies this page connection to the wallet UI.
	SessionID string
	// Hostname is the page's origin host.
	Hostname string

	Store     storage.Store
	Forwarder Forwarder
	// Page receives messages for the page.
	Page Sink
	// UI receives interaction requests for the wallet UI.
	UI       Sink
	Capturer Capturer
	Logger   Logger
	Metrics  *metrics.Metrics

	// DefaultNetwork is used while the host has no recorded network.
	DefaultNetwork network.HexID
	// RPCOverrides are configured endpoints keyed by hex chain id.
	RPCOverrides map[string]string
	MailboxSize  int
	Now          func() time.Time
}

type pending struct {
	req     rpc.Request
	request interaction.Request
}

// Bridge is the actor for one page connection.
type Bridge struct {
	cfg Config

	mailbox chan event
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	// sendCtx carries outbound writes. It outlives ctx during shutdown so
	// the final messages are not written on a cancelled context.
	sendCtx context.Context

	startOnce sync.Once
	stopOnce  sync.Once
	inflight  sync.WaitGroup

	// Owned by the actor goroutine once started.
	doc         *storage.Document
	state       connection.State
	network     network.HexID
	alternative message.AlternativeProvider
	pending     *pending
}

// New validates cfg and returns an unstarted bridge.
func New(cfg Config) (*Bridge, error) {
	if cfg.Hostname == "" {
		return nil, errMissingHostname
	}
	if cfg.Store == nil || cfg.Page == nil || cfg.Forwarder == nil {
		return nil, errors.New("bridge needs a store, a page sink and a forwarder")
	}
	if cfg.DefaultNetwork == "" {
		cfg.DefaultNetwork = network.MustHexID("0x1")
	}
	id, err := network.ParseHexID(string(cfg.DefaultNetwork))
	if err != nil {
		return nil, fmt.Errorf("default network: %w", err)
	}
	if _, ok := network.NewMap(nil).Find(id); !ok {
		return nil, fmt.Errorf("default network %s is not a predefined network", id)
	}
	cfg.DefaultNetwork = id

	if cfg.UI == nil {
		cfg.UI = SinkFunc(func(context.Context, message.Message) error { return ErrNoWalletUI })
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Global
	}
	if cfg.Capturer == nil {
		cfg.Capturer = NewLogCapturer(cfg.Logger, cfg.Metrics)
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = defaultMailboxSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		cfg:         cfg,
		mailbox:     make(chan event, cfg.MailboxSize),
		ctx:         ctx,
		cancel:      cancel,
		sendCtx:     ctx,
		done:        make(chan struct{}),
		network:     cfg.DefaultNetwork,
		alternative: message.ProviderUnavailable,
	}, nil
}

// ErrNoWalletUI is reported when an interaction cannot be shown because no
// wallet UI is attached. The interaction stays pending and is replayed later.
var ErrNoWalletUI = errors.New("no wallet UI attached")

// SessionID returns the session id.
func (b *Bridge) SessionID() string {
	return b.cfg.SessionID
}

// Hostname returns the page hostname.
func (b *Bridge) Hostname() string {
	return b.cfg.Hostname
}

// Start loads storage, greets the page with init_provider and ready, and
// starts the actor loop.
func (b *Bridge) Start() error {
	err := ErrAlreadyStarted
	b.startOnce.Do(func() {
		err = b.start()
	})
	return err
}

func (b *Bridge) start() error {
	doc, err := b.cfg.Store.Load()
	if err != nil {
		close(b.done)
		return fmt.Errorf("loading storage: %w", err)
	}
	b.doc = doc
	b.setState(doc.ConnectionState(b.cfg.Hostname))

	greeting := message.InitProvider{ChainID: b.currentNetwork().HexID}
	if addr, ok := b.connectedAccount(); ok {
		greeting.Account = &addr
	}
	b.sendPage(greeting)
	b.sendPage(message.Ready{})

	b.cfg.Metrics.SessionOpened()
	b.cfg.Logger.Debug("bridge %s: started for %s in state %s", b.cfg.SessionID, b.cfg.Hostname, b.state)

	go b.run()
	return nil
}

// Stop shuts the actor down and waits for it and any proxied calls to finish.
// A pending interaction is withdrawn from the wallet UI.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cancel()
	})
	// Never started: nothing will close done.
	b.startOnce.Do(func() {
		close(b.done)
	})
	<-b.done
	b.inflight.Wait()
}

// Done is closed when the actor loop exits.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// HandlePage posts a raw page message to the mailbox.
func (b *Bridge) HandlePage(ctx context.Context, data []byte) error {
	return b.post(ctx, pageEvent{data: data})
}

// HandleExtension posts a wallet UI message to the mailbox.
func (b *Bridge) HandleExtension(ctx context.Context, m message.Message) error {
	return b.post(ctx, extensionEvent{msg: m})
}

// PendingInteraction asks the actor for its pending interaction, if any.
func (b *Bridge) PendingInteraction(ctx context.Context) (interaction.Request, bool, error) {
	reply := make(chan *interaction.Request, 1)
	if err := b.post(ctx, queryEvent{reply: reply}); err != nil {
		return interaction.Request{}, false, err
	}
	select {
	case r := <-reply:
		if r == nil {
			return interaction.Request{}, false, nil
		}
		return *r, true, nil
	case <-b.done:
		return interaction.Request{}, false, ErrStopped
	case <-ctx.Done():
		return interaction.Request{}, false, ctx.Err()
	}
}

func (b *Bridge) post(ctx context.Context, ev event) error {
	select {
	case <-b.ctx.Done():
		return ErrStopped
	default:
	}
	select {
	case b.mailbox <- ev:
		return nil
	case <-b.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) run() {
	defer close(b.done)
	for {
		select {
		case ev := <-b.mailbox:
			b.handle(ev)
		case <-b.ctx.Done():
			b.shutdown()
			return
		}
	}
}

func (b *Bridge) shutdown() {
	b.sendCtx = context.WithoutCancel(b.ctx)
	if b.pending != nil {
		// The page is gone; its caller can no longer receive a response.
		b.closeOverlay(false)
	}
	b.cfg.Metrics.SessionClosed()
	b.cfg.Logger.Debug("bridge %s: stopped", b.cfg.SessionID)
}

func (b *Bridge) handle(ev event) {
	switch e := ev.(type) {
	case pageEvent:
		b.handlePageMessage(e.data)
	case extensionEvent:
		b.handleExtensionMessage(e.msg)
	case proxyEvent:
		b.respond(e.id, e.resp)
	case queryEvent:
		if b.pending == nil {
			e.reply <- nil
			return
		}
		r := b.pending.request
		e.reply <- &r
	default:
		b.capture(Diagnostic{Kind: DiagnosticInvariant, Err: fmt.Errorf("unhandled event %T", ev)})
	}
}

func (b *Bridge) handlePageMessage(data []byte) {
	m, err := message.DecodePage(data)
	if err != nil {
		b.capture(Diagnostic{Kind: DiagnosticProtocol, Err: err})
		return
	}
	switch msg := m.(type) {
	case message.RPCRequest:
		b.handleRPCRequest(msg.Request)
	case message.ProviderAnnouncement:
		b.alternative = msg.Provider
	case message.VisibilityChange:
		if msg.Visible {
			b.reload()
		}
	default:
		b.capture(Diagnostic{Kind: DiagnosticProtocol, Err: fmt.Errorf("%w: %s", message.ErrUnknownType, m.MessageType())})
	}
}

func (b *Bridge) handleExtensionMessage(m message.Message) {
	switch msg := m.(type) {
	case message.ExtensionAddressChange:
		b.changeAddress(msg.Address)
	case message.StorageChanged:
		b.reload()
	case message.InteractionResponse:
		b.resolve(msg.Resolution())
	default:
		b.capture(Diagnostic{Kind: DiagnosticProtocol, Err: fmt.Errorf("%w: %s", message.ErrUnknownType, m.MessageType())})
	}
}

// currentNetwork returns the network the page is on. Hosts without a
// recorded network use the session network, which starts at the default.
func (b *Bridge) currentNetwork() network.Network {
	networks := b.doc.Networks()
	id, ok := b.state.NetworkHexID()
	if !ok {
		id = b.network
	}
	if n, found := networks.Find(id); found {
		return n
	}
	b.capture(Diagnostic{Kind: DiagnosticInvariant, Err: fmt.Errorf("network %s missing from network map", id)})
	n, _ := networks.Find(b.cfg.DefaultNetwork)
	return n
}

// connectedAccount returns the address exposed to the page, if connected.
func (b *Bridge) connectedAccount() (common.Address, bool) {
	if b.state.Kind != connection.Connected {
		return common.Address{}, false
	}
	return b.state.Address, true
}

func (b *Bridge) respond(id int64, resp rpc.Response) {
	b.cfg.Metrics.RecordResponse(resp.IsSuccess())
	b.sendPage(message.RPCResponse{ID: id, Response: resp})
}

func (b *Bridge) sendPage(m message.Message) {
	if err := b.cfg.Page.Send(b.sendCtx, m); err != nil {
		b.cfg.Logger.Error("bridge %s: sending %s to page: %v", b.cfg.SessionID, m.MessageType(), err)
	}
}

func (b *Bridge) sendUI(m message.Message) {
	if err := b.cfg.UI.Send(b.sendCtx, m); err != nil {
		b.cfg.Logger.Info("bridge %s: sending %s to wallet UI: %v", b.cfg.SessionID, m.MessageType(), err)
	}
}

func (b *Bridge) nowMs() int64 {
	return b.cfg.Now().UnixMilli()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
