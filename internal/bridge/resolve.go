package bridge

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/dappbridge/internal/connection"
	"github.com/mrz1836/dappbridge/internal/interaction"
	"github.com/mrz1836/dappbridge/internal/message"
	"github.com/mrz1836/dappbridge/internal/rpc"
	"github.com/mrz1836/dappbridge/internal/storage"
)

var (
	errNoAlternative   = errors.New("alternative provider chosen but none was announced")
	errUnknownAccount  = errors.New("approved address is not a wallet account")
	errSignerMismatch  = errors.New("signature does not recover to the requesting account")
	errInvalidTxHash   = errors.New("transaction result is not a 32-byte hash")
	errNoPendingRecord = errors.New("interaction has no request payload")
)

// openInteraction shows the overlay for req. Only one overlay may be pending;
// a second interactive call is refused with requestPending.
func (b *Bridge) openInteraction(req rpc.Request) {
	if b.pending != nil {
		b.respond(req.ID, rpc.FailureOf(rpc.ReasonRequestPending))
		return
	}

	var account *common.Address
	if addr, ok := b.connectedAccount(); ok {
		account = &addr
	}
	ir, err := interaction.New(req, b.cfg.Hostname, account, b.currentNetwork(), b.nowMs())
	if err != nil {
		b.capture(Diagnostic{Kind: DiagnosticInvariant, Method: string(req.Method), Err: err})
		b.respond(req.ID, rpc.FailureOf(rpc.ReasonInternal))
		return
	}

	b.pending = &pending{req: req, request: ir}
	b.cfg.Metrics.InteractionOpened()
	b.cfg.Logger.Debug("bridge %s: interaction %s (%s) opened for id=%d", b.cfg.SessionID, ir.ID, ir.Kind, req.ID)

	b.sendPage(message.ChangeIframeSize{Size: message.IframeExpanded})
	b.sendUI(message.InteractionRequest{SessionID: b.cfg.SessionID, Request: ir})
}

// closeOverlay clears the pending interaction and tells the wallet UI.
// shrink also returns the page widget to its icon size.
func (b *Bridge) closeOverlay(shrink bool) {
	p := b.pending
	if p == nil {
		return
	}
	b.pending = nil
	b.cfg.Metrics.InteractionResolved()
	b.sendUI(message.InteractionClosed{SessionID: b.cfg.SessionID, InteractionID: p.request.ID})
	if shrink {
		b.sendPage(message.ChangeIframeSize{Size: message.IframeIcon})
	}
}

// resolve applies the user's answer to the pending interaction.
func (b *Bridge) resolve(res interaction.Resolution) {
	p := b.pending
	if p == nil || p.request.ID != res.InteractionID {
		b.capture(Diagnostic{
			Kind: DiagnosticInvariant,
			Err:  fmt.Errorf("%w: %s", interaction.ErrInteractionUnknown, res.InteractionID),
		})
		return
	}
	// An unusable answer leaves the overlay open for another try.
	if err := res.Validate(p.request.Kind); err != nil {
		b.capture(Diagnostic{Kind: DiagnosticProtocol, Method: string(p.req.Method), Err: err})
		return
	}

	b.closeOverlay(true)
	req := p.req

	switch res.Action {
	case interaction.ActionReject, interaction.ActionClose:
		b.respond(req.ID, rpc.FailureOf(rpc.ReasonUserRejected))
	case interaction.ActionUseAlternativeProvider:
		b.useAlternativeProvider(req)
	case interaction.ActionApprove:
		b.approve(p, res)
	default:
		b.capture(Diagnostic{Kind: DiagnosticInvariant, Method: string(req.Method), Err: interaction.ErrUnknownAction})
		b.respond(req.ID, rpc.FailureOf(rpc.ReasonInternal))
	}
}

// useAlternativeProvider delegates the page to the alternative provider. The
// original eth_requestAccounts travels in select_meta_mask_provider and is
// answered there, so no rpc_response is sent.
func (b *Bridge) useAlternativeProvider(req rpc.Request) {
	if b.alternative != message.ProviderMetaMask {
		b.capture(Diagnostic{Kind: DiagnosticInvariant, Method: string(req.Method), Err: errNoAlternative})
		b.respond(req.ID, rpc.FailureOf(rpc.ReasonInternal))
		return
	}
	b.persistState(connection.NewConnectedToMetaMask(b.cfg.Hostname))
	b.sendPage(message.SelectMetaMaskProvider{ID: req.ID, EthRequestAccounts: req})
}

func (b *Bridge) approve(p *pending, res interaction.Resolution) {
	req := p.req
	fail := func(kind DiagnosticKind, err error) {
		b.capture(Diagnostic{Kind: kind, Method: string(req.Method), Err: err})
		b.respond(req.ID, rpc.FailureOf(rpc.ReasonInternal))
	}

	switch p.request.Kind {
	case interaction.KindConnect:
		b.approveConnect(req, *res.Address, res)

	case interaction.KindSendTransaction:
		if req.SendTransaction == nil {
			fail(DiagnosticInvariant, errNoPendingRecord)
			return
		}
		hash, err := res.HexResult()
		if err != nil || len(hash) != common.HashLength {
			fail(DiagnosticProtocol, errInvalidTxHash)
			return
		}
		b.recordTransaction(p, common.BytesToHash(hash), res.FeePreset)
		b.respond(req.ID, rpc.Success(common.BytesToHash(hash)))

	case interaction.KindPersonalSign:
		sig, err := res.HexResult()
		if err != nil || req.PersonalSign == nil {
			fail(DiagnosticProtocol, fmt.Errorf("personal_sign result: %w", err))
			return
		}
		signer, err := rpc.RecoverPersonal(req.PersonalSign.Message, sig)
		if err != nil || signer != req.PersonalSign.Address {
			fail(DiagnosticInvariant, errSignerMismatch)
			return
		}
		b.respond(req.ID, rpc.SuccessRaw(res.Result))

	case interaction.KindSignTypedData:
		if req.TypedData != nil && req.TypedData.Typed != nil {
			sig, err := res.HexResult()
			if err != nil {
				fail(DiagnosticProtocol, fmt.Errorf("typed data result: %w", err))
				return
			}
			signer, err := rpc.RecoverTypedData(*req.TypedData.Typed, sig)
			if err != nil || signer != req.TypedData.Address {
				fail(DiagnosticInvariant, errSignerMismatch)
				return
			}
		}
		b.respond(req.ID, rpc.SuccessRaw(res.Result))

	case interaction.KindAddNetwork:
		if req.AddChain == nil {
			fail(DiagnosticInvariant, errNoPendingRecord)
			return
		}
		n, err := req.AddChain.Network()
		if err != nil {
			fail(DiagnosticInvariant, err)
			return
		}
		b.persist(func(doc *storage.Document) {
			doc.CustomNetworkMap[n.HexID] = n
		})
		b.applyNetwork(n.HexID)
		b.respond(req.ID, rpc.Success(nil))

	default:
		fail(DiagnosticInvariant, fmt.Errorf("no approval handler for %s", p.request.Kind))
	}
}

// approveConnect grants addr to the page. The user may pick the network in
// the overlay; otherwise the page stays on its current one.
func (b *Bridge) approveConnect(req rpc.Request, addr common.Address, res interaction.Resolution) {
	if !b.doc.HasAccount(addr) {
		// The wallet UI may have added the account after our last load.
		if doc, err := b.cfg.Store.Load(); err == nil {
			b.doc = doc
		}
	}
	if !b.doc.HasAccount(addr) {
		b.capture(Diagnostic{Kind: DiagnosticInvariant, Method: string(req.Method), Err: errUnknownAccount})
		b.respond(req.ID, rpc.FailureOf(rpc.ReasonInternal))
		return
	}

	prevNet := b.currentNetwork().HexID
	netID := prevNet
	if res.NetworkHexID != "" {
		if n, err := b.doc.Networks().Resolve(string(res.NetworkHexID)); err == nil {
			netID = n.HexID
		} else {
			b.cfg.Logger.Info("bridge %s: ignoring network %s chosen on connect: %v", b.cfg.SessionID, res.NetworkHexID, err)
		}
	}

	b.persistState(connection.NewConnected(b.cfg.Hostname, addr, netID, b.nowMs()))
	b.respond(req.ID, rpc.Success([]common.Address{addr}))
	b.sendPage(message.AccountChange{Account: &addr})
	if netID != prevNet {
		b.sendPage(message.NetworkChange{ChainID: netID})
	}
}

func (b *Bridge) recordTransaction(p *pending, hash common.Hash, preset storage.FeePreset) {
	tx := p.req.SendTransaction
	net := p.request.Network
	record := storage.TransactionRequest{
		ID:            p.request.ID,
		Hash:          hash,
		Hostname:      b.cfg.Hostname,
		NetworkHexID:  net,
		From:          tx.From,
		To:            tx.To,
		SubmittedAtMs: b.nowMs(),
	}
	if tx.Value != nil {
		record.Value = tx.Value.String()
	}
	if preset.Valid() {
		record.FeePreset = preset
	} else if preset != "" {
		b.cfg.Logger.Info("bridge %s: ignoring unknown fee preset %q", b.cfg.SessionID, preset)
	}

	b.persist(func(doc *storage.Document) {
		doc.RecordTransaction(record)
		if record.FeePreset != "" {
			doc.FeePresetMap[net] = record.FeePreset
		}
	})
}
