package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/dappbridge/internal/connection"
	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/rpc"
)

var errDelegated = errors.New("call from a page delegated to the alternative provider")

// handleRPCRequest answers one provider call. Every call with a usable id
// gets exactly one rpc_response, now or later, except the connect hand-off
// to the alternative provider.
func (b *Bridge) handleRPCRequest(raw json.RawMessage) {
	b.cfg.Metrics.RecordRequest()

	req, err := rpc.ParseRequest(raw)
	if err != nil {
		var pe *rpc.ParseError
		if !errors.As(err, &pe) {
			pe = &rpc.ParseError{Err: err}
		}
		b.capture(Diagnostic{Kind: DiagnosticParse, Method: pe.Method, Suggestion: pe.Suggestion, Err: err})
		if pe.HasID {
			b.respond(pe.ID, rpc.FailureOf(rpc.ReasonUnsupportedMethod))
		}
		return
	}

	b.cfg.Logger.Debug("bridge %s: %s id=%d state=%s", b.cfg.SessionID, req.Method, req.ID, b.state)
	b.dispatch(req)
}

func (b *Bridge) dispatch(req rpc.Request) {
	if b.state.Kind == connection.ConnectedToMetaMask {
		b.dispatchDelegated(req)
		return
	}

	group, ok := req.Method.Group()
	if !ok {
		b.capture(Diagnostic{Kind: DiagnosticInvariant, Method: string(req.Method), Err: rpc.ErrUnsupportedMethod})
		b.respond(req.ID, rpc.FailureOf(rpc.ReasonUnsupportedMethod))
		return
	}

	switch group {
	case rpc.GroupLocal:
		b.respond(req.ID, b.local(req))

	case rpc.GroupPassive:
		b.forward(req)

	case rpc.GroupGatedProxy:
		if _, connected := b.connectedAccount(); !connected {
			b.respond(req.ID, rpc.FailureOf(rpc.ReasonUnauthorized))
			return
		}
		if req.Method == rpc.EthSendRawTransaction {
			if reason, ok := b.checkRawTransaction(req); !ok {
				b.respond(req.ID, rpc.Failure(reason))
				return
			}
		}
		b.forward(req)

	case rpc.GroupGatedInteraction:
		addr, connected := b.connectedAccount()
		if !connected {
			b.respond(req.ID, rpc.FailureOf(rpc.ReasonUnauthorized))
			return
		}
		if req.Method == rpc.WalletAddEthereumChain {
			b.addChain(req)
			return
		}
		if !signerMatches(req, addr) {
			b.respond(req.ID, rpc.FailureOf(rpc.ReasonUnauthorized))
			return
		}
		b.openInteraction(req)

	case rpc.GroupConnect:
		if addr, connected := b.connectedAccount(); connected {
			b.respond(req.ID, rpc.Success([]common.Address{addr}))
			return
		}
		b.openInteraction(req)

	case rpc.GroupSwitch:
		b.switchNetwork(req)

	default:
		b.capture(Diagnostic{Kind: DiagnosticInvariant, Method: string(req.Method), Err: fmt.Errorf("no handler for group %s", group)})
		b.respond(req.ID, rpc.FailureOf(rpc.ReasonInternal))
	}
}

// dispatchDelegated serves a page handed to the alternative provider. Only
// the calls that let it come back are expected.
func (b *Bridge) dispatchDelegated(req rpc.Request) {
	switch req.Method {
	case rpc.EthRequestAccounts:
		b.openInteraction(req)
	case rpc.EthAccounts:
		b.respond(req.ID, b.local(req))
	default:
		b.capture(Diagnostic{Kind: DiagnosticUnexpectedMethod, Method: string(req.Method), Err: errDelegated})
		b.respond(req.ID, rpc.FailureOf(rpc.ReasonInternal))
	}
}

// local answers methods served from bridge state.
func (b *Bridge) local(req rpc.Request) rpc.Response {
	switch req.Method {
	case rpc.EthChainID:
		return rpc.Success(b.currentNetwork().HexID)
	case rpc.NetVersion:
		return rpc.Success(b.currentNetwork().HexID.Decimal())
	case rpc.EthCoinbase:
		if addr, ok := b.connectedAccount(); ok {
			return rpc.Success(addr)
		}
		return rpc.Success(nil)
	case rpc.EthAccounts:
		if addr, ok := b.connectedAccount(); ok {
			return rpc.Success([]common.Address{addr})
		}
		return rpc.Success([]common.Address{})
	case rpc.WalletWatchAsset:
		return rpc.Success(true)
	case rpc.PersonalECRecover:
		p := req.ECRecover
		addr, err := rpc.RecoverPersonal(p.Message, p.Signature)
		if err != nil {
			return rpc.Failure(rpc.ReasonFromError(err))
		}
		return rpc.Success(addr)
	default:
		b.capture(Diagnostic{Kind: DiagnosticInvariant, Method: string(req.Method), Err: errors.New("method is not local")})
		return rpc.FailureOf(rpc.ReasonInternal)
	}
}

// forward proxies req to the current network's endpoint. The result is
// posted back to the mailbox and answered by the actor loop.
func (b *Bridge) forward(req rpc.Request) {
	net := b.currentNetwork()
	endpoint, err := network.Endpoint(net, b.doc.NetworkRPCMap, b.cfg.RPCOverrides)
	if err != nil {
		b.respond(req.ID, rpc.Failure(rpc.ReasonFromError(err)))
		return
	}

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()

		start := time.Now()
		result, err := b.cfg.Forwarder.Forward(b.ctx, endpoint, req.Method, req.Params)
		b.cfg.Metrics.RecordProxyCall(time.Since(start), err)

		resp := rpc.SuccessRaw(result)
		if err != nil {
			b.cfg.Logger.Debug("bridge %s: %s via %s: %v", b.cfg.SessionID, req.Method, endpoint, err)
			resp = rpc.Failure(rpc.ReasonFromError(err))
		}

		select {
		case b.mailbox <- proxyEvent{id: req.ID, resp: resp}:
		case <-b.ctx.Done():
		}
	}()
}

// checkRawTransaction refuses signed transactions for another chain.
func (b *Bridge) checkRawTransaction(req rpc.Request) (rpc.Reason, bool) {
	tx := req.RawTransaction
	if tx == nil || !tx.Protected() {
		return rpc.Reason{}, true
	}
	want := b.currentNetwork().HexID
	if got := network.FromChainID(tx.ChainId()); got != want {
		reason := rpc.NewReason(rpc.ReasonRawError)
		reason.Message = fmt.Sprintf("transaction chain id %s does not match current network %s", got, want)
		return reason, false
	}
	return rpc.Reason{}, true
}

// signerMatches reports whether the account a call signs with is the connected one.
func signerMatches(req rpc.Request, connected common.Address) bool {
	switch {
	case req.SendTransaction != nil:
		return req.SendTransaction.From == connected
	case req.PersonalSign != nil:
		return req.PersonalSign.Address == connected
	case req.TypedData != nil:
		return req.TypedData.Address == connected
	default:
		return true
	}
}
