package bridge

import (
	"github.com/mrz1836/dappbridge/internal/message"
	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/rpc"
)

// switchNetwork handles wallet_switchEthereumChain. Only custom networks and
// networks with RPC support are eligible; anything else leaves state untouched.
func (b *Bridge) switchNetwork(req rpc.Request) {
	n, err := b.doc.Networks().Resolve(req.Switch.ChainID)
	if err != nil {
		b.cfg.Logger.Debug("bridge %s: switch to %q refused: %v", b.cfg.SessionID, req.Switch.ChainID, err)
		b.respond(req.ID, rpc.FailureOf(rpc.ReasonNotSupportedNetwork))
		return
	}
	b.applyNetwork(n.HexID)
	b.respond(req.ID, rpc.Success(nil))
}

// addChain handles wallet_addEthereumChain for a connected page. A chain the
// wallet already knows is switched to directly; a new one needs approval.
func (b *Bridge) addChain(req rpc.Request) {
	p := req.AddChain
	if n, ok := b.doc.Networks().Find(p.HexID); ok {
		if !n.Eligible() {
			b.respond(req.ID, rpc.FailureOf(rpc.ReasonNotSupportedNetwork))
			return
		}
		b.applyNetwork(n.HexID)
		b.respond(req.ID, rpc.Success(nil))
		return
	}

	if _, err := p.Network(); err != nil {
		b.capture(Diagnostic{Kind: DiagnosticParse, Method: string(req.Method), Err: err})
		b.respond(req.ID, rpc.FailureOf(rpc.ReasonUnsupportedMethod))
		return
	}
	b.openInteraction(req)
}

// applyNetwork moves the page onto id, records it in the host's state and
// announces it with network_change. The delegated state carries no network,
// so only the session network changes there.
func (b *Bridge) applyNetwork(id network.HexID) {
	b.network = id
	if next, ok := b.state.WithNetwork(id); ok && next != b.state {
		b.persistState(next)
	}
	b.sendPage(message.NetworkChange{ChainID: id})
}
