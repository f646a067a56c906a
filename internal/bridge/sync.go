package bridge

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/dappbridge/internal/connection"
	"github.com/mrz1836/dappbridge/internal/message"
	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/storage"
)

// setState replaces the in-memory state, keeping the session network in
// step with variants that carry one.
func (b *Bridge) setState(s connection.State) {
	b.state = s
	if id, ok := s.NetworkHexID(); ok {
		b.network = id
	}
}

// persistState records s for this host and writes the document back.
func (b *Bridge) persistState(s connection.State) {
	b.setState(s)
	b.persist(func(doc *storage.Document) {
		doc.SetConnectionState(s)
	})
}

// persist applies mutate to a freshly loaded document and saves it whole.
// Writers elsewhere that save in between are overwritten; the last write wins.
func (b *Bridge) persist(mutate func(doc *storage.Document)) {
	doc, err := b.cfg.Store.Load()
	if err != nil {
		b.cfg.Logger.Error("bridge %s: reloading storage before save: %v", b.cfg.SessionID, err)
		doc = b.doc.Clone()
	}
	mutate(doc)

	err = b.cfg.Store.Save(doc)
	b.cfg.Metrics.RecordStorageWrite(err)
	if err != nil {
		b.cfg.Logger.Error("bridge %s: saving storage: %v", b.cfg.SessionID, err)
	}
	b.doc = doc
}

// reload re-reads storage and tells the page what changed for its host.
func (b *Bridge) reload() {
	doc, err := b.cfg.Store.Load()
	if err != nil {
		b.cfg.Logger.Error("bridge %s: reloading storage: %v", b.cfg.SessionID, err)
		return
	}

	prev := b.state
	prevNet := b.currentNetwork().HexID

	b.doc = doc
	b.setState(doc.ConnectionState(b.cfg.Hostname))
	b.announceChanges(prev, prevNet)
}

// announceChanges emits disconnect, account_change and network_change for
// the difference between prev and the current state.
func (b *Bridge) announceChanges(prev connection.State, prevNet network.HexID) {
	next := b.state
	wasConnected := prev.Kind == connection.Connected
	isConnected := next.Kind == connection.Connected

	switch {
	case wasConnected && !isConnected:
		b.sendPage(message.Disconnect{})
	case isConnected && (!wasConnected || prev.Address != next.Address):
		addr := next.Address
		b.sendPage(message.AccountChange{Account: &addr})
	}

	if net := b.currentNetwork().HexID; net != prevNet {
		b.sendPage(message.NetworkChange{ChainID: net})
	}
}

// changeAddress follows the account selected in the wallet UI. A connected
// page moves to the new account; a delegated page is invited back.
func (b *Bridge) changeAddress(addr common.Address) {
	switch b.state.Kind {
	case connection.Connected:
		if addr == b.state.Address {
			return
		}
		if !b.doc.HasAccount(addr) {
			if doc, err := b.cfg.Store.Load(); err == nil {
				b.doc = doc
			}
		}
		if !b.doc.HasAccount(addr) {
			b.capture(Diagnostic{Kind: DiagnosticInvariant, Err: errUnknownAccount})
			return
		}
		next := b.state
		next.Address = addr
		b.persistState(next)
		b.sendPage(message.AccountChange{Account: &addr})

	case connection.ConnectedToMetaMask:
		b.sendPage(message.SwitchToZealProviderRequested{ChainID: b.currentNetwork().HexID, Account: addr})

	case connection.NotInteracted, connection.Disconnected:
	}
}
