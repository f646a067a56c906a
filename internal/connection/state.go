// Package connection models the authorization relationship between one page
// hostname and the wallet.
package connection

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/dappbridge/internal/network"
	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

// Kind is the connection state tag.
type Kind string

// Connection state kinds.
const (
	NotInteracted       Kind = "not_interacted"
	Disconnected        Kind = "disconnected"
	Connected           Kind = "connected"
	ConnectedToMetaMask Kind = "connected_to_meta_mask"
)

// ErrInvalidState indicates a stored state missing a field its kind requires.
var ErrInvalidState = &bridgeerr.BridgeError{
	Code:     "INVALID_CONNECTION_STATE",
	Message:  "invalid connection state",
	ExitCode: bridgeerr.ExitInput,
}

// DApp identifies the page a state belongs to.
type DApp struct {
	Hostname string `json:"hostname"`
}

// State is one of the four connection variants. Only the fields of the
// active Kind are meaningful:
//
//	not_interacted          DApp
//	disconnected            DApp, Network
//	connected               DApp, Address, Network, ConnectedAtMs
//	connected_to_meta_mask  DApp
type State struct {
	Kind          Kind
	DApp          DApp
	Address       common.Address
	Network       network.HexID
	ConnectedAtMs int64
}

// NewNotInteracted returns the state of a hostname with no record.
func NewNotInteracted(hostname string) State {
	return State{Kind: NotInteracted, DApp: DApp{Hostname: hostname}}
}

// NewDisconnected returns a known site with no active grant.
func NewDisconnected(hostname string, id network.HexID) State {
	return State{Kind: Disconnected, DApp: DApp{Hostname: hostname}, Network: id}
}

// NewConnected returns an active grant to address on network id.
func NewConnected(hostname string, address common.Address, id network.HexID, connectedAtMs int64) State {
	return State{
		Kind:          Connected,
		DApp:          DApp{Hostname: hostname},
		Address:       address,
		Network:       id,
		ConnectedAtMs: connectedAtMs,
	}
}

// NewConnectedToMetaMask returns a site delegated to the alternative provider.
func NewConnectedToMetaMask(hostname string) State {
	return State{Kind: ConnectedToMetaMask, DApp: DApp{Hostname: hostname}}
}

// Calculate derives the state of hostname from the stored dApps map.
// Absent hostnames are not_interacted; stored variants are returned unchanged.
func Calculate(hostname string, dApps map[string]State) State {
	if s, ok := dApps[hostname]; ok {
		s.DApp.Hostname = hostname
		return s
	}
	return NewNotInteracted(hostname)
}

// NetworkHexID returns the network recorded in the state, if the variant carries one.
func (s State) NetworkHexID() (network.HexID, bool) {
	switch s.Kind {
	case Disconnected, Connected:
		return s.Network, true
	case NotInteracted, ConnectedToMetaMask:
		return "", false
	default:
		return "", false
	}
}

// WithNetwork returns s moved onto network id. A not_interacted host becomes
// disconnected so the choice survives a reload. The delegated variant has no
// network and is returned unchanged with ok false.
func (s State) WithNetwork(id network.HexID) (State, bool) {
	switch s.Kind {
	case NotInteracted:
		return NewDisconnected(s.DApp.Hostname, id), true
	case Disconnected, Connected:
		s.Network = id
		return s, true
	case ConnectedToMetaMask:
		return s, false
	default:
		return s, false
	}
}

// Disconnect returns the disconnected form of s, keeping its network when it has one.
func (s State) Disconnect(fallback network.HexID) State {
	id, ok := s.NetworkHexID()
	if !ok {
		id = fallback
	}
	return NewDisconnected(s.DApp.Hostname, id)
}

// String implements fmt.Stringer.
func (s State) String() string {
	switch s.Kind {
	case Connected:
		return fmt.Sprintf("connected(%s, %s)", s.Address.Hex(), s.Network)
	case Disconnected:
		return fmt.Sprintf("disconnected(%s)", s.Network)
	case NotInteracted, ConnectedToMetaMask:
		return string(s.Kind)
	default:
		return "unknown(" + string(s.Kind) + ")"
	}
}

type wireState struct {
	Type          Kind            `json:"type"`
	DApp          *DApp           `json:"dApp,omitempty"`
	Address       *common.Address `json:"address,omitempty"`
	NetworkHexID  network.HexID   `json:"networkHexId,omitempty"`
	ConnectedAtMs int64           `json:"connectedAtMs,omitempty"`
}

// MarshalJSON encodes only the fields of the active variant.
func (s State) MarshalJSON() ([]byte, error) {
	dApp := s.DApp
	w := wireState{Type: s.Kind, DApp: &dApp}
	switch s.Kind {
	case Connected:
		addr := s.Address
		w.Address = &addr
		w.NetworkHexID = s.Network
		w.ConnectedAtMs = s.ConnectedAtMs
	case Disconnected:
		w.NetworkHexID = s.Network
	case NotInteracted, ConnectedToMetaMask:
	default:
		return nil, bridgeerr.WithDetails(ErrInvalidState, map[string]string{"type": string(s.Kind)})
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a stored state and rejects variants missing required fields.
func (s *State) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var hostname string
	if w.DApp != nil {
		hostname = strings.TrimSpace(w.DApp.Hostname)
	}

	invalid := func(field string) error {
		return bridgeerr.WithDetails(ErrInvalidState, map[string]string{"type": string(w.Type), "missing": field})
	}

	switch w.Type {
	case NotInteracted:
		*s = NewNotInteracted(hostname)
	case ConnectedToMetaMask:
		*s = NewConnectedToMetaMask(hostname)
	case Disconnected:
		id, err := network.ParseHexID(string(w.NetworkHexID))
		if err != nil {
			return invalid("networkHexId")
		}
		*s = NewDisconnected(hostname, id)
	case Connected:
		if w.Address == nil {
			return invalid("address")
		}
		id, err := network.ParseHexID(string(w.NetworkHexID))
		if err != nil {
			return invalid("networkHexId")
		}
		*s = NewConnected(hostname, *w.Address, id, w.ConnectedAtMs)
	default:
		return invalid("type")
	}
	return nil
}
