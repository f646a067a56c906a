package network

import (
	"net/url"
	"sort"
	"strings"

	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

// Type classifies where a network descriptor comes from.
type Type string

// Network types.
const (
	TypePredefined Type = "predefined"
	TypeTestnet    Type = "testnet"
	TypeCustom     Type = "custom"
)

var (
	// ErrNotSupported indicates a chain the wallet cannot serve RPC for.
	ErrNotSupported = &bridgeerr.BridgeError{
		Code:     "NETWORK_NOT_SUPPORTED",
		Message:  "network is not supported",
		ExitCode: bridgeerr.ExitInput,
	}

	// ErrNoEndpoint indicates no RPC endpoint is configured for a network.
	ErrNoEndpoint = &bridgeerr.BridgeError{
		Code:     "NETWORK_NO_ENDPOINT",
		Message:  "no RPC endpoint configured for network",
		ExitCode: bridgeerr.ExitNotFound,
	}

	// ErrInvalidRPCURL indicates an RPC endpoint that is not an http(s) URL.
	ErrInvalidRPCURL = &bridgeerr.BridgeError{
		Code:     "NETWORK_INVALID_RPC_URL",
		Message:  "RPC URL must be an absolute http or https URL",
		ExitCode: bridgeerr.ExitInput,
	}
)

// Currency describes a chain's native currency.
type Currency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Network is the descriptor for one chain.
type Network struct {
	HexID          HexID    `json:"hexChainId"`
	Name           string   `json:"name"`
	Type           Type     `json:"type"`
	RPCSupported   bool     `json:"rpcSupported"`
	DefaultRPC     string   `json:"rpcUrl,omitempty"`
	NativeCurrency Currency `json:"nativeCurrency"`
	BlockExplorer  string   `json:"blockExplorerUrl,omitempty"`
}

// Eligible reports whether the wallet may switch a page onto this network.
// Custom networks always carry their own RPC endpoint.
func (n Network) Eligible() bool {
	return n.Type == TypeCustom || n.RPCSupported
}

// NewCustom builds a custom network descriptor from user-supplied values.
func NewCustom(id HexID, name, rpcURL string, currency Currency, explorer string) (Network, error) {
	if err := ValidateRPCURL(rpcURL); err != nil {
		return Network{}, err
	}
	if strings.TrimSpace(name) == "" {
		name = "Custom " + id.Decimal()
	}
	if currency.Decimals == 0 {
		currency.Decimals = 18
	}
	return Network{
		HexID:          id,
		Name:           strings.TrimSpace(name),
		Type:           TypeCustom,
		RPCSupported:   true,
		DefaultRPC:     rpcURL,
		NativeCurrency: currency,
		BlockExplorer:  explorer,
	}, nil
}

// ValidateRPCURL checks that raw is an absolute http(s) URL.
func ValidateRPCURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return bridgeerr.WithDetails(ErrInvalidRPCURL, map[string]string{"url": raw})
	}
	return nil
}

// Map resolves hex chain ids to descriptors.
type Map map[HexID]Network

// NewMap merges the predefined networks with custom ones. A custom entry
// never shadows a predefined chain.
func NewMap(custom map[HexID]Network) Map {
	m := make(Map, len(predefined)+len(custom))
	for id, n := range custom {
		n.HexID = id
		n.Type = TypeCustom
		m[id] = n
	}
	for _, n := range predefined {
		m[n.HexID] = n
	}
	return m
}

// Find looks up a network by its canonical hex id.
func (m Map) Find(id HexID) (Network, bool) {
	n, ok := m[id]
	return n, ok
}

// Resolve parses raw and returns the network only when the wallet can switch to it.
func (m Map) Resolve(raw string) (Network, error) {
	id, err := ParseHexID(raw)
	if err != nil {
		return Network{}, err
	}
	n, ok := m[id]
	if !ok {
		return Network{}, bridgeerr.WithDetails(bridgeerr.ErrNetworkNotFound, map[string]string{"chainId": id.String()})
	}
	if !n.Eligible() {
		return Network{}, bridgeerr.WithDetails(ErrNotSupported, map[string]string{"chainId": id.String()})
	}
	return n, nil
}

// Sorted returns all networks ordered by numeric chain id.
func (m Map) Sorted() []Network {
	out := make([]Network, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].HexID.ChainID(), out[j].HexID.ChainID()
		if a == nil || b == nil {
			return out[i].HexID < out[j].HexID
		}
		return a.Cmp(b) < 0
	})
	return out
}

// RPCMap holds per-chain endpoint overrides chosen by the user.
type RPCMap map[HexID]string

// Endpoint returns the RPC URL for n. User overrides from storage win over
// config overrides, which win over the network default.
func Endpoint(n Network, stored RPCMap, configured map[string]string) (string, error) {
	if u := stored[n.HexID]; u != "" {
		return u, nil
	}
	if u := configured[n.HexID.String()]; u != "" {
		return u, nil
	}
	if n.DefaultRPC != "" {
		return n.DefaultRPC, nil
	}
	return "", bridgeerr.WithDetails(ErrNoEndpoint, map[string]string{"chainId": n.HexID.String()})
}
