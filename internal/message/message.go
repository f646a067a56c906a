// Package message defines the JSON messages exchanged with pages and with the
// wallet UI. Every message is an object tagged by its "type" field.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/dappbridge/internal/interaction"
	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/rpc"
	"github.com/mrz1836/dappbridge/internal/storage"
)

// Type tags a message.
type Type string

// Page to bridge.
const (
	TypeRPCRequest           Type = "rpc_request"
	TypeProviderAnnouncement Type = "provider_announcement_msg"
	TypeVisibilityChange     Type = "visibility_change"
)

// Bridge to page.
const (
	TypeRPCResponse                   Type = "rpc_response"
	TypeInitProvider                  Type = "init_provider"
	TypeAccountChange                 Type = "account_change"
	TypeNetworkChange                 Type = "network_change"
	TypeDisconnect                    Type = "disconnect"
	TypeSelectMetaMaskProvider        Type = "select_meta_mask_provider"
	TypeSwitchToZealProviderRequested Type = "switch_to_zeal_provider_requested"
	TypeChangeIframeSize              Type = "change_iframe_size"
	TypeReady                         Type = "ready"
)

// Wallet UI to bridge.
const (
	TypeExtensionAddressChange Type = "extension_address_change"
	TypeStorageChanged         Type = "storage_changed"
	TypeInteractionResponse    Type = "interaction_response"
)

// Bridge to wallet UI.
const (
	TypeInteractionRequest Type = "interaction_request"
	TypeInteractionClosed  Type = "interaction_closed"
)

// ErrUnknownType indicates a message whose type the receiver does not handle.
var ErrUnknownType = errors.New("unknown message type")

// Message is any encodable message.
type Message interface {
	MessageType() Type
}

// AlternativeProvider is the other injected provider a page may use.
type AlternativeProvider string

// Alternative providers.
const (
	ProviderUnavailable AlternativeProvider = "provider_unavailable"
	ProviderMetaMask    AlternativeProvider = "metamask"
)

// IframeSize is the footprint of the wallet widget on the page.
type IframeSize string

// Iframe sizes.
const (
	IframeIcon     IframeSize = "icon"
	IframeExpanded IframeSize = "expanded"
)

type header struct {
	Type Type `json:"type"`
}

// Encode serializes m with its type tag.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.MessageType(), err)
	}
	if string(body) == "{}" {
		return json.Marshal(header{Type: m.MessageType()})
	}
	tag, err := json.Marshal(header{Type: m.MessageType()})
	if err != nil {
		return nil, err
	}
	// Splice {"type":...} in front of the body's fields.
	out := make([]byte, 0, len(tag)+len(body))
	out = append(out, tag[:len(tag)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// PeekType returns the type tag of a raw message.
func PeekType(data []byte) (Type, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return "", fmt.Errorf("decoding message: %w", err)
	}
	if h.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrUnknownType)
	}
	return h.Type, nil
}

// RPCRequest carries a provider call. Request stays raw so a malformed call
// can still be answered by id.
type RPCRequest struct {
	Request json.RawMessage `json:"request"`
}

// ProviderAnnouncement tells the bridge which alternative provider the page has.
type ProviderAnnouncement struct {
	Provider AlternativeProvider `json:"provider"`
}

// VisibilityChange reports the page's document visibility.
type VisibilityChange struct {
	Visible bool `json:"visible"`
}

// RPCResponse answers a provider call.
type RPCResponse struct {
	ID       int64        `json:"id"`
	Response rpc.Response `json:"response"`
}

// InitProvider is the first message a page receives.
type InitProvider struct {
	Account *common.Address `json:"account"`
	ChainID network.HexID   `json:"chainId"`
}

// AccountChange announces the account exposed to the page; nil means none.
type AccountChange struct {
	Account *common.Address `json:"account"`
}

// NetworkChange announces the page's current chain.
type NetworkChange struct {
	ChainID network.HexID `json:"chainId"`
}

// Disconnect tells the page its grant was revoked.
type Disconnect struct{}

// SelectMetaMaskProvider hands the original eth_requestAccounts call to the
// alternative provider; the page answers it there under the same id.
type SelectMetaMaskProvider struct {
	ID                 int64       `json:"id"`
	EthRequestAccounts rpc.Request `json:"ethRequestAccounts"`
}

// SwitchToZealProviderRequested asks a page that was delegated to the
// alternative provider to come back to the wallet.
type SwitchToZealProviderRequested struct {
	ChainID network.HexID  `json:"chainId"`
	Account common.Address `json:"account"`
}

// ChangeIframeSize resizes the widget.
type ChangeIframeSize struct {
	Size IframeSize `json:"size"`
}

// Ready signals the bridge is accepting requests.
type Ready struct{}

// ExtensionAddressChange reports the account selected in the wallet UI.
type ExtensionAddressChange struct {
	Address common.Address `json:"address"`
}

// StorageChanged reports that the storage document was written elsewhere.
type StorageChanged struct{}

// InteractionResponse is the user's answer to an overlay.
type InteractionResponse struct {
	SessionID     string             `json:"sessionId"`
	InteractionID string             `json:"interactionId"`
	Action        interaction.Action `json:"action"`
	Address       *common.Address    `json:"address,omitempty"`
	NetworkHexID  network.HexID      `json:"networkHexId,omitempty"`
	Result        json.RawMessage    `json:"result,omitempty"`
	FeePreset     storage.FeePreset  `json:"feePreset,omitempty"`
}

// Resolution strips the routing fields.
func (m InteractionResponse) Resolution() interaction.Resolution {
	return interaction.Resolution{
		InteractionID: m.InteractionID,
		Action:        m.Action,
		Address:       m.Address,
		NetworkHexID:  m.NetworkHexID,
		Result:        m.Result,
		FeePreset:     m.FeePreset,
	}
}

// InteractionRequest asks the wallet UI to open an overlay.
type InteractionRequest struct {
	SessionID string              `json:"sessionId"`
	Request   interaction.Request `json:"request"`
}

// InteractionClosed tells the wallet UI an overlay is gone.
type InteractionClosed struct {
	SessionID     string `json:"sessionId"`
	InteractionID string `json:"interactionId"`
}

func (RPCRequest) MessageType() Type                    { return TypeRPCRequest }
func (ProviderAnnouncement) MessageType() Type          { return TypeProviderAnnouncement }
func (VisibilityChange) MessageType() Type              { return TypeVisibilityChange }
func (RPCResponse) MessageType() Type                   { return TypeRPCResponse }
func (InitProvider) MessageType() Type                  { return TypeInitProvider }
func (AccountChange) MessageType() Type                 { return TypeAccountChange }
func (NetworkChange) MessageType() Type                 { return TypeNetworkChange }
func (Disconnect) MessageType() Type                    { return TypeDisconnect }
func (SelectMetaMaskProvider) MessageType() Type        { return TypeSelectMetaMaskProvider }
func (SwitchToZealProviderRequested) MessageType() Type { return TypeSwitchToZealProviderRequested }
func (ChangeIframeSize) MessageType() Type              { return TypeChangeIframeSize }
func (Ready) MessageType() Type                         { return TypeReady }
func (ExtensionAddressChange) MessageType() Type        { return TypeExtensionAddressChange }
func (StorageChanged) MessageType() Type                { return TypeStorageChanged }
func (InteractionResponse) MessageType() Type           { return TypeInteractionResponse }
func (InteractionRequest) MessageType() Type            { return TypeInteractionRequest }
func (InteractionClosed) MessageType() Type             { return TypeInteractionClosed }

// DecodePage decodes a message sent by a page.
func DecodePage(data []byte) (Message, error) {
	t, err := PeekType(data)
	if err != nil {
		return nil, err
	}
	switch t {
	case TypeRPCRequest:
		return decodeAs[RPCRequest](data)
	case TypeProviderAnnouncement:
		m, err := decodeAs[ProviderAnnouncement](data)
		if err != nil {
			return nil, err
		}
		switch m.Provider {
		case ProviderUnavailable, ProviderMetaMask:
			return m, nil
		default:
			return nil, fmt.Errorf("%w: provider %q", ErrUnknownType, m.Provider)
		}
	case TypeVisibilityChange:
		return decodeAs[VisibilityChange](data)
	default:
		return nil, fmt.Errorf("%w: %q from page", ErrUnknownType, t)
	}
}

// DecodeExtension decodes a message sent by the wallet UI.
func DecodeExtension(data []byte) (Message, error) {
	t, err := PeekType(data)
	if err != nil {
		return nil, err
	}
	switch t {
	case TypeExtensionAddressChange:
		return decodeAs[ExtensionAddressChange](data)
	case TypeStorageChanged:
		return StorageChanged{}, nil
	case TypeInteractionResponse:
		return decodeAs[InteractionResponse](data)
	default:
		return nil, fmt.Errorf("%w: %q from extension", ErrUnknownType, t)
	}
}

func decodeAs[T Message](data []byte) (T, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decoding %s: %w", m.MessageType(), err)
	}
	return m, nil
}
