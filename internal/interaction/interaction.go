// Package interaction describes provider calls that wait for the user: what
// the wallet UI is asked to show, and how the user's answer is reported back.
package interaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mrz1836/dappbridge/internal/network"
	"github.com/mrz1836/dappbridge/internal/rpc"
	"github.com/mrz1836/dappbridge/internal/storage"
)

// Kind is the overlay screen a request needs.
type Kind string

// Interaction kinds.
const (
	KindConnect         Kind = "connect"
	KindSendTransaction Kind = "send_transaction"
	KindPersonalSign    Kind = "personal_sign"
	KindSignTypedData   Kind = "sign_typed_data"
	KindAddNetwork      Kind = "add_network"
)

// KindOf returns the overlay kind for method. ok is false for methods that
// never need the user.
func KindOf(m rpc.Method) (Kind, bool) {
	switch m {
	case rpc.EthRequestAccounts:
		return KindConnect, true
	case rpc.EthSendTransaction:
		return KindSendTransaction, true
	case rpc.PersonalSign:
		return KindPersonalSign, true
	case rpc.EthSignTypedData, rpc.EthSignTypedDataV3, rpc.EthSignTypedDataV4:
		return KindSignTypedData, true
	case rpc.WalletAddEthereumChain:
		return KindAddNetwork, true
	default:
		return "", false
	}
}

// Action is the user's terminal choice on an overlay.
type Action string

// Actions.
const (
	ActionApprove                Action = "approve"
	ActionReject                 Action = "reject"
	ActionClose                  Action = "close"
	ActionUseAlternativeProvider Action = "use_alternative_provider"
)

// Validation failures for resolutions.
var (
	ErrUnknownAction      = errors.New("unknown action")
	ErrActionNotAllowed   = errors.New("action not allowed for this interaction")
	ErrMissingAddress     = errors.New("approval requires an address")
	ErrMissingResult      = errors.New("approval requires a result")
	ErrInteractionUnknown = errors.New("no such pending interaction")
)

// Summary is a display-ready digest of the request.
type Summary struct {
	Title   string `json:"title"`
	Amount  string `json:"amount,omitempty"`
	To      string `json:"to,omitempty"`
	Network string `json:"network,omitempty"`
	Message string `json:"message,omitempty"`
}

// Request is one pending overlay.
type Request struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Hostname    string          `json:"hostname"`
	Account     *common.Address `json:"account,omitempty"`
	Network     network.HexID   `json:"networkHexId"`
	RPC         rpc.Request     `json:"request"`
	CreatedAtMs int64           `json:"createdAtMs"`
	Summary     Summary         `json:"summary"`
}

// New builds the overlay for req. account is the connected address, if any.
func New(req rpc.Request, hostname string, account *common.Address, net network.Network, nowMs int64) (Request, error) {
	kind, ok := KindOf(req.Method)
	if !ok {
		return Request{}, fmt.Errorf("method %s needs no interaction", req.Method)
	}
	return Request{
		ID:          uuid.NewString(),
		Kind:        kind,
		Hostname:    hostname,
		Account:     account,
		Network:     net.HexID,
		RPC:         req,
		CreatedAtMs: nowMs,
		Summary:     summarize(kind, req, hostname, net),
	}, nil
}

func summarize(kind Kind, req rpc.Request, hostname string, net network.Network) Summary {
	s := Summary{Network: net.Name}
	switch kind {
	case KindConnect:
		s.Title = "Connect to " + hostname
	case KindSendTransaction:
		s.Title = "Send transaction"
		if tx := req.SendTransaction; tx != nil {
			if tx.To != nil {
				s.To = tx.To.Hex()
			} else {
				s.To = "contract creation"
			}
			s.Amount = FormatAmount(tx.Value, net.NativeCurrency)
		}
	case KindPersonalSign:
		s.Title = "Sign message"
		if p := req.PersonalSign; p != nil {
			s.Message = displayMessage(p.Message)
		}
	case KindSignTypedData:
		s.Title = "Sign typed data"
		if p := req.TypedData; p != nil && p.Typed != nil {
			s.Message = p.Typed.PrimaryType
			if p.Typed.Domain.Name != "" {
				s.Message = p.Typed.Domain.Name + ": " + p.Typed.PrimaryType
			}
		}
	case KindAddNetwork:
		s.Title = "Add network"
		if p := req.AddChain; p != nil {
			s.Network = p.ChainName
			if len(p.RPCURLs) > 0 {
				s.To = p.RPCURLs[0]
			}
		}
	}
	return s
}

// FormatAmount renders a wei value in whole units of currency.
func FormatAmount(v *hexutil.Big, currency network.Currency) string {
	amount := decimal.Zero
	if v != nil {
		amount = decimal.NewFromBigInt(v.ToInt(), -int32(currency.Decimals)) //nolint:gosec // G115: decimals are small
	}
	return amount.String() + " " + currency.Symbol
}

// displayMessage shows UTF-8 text as is and anything else as hex.
func displayMessage(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return hexutil.Encode(b)
}

// Resolution is the user's answer to an overlay.
type Resolution struct {
	InteractionID string            `json:"interactionId"`
	Action        Action            `json:"action"`
	Address       *common.Address   `json:"address,omitempty"`
	NetworkHexID  network.HexID     `json:"networkHexId,omitempty"`
	Result        json.RawMessage   `json:"result,omitempty"`
	FeePreset     storage.FeePreset `json:"feePreset,omitempty"`
}

// Validate checks that r carries what its action needs for an overlay of kind.
func (r Resolution) Validate(kind Kind) error {
	switch r.Action {
	case ActionReject, ActionClose:
		return nil
	case ActionUseAlternativeProvider:
		if kind != KindConnect {
			return fmt.Errorf("%w: %s on %s", ErrActionNotAllowed, r.Action, kind)
		}
		return nil
	case ActionApprove:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, r.Action)
	}

	switch kind {
	case KindConnect:
		if r.Address == nil {
			return ErrMissingAddress
		}
	case KindSendTransaction, KindPersonalSign, KindSignTypedData:
		if len(r.Result) == 0 || string(r.Result) == "null" {
			return ErrMissingResult
		}
	case KindAddNetwork:
	}
	return nil
}

// HexResult decodes the result as a 0x-prefixed hex string.
func (r Resolution) HexResult() ([]byte, error) {
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		return nil, fmt.Errorf("result must be a hex string: %w", err)
	}
	return hexutil.Decode(s)
}
