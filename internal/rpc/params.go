package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/mrz1836/dappbridge/internal/network"
)

// SwitchChainParams is the argument of wallet_switchEthereumChain. The chain
// id is kept raw: an unparsable id is an unsupported network, not a bad request.
type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

// AddChainParams is the argument of wallet_addEthereumChain (EIP-3085).
type AddChainParams struct {
	ChainID           string            `json:"chainId"`
	ChainName         string            `json:"chainName"`
	RPCURLs           []string          `json:"rpcUrls"`
	NativeCurrency    *network.Currency `json:"nativeCurrency,omitempty"`
	BlockExplorerURLs []string          `json:"blockExplorerUrls,omitempty"`

	HexID network.HexID `json:"-"`
}

// Network builds the custom network descriptor the request asks for.
func (p AddChainParams) Network() (network.Network, error) {
	if len(p.RPCURLs) == 0 {
		return network.Network{}, fmt.Errorf("%w: rpcUrls is empty", ErrInvalidParams)
	}
	currency := network.Currency{Name: "Ether", Symbol: "ETH", Decimals: 18}
	if p.NativeCurrency != nil {
		currency = *p.NativeCurrency
	}
	var explorer string
	if len(p.BlockExplorerURLs) > 0 {
		explorer = p.BlockExplorerURLs[0]
	}
	return network.NewCustom(p.HexID, p.ChainName, p.RPCURLs[0], currency, explorer)
}

// PersonalSignParams is the argument of personal_sign.
type PersonalSignParams struct {
	Message []byte
	Raw     string
	Address common.Address
}

// TypedDataParams is the argument of the eth_signTypedData family. Typed is
// set for v3 and v4, whose payload is EIP-712 typed data.
type TypedDataParams struct {
	Address common.Address
	Raw     json.RawMessage
	Typed   *apitypes.TypedData
}

// TransactionParams is the argument of eth_sendTransaction.
type TransactionParams struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Data                 hexutil.Bytes   `json:"data,omitempty"`
	Input                hexutil.Bytes   `json:"input,omitempty"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Nonce                *hexutil.Uint64 `json:"nonce,omitempty"`
	ChainID              *hexutil.Big    `json:"chainId,omitempty"`
}

// CallData returns input, falling back to data.
func (p TransactionParams) CallData() []byte {
	if len(p.Input) > 0 {
		return p.Input
	}
	return p.Data
}

// ECRecoverParams is the argument of personal_ecRecover.
type ECRecoverParams struct {
	Message   []byte
	Signature []byte
}

func (r *Request) parseParams() error {
	var args []json.RawMessage
	if err := json.Unmarshal(r.Params, &args); err != nil {
		return fmt.Errorf("%w: params must be an array", ErrInvalidParams)
	}

	switch r.Method {
	case WalletSwitchEthereumChain:
		var p SwitchChainParams
		if err := decodeFirst(args, &p); err != nil {
			return err
		}
		if p.ChainID == "" {
			return fmt.Errorf("%w: chainId is required", ErrInvalidParams)
		}
		r.Switch = &p

	case WalletAddEthereumChain:
		var p AddChainParams
		if err := decodeFirst(args, &p); err != nil {
			return err
		}
		id, err := network.ParseHexID(p.ChainID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		p.HexID = id
		r.AddChain = &p

	case PersonalSign:
		p, err := parsePersonalSign(args)
		if err != nil {
			return err
		}
		r.PersonalSign = p

	case EthSignTypedData, EthSignTypedDataV3, EthSignTypedDataV4:
		p, err := parseTypedData(r.Method, args)
		if err != nil {
			return err
		}
		r.TypedData = p

	case EthSendTransaction:
		var p TransactionParams
		if err := decodeFirst(args, &p); err != nil {
			return err
		}
		if p.From == (common.Address{}) {
			return fmt.Errorf("%w: from is required", ErrInvalidParams)
		}
		r.SendTransaction = &p

	case EthSendRawTransaction:
		var raw hexutil.Bytes
		if err := decodeFirst(args, &raw); err != nil {
			return err
		}
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			return fmt.Errorf("%w: decoding raw transaction: %w", ErrInvalidParams, err)
		}
		r.RawTransaction = tx

	case PersonalECRecover:
		if len(args) < 2 {
			return fmt.Errorf("%w: expected message and signature", ErrInvalidParams)
		}
		var msg, sig string
		if err := json.Unmarshal(args[0], &msg); err != nil {
			return fmt.Errorf("%w: message must be a string", ErrInvalidParams)
		}
		if err := json.Unmarshal(args[1], &sig); err != nil {
			return fmt.Errorf("%w: signature must be a string", ErrInvalidParams)
		}
		sigBytes, err := hexutil.Decode(sig)
		if err != nil {
			return fmt.Errorf("%w: signature: %w", ErrInvalidParams, err)
		}
		r.ECRecover = &ECRecoverParams{Message: messageBytes(msg), Signature: sigBytes}

	default:
	}
	return nil
}

func decodeFirst(args []json.RawMessage, v any) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing argument", ErrInvalidParams)
	}
	if err := json.Unmarshal(args[0], v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}

// parsePersonalSign accepts [message, address]. Some pages send the pair
// reversed; when only the first value is an address the two are swapped.
func parsePersonalSign(args []json.RawMessage) (*PersonalSignParams, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%w: expected message and address", ErrInvalidParams)
	}
	var first, second string
	if err := json.Unmarshal(args[0], &first); err != nil {
		return nil, fmt.Errorf("%w: message must be a string", ErrInvalidParams)
	}
	if err := json.Unmarshal(args[1], &second); err != nil {
		return nil, fmt.Errorf("%w: address must be a string", ErrInvalidParams)
	}

	msg, addr := first, second
	if common.IsHexAddress(first) && !common.IsHexAddress(second) {
		msg, addr = second, first
	}
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("%w: invalid address %q", ErrInvalidParams, addr)
	}
	return &PersonalSignParams{
		Message: messageBytes(msg),
		Raw:     msg,
		Address: common.HexToAddress(addr),
	}, nil
}

// parseTypedData accepts [address, data] for v3/v4 and [data, address] for
// the legacy method, in either order.
func parseTypedData(method Method, args []json.RawMessage) (*TypedDataParams, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%w: expected address and typed data", ErrInvalidParams)
	}

	addrIdx := -1
	for i := 0; i < 2; i++ {
		var s string
		if json.Unmarshal(args[i], &s) == nil && common.IsHexAddress(s) {
			addrIdx = i
			break
		}
	}
	if addrIdx < 0 {
		return nil, fmt.Errorf("%w: no signer address", ErrInvalidParams)
	}

	var addrStr string
	_ = json.Unmarshal(args[addrIdx], &addrStr)
	payload := args[1-addrIdx]

	// v3/v4 payloads are frequently sent as a JSON string holding the object.
	var asString string
	if json.Unmarshal(payload, &asString) == nil {
		payload = json.RawMessage(asString)
	}

	p := &TypedDataParams{Address: common.HexToAddress(addrStr), Raw: payload}
	if method == EthSignTypedData {
		return p, nil
	}

	var td apitypes.TypedData
	if err := json.Unmarshal(payload, &td); err != nil {
		return nil, fmt.Errorf("%w: typed data: %w", ErrInvalidParams, err)
	}
	if td.PrimaryType == "" || len(td.Types) == 0 {
		return nil, fmt.Errorf("%w: typed data has no primaryType or types", ErrInvalidParams)
	}
	p.Typed = &td
	return p, nil
}

// messageBytes decodes 0x-prefixed hex, treating anything else as UTF-8 text.
func messageBytes(s string) []byte {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if b, err := hexutil.Decode("0x" + s[2:]); err == nil {
			return b
		}
	}
	return []byte(s)
}
