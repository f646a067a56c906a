// Package network holds the chain reference data the bridge resolves chain ids against.
package network

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	bridgeerr "github.com/mrz1836/dappbridge/pkg/errors"
)

// HexID is a hex-encoded chain id in canonical form: lowercase, 0x-prefixed,
// no leading zeros ("0x1", "0xaa36a7").
type HexID string

// ParseHexID validates s and returns its canonical form.
// "0X01" is rejected by hexutil for its leading zero; "0XA" normalizes to "0xa".
func ParseHexID(s string) (HexID, error) {
	s = strings.TrimSpace(s)
	n, err := hexutil.DecodeBig(s)
	if err != nil {
		return "", bridgeerr.WithDetails(bridgeerr.ErrInvalidChainID, map[string]string{"value": s})
	}
	if n.Sign() == 0 {
		return "", bridgeerr.WithDetails(bridgeerr.ErrInvalidChainID, map[string]string{"value": s})
	}
	return HexID(hexutil.EncodeBig(n)), nil
}

// MustHexID is ParseHexID for compile-time constants. It panics on bad input.
func MustHexID(s string) HexID {
	id, err := ParseHexID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromChainID encodes a numeric chain id.
func FromChainID(id *big.Int) HexID {
	return HexID(hexutil.EncodeBig(id))
}

// ChainID decodes h. It returns nil when h is not valid hex.
func (h HexID) ChainID() *big.Int {
	n, err := hexutil.DecodeBig(string(h))
	if err != nil {
		return nil
	}
	return n
}

// Decimal returns the chain id in base 10, the form net_version answers with.
func (h HexID) Decimal() string {
	n := h.ChainID()
	if n == nil {
		return ""
	}
	return n.String()
}

// String implements fmt.Stringer.
func (h HexID) String() string {
	return string(h)
}
