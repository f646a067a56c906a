package rpc

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrInvalidSignature indicates a signature that cannot be recovered.
var ErrInvalidSignature = errors.New("invalid signature")

// RecoverPersonal returns the signer of an EIP-191 personal message.
func RecoverPersonal(message, signature []byte) (common.Address, error) {
	return recoverHash(accounts.TextHash(message), signature)
}

// RecoverTypedData returns the signer of EIP-712 typed data.
func RecoverTypedData(td apitypes.TypedData, signature []byte) (common.Address, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Address{}, fmt.Errorf("hashing typed data: %w", err)
	}
	return recoverHash(hash, signature)
}

// recoverHash accepts both 27/28 and 0/1 recovery ids.
func recoverHash(hash, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(signature))
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
