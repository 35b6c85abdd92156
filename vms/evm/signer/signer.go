// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/certify/utils"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/accounts"
	"github.com/luxfi/geth/accounts/keystore"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
)

var (
	_ Signer = (*TxSigner)(nil)
	_ Signer = (*KeystoreSigner)(nil)

	ErrInvalidPrivateKey = errors.New("invalid private key")
)

// Signer is the signing identity used to authorize ledger-mutating calls.
type Signer interface {
	SignTx(tx *types.Transaction, evmChainID *big.Int) (*types.Transaction, error)
	Address() common.Address
}

// TxSigner signs with an in-memory secp256k1 key.
type TxSigner struct {
	pk      *ecdsa.PrivateKey
	address common.Address
}

// NewTxSigner parses a hex encoded private key, optionally prefixed with "0x".
func NewTxSigner(pkHex string) (*TxSigner, error) {
	pk, err := crypto.HexToECDSA(utils.SanitizeHexString(pkHex))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, err)
	}
	return NewTxSignerFromKey(pk), nil
}

func NewTxSignerFromKey(pk *ecdsa.PrivateKey) *TxSigner {
	return &TxSigner{
		pk:      pk,
		address: common.PubkeyToAddress(pk.PublicKey),
	}
}

func (s *TxSigner) SignTx(tx *types.Transaction, evmChainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(evmChainID), s.pk)
}

func (s *TxSigner) Address() common.Address {
	return s.address
}

// KeystoreSigner signs with an account held in an encrypted keystore.
// The account must be unlocked before SignTx is called.
type KeystoreSigner struct {
	ks      *keystore.KeyStore
	account accounts.Account
}

func NewKeystoreSigner(ks *keystore.KeyStore, account accounts.Account) *KeystoreSigner {
	return &KeystoreSigner{
		ks:      ks,
		account: account,
	}
}

func (s *KeystoreSigner) SignTx(tx *types.Transaction, evmChainID *big.Int) (*types.Transaction, error) {
	return s.ks.SignTx(s.account, tx, evmChainID)
}

func (s *KeystoreSigner) Address() common.Address {
	return s.account.Address
}
