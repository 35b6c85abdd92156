// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/log"
)

const (
	IssueCertificateMethod  = "issueCertificate"
	VerifyCertificateMethod = "verifyCertificate"

	// CertificateRegistryABI is the interface of the registry consumed here:
	// a mutating issue and a read-only verify, both keyed by a bytes32 value.
	CertificateRegistryABI = `[
	{
		"inputs": [{"internalType": "bytes32", "name": "certificateHash", "type": "bytes32"}],
		"name": "issueCertificate",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "bytes32", "name": "certificateHash", "type": "bytes32"}],
		"name": "verifyCertificate",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`
)

var (
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrUnexpectedOutput    = errors.New("unexpected call output")

	parsedABI = mustParseABI(CertificateRegistryABI)
)

// Backend submits transactions and read calls to the ledger.
// *evm.LedgerClient implements it.
type Backend interface {
	SendTx(ctx context.Context, to common.Address, gasLimit uint64, callData []byte) (*types.Transaction, error)
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Call(ctx context.Context, to common.Address, callData []byte) ([]byte, error)
}

// CertificateRegistry is a typed handle to the registry contract at a fixed
// address.
type CertificateRegistry struct {
	address  common.Address
	backend  Backend
	gasLimit uint64
	logger   log.Logger
}

func NewCertificateRegistry(
	logger log.Logger,
	address common.Address,
	backend Backend,
	gasLimit uint64,
) *CertificateRegistry {
	return &CertificateRegistry{
		address:  address,
		backend:  backend,
		gasLimit: gasLimit,
		logger:   logger.With(log.Stringer("contract", address)),
	}
}

func (r *CertificateRegistry) Address() common.Address {
	return r.address
}

// IssueCertificate submits issueCertificate(certificate) and blocks until the
// transaction is included. A receipt with a failed status is reported as
// ErrTransactionReverted.
func (r *CertificateRegistry) IssueCertificate(ctx context.Context, certificate [32]byte) (*types.Receipt, error) {
	callData, err := PackIssueCertificate(certificate)
	if err != nil {
		return nil, err
	}
	tx, err := r.backend.SendTx(ctx, r.address, r.gasLimit, callData)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", IssueCertificateMethod, err)
	}
	receipt, err := r.backend.WaitForReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		r.logger.Warn(
			"Certificate issuance reverted",
			log.String("txID", tx.Hash().String()),
		)
		return receipt, fmt.Errorf("%w: %s", ErrTransactionReverted, tx.Hash())
	}
	r.logger.Debug(
		"Certificate issued",
		log.String("txID", tx.Hash().String()),
	)
	return receipt, nil
}

// VerifyCertificate calls verifyCertificate(certificate). No transaction is
// created.
func (r *CertificateRegistry) VerifyCertificate(ctx context.Context, certificate [32]byte) (bool, error) {
	callData, err := PackVerifyCertificate(certificate)
	if err != nil {
		return false, err
	}
	out, err := r.backend.Call(ctx, r.address, callData)
	if err != nil {
		return false, fmt.Errorf("failed to call %s: %w", VerifyCertificateMethod, err)
	}
	return UnpackVerifyCertificate(out)
}

func PackIssueCertificate(certificate [32]byte) ([]byte, error) {
	return parsedABI.Pack(IssueCertificateMethod, certificate)
}

func PackVerifyCertificate(certificate [32]byte) ([]byte, error) {
	return parsedABI.Pack(VerifyCertificateMethod, certificate)
}

// UnpackVerifyCertificate decodes the boolean returned by verifyCertificate.
// Empty output, as returned when no contract is deployed at the address, is
// an error rather than false.
func UnpackVerifyCertificate(out []byte) (bool, error) {
	values, err := parsedABI.Unpack(VerifyCertificateMethod, out)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnexpectedOutput, err)
	}
	if len(values) != 1 {
		return false, fmt.Errorf("%w: expected 1 value, got %d", ErrUnexpectedOutput, len(values))
	}
	valid, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("%w: expected bool, got %T", ErrUnexpectedOutput, values[0])
	}
	return valid, nil
}

// UnpackIssueCertificate decodes the certificate argument of issueCertificate
// call data.
func UnpackIssueCertificate(callData []byte) ([32]byte, error) {
	return unpackCertificateArg(IssueCertificateMethod, callData)
}

// UnpackVerifyCertificateInput decodes the certificate argument of
// verifyCertificate call data.
func UnpackVerifyCertificateInput(callData []byte) ([32]byte, error) {
	return unpackCertificateArg(VerifyCertificateMethod, callData)
}

func unpackCertificateArg(method string, callData []byte) ([32]byte, error) {
	m := parsedABI.Methods[method]
	if len(callData) < 4 || string(callData[:4]) != string(m.ID) {
		return [32]byte{}, fmt.Errorf("%w: call data is not %s", ErrUnexpectedOutput, method)
	}
	values, err := m.Inputs.Unpack(callData[4:])
	if err != nil {
		return [32]byte{}, fmt.Errorf("%w: %w", ErrUnexpectedOutput, err)
	}
	certificate, ok := values[0].([32]byte)
	if !ok {
		return [32]byte{}, fmt.Errorf("%w: expected bytes32, got %T", ErrUnexpectedOutput, values[0])
	}
	return certificate, nil
}

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}
