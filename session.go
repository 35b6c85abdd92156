// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package certify

import (
	"context"
	"fmt"

	"github.com/luxfi/certify/certifier/config"
	"github.com/luxfi/certify/contract"
	"github.com/luxfi/certify/vms/evm"
	"github.com/luxfi/certify/vms/evm/signer"
	"github.com/luxfi/certify/wallet"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/log"
)

var (
	_ Registry = (*contract.CertificateRegistry)(nil)
	_ Registry = (*FakeRegistry)(nil)
)

// Registry is the certificate registry a session is bound to.
type Registry interface {
	// IssueCertificate records [certificate] and returns once the ledger has
	// included the transaction.
	IssueCertificate(ctx context.Context, certificate [32]byte) (*types.Receipt, error)
	// VerifyCertificate reports whether [certificate] has been issued.
	VerifyCertificate(ctx context.Context, certificate [32]byte) (bool, error)
}

// Session is an established wallet connection. It is never modified after
// construction.
type Session struct {
	client   evm.Client
	signer   signer.Signer
	account  common.Address
	registry Registry
}

func NewSession(client evm.Client, sgnr signer.Signer, registry Registry) *Session {
	return &Session{
		client:   client,
		signer:   sgnr,
		account:  sgnr.Address(),
		registry: registry,
	}
}

func (s *Session) Client() evm.Client {
	return s.client
}

func (s *Session) Signer() signer.Signer {
	return s.signer
}

func (s *Session) Account() common.Address {
	return s.account
}

func (s *Session) Registry() Registry {
	return s.registry
}

// Connect authorizes an account with [provider] and binds the registry
// contract configured in [cfg] to it. The first authorized account is used.
// A nil provider yields wallet.ErrNoWalletProvider.
func Connect(ctx context.Context, logger log.Logger, provider wallet.Provider, cfg *config.Config) (*Session, error) {
	if provider == nil {
		return nil, wallet.ErrNoWalletProvider
	}

	accounts, err := provider.RequestAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, wallet.ErrNoAccounts
	}

	sgnr, err := provider.Signer(ctx, accounts[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get signer for %s: %w", accounts[0], err)
	}

	ledger, err := evm.NewLedgerClient(ctx, logger, provider.Client(), sgnr, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}
	registry := contract.NewCertificateRegistry(
		logger,
		cfg.GetContractAddress(),
		ledger,
		cfg.GasLimit,
	)

	logger.Info(
		"Wallet connected",
		log.Stringer("account", sgnr.Address()),
		log.Stringer("contract", registry.Address()),
	)
	return NewSession(provider.Client(), sgnr, registry), nil
}
