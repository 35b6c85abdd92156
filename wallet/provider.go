// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wallet provides the connection and signing capability a session is
// built from: a ledger client plus an account the user has authorized.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/certify/certifier/config"
	"github.com/luxfi/certify/vms/evm"
	"github.com/luxfi/certify/vms/evm/signer"
	"github.com/luxfi/geth/accounts"
	"github.com/luxfi/geth/accounts/keystore"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var (
	_ Provider = (*keyProvider)(nil)
	_ Provider = (*keystoreProvider)(nil)

	// ErrNoWalletProvider is returned when no wallet provider is configured.
	// Sessions cannot be established without one.
	ErrNoWalletProvider      = errors.New("no wallet provider available")
	ErrAuthorizationRejected = errors.New("account authorization rejected")
	ErrNoAccounts            = errors.New("no accounts available")
	ErrUnknownAccount        = errors.New("account not authorized")
)

// Provider is a wallet: a connection to the ledger and the ability to
// authorize accounts and sign on their behalf.
type Provider interface {
	// RequestAccounts asks the user to authorize accounts. It may block on
	// user interaction.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Signer returns the signing identity of an authorized account.
	Signer(ctx context.Context, account common.Address) (signer.Signer, error)
	// Client is the connection handle to the ledger.
	Client() evm.Client
	Close()
}

// PassphraseFunc obtains the passphrase that unlocks [account]. Returning an
// error means the user declined.
type PassphraseFunc func(ctx context.Context, account common.Address) (string, error)

// StaticPassphrase returns a PassphraseFunc that always answers [passphrase].
func StaticPassphrase(passphrase string) PassphraseFunc {
	return func(context.Context, common.Address) (string, error) {
		return passphrase, nil
	}
}

// Detect builds the provider described by [cfg], dialing the ledger endpoint.
// It returns ErrNoWalletProvider when neither a private key nor a keystore is
// configured.
func Detect(ctx context.Context, logger log.Logger, cfg *config.Config, passphrase PassphraseFunc) (Provider, error) {
	if !cfg.HasWalletProvider() {
		return nil, ErrNoWalletProvider
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.RPCTimeout())
	defer cancel()
	client, err := evm.Dial(dialCtx, cfg.RPCURL)
	if err != nil {
		logger.Error(
			"Failed to dial rpc endpoint",
			log.String("rpcURL", cfg.RPCURL),
			log.Err(err),
		)
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}

	if cfg.PrivateKey != "" {
		provider, err := NewKeyProvider(client, cfg.PrivateKey)
		if err != nil {
			client.Close()
			return nil, err
		}
		return provider, nil
	}

	if passphrase == nil {
		passphrase = StaticPassphrase(cfg.KeystorePassphrase)
	}
	ks := keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)
	var account common.Address
	if cfg.Account != "" {
		account = common.HexToAddress(cfg.Account)
	}
	return NewKeystoreProvider(logger, client, ks, account, passphrase), nil
}

// keyProvider holds a raw private key. Its single account is authorized as
// soon as it is requested.
type keyProvider struct {
	client evm.Client
	signer *signer.TxSigner
}

func NewKeyProvider(client evm.Client, privateKey string) (Provider, error) {
	sgnr, err := signer.NewTxSigner(privateKey)
	if err != nil {
		return nil, err
	}
	return &keyProvider{
		client: client,
		signer: sgnr,
	}, nil
}

func (p *keyProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	return []common.Address{p.signer.Address()}, nil
}

func (p *keyProvider) Signer(_ context.Context, account common.Address) (signer.Signer, error) {
	if account != p.signer.Address() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	return p.signer, nil
}

func (p *keyProvider) Client() evm.Client {
	return p.client
}

func (p *keyProvider) Close() {
	closeClient(p.client)
}

// keystoreProvider unlocks an account of an encrypted keystore. Authorizing
// the account prompts for its passphrase.
type keystoreProvider struct {
	logger     log.Logger
	client     evm.Client
	ks         *keystore.KeyStore
	account    common.Address
	passphrase PassphraseFunc

	authorized *accounts.Account
}

// NewKeystoreProvider returns a provider over [ks]. A zero [account] selects
// the first account of the keystore.
func NewKeystoreProvider(
	logger log.Logger,
	client evm.Client,
	ks *keystore.KeyStore,
	account common.Address,
	passphrase PassphraseFunc,
) Provider {
	return &keystoreProvider{
		logger:     logger,
		client:     client,
		ks:         ks,
		account:    account,
		passphrase: passphrase,
	}
}

func (p *keystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	account, err := p.selectAccount()
	if err != nil {
		return nil, err
	}

	p.logger.Info(
		"Requesting account authorization",
		log.Stringer("account", account.Address),
	)
	passphrase, err := p.passphrase(ctx, account.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthorizationRejected, err)
	}
	if err := p.ks.Unlock(account, passphrase); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthorizationRejected, err)
	}
	p.authorized = &account
	return []common.Address{account.Address}, nil
}

func (p *keystoreProvider) selectAccount() (accounts.Account, error) {
	if p.account != (common.Address{}) {
		account, err := p.ks.Find(accounts.Account{Address: p.account})
		if err != nil {
			return accounts.Account{}, fmt.Errorf("%w: %s: %w", ErrNoAccounts, p.account, err)
		}
		return account, nil
	}
	all := p.ks.Accounts()
	if len(all) == 0 {
		return accounts.Account{}, ErrNoAccounts
	}
	return all[0], nil
}

func (p *keystoreProvider) Signer(_ context.Context, account common.Address) (signer.Signer, error) {
	if p.authorized == nil || p.authorized.Address != account {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	return signer.NewKeystoreSigner(p.ks, *p.authorized), nil
}

func (p *keystoreProvider) Client() evm.Client {
	return p.client
}

func (p *keystoreProvider) Close() {
	if p.authorized != nil {
		if err := p.ks.Lock(p.authorized.Address); err != nil {
			p.logger.Warn("Failed to lock account", log.Err(err))
		}
	}
	closeClient(p.client)
}

func closeClient(client evm.Client) {
	if c, ok := client.(interface{ Close() }); ok {
		c.Close()
	}
}
