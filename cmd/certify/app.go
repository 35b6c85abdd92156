// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/luxfi/certify"
	"github.com/luxfi/certify/certifier/config"
	"github.com/luxfi/certify/certifier/metrics"
	"github.com/luxfi/certify/utils"
	"github.com/luxfi/certify/vms/evm/signer"
	"github.com/luxfi/certify/wallet"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errNoTerminal = errors.New("keystore passphrase required but stdin is not a terminal")

// app holds what every command that talks to the registry needs.
type app struct {
	cfg        config.Config
	logger     log.Logger
	registry   *prometheus.Registry
	metrics    *metrics.CertifierMetrics
	controller *certify.Controller
	provider   wallet.Provider
}

func newApp(cmd *cobra.Command) (*app, error) {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}
	cfg, err := config.NewConfig(v)
	if err != nil {
		return nil, err
	}

	logger, err := utils.NewLogger("certify", cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewCertifierMetrics(registry)
	return &app{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		metrics:    m,
		controller: certify.NewController(logger, m, cfg.VerifyCacheTTL()),
	}, nil
}

// connect establishes the controller's session from the configured wallet
// provider, or from an in-process registry in in-memory mode.
func (a *app) connect(ctx context.Context) error {
	if a.cfg.InMemory {
		sgnr, err := inMemorySigner(a.cfg.PrivateKey)
		if err != nil {
			return err
		}
		a.logger.Info(
			"Using in-memory registry",
			log.Stringer("account", sgnr.Address()),
		)
		return a.controller.SetSession(certify.NewSession(nil, sgnr, certify.NewFakeRegistry()))
	}

	provider, err := wallet.Detect(ctx, a.logger, &a.cfg, a.passphraseFunc())
	if err != nil && !errors.Is(err, wallet.ErrNoWalletProvider) {
		a.logger.Error(
			"Failed to set up wallet provider",
			log.Err(err),
		)
		a.controller.RecordInitError(err)
		return err
	}
	// A missing provider is reported through the controller like any other
	// initialization failure.
	if provider != nil {
		a.provider = provider
	}
	return a.controller.Connect(ctx, a.provider, &a.cfg)
}

func (a *app) close() {
	if a.provider != nil {
		a.provider.Close()
	}
}

func (a *app) passphraseFunc() wallet.PassphraseFunc {
	if a.cfg.KeystorePassphrase != "" {
		return wallet.StaticPassphrase(a.cfg.KeystorePassphrase)
	}
	return promptPassphrase
}

func promptPassphrase(_ context.Context, account common.Address) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}
	fmt.Fprintf(os.Stderr, "Passphrase for %s: ", account)
	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(passphrase), nil
}

func inMemorySigner(privateKey string) (signer.Signer, error) {
	if privateKey != "" {
		return signer.NewTxSigner(privateKey)
	}
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return signer.NewTxSignerFromKey(pk), nil
}
