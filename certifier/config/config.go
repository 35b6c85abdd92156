// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/luxfi/certify/utils"
	"github.com/luxfi/geth/common"
)

const (
	defaultLogLevel                  = "info"
	defaultAPIHost                   = "127.0.0.1"
	defaultAPIPort                   = uint16(8080)
	defaultRPCURL                    = "http://127.0.0.1:8545"
	defaultGasLimit                  = uint64(100_000)
	defaultTxInclusionTimeoutSeconds = uint64(30)
	defaultRPCTimeoutSeconds         = uint64(10)

	// DefaultContractAddress is the address the registry contract is deployed
	// at on the local development chain.
	DefaultContractAddress = "0xA3e93fb5782a325687B48fbB0E9b93ebF06cF63F"
)

var (
	errInvalidContractAddress = errors.New("invalid contract address")
	errConflictingWallets     = errors.New("private-key and keystore-dir are mutually exclusive")
)

// Config is the top-level configuration of the certificate client.
type Config struct {
	LogLevel string `mapstructure:"log-level" json:"log-level"`
	APIHost  string `mapstructure:"api-host" json:"api-host"`
	APIPort  uint16 `mapstructure:"api-port" json:"api-port"`

	RPCURL          string `mapstructure:"rpc-url" json:"rpc-url"`
	ContractAddress string `mapstructure:"contract-address" json:"contract-address"`

	// Wallet provider. At most one of PrivateKey and KeystoreDir may be set;
	// when neither is, no wallet provider is available.
	PrivateKey         string `mapstructure:"private-key" json:"private-key"`
	KeystoreDir        string `mapstructure:"keystore-dir" json:"keystore-dir"`
	Account            string `mapstructure:"account" json:"account"`
	KeystorePassphrase string `mapstructure:"keystore-passphrase" json:"keystore-passphrase"`

	GasLimit                  uint64 `mapstructure:"gas-limit" json:"gas-limit"`
	MaxBaseFee                uint64 `mapstructure:"max-base-fee" json:"max-base-fee"`
	MaxPriorityFeePerGas      uint64 `mapstructure:"max-priority-fee-per-gas" json:"max-priority-fee-per-gas"`
	TxInclusionTimeoutSeconds uint64 `mapstructure:"tx-inclusion-timeout-seconds" json:"tx-inclusion-timeout-seconds"`
	RPCTimeoutSeconds         uint64 `mapstructure:"rpc-timeout-seconds" json:"rpc-timeout-seconds"`
	VerifyCacheTTLSeconds     uint64 `mapstructure:"verify-cache-ttl-seconds" json:"verify-cache-ttl-seconds"`

	InMemory bool `mapstructure:"in-memory" json:"in-memory"`

	// convenience fields set by Validate
	contractAddress common.Address
}

// Validate checks the configuration and caches the parsed contract address.
func (c *Config) Validate() error {
	if _, err := utils.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.APIPort == 0 {
		return fmt.Errorf("%s must be between 1 and 65535", APIPortKey)
	}
	if !c.InMemory {
		u, err := url.ParseRequestURI(c.RPCURL)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", RPCURLKey, err)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return fmt.Errorf("invalid %s scheme %q", RPCURLKey, u.Scheme)
		}
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("%w: %q", errInvalidContractAddress, c.ContractAddress)
	}
	c.contractAddress = common.HexToAddress(c.ContractAddress)

	if c.PrivateKey != "" && c.KeystoreDir != "" {
		return errConflictingWallets
	}
	if c.Account != "" && !common.IsHexAddress(c.Account) {
		return fmt.Errorf("invalid %s %q", AccountKey, c.Account)
	}
	if c.GasLimit == 0 {
		return fmt.Errorf("%s must be positive", GasLimitKey)
	}
	if c.TxInclusionTimeoutSeconds == 0 {
		return fmt.Errorf("%s must be positive", TxInclusionTimeoutSecondsKey)
	}
	if c.RPCTimeoutSeconds == 0 {
		return fmt.Errorf("%s must be positive", RPCTimeoutSecondsKey)
	}
	return nil
}

// GetContractAddress returns the registry address parsed by Validate.
func (c *Config) GetContractAddress() common.Address {
	return c.contractAddress
}

func (c *Config) TxInclusionTimeout() time.Duration {
	return time.Duration(c.TxInclusionTimeoutSeconds) * time.Second
}

func (c *Config) RPCTimeout() time.Duration {
	if c.RPCTimeoutSeconds == 0 {
		return utils.DefaultRPCTimeout
	}
	return time.Duration(c.RPCTimeoutSeconds) * time.Second
}

func (c *Config) VerifyCacheTTL() time.Duration {
	return time.Duration(c.VerifyCacheTTLSeconds) * time.Second
}

// HasWalletProvider reports whether any wallet provider is configured.
func (c *Config) HasWalletProvider() bool {
	return c.PrivateKey != "" || c.KeystoreDir != ""
}

// APIAddress is the listen address of the HTTP surface.
func (c *Config) APIAddress() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}
