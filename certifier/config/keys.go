// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"

	// Environment variables are the upper-cased keys with this prefix, and
	// hyphens replaced by underscores, e.g. CERTIFY_RPC_URL.
	EnvPrefix = "certify"

	// Top-level configuration keys
	LogLevelKey                  = "log-level"
	APIHostKey                   = "api-host"
	APIPortKey                   = "api-port"
	RPCURLKey                    = "rpc-url"
	ContractAddressKey           = "contract-address"
	PrivateKeyKey                = "private-key"
	KeystoreDirKey               = "keystore-dir"
	AccountKey                   = "account"
	KeystorePassphraseKey        = "keystore-passphrase"
	GasLimitKey                  = "gas-limit"
	MaxBaseFeeKey                = "max-base-fee"
	MaxPriorityFeePerGasKey      = "max-priority-fee-per-gas"
	TxInclusionTimeoutSecondsKey = "tx-inclusion-timeout-seconds"
	RPCTimeoutSecondsKey         = "rpc-timeout-seconds"
	VerifyCacheTTLSecondsKey     = "verify-cache-ttl-seconds"
	InMemoryKey                  = "in-memory"
)

// configKeys lists every key that may be set through the environment.
var configKeys = []string{
	ConfigFileKey,
	LogLevelKey,
	APIHostKey,
	APIPortKey,
	RPCURLKey,
	ContractAddressKey,
	PrivateKeyKey,
	KeystoreDirKey,
	AccountKey,
	KeystorePassphraseKey,
	GasLimitKey,
	MaxBaseFeeKey,
	MaxPriorityFeePerGasKey,
	TxInclusionTimeoutSecondsKey,
	RPCTimeoutSecondsKey,
	VerifyCacheTTLSecondsKey,
	InMemoryKey,
}
