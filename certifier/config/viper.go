// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// BuildFlagSet returns the flags shared by every command. Keys that have no
// flag can still be provided via config file or environment variable.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("certify", pflag.ContinueOnError)
	fs.String(ConfigFileKey, "", "Specifies the config file (JSON)")
	fs.String(LogLevelKey, defaultLogLevel, "Log level (trace, debug, info, warn, error)")
	fs.String(RPCURLKey, defaultRPCURL, "JSON-RPC endpoint of the ledger")
	fs.String(ContractAddressKey, DefaultContractAddress, "Address of the certificate registry contract")
	fs.String(PrivateKeyKey, "", "Hex encoded private key used as the wallet provider")
	fs.String(KeystoreDirKey, "", "Keystore directory used as the wallet provider")
	fs.String(AccountKey, "", "Keystore account to authorize (defaults to the first account)")
	fs.Bool(InMemoryKey, false, "Use an in-process registry instead of a ledger")
	return fs
}

// BuildViper builds the viper instance. All config keys may be provided via
// flag, environment variable or config file.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Map flag names to env var names. Flags are capitalized, and hyphens are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}

	if filename := getExpandedPath(v, ConfigFileKey); filename != "" {
		v.SetConfigFile(filename)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
		}
	}

	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(APIHostKey, defaultAPIHost)
	v.SetDefault(APIPortKey, defaultAPIPort)
	v.SetDefault(RPCURLKey, defaultRPCURL)
	v.SetDefault(ContractAddressKey, DefaultContractAddress)
	v.SetDefault(GasLimitKey, defaultGasLimit)
	v.SetDefault(TxInclusionTimeoutSecondsKey, defaultTxInclusionTimeoutSeconds)
	v.SetDefault(RPCTimeoutSecondsKey, defaultRPCTimeoutSeconds)
}

// BuildConfig constructs the config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment variables
//  3. Config file
//  4. Defaults
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	cfg.KeystoreDir = os.Expand(cfg.KeystoreDir, os.Getenv)
	return cfg, nil
}

// getExpandedPath gets the string in viper corresponding to [key] and expands
// any variables using the OS env.
func getExpandedPath(v *viper.Viper, key string) string {
	return os.Expand(
		v.GetString(key),
		func(strVar string) string {
			return os.Getenv(strVar)
		},
	)
}
