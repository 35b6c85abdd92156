// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/holiman/uint256"
	"github.com/luxfi/certify/certifier/config"
	"github.com/luxfi/certify/utils"
	"github.com/luxfi/certify/vms/evm/signer"
	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/ethclient"
	"github.com/luxfi/log"
)

const (
	// If the max base fee is not explicitly set, use 3x the current base fee estimate
	defaultBaseFeeFactor = 3
)

var (
	_ Client = (*ethclient.Client)(nil)

	ErrFeeOverflow = errors.New("gas fee cap overflows 256 bits")
)

// Client is the subset of the JSON-RPC API used to reach the ledger.
// *ethclient.Client implements it; tests substitute an in-memory fake.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dial connects to the JSON-RPC endpoint at [rpcURL].
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// LedgerClient submits signed transactions and read calls on behalf of a
// single account.
type LedgerClient struct {
	client               Client
	nonceLock            sync.Mutex
	signer               signer.Signer
	evmChainID           *big.Int
	maxBaseFee           *big.Int
	maxPriorityFeePerGas *big.Int
	txInclusionTimeout   time.Duration
	rpcTimeout           time.Duration
	logger               log.Logger
}

func NewLedgerClient(
	ctx context.Context,
	logger log.Logger,
	client Client,
	sgnr signer.Signer,
	cfg *config.Config,
) (*LedgerClient, error) {
	logger = logger.With(log.Stringer("account", sgnr.Address()))

	chainIDCtx, chainIDCtxCancel := context.WithTimeout(ctx, cfg.RPCTimeout())
	defer chainIDCtxCancel()
	evmChainID, err := client.ChainID(chainIDCtx)
	if err != nil {
		logger.Error(
			"Failed to get chain ID from ledger endpoint",
			log.Err(err),
		)
		return nil, err
	}

	logger.Info(
		"Initialized ledger client",
		log.String("evmChainID", evmChainID.String()),
	)

	return &LedgerClient{
		client:               client,
		signer:               sgnr,
		evmChainID:           evmChainID,
		maxBaseFee:           new(big.Int).SetUint64(cfg.MaxBaseFee),
		maxPriorityFeePerGas: new(big.Int).SetUint64(cfg.MaxPriorityFeePerGas),
		txInclusionTimeout:   cfg.TxInclusionTimeout(),
		rpcTimeout:           cfg.RPCTimeout(),
		logger:               logger,
	}, nil
}

// SendTx constructs, signs, and broadcasts a transaction calling [to] with
// [callData]. It returns once the node has accepted the transaction into its
// pool; use WaitForReceipt to wait for inclusion.
//
// If the maximum base fee is not configured, it is the current base fee
// multiplied by the default base fee factor. The priority fee is the
// suggested gas tip cap, capped by the configured maximum when one is set.
// Chains that report no base fee get a legacy transaction at the suggested
// gas price.
func (c *LedgerClient) SendTx(
	ctx context.Context,
	to common.Address,
	gasLimit uint64,
	callData []byte,
) (*types.Transaction, error) {
	headerCtx, headerCtxCancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer headerCtxCancel()
	header, err := c.client.HeaderByNumber(headerCtx, nil)
	if err != nil {
		c.logger.Error(
			"Failed to get latest header",
			log.Err(err),
		)
		return nil, err
	}

	var txData types.TxData
	if header.BaseFee == nil {
		txData, err = c.legacyTxData(ctx, to, gasLimit, callData)
	} else {
		txData, err = c.dynamicFeeTxData(ctx, header.BaseFee, to, gasLimit, callData)
	}
	if err != nil {
		return nil, err
	}

	// Synchronize nonce access so that transactions are sent in nonce order.
	// Hold the lock until the transaction is sent.
	c.nonceLock.Lock()
	defer c.nonceLock.Unlock()

	nonceCtx, nonceCtxCancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer nonceCtxCancel()
	nonce, err := c.client.PendingNonceAt(nonceCtx, c.signer.Address())
	if err != nil {
		c.logger.Error(
			"Failed to get pending nonce",
			log.Err(err),
		)
		return nil, err
	}
	switch data := txData.(type) {
	case *types.DynamicFeeTx:
		data.Nonce = nonce
	case *types.LegacyTx:
		data.Nonce = nonce
	}

	signedTx, err := c.signer.SignTx(types.NewTx(txData), c.evmChainID)
	if err != nil {
		c.logger.Error(
			"Failed to sign transaction",
			log.Err(err),
		)
		return nil, err
	}

	c.logger.Info(
		"Sending transaction",
		log.String("txID", signedTx.Hash().String()),
		log.Uint64("nonce", nonce),
	)

	sendTxCtx, sendTxCtxCancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer sendTxCtxCancel()
	if err := c.client.SendTransaction(sendTxCtx, signedTx); err != nil {
		c.logger.Error(
			"Failed to send transaction",
			log.String("txID", signedTx.Hash().String()),
			log.Err(err),
		)
		return nil, err
	}
	c.logger.Info(
		"Sent transaction",
		log.String("txID", signedTx.Hash().String()),
		log.Uint64("nonce", nonce),
	)
	return signedTx, nil
}

func (c *LedgerClient) dynamicFeeTxData(
	ctx context.Context,
	baseFee *big.Int,
	to common.Address,
	gasLimit uint64,
	callData []byte,
) (*types.DynamicFeeTx, error) {
	maxBaseFee := c.maxBaseFee
	if maxBaseFee.Sign() == 0 {
		maxBaseFee = new(big.Int).Mul(baseFee, big.NewInt(defaultBaseFeeFactor))
	}

	gasTipCapCtx, gasTipCapCtxCancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer gasTipCapCtxCancel()
	gasTipCap, err := c.client.SuggestGasTipCap(gasTipCapCtx)
	if err != nil {
		c.logger.Error(
			"Failed to get gas tip cap",
			log.Err(err),
		)
		return nil, err
	}
	if c.maxPriorityFeePerGas.Sign() > 0 && gasTipCap.Cmp(c.maxPriorityFeePerGas) > 0 {
		gasTipCap = c.maxPriorityFeePerGas
	}

	gasFeeCap, err := addFees(maxBaseFee, gasTipCap)
	if err != nil {
		return nil, err
	}

	return &types.DynamicFeeTx{
		ChainID:   c.evmChainID,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      callData,
	}, nil
}

func (c *LedgerClient) legacyTxData(
	ctx context.Context,
	to common.Address,
	gasLimit uint64,
	callData []byte,
) (*types.LegacyTx, error) {
	gasPriceCtx, gasPriceCtxCancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer gasPriceCtxCancel()
	gasPrice, err := c.client.SuggestGasPrice(gasPriceCtx)
	if err != nil {
		c.logger.Error(
			"Failed to get gas price",
			log.Err(err),
		)
		return nil, err
	}
	return &types.LegacyTx{
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     callData,
	}, nil
}

// WaitForReceipt polls for the receipt of [txHash] until it is available or
// the inclusion timeout elapses. Only "not found" responses are polled
// again; any other RPC error ends the wait.
func (c *LedgerClient) WaitForReceipt(
	ctx context.Context,
	txHash common.Hash,
) (*types.Receipt, error) {
	var receipt *types.Receipt
	operation := func() (err error) {
		callCtx, callCtxCancel := context.WithTimeout(ctx, c.rpcTimeout)
		defer callCtxCancel()
		receipt, err = c.client.TransactionReceipt(callCtx, txHash)
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := utils.WithRetriesTimeout(ctx, c.logger, operation, c.txInclusionTimeout, "waitForReceipt")
	if err != nil {
		c.logger.Error(
			"Failed to get transaction receipt",
			log.String("txID", txHash.String()),
			log.Err(err),
		)
		return nil, fmt.Errorf("failed to get receipt for %s: %w", txHash, err)
	}
	return receipt, nil
}

// Call executes a read-only call of [to] with [callData] against the latest
// block, from the signer's address.
func (c *LedgerClient) Call(
	ctx context.Context,
	to common.Address,
	callData []byte,
) ([]byte, error) {
	callCtx, callCtxCancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer callCtxCancel()
	return c.client.CallContract(callCtx, ethereum.CallMsg{
		From: c.signer.Address(),
		To:   &to,
		Data: callData,
	}, nil)
}

func (c *LedgerClient) SenderAddress() common.Address {
	return c.signer.Address()
}

func (c *LedgerClient) EVMChainID() *big.Int {
	return new(big.Int).Set(c.evmChainID)
}

// addFees returns a + b, refusing values that do not fit in 256 bits.
func addFees(a, b *big.Int) (*big.Int, error) {
	x, overflow := uint256.FromBig(a)
	if overflow {
		return nil, ErrFeeOverflow
	}
	y, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrFeeOverflow
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrFeeOverflow
	}
	return sum.ToBig(), nil
}
