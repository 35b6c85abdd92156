// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package certify

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/luxfi/certify/certifier/metrics"
	"github.com/luxfi/certify/vms/evm/signer"
	"github.com/luxfi/certify/wallet"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, registry Registry, verifyCacheTTL time.Duration) (*Controller, *metrics.CertifierMetrics) {
	m := metrics.NewCertifierMetrics(prometheus.NewRegistry())
	c := NewController(log.NewNoOpLogger(), m, verifyCacheTTL)
	if registry != nil {
		sgnr, err := signer.NewTxSigner(testPrivateKey)
		require.NoError(t, err)
		require.NoError(t, c.SetSession(NewSession(&chainIDClient{chainID: big.NewInt(1337)}, sgnr, registry)))
	}
	return c, m
}

// blockingRegistry holds every issue call until released.
type blockingRegistry struct {
	entered chan context.Context
	release chan struct{}
}

func newBlockingRegistry() *blockingRegistry {
	return &blockingRegistry{
		entered: make(chan context.Context, 1),
		release: make(chan struct{}),
	}
}

func (r *blockingRegistry) IssueCertificate(ctx context.Context, _ [32]byte) (*types.Receipt, error) {
	r.entered <- ctx
	<-r.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		TxHash: common.HexToHash("0x01"),
	}, nil
}

func (*blockingRegistry) VerifyCertificate(context.Context, [32]byte) (bool, error) {
	return true, nil
}

func TestIssueThenVerify(t *testing.T) {
	require := require.New(t)

	registry := NewFakeRegistry()
	c, m := newTestController(t, registry, 0)
	require.Equal(Ready, c.State())
	account, ok := c.Account()
	require.True(ok)
	require.Equal(testAccount, account)

	ctx := context.Background()
	outcome, executed := c.Issue(ctx, "DIPLOMA2024")
	require.True(executed)
	require.Equal(IssueSucceeded, outcome.Kind)
	require.Equal(MessageIssueSucceeded, outcome.Message())
	require.Equal(OperationIssue, outcome.Operation())
	require.Equal(uint64(1), outcome.Seq)
	require.Equal("DIPLOMA2024", outcome.Certificate)
	require.NotEqual(common.Hash{}, outcome.TxHash)

	outcome, executed = c.Verify(ctx, "DIPLOMA2024")
	require.True(executed)
	require.Equal(VerifyValid, outcome.Kind)
	require.Equal(MessageVerifyValid, outcome.Message())
	require.Equal(uint64(2), outcome.Seq)
	require.Equal(common.Hash{}, outcome.TxHash)
	require.Same(outcome, c.Outcome())

	outcome, executed = c.Verify(ctx, "FAKE-CERT")
	require.True(executed)
	require.Equal(VerifyInvalid, outcome.Kind)
	require.Equal(MessageVerifyInvalid, outcome.Message())
	require.Equal(CategoryFailure, outcome.Category())
	require.Same(outcome, c.Outcome())

	require.InDelta(1, testutil.ToFloat64(m.OperationCount.WithLabelValues("issue", "issue-succeeded")), 0)
	require.InDelta(1, testutil.ToFloat64(m.OperationCount.WithLabelValues("verify", "verify-valid")), 0)
	require.InDelta(1, testutil.ToFloat64(m.OperationCount.WithLabelValues("verify", "verify-invalid")), 0)
}

func TestCertificateTooLong(t *testing.T) {
	require := require.New(t)

	registry := NewFakeRegistry()
	c, _ := newTestController(t, registry, 0)
	input := strings.Repeat("x", 32)

	outcome, executed := c.Issue(context.Background(), input)
	require.True(executed)
	require.Equal(IssueFailed, outcome.Kind)

	outcome, executed = c.Verify(context.Background(), input)
	require.True(executed)
	require.Equal(VerifyFailed, outcome.Kind)
	require.Equal(CategoryWarning, outcome.Category())

	issueCalls, verifyCalls := registry.Calls()
	require.Zero(issueCalls)
	require.Zero(verifyCalls)
}

func TestCertificateNotEncodable(t *testing.T) {
	for _, input := range []string{"\xff\xfeCERT", "A\x00B"} {
		registry := NewFakeRegistry()
		c, _ := newTestController(t, registry, 0)

		outcome, executed := c.Issue(context.Background(), input)
		require.True(t, executed)
		require.Equal(t, IssueFailed, outcome.Kind)

		outcome, executed = c.Verify(context.Background(), input)
		require.True(t, executed)
		require.Equal(t, VerifyFailed, outcome.Kind)

		issueCalls, verifyCalls := registry.Calls()
		require.Zero(t, issueCalls)
		require.Zero(t, verifyCalls)
	}
}

func TestOperationsAreNoOps(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		require := require.New(t)

		registry := NewFakeRegistry()
		c, m := newTestController(t, registry, 0)
		previous, executed := c.Issue(context.Background(), "DIPLOMA2024")
		require.True(executed)

		outcome, executed := c.Issue(context.Background(), "")
		require.False(executed)
		require.Nil(outcome)
		outcome, executed = c.Verify(context.Background(), "")
		require.False(executed)
		require.Nil(outcome)

		require.Same(previous, c.Outcome())
		issueCalls, verifyCalls := registry.Calls()
		require.Equal(1, issueCalls)
		require.Zero(verifyCalls)
		require.InDelta(1, testutil.ToFloat64(m.SkippedCount.WithLabelValues("issue")), 0)
		require.InDelta(1, testutil.ToFloat64(m.SkippedCount.WithLabelValues("verify")), 0)
	})

	t.Run("no session", func(t *testing.T) {
		require := require.New(t)

		c, _ := newTestController(t, nil, 0)
		require.Equal(Uninitialized, c.State())

		outcome, executed := c.Issue(context.Background(), "DIPLOMA2024")
		require.False(executed)
		require.Nil(outcome)
		outcome, executed = c.Verify(context.Background(), "DIPLOMA2024")
		require.False(executed)
		require.Nil(outcome)
		require.Nil(c.Outcome())
	})
}

func TestNoWalletProvider(t *testing.T) {
	require := require.New(t)

	c, m := newTestController(t, nil, 0)
	err := c.Connect(context.Background(), nil, testConfig(t))
	require.ErrorIs(err, wallet.ErrNoWalletProvider)
	require.Equal(Uninitialized, c.State())
	require.ErrorIs(c.InitError(), wallet.ErrNoWalletProvider)
	require.Nil(c.Session())

	_, ok := c.Account()
	require.False(ok)
	_, executed := c.Issue(context.Background(), "DIPLOMA2024")
	require.False(executed)
	require.Nil(c.Outcome())
	require.InDelta(0, testutil.ToFloat64(m.SessionReady), 0)
}

func TestControllerConnect(t *testing.T) {
	require := require.New(t)

	cfg := testConfig(t)
	provider, err := wallet.NewKeyProvider(&chainIDClient{chainID: big.NewInt(1337)}, cfg.PrivateKey)
	require.NoError(err)

	c, m := newTestController(t, nil, 0)
	require.NoError(c.Connect(context.Background(), provider, cfg))
	require.Equal(Ready, c.State())
	require.NoError(c.InitError())
	account, ok := c.Account()
	require.True(ok)
	require.Equal(testAccount, account)
	require.InDelta(1, testutil.ToFloat64(m.SessionReady), 0)

	require.ErrorIs(c.Connect(context.Background(), provider, cfg), ErrSessionEstablished)
	require.ErrorIs(c.SetSession(c.Session()), ErrSessionEstablished)
}

func TestConnectRetryAfterFailure(t *testing.T) {
	require := require.New(t)

	cfg := testConfig(t)
	c, _ := newTestController(t, nil, 0)
	require.ErrorIs(c.Connect(context.Background(), rejectingProvider{}, cfg), wallet.ErrAuthorizationRejected)
	require.Equal(Uninitialized, c.State())

	provider, err := wallet.NewKeyProvider(&chainIDClient{chainID: big.NewInt(1337)}, cfg.PrivateKey)
	require.NoError(err)
	require.NoError(c.Connect(context.Background(), provider, cfg))
	require.Equal(Ready, c.State())
	require.NoError(c.InitError())
}

func TestRecordInitError(t *testing.T) {
	require := require.New(t)

	errDial := errors.New("dial tcp 127.0.0.1:8545: connection refused")
	c, _ := newTestController(t, nil, 0)
	c.RecordInitError(errDial)
	require.Equal(Uninitialized, c.State())
	require.ErrorIs(c.InitError(), errDial)

	// A ready session is not marked as failed afterwards.
	c, _ = newTestController(t, NewFakeRegistry(), 0)
	c.RecordInitError(errDial)
	require.Equal(Ready, c.State())
	require.NoError(c.InitError())
}

func TestConfirmationFailureKeepsSession(t *testing.T) {
	require := require.New(t)

	registry := NewFakeRegistry()
	registry.SetErrors(errors.New("connection reset while waiting for receipt"), nil)
	c, _ := newTestController(t, registry, 0)

	outcome, executed := c.Issue(context.Background(), "DIPLOMA2024")
	require.True(executed)
	require.Equal(IssueFailed, outcome.Kind)
	require.Equal(MessageIssueFailed, outcome.Message())
	require.Equal(Ready, c.State())

	registry.SetErrors(nil, nil)
	outcome, executed = c.Issue(context.Background(), "DIPLOMA2024")
	require.True(executed)
	require.Equal(IssueSucceeded, outcome.Kind)
	require.Equal(uint64(2), outcome.Seq)
}

func TestOperationsAreSerialized(t *testing.T) {
	require := require.New(t)

	registry := newBlockingRegistry()
	c, _ := newTestController(t, registry, 0)

	issued := make(chan *Outcome, 1)
	go func() {
		outcome, _ := c.Issue(context.Background(), "DIPLOMA2024")
		issued <- outcome
	}()
	<-registry.entered

	// The issue holds the operation slot, so the verify gives up with its
	// context and leaves no outcome behind.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	outcome, executed := c.Verify(ctx, "DIPLOMA2024")
	require.False(executed)
	require.Nil(outcome)
	require.Nil(c.Outcome())

	close(registry.release)
	outcome = <-issued
	require.Equal(IssueSucceeded, outcome.Kind)
	require.Equal(uint64(1), outcome.Seq)

	outcome, executed = c.Verify(context.Background(), "DIPLOMA2024")
	require.True(executed)
	require.Equal(VerifyValid, outcome.Kind)
	require.Equal(uint64(2), outcome.Seq)
}

func TestIssueIgnoresCallerCancellation(t *testing.T) {
	require := require.New(t)

	registry := newBlockingRegistry()
	c, _ := newTestController(t, registry, 0)

	ctx, cancel := context.WithCancel(context.Background())
	issued := make(chan *Outcome, 1)
	go func() {
		outcome, _ := c.Issue(ctx, "DIPLOMA2024")
		issued <- outcome
	}()
	registryCtx := <-registry.entered
	cancel()
	close(registry.release)

	outcome := <-issued
	require.NoError(registryCtx.Err())
	require.Equal(IssueSucceeded, outcome.Kind)
}

func TestVerifyCache(t *testing.T) {
	require := require.New(t)

	registry := NewFakeRegistry()
	c, m := newTestController(t, registry, time.Minute)
	ctx := context.Background()

	outcome, _ := c.Verify(ctx, "DIPLOMA2024")
	require.Equal(VerifyInvalid, outcome.Kind)
	outcome, _ = c.Verify(ctx, "DIPLOMA2024")
	require.Equal(VerifyInvalid, outcome.Kind)
	_, verifyCalls := registry.Calls()
	require.Equal(1, verifyCalls)
	require.InDelta(1, testutil.ToFloat64(m.VerifyCacheHits), 0)

	// Issuing drops the cached answer.
	outcome, _ = c.Issue(ctx, "DIPLOMA2024")
	require.Equal(IssueSucceeded, outcome.Kind)
	outcome, _ = c.Verify(ctx, "DIPLOMA2024")
	require.Equal(VerifyValid, outcome.Kind)
	_, verifyCalls = registry.Calls()
	require.Equal(2, verifyCalls)
}

func TestConcurrentVerifiesRunInTurn(t *testing.T) {
	require := require.New(t)

	registry := NewFakeRegistry()
	c, _ := newTestController(t, registry, 0)

	outcomes := make(chan *Outcome, 2)
	for range 2 {
		go func() {
			outcome, _ := c.Verify(context.Background(), "DIPLOMA2024")
			outcomes <- outcome
		}()
	}
	first, second := <-outcomes, <-outcomes
	require.ElementsMatch([]uint64{1, 2}, []uint64{first.Seq, second.Seq})

	// Without retention each verification reaches the registry.
	_, verifyCalls := registry.Calls()
	require.Equal(2, verifyCalls)
}

func TestVerifyErrorIsNotCached(t *testing.T) {
	require := require.New(t)

	registry := NewFakeRegistry()
	registry.SetErrors(nil, errors.New("execution reverted"))
	c, _ := newTestController(t, registry, time.Minute)

	outcome, _ := c.Verify(context.Background(), "DIPLOMA2024")
	require.Equal(VerifyFailed, outcome.Kind)
	require.Equal(MessageVerifyFailed, outcome.Message())
	require.Equal(Ready, c.State())

	registry.SetErrors(nil, nil)
	outcome, _ = c.Verify(context.Background(), "DIPLOMA2024")
	require.Equal(VerifyInvalid, outcome.Kind)
}
