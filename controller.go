// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package certify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/certify/cache"
	"github.com/luxfi/certify/certifier/config"
	"github.com/luxfi/certify/certifier/metrics"
	"github.com/luxfi/certify/wallet"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var (
	ErrSessionEstablished = errors.New("session already established")
	ErrConnectInProgress  = errors.New("session initialization in progress")
)

type SessionState uint8

const (
	Uninitialized SessionState = iota
	Initializing
	Ready
)

func (s SessionState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Controller runs issue and verify operations against a single session and
// keeps the latest outcome. Operations are executed one at a time in the
// order they acquire the operation slot.
type Controller struct {
	logger  log.Logger
	metrics *metrics.CertifierMetrics

	session atomic.Pointer[Session]
	opSlot  chan struct{}

	verifyCache *cache.TTLCache[EncodedCertificate, bool]

	lock    sync.RWMutex
	state   SessionState
	initErr error
	seq     uint64
	latest  *Outcome

	now func() time.Time
}

func NewController(
	logger log.Logger,
	metrics *metrics.CertifierMetrics,
	verifyCacheTTL time.Duration,
) *Controller {
	return &Controller{
		logger:      logger,
		metrics:     metrics,
		opSlot:      make(chan struct{}, 1),
		verifyCache: cache.NewTTLCache[EncodedCertificate, bool](verifyCacheTTL),
		now:         time.Now,
	}
}

// Connect establishes the session from [provider]. On failure the
// controller returns to Uninitialized and the error is kept for InitError.
func (c *Controller) Connect(ctx context.Context, provider wallet.Provider, cfg *config.Config) error {
	c.lock.Lock()
	switch c.state {
	case Ready:
		c.lock.Unlock()
		return ErrSessionEstablished
	case Initializing:
		c.lock.Unlock()
		return ErrConnectInProgress
	}
	c.state = Initializing
	c.initErr = nil
	c.lock.Unlock()

	session, err := Connect(ctx, c.logger, provider, cfg)
	if err != nil {
		c.logger.Error(
			"Failed to establish session",
			log.Err(err),
		)
		c.lock.Lock()
		c.state = Uninitialized
		c.initErr = err
		c.lock.Unlock()
		return err
	}
	c.publish(session)
	return nil
}

// RecordInitError records a failure that happened before a provider could be
// handed to Connect, such as an unusable wallet configuration. It has no
// effect once a session is being established or is ready.
func (c *Controller) RecordInitError(err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.state != Uninitialized {
		return
	}
	c.initErr = err
}

// SetSession publishes an already established session.
func (c *Controller) SetSession(session *Session) error {
	c.lock.Lock()
	if c.state != Uninitialized {
		state := c.state
		c.lock.Unlock()
		if state == Ready {
			return ErrSessionEstablished
		}
		return ErrConnectInProgress
	}
	c.state = Initializing
	c.lock.Unlock()

	c.publish(session)
	return nil
}

func (c *Controller) publish(session *Session) {
	c.lock.Lock()
	c.session.Store(session)
	c.state = Ready
	c.initErr = nil
	c.lock.Unlock()

	c.metrics.SessionReady.Set(1)
	c.logger.Info(
		"Session ready",
		log.Stringer("account", session.Account()),
	)
}

func (c *Controller) State() SessionState {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.state
}

// InitError returns the error of the last failed initialization, if any.
func (c *Controller) InitError() error {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.initErr
}

// Session returns the published session, or nil before the controller is
// Ready.
func (c *Controller) Session() *Session {
	return c.session.Load()
}

// Account returns the connected account and whether a session is ready.
func (c *Controller) Account() (common.Address, bool) {
	session := c.session.Load()
	if session == nil {
		return common.Address{}, false
	}
	return session.Account(), true
}

// Outcome returns the most recently settled outcome, or nil if no operation
// has settled yet.
func (c *Controller) Outcome() *Outcome {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.latest
}

// Issue records [input] in the registry and waits for the transaction to be
// included. Once submitted, the operation is not cancelled with [ctx]; the
// wait is bounded by the ledger client's inclusion timeout.
//
// Issue does nothing and returns false when [input] is empty, the session is
// not ready, or [ctx] ends before the operation slot is acquired.
func (c *Controller) Issue(ctx context.Context, input string) (*Outcome, bool) {
	session, ok := c.begin(ctx, OperationIssue, input)
	if !ok {
		return nil, false
	}
	defer c.end()

	start := c.now()
	kind, txHash := c.issue(context.WithoutCancel(ctx), session, input)
	return c.settle(kind, input, txHash, start), true
}

func (c *Controller) issue(ctx context.Context, session *Session, input string) (OutcomeKind, common.Hash) {
	enc, err := EncodeCertificate(input)
	if err != nil {
		c.logger.Warn(
			"Failed to encode certificate",
			log.String("certificate", input),
			log.Err(err),
		)
		return IssueFailed, common.Hash{}
	}

	receipt, err := session.Registry().IssueCertificate(ctx, enc)
	if err != nil {
		var txHash common.Hash
		if receipt != nil {
			txHash = receipt.TxHash
		}
		c.logger.Error(
			"Failed to issue certificate",
			log.String("certificate", input),
			log.Err(err),
		)
		return IssueFailed, txHash
	}
	c.verifyCache.Invalidate(enc)

	c.logger.Info(
		"Certificate issued",
		log.String("certificate", input),
		log.Stringer("txID", receipt.TxHash),
	)
	return IssueSucceeded, receipt.TxHash
}

// Verify asks the registry whether [input] has been issued. It follows the
// same no-op rules as Issue.
func (c *Controller) Verify(ctx context.Context, input string) (*Outcome, bool) {
	session, ok := c.begin(ctx, OperationVerify, input)
	if !ok {
		return nil, false
	}
	defer c.end()

	start := c.now()
	kind := c.verify(ctx, session, input)
	return c.settle(kind, input, common.Hash{}, start), true
}

func (c *Controller) verify(ctx context.Context, session *Session, input string) OutcomeKind {
	enc, err := EncodeCertificate(input)
	if err != nil {
		c.logger.Warn(
			"Failed to encode certificate",
			log.String("certificate", input),
			log.Err(err),
		)
		return VerifyFailed
	}

	fetched := false
	valid, err := c.verifyCache.Get(
		enc,
		func(enc EncodedCertificate) (bool, error) {
			fetched = true
			return session.Registry().VerifyCertificate(ctx, enc)
		},
		false,
	)
	if err != nil {
		c.logger.Error(
			"Failed to verify certificate",
			log.String("certificate", input),
			log.Err(err),
		)
		return VerifyFailed
	}
	if !fetched {
		c.metrics.VerifyCacheHits.Inc()
	}
	if !valid {
		return VerifyInvalid
	}
	return VerifyValid
}

// begin checks the preconditions of [op] and acquires the operation slot.
func (c *Controller) begin(ctx context.Context, op Operation, input string) (*Session, bool) {
	session := c.session.Load()
	if input == "" || session == nil {
		c.metrics.SkippedCount.WithLabelValues(op.String()).Inc()
		c.logger.Debug(
			"Skipping operation",
			log.String("operation", op.String()),
			log.Bool("sessionReady", session != nil),
		)
		return nil, false
	}

	select {
	case c.opSlot <- struct{}{}:
		return session, true
	case <-ctx.Done():
		c.metrics.SkippedCount.WithLabelValues(op.String()).Inc()
		c.logger.Warn(
			"Operation abandoned while waiting for a previous operation",
			log.String("operation", op.String()),
			log.Err(ctx.Err()),
		)
		return nil, false
	}
}

func (c *Controller) end() {
	<-c.opSlot
}

func (c *Controller) settle(kind OutcomeKind, input string, txHash common.Hash, start time.Time) *Outcome {
	settledAt := c.now()

	c.lock.Lock()
	c.seq++
	outcome := &Outcome{
		Kind:        kind,
		Seq:         c.seq,
		Certificate: input,
		TxHash:      txHash,
		SettledAt:   settledAt,
	}
	c.latest = outcome
	c.lock.Unlock()

	op := kind.Operation().String()
	c.metrics.OperationCount.WithLabelValues(op, kind.String()).Inc()
	c.metrics.OperationLatencyMS.WithLabelValues(op).Set(float64(settledAt.Sub(start).Milliseconds()))
	return outcome
}
