// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package certify

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
)

// FakeRegistry is an in-process Registry. Issued certificates are kept in
// memory; errors can be injected per method.
type FakeRegistry struct {
	lock   sync.Mutex
	issued map[[32]byte]struct{}
	nonce  uint64

	// IssueErr and VerifyErr, when set, are returned instead of performing
	// the call.
	IssueErr  error
	VerifyErr error

	IssueCalls  int
	VerifyCalls int
}

func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{
		issued: make(map[[32]byte]struct{}),
	}
}

func (r *FakeRegistry) IssueCertificate(_ context.Context, certificate [32]byte) (*types.Receipt, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.IssueCalls++
	if r.IssueErr != nil {
		return nil, r.IssueErr
	}
	r.issued[certificate] = struct{}{}
	r.nonce++

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], r.nonce)
	return &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		TxHash: common.Keccak256Hash(certificate[:], nonce[:]),
	}, nil
}

func (r *FakeRegistry) VerifyCertificate(_ context.Context, certificate [32]byte) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.VerifyCalls++
	if r.VerifyErr != nil {
		return false, r.VerifyErr
	}
	_, ok := r.issued[certificate]
	return ok, nil
}

// SetErrors replaces the injected errors.
func (r *FakeRegistry) SetErrors(issueErr, verifyErr error) {
	r.lock.Lock()
	r.IssueErr = issueErr
	r.VerifyErr = verifyErr
	r.lock.Unlock()
}

// Calls returns the number of issue and verify calls received.
func (r *FakeRegistry) Calls() (issue int, verify int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.IssueCalls, r.VerifyCalls
}
