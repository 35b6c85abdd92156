// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package healthcheck

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luxfi/certify"
	"github.com/luxfi/certify/certifier/metrics"
	"github.com/luxfi/certify/vms/evm"
	"github.com/luxfi/certify/vms/evm/signer"
	"github.com/luxfi/crypto"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type chainIDClient struct {
	evm.Client
	err error
}

func (c *chainIDClient) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(1337), c.err
}

func TestNewHandler(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{
			name:   "up",
			status: http.StatusOK,
		},
		{
			name:   "down",
			err:    errors.New("unreachable"),
			status: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(func(context.Context) error { return tt.err })
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestSessionCheck(t *testing.T) {
	require := require.New(t)

	controller := certify.NewController(
		log.NewNoOpLogger(),
		metrics.NewCertifierMetrics(prometheus.NewRegistry()),
		0,
	)
	check := SessionCheck(controller)
	require.ErrorIs(check(context.Background()), ErrNotConnected)

	pk, err := crypto.GenerateKey()
	require.NoError(err)
	client := &chainIDClient{}
	session := certify.NewSession(client, signer.NewTxSignerFromKey(pk), certify.NewFakeRegistry())
	require.NoError(controller.SetSession(session))
	require.NoError(check(context.Background()))

	client.err = errors.New("connection refused")
	require.ErrorContains(check(context.Background()), "connection refused")
}

func TestSessionCheckInProcess(t *testing.T) {
	require := require.New(t)

	controller := certify.NewController(
		log.NewNoOpLogger(),
		metrics.NewCertifierMetrics(prometheus.NewRegistry()),
		0,
	)
	pk, err := crypto.GenerateKey()
	require.NoError(err)
	session := certify.NewSession(nil, signer.NewTxSignerFromKey(pk), certify.NewFakeRegistry())
	require.NoError(controller.SetSession(session))
	require.NoError(SessionCheck(controller)(context.Background()))
}
