// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/luxfi/certify"
	"github.com/luxfi/certify/certifier/config"
	"github.com/luxfi/certify/certifier/metrics"
	"github.com/luxfi/certify/vms/evm/signer"
	"github.com/luxfi/crypto"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router     http.Handler
	controller *certify.Controller
	registry   *certify.FakeRegistry
	account    string
}

func newTestServer(t *testing.T, connected bool) *testServer {
	m := metrics.NewCertifierMetrics(prometheus.NewRegistry())
	controller := certify.NewController(log.NewNoOpLogger(), m, 0)
	s := &testServer{
		controller: controller,
		registry:   certify.NewFakeRegistry(),
	}
	if connected {
		pk, err := crypto.GenerateKey()
		require.NoError(t, err)
		sgnr := signer.NewTxSignerFromKey(pk)
		require.NoError(t, controller.SetSession(certify.NewSession(nil, sgnr, s.registry)))
		s.account = sgnr.Address().Hex()
	}
	s.router = NewRouter(log.NewNoOpLogger(), m, controller, map[string]http.Handler{
		"/ping": http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestOperationAPI(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, true)

	rec := s.do(t, http.MethodGet, APIPrefix+OutcomePath, "")
	require.Equal(http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, APIPrefix+IssuePath, `{"certificate":"DIPLOMA2024"}`)
	require.Equal(http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal("issue", body["operation"])
	require.Equal(certify.MessageIssueSucceeded, body["message"])
	require.Equal("success", body["category"])

	rec = s.do(t, http.MethodPost, APIPrefix+VerifyPath, `{"certificate":"DIPLOMA2024"}`)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(certify.MessageVerifyValid, decodeBody(t, rec)["message"])

	rec = s.do(t, http.MethodPost, APIPrefix+VerifyPath, `{"certificate":"FAKE-CERT"}`)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(certify.MessageVerifyInvalid, decodeBody(t, rec)["message"])

	rec = s.do(t, http.MethodGet, APIPrefix+OutcomePath, "")
	require.Equal(http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	require.Equal("FAKE-CERT", body["certificate"])
	require.Equal(float64(3), body["seq"])

	rec = s.do(t, http.MethodPost, APIPrefix+IssuePath, `{"certificate":""}`)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(false, decodeBody(t, rec)["executed"])

	rec = s.do(t, http.MethodPost, APIPrefix+IssuePath, `{"certificate":`)
	require.Equal(http.StatusBadRequest, rec.Code)
	require.Equal("Could not decode request body", decodeBody(t, rec)["error"])

	rec = s.do(t, http.MethodGet, "/ping", "")
	require.Equal(http.StatusTeapot, rec.Code)
}

// deadlineRegistry records whether verify calls carry a deadline.
type deadlineRegistry struct {
	*certify.FakeRegistry
	hasDeadline chan bool
}

func (r *deadlineRegistry) VerifyCertificate(ctx context.Context, certificate [32]byte) (bool, error) {
	_, ok := ctx.Deadline()
	r.hasDeadline <- ok
	return r.FakeRegistry.VerifyCertificate(ctx, certificate)
}

func TestOperationsHaveNoRequestTimeout(t *testing.T) {
	require := require.New(t)

	m := metrics.NewCertifierMetrics(prometheus.NewRegistry())
	controller := certify.NewController(log.NewNoOpLogger(), m, 0)
	registry := &deadlineRegistry{
		FakeRegistry: certify.NewFakeRegistry(),
		hasDeadline:  make(chan bool, 2),
	}
	pk, err := crypto.GenerateKey()
	require.NoError(err)
	require.NoError(controller.SetSession(certify.NewSession(nil, signer.NewTxSignerFromKey(pk), registry)))
	router := NewRouter(log.NewNoOpLogger(), m, controller, nil)

	req := httptest.NewRequest(http.MethodPost, APIPrefix+VerifyPath, strings.NewReader(`{"certificate":"DIPLOMA2024"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(http.StatusOK, rec.Code)
	require.False(<-registry.hasDeadline)

	form := url.Values{
		certificateField: {"DIPLOMA2024"},
		actionField:      {actionVerify},
	}
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(http.StatusOK, rec.Code)
	require.False(<-registry.hasDeadline)
}

func TestPageShowsInitError(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, false)
	s.controller.RecordInitError(errors.New("invalid private key"))

	rec := s.do(t, http.MethodGet, "/", "")
	require.Equal(http.StatusOK, rec.Code)
	page := rec.Body.String()
	require.Contains(page, "invalid private key")
	require.Contains(page, "Connected Wallet: Not connected")
}

func TestSessionAPI(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		require := require.New(t)
		s := newTestServer(t, true)

		rec := s.do(t, http.MethodGet, APIPrefix+SessionPath, "")
		require.Equal(http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal("ready", body["state"])
		require.Equal(true, body["connected"])
		require.Equal(s.account, body["account"])
	})

	t.Run("no provider", func(t *testing.T) {
		require := require.New(t)
		s := newTestServer(t, false)
		err := s.controller.Connect(context.Background(), nil, &config.Config{})
		require.Error(err)

		rec := s.do(t, http.MethodGet, APIPrefix+SessionPath, "")
		require.Equal(http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal("uninitialized", body["state"])
		require.Equal(false, body["connected"])
		require.Equal(MissingProviderMessage, body["error"])

		rec = s.do(t, http.MethodPost, APIPrefix+VerifyPath, `{"certificate":"DIPLOMA2024"}`)
		require.Equal(false, decodeBody(t, rec)["executed"])
	})
}

func TestPage(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		require := require.New(t)
		s := newTestServer(t, false)

		rec := s.do(t, http.MethodGet, "/", "")
		require.Equal(http.StatusOK, rec.Code)
		page := rec.Body.String()
		require.Contains(page, "📜 Certificate Verification")
		require.Contains(page, "Connected Wallet: Not connected")
		require.Contains(page, "Certificate Data")
		require.Contains(page, "Issue Certificate")
		require.Contains(page, "Verify Certificate")
		require.Contains(page, "Powered by Ethereum Blockchain")
		require.NotContains(page, `class="status`)
	})

	t.Run("issue from form", func(t *testing.T) {
		require := require.New(t)
		s := newTestServer(t, true)

		form := url.Values{
			certificateField: {"DIPLOMA2024"},
			actionField:      {actionIssue},
		}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		require.Equal(http.StatusOK, rec.Code)
		page := rec.Body.String()
		require.Contains(page, "Connected Wallet: "+s.account)
		require.Contains(page, `class="status success"`)
		require.Contains(page, certify.MessageIssueSucceeded)
		require.Contains(page, `value="DIPLOMA2024"`)
	})

	t.Run("verify warning", func(t *testing.T) {
		require := require.New(t)
		s := newTestServer(t, true)

		form := url.Values{
			certificateField: {strings.Repeat("x", 40)},
			actionField:      {actionVerify},
		}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		require.Equal(http.StatusOK, rec.Code)
		require.Contains(rec.Body.String(), `class="status warning"`)
	})

	t.Run("unknown action", func(t *testing.T) {
		s := newTestServer(t, true)
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("action=burn"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
