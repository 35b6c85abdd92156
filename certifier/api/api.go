// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/luxfi/certify"
	"github.com/luxfi/certify/certifier/metrics"
	"github.com/luxfi/certify/wallet"
	"github.com/luxfi/log"
)

const (
	APIPrefix   = "/api/v1"
	SessionPath = "/session"
	IssuePath   = "/issue"
	VerifyPath  = "/verify"
	OutcomePath = "/outcome"

	// maxRequestSize bounds request bodies. Certificates are at most a few
	// dozen bytes.
	maxRequestSize = 4096

	readTimeout = 10 * time.Second

	// MissingProviderMessage is shown when no wallet provider is configured.
	MissingProviderMessage = "Please install a wallet provider!"
)

type OperationRequest struct {
	// Required: the certificate text, at most 31 bytes of UTF-8.
	Certificate string `json:"certificate"`
}

// SkippedResponse is returned when an operation did not run because the
// certificate was empty or no session was ready.
type SkippedResponse struct {
	Executed bool `json:"executed"`
}

type SessionResponse struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewRouter serves the certificate page at / and the JSON API under
// APIPrefix. [extra] mounts additional handlers such as /health and
// /metrics.
func NewRouter(
	logger log.Logger,
	metrics *metrics.CertifierMetrics,
	controller *certify.Controller,
	extra map[string]http.Handler,
) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	h := &handlers{
		logger:     logger,
		metrics:    metrics,
		controller: controller,
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequestSize(maxRequestSize))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(readTimeout))
			r.Get("/", h.handlePage)
			r.Get(APIPrefix+SessionPath, h.handleSession)
			r.Get(APIPrefix+OutcomePath, h.handleOutcome)
		})

		// Operations are bounded by the ledger client's RPC and inclusion
		// timeouts, and an issue keeps running after the request is gone.
		r.Post("/", h.handlePageAction)
		r.Post(APIPrefix+IssuePath, h.handleOperation(certify.OperationIssue))
		r.Post(APIPrefix+VerifyPath, h.handleOperation(certify.OperationVerify))
	})

	for path, handler := range extra {
		router.Handle(path, handler)
	}
	return router
}

type handlers struct {
	logger     log.Logger
	metrics    *metrics.CertifierMetrics
	controller *certify.Controller
}

func (h *handlers) run(ctx context.Context, op certify.Operation, input string) (*certify.Outcome, bool) {
	if op == certify.OperationIssue {
		return h.controller.Issue(ctx, input)
	}
	return h.controller.Verify(ctx, input)
}

func (h *handlers) handleOperation(op certify.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.metrics.APIRequestCount.WithLabelValues(r.URL.Path).Inc()

		var req OperationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			msg := "Could not decode request body"
			h.logger.Warn(msg, log.Err(err))
			writeJSONError(h.logger, w, http.StatusBadRequest, msg)
			return
		}

		outcome, executed := h.run(r.Context(), op, req.Certificate)
		if !executed {
			writeJSON(h.logger, w, http.StatusOK, SkippedResponse{Executed: false})
			return
		}
		writeJSON(h.logger, w, http.StatusOK, outcome)
	}
}

func (h *handlers) handleOutcome(w http.ResponseWriter, r *http.Request) {
	h.metrics.APIRequestCount.WithLabelValues(r.URL.Path).Inc()

	outcome := h.controller.Outcome()
	if outcome == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, outcome)
}

func (h *handlers) handleSession(w http.ResponseWriter, r *http.Request) {
	h.metrics.APIRequestCount.WithLabelValues(r.URL.Path).Inc()

	resp := SessionResponse{
		State: h.controller.State().String(),
	}
	if account, ok := h.controller.Account(); ok {
		resp.Connected = true
		resp.Account = account.Hex()
	}
	if err := h.controller.InitError(); err != nil {
		resp.Error = initErrorMessage(err)
	}
	writeJSON(h.logger, w, http.StatusOK, resp)
}

func initErrorMessage(err error) string {
	if errors.Is(err, wallet.ErrNoWalletProvider) {
		return MissingProviderMessage
	}
	return err.Error()
}

func writeJSON(logger log.Logger, w http.ResponseWriter, httpStatusCode int, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		msg := "Failed to marshal response"
		logger.Error(msg, log.Err(err))
		writeJSONError(logger, w, http.StatusInternalServerError, msg)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	if _, err := w.Write(resp); err != nil {
		logger.Error("Error writing response", log.Err(err))
	}
}

func writeJSONError(
	logger log.Logger,
	w http.ResponseWriter,
	httpStatusCode int,
	errorMsg string,
) {
	resp, err := json.Marshal(
		ErrorResponse{
			Error: errorMsg,
		},
	)
	if err != nil {
		msg := "Error marshalling JSON error response"
		logger.Error(msg, log.Err(err))
		resp = []byte(msg)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)

	_, err = w.Write(resp)
	if err != nil {
		logger.Error("Error writing error response", log.Err(err))
	}
}
