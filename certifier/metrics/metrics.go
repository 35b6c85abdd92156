// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	operationLabel = "operation"
	outcomeLabel   = "outcome"
)

type CertifierMetrics struct {
	OperationCount     *prometheus.CounterVec
	SkippedCount       *prometheus.CounterVec
	OperationLatencyMS *prometheus.GaugeVec
	VerifyCacheHits    prometheus.Counter
	SessionReady       prometheus.Gauge
	APIRequestCount    *prometheus.CounterVec
}

func NewCertifierMetrics(registerer prometheus.Registerer) *CertifierMetrics {
	m := CertifierMetrics{
		OperationCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certificate_operation_count",
				Help: "Number of settled certificate operations by outcome",
			},
			[]string{operationLabel, outcomeLabel},
		),
		SkippedCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certificate_operation_skipped_count",
				Help: "Number of operations skipped because the input was empty or no session was ready",
			},
			[]string{operationLabel},
		),
		OperationLatencyMS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "certificate_operation_latency_ms",
				Help: "Latency of the most recent certificate operation in milliseconds",
			},
			[]string{operationLabel},
		),
		VerifyCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "verify_cache_hit_count",
				Help: "Number of verifications answered without a ledger call",
			},
		),
		SessionReady: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "session_ready",
				Help: "1 if a wallet session is established, 0 otherwise",
			},
		),
		APIRequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "api_request_count",
				Help: "Number of API requests by path",
			},
			[]string{"path"},
		),
	}

	registerer.MustRegister(m.OperationCount)
	registerer.MustRegister(m.SkippedCount)
	registerer.MustRegister(m.OperationLatencyMS)
	registerer.MustRegister(m.VerifyCacheHits)
	registerer.MustRegister(m.SessionReady)
	registerer.MustRegister(m.APIRequestCount)

	return &m
}

// Handler exposes the metrics gathered by [gatherer].
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
