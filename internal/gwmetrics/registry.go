// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gwmetrics is the gateway's metrics registry. It exposes the
// standard Prometheus text format for scraping and, per the
// direct-accessor redesign, plain Go methods the feature extractor
// samples without scanning the registry by name.
package gwmetrics

import (
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// MaxLatencyMs substitutes for the +Inf histogram bucket when
// computing p95.
const MaxLatencyMs = 5000.0

var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// Registry owns every instrument the gateway emits and mirrors the
// aggregate totals the feature extractor needs as plain atomics, so
// C2 never has to parse its own exposition format back out.
type Registry struct {
	RequestsTotal               *prometheus.CounterVec
	RequestLatencyMs            *prometheus.HistogramVec
	UpstreamTimeoutsTotal       *prometheus.CounterVec
	Upstream5xxErrorsTotal      *prometheus.CounterVec
	UpstreamRetriesTotal        *prometheus.CounterVec
	UpstreamRetryExhaustedTotal *prometheus.CounterVec
	CircuitFailureRatio         prometheus.Histogram
	CircuitRequestsTrackedTotal prometheus.Counter
	CircuitState                prometheus.Gauge
	CircuitOpenTotal            prometheus.Counter
	CircuitShortCircuitedTotal  prometheus.Counter

	totalRequests atomic.Int64
	totalFailures atomic.Int64
	totalTimeouts atomic.Int64
	totalRetries  atomic.Int64
	circuitFlaps  atomic.Int64

	latency latencyTracker
}

// New builds a fresh, unregistered Registry; callers attach it to a
// prometheus.Registerer of their choice with MustRegister, so tests can
// construct as many independent instances as they need without
// colliding on the global registry.
func New() *Registry {
	reg := &Registry{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total proxied requests by endpoint, method and status.",
		}, []string{"endpoint", "method", "status"}),
		RequestLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_request_latency_ms",
			Help:    "Upstream response latency in milliseconds.",
			Buckets: latencyBuckets,
		}, []string{"endpoint"}),
		UpstreamTimeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_timeouts_total",
			Help: "Upstream requests that exceeded their deadline.",
		}, []string{"endpoint", "method"}),
		Upstream5xxErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_5xx_errors_total",
			Help: "Upstream responses with a 5xx status.",
		}, []string{"endpoint", "method"}),
		UpstreamRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Retry attempts issued to upstream.",
		}, []string{"endpoint", "method"}),
		UpstreamRetryExhaustedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_retry_exhausted_total",
			Help: "Requests that exhausted their retry budget.",
		}, []string{"endpoint", "method"}),
		CircuitFailureRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "circuit_failure_ratio",
			Help:    "Observed failure ratio of the circuit's rolling window.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		CircuitRequestsTrackedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "circuit_requests_tracked_total",
			Help: "Terminal outcomes appended to the circuit's failure window.",
		}),
		CircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "circuit_state",
			Help: "0=CLOSED 1=OPEN 2=HALF_OPEN.",
		}),
		CircuitOpenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "circuit_open_total",
			Help: "Transitions into the OPEN state.",
		}),
		CircuitShortCircuitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "circuit_short_circuited_total",
			Help: "Requests rejected without contacting upstream.",
		}),
	}
	reg.latency = newLatencyTracker()
	return reg
}

// MustRegister registers every instrument against r. Kept separate
// from New so callers (and tests) choose which prometheus.Registerer
// to attach to, matching telemetry/churn/prom_counters.go's
// package-init registration without forcing the global registry on
// every test.
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		r.RequestsTotal,
		r.RequestLatencyMs,
		r.UpstreamTimeoutsTotal,
		r.Upstream5xxErrorsTotal,
		r.UpstreamRetriesTotal,
		r.UpstreamRetryExhaustedTotal,
		r.CircuitFailureRatio,
		r.CircuitRequestsTrackedTotal,
		r.CircuitState,
		r.CircuitOpenTotal,
		r.CircuitShortCircuitedTotal,
	)
}

// RecordResponse records api_requests_total for every upstream
// response (including retried attempts) and for every short-circuit,
// hard-fail and final timeout, since it is the denominator for
// the extractor's per-tick "total" window. hasLatency is false for
// outcomes that never produced an upstream round trip.
func (r *Registry) RecordResponse(endpoint, method string, status int, hasLatency bool, latencyMs float64) {
	r.RequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	r.totalRequests.Add(1)
	if hasLatency {
		r.RequestLatencyMs.WithLabelValues(endpoint).Observe(latencyMs)
		r.latency.observe(latencyMs)
	}
}

// RecordUpstream5xx records a real upstream 5xx response — the source
// of C2's "failures" window.
func (r *Registry) RecordUpstream5xx(endpoint, method string) {
	r.Upstream5xxErrorsTotal.WithLabelValues(endpoint, method).Inc()
	r.totalFailures.Add(1)
}

// RecordTimeout records an upstream timeout — the source of C2's
// "timeouts" window, tracked separately from 5xx failures.
func (r *Registry) RecordTimeout(endpoint, method string) {
	r.UpstreamTimeoutsTotal.WithLabelValues(endpoint, method).Inc()
	r.totalTimeouts.Add(1)
}

// RecordRetry records a non-terminal retry attempt.
func (r *Registry) RecordRetry(endpoint, method string) {
	r.UpstreamRetriesTotal.WithLabelValues(endpoint, method).Inc()
	r.totalRetries.Add(1)
}

// RecordRetryExhausted records that the retry budget ran out.
func (r *Registry) RecordRetryExhausted(endpoint, method string) {
	r.UpstreamRetryExhaustedTotal.WithLabelValues(endpoint, method).Inc()
}

// ObserveCircuitFlap marks a circuit-breaker state transition, for
// C2's circuit_flap_rate sampling.
func (r *Registry) ObserveCircuitFlap() {
	r.circuitFlaps.Add(1)
}

// SetCircuitState sets the circuit_state gauge (0/1/2).
func (r *Registry) SetCircuitState(code float64) { r.CircuitState.Set(code) }

// IncCircuitOpen increments circuit_open_total.
func (r *Registry) IncCircuitOpen() { r.CircuitOpenTotal.Inc() }

// IncCircuitShortCircuited increments circuit_short_circuited_total.
func (r *Registry) IncCircuitShortCircuited() { r.CircuitShortCircuitedTotal.Inc() }

// IncCircuitTracked increments circuit_requests_tracked_total.
func (r *Registry) IncCircuitTracked() { r.CircuitRequestsTrackedTotal.Inc() }

// ObserveCircuitFailureRatio feeds the circuit_failure_ratio histogram.
func (r *Registry) ObserveCircuitFailureRatio(ratio float64) {
	r.CircuitFailureRatio.Observe(ratio)
}

// Snapshot is the cumulative view C2 reads on every sampling tick.
type Snapshot struct {
	TotalRequests float64
	TotalFailures float64
	TotalTimeouts float64
	TotalRetries  float64
	CircuitFlaps  float64
	P95LatencyMs  float64
}

// Snapshot returns the current cumulative totals plus a freshly
// computed p95 latency from the cumulative bucket counts, in place of
// scanning prometheus.Registry.Gather() for named samples.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests: float64(r.totalRequests.Load()),
		TotalFailures: float64(r.totalFailures.Load()),
		TotalTimeouts: float64(r.totalTimeouts.Load()),
		TotalRetries:  float64(r.totalRetries.Load()),
		CircuitFlaps:  float64(r.circuitFlaps.Load()),
		P95LatencyMs:  r.latency.p95(),
	}
}

// latencyTracker keeps per-bucket cumulative-style counts so p95 can
// be derived the same way the Python source reads `_bucket{le=...}`
// samples: sort by le, walk until cumulative count >= 0.95*total.
type latencyTracker struct {
	bounds []float64 // ascending, +Inf implicit as the last slot
	counts []atomic.Int64
}

func newLatencyTracker() latencyTracker {
	bounds := make([]float64, len(latencyBuckets))
	copy(bounds, latencyBuckets)
	sort.Float64s(bounds)
	return latencyTracker{bounds: bounds, counts: make([]atomic.Int64, len(bounds)+1)}
}

func (t *latencyTracker) observe(ms float64) {
	for i, b := range t.bounds {
		if ms <= b {
			t.counts[i].Add(1)
			return
		}
	}
	t.counts[len(t.counts)-1].Add(1) // +Inf bucket
}

func (t *latencyTracker) p95() float64 {
	var total int64
	for i := range t.counts {
		total += t.counts[i].Load()
	}
	if total == 0 {
		return 0
	}
	threshold := 0.95 * float64(total)
	var cumulative int64
	for i, b := range t.bounds {
		cumulative += t.counts[i].Load()
		if float64(cumulative) >= threshold {
			return b
		}
	}
	return MaxLatencyMs
}
