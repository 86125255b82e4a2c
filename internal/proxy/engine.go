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

// Package proxy implements C8: the per-request admission and
// dispatch pipeline. Header-copy and context-deadline mechanics are
// grounded on other_examples' proxy_olla.go.go, simplified to a
// single non-streaming upstream; admission/status-code conventions
// are grounded on internal/ratelimiter/api/server.go's handler shape.
package proxy

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"phantomgate/internal/circuit"
	"phantomgate/internal/features"
)

// Metrics is the slice of the registry the engine emits to.
type Metrics interface {
	RecordResponse(endpoint, method string, status int, hasLatency bool, latencyMs float64)
	RecordUpstream5xx(endpoint, method string)
	RecordTimeout(endpoint, method string)
	RecordRetry(endpoint, method string)
	RecordRetryExhausted(endpoint, method string)
	IncCircuitShortCircuited()
}

// Breaker is the narrow circuit-breaker surface the engine consults.
type Breaker interface {
	Check() circuit.Decision
	RecordOutcome(isFailure bool, wasProbe bool)
}

// Extractor is the subset of *features.Extractor the engine needs for
// graded-mode selection.
type Extractor interface {
	ComputeFeatures() features.Vector
}

// RiskPredictor is the subset of *risk.Predictor the engine needs.
type RiskPredictor interface {
	PredictRisk(fv features.Vector) float64
}

// Limiter is the optional pre-admission quota gate (SPEC_FULL.md §4).
// A nil Limiter disables the gate entirely.
type Limiter interface {
	Admit(key string) bool
}

// Config holds the spec.md §4.8 defaults.
type Config struct {
	ServiceURL          string
	HardRiskThreshold   float64       // default 0.70
	SoftRiskThreshold   float64       // default 0.45
	DegradedTimeout     time.Duration // default 1s
	UpstreamTimeout     time.Duration // default 2s
	MaxRetries          int           // no default here: 0 means no retries
	RetryBackoff        time.Duration // base, default 200ms
}

// Engine is C8.
type Engine struct {
	metrics   Metrics
	breaker   Breaker
	extractor Extractor
	predictor RiskPredictor
	limiter   Limiter
	cfg       Config
	client    *http.Client
}

// New builds an Engine. limiter may be nil to disable the quota gate.
func New(metrics Metrics, breaker Breaker, extractor Extractor, predictor RiskPredictor, limiter Limiter, cfg Config) *Engine {
	if cfg.HardRiskThreshold == 0 {
		cfg.HardRiskThreshold = 0.70
	}
	if cfg.SoftRiskThreshold == 0 {
		cfg.SoftRiskThreshold = 0.45
	}
	if cfg.DegradedTimeout <= 0 {
		cfg.DegradedTimeout = time.Second
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 2 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	return &Engine{
		metrics:   metrics,
		breaker:   breaker,
		extractor: extractor,
		predictor: predictor,
		limiter:   limiter,
		cfg:       cfg,
		client:    &http.Client{},
	}
}

type mode int

const (
	modeNormal mode = iota
	modeDegraded
	modeHardFail
)

// reservedPrefixes are the gateway's own route namespaces (spec.md
// §6 / §4.8 step 1). Any path whose first segment matches one of
// these never reaches the upstream, even if http.ServeMux has no
// exact registration for it: otherwise an unregistered sub-path like
// /debug/anything falls through the mux's "/" pattern straight into
// this engine and gets proxied verbatim.
var reservedPrefixes = map[string]bool{
	"health":  true,
	"metrics": true,
	"debug":   true,
}

// isReservedPath reports whether path's first segment names one of
// the gateway's own routes rather than an upstream endpoint.
func isReservedPath(path string) bool {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return false
	}
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return reservedPrefixes[trimmed]
}

// ServeHTTP is the proxy catch-all route.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Path
	method := r.Method

	if isReservedPath(endpoint) {
		http.NotFound(w, r)
		return
	}

	if e.limiter != nil {
		if !e.limiter.Admit(quotaKey(r)) {
			http.Error(w, "Quota exceeded", http.StatusTooManyRequests)
			return
		}
	}

	decision := e.breaker.Check()
	if decision == circuit.Reject {
		e.metrics.RecordResponse(endpoint, method, http.StatusServiceUnavailable, false, 0)
		http.Error(w, "Circuit open", http.StatusServiceUnavailable)
		return
	}
	wasProbe := decision == circuit.AdmitProbe

	m, effectiveTimeout, effectiveMaxRetries := e.selectMode(wasProbe)
	if m == modeHardFail {
		e.metrics.IncCircuitShortCircuited()
		e.metrics.RecordResponse(endpoint, method, http.StatusTooManyRequests, false, 0)
		http.Error(w, "Service temporarily degraded", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadGateway)
		return
	}

	headers := cloneHeadersWithoutHost(r.Header)
	retryable := method == http.MethodGet || method == http.MethodHead

	e.attemptLoop(w, r.Context(), endpoint, method, body, headers, effectiveTimeout, effectiveMaxRetries, retryable, wasProbe)
}

// selectMode derives the graded operating mode from current risk,
// per spec.md §4.8 step 3. A HALF_OPEN probe always runs NORMAL so
// the single outstanding probe is never swallowed by a risk-based
// short-circuit (see DESIGN.md).
func (e *Engine) selectMode(wasProbe bool) (mode, time.Duration, int) {
	if wasProbe {
		return modeNormal, e.cfg.UpstreamTimeout, e.cfg.MaxRetries
	}
	fv := e.extractor.ComputeFeatures()
	risk := e.predictor.PredictRisk(fv)
	switch {
	case risk >= e.cfg.HardRiskThreshold:
		return modeHardFail, 0, 0
	case risk >= e.cfg.SoftRiskThreshold:
		return modeDegraded, e.cfg.DegradedTimeout, 0
	default:
		return modeNormal, e.cfg.UpstreamTimeout, e.cfg.MaxRetries
	}
}

func (e *Engine) attemptLoop(w http.ResponseWriter, parent context.Context, endpoint, method string, body []byte, headers http.Header, timeout time.Duration, maxRetries int, retryable bool, wasProbe bool) {
	maxAttempts := maxRetries + 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(parent, timeout)
		req, err := http.NewRequestWithContext(ctx, method, e.cfg.ServiceURL+endpoint, bytes.NewReader(body))
		if err != nil {
			cancel()
			http.Error(w, "failed to build upstream request", http.StatusBadGateway)
			return
		}
		req.Header = headers.Clone()

		start := time.Now()
		resp, err := e.client.Do(req)
		elapsedMs := float64(time.Since(start).Milliseconds())
		cancel()

		if err != nil {
			e.metrics.RecordTimeout(endpoint, method)
			if retryable && attempt < maxAttempts-1 {
				e.metrics.RecordRetry(endpoint, method)
				time.Sleep(e.cfg.RetryBackoff * time.Duration(attempt+1))
				continue
			}
			e.metrics.RecordRetryExhausted(endpoint, method)
			e.metrics.RecordResponse(endpoint, method, http.StatusGatewayTimeout, false, 0)
			e.breaker.RecordOutcome(true, wasProbe)
			http.Error(w, "Upstream timeout", http.StatusGatewayTimeout)
			return
		}

		e.metrics.RecordResponse(endpoint, method, resp.StatusCode, true, elapsedMs)
		isFailure := resp.StatusCode >= 500 && resp.StatusCode < 600
		if isFailure {
			e.metrics.RecordUpstream5xx(endpoint, method)
		}

		if isFailure && retryable && attempt < maxAttempts-1 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			e.metrics.RecordRetry(endpoint, method)
			time.Sleep(e.cfg.RetryBackoff * time.Duration(attempt+1))
			continue
		}

		e.breaker.RecordOutcome(isFailure, wasProbe)
		forwardResponse(w, resp)
		return
	}
}

// forwardResponse copies status, headers, and body verbatim.
func forwardResponse(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// cloneHeadersWithoutHost copies h and strips any case-insensitive
// "Host" entry, per spec.md §4.8 step 4. net/http already keeps Host
// out of r.Header (it surfaces via r.Host instead), so this is
// defensive rather than load-bearing.
func cloneHeadersWithoutHost(h http.Header) http.Header {
	out := h.Clone()
	for k := range out {
		if strings.EqualFold(k, "Host") {
			delete(out, k)
		}
	}
	return out
}

// quotaKey derives the admission-quota identity for a request: the
// caller-supplied API key if present, else the remote IP (the port is
// dropped so every connection from one host shares a key).
// Grounded on api/server.go's api_key query-param convention,
// generalized to a header since the gateway's own route space
// (spec.md §6) has no query-string contract of its own.
func quotaKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
