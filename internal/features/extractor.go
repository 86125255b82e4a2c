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

// Package features periodically samples the metrics registry into
// fixed-size rolling windows and derives the feature vector the risk
// predictor and adaptive threshold controller consume.
package features

import (
	"context"
	"math"
	"sync"
	"time"

	"phantomgate/internal/window"
)

// Source is the narrow view of the metrics registry the extractor
// needs. Satisfied by the gateway's adapter over *gwmetrics.Registry
// (whose own Snapshot returns gwmetrics.Snapshot); defined here (rather than
// imported from gwmetrics) so tests can stub it without constructing
// a real Prometheus registry.
type Source interface {
	Snapshot() SourceSnapshot
}

// SourceSnapshot mirrors gwmetrics.Snapshot's field set.
type SourceSnapshot struct {
	TotalRequests float64
	TotalFailures float64
	TotalTimeouts float64
	TotalRetries  float64
	CircuitFlaps  float64
	P95LatencyMs  float64
}

// Extractor owns the six rolling windows and the sampling loop.
type Extractor struct {
	source       Source
	windowSize   int
	sampleEvery  time.Duration

	mu       sync.Mutex
	total    *window.Rolling
	failures *window.Rolling
	timeouts *window.Rolling
	retries  *window.Rolling
	p95      *window.Rolling
	flaps    *window.Rolling

	prevTotal, prevFailures, prevTimeouts, prevRetries, prevFlaps float64
}

// New builds an Extractor sampling src every sampleEvery, with
// rolling windows of windowSize.
func New(src Source, windowSize int, sampleEvery time.Duration) *Extractor {
	if windowSize <= 0 {
		windowSize = 30
	}
	if sampleEvery <= 0 {
		sampleEvery = time.Second
	}
	return &Extractor{
		source:      src,
		windowSize:  windowSize,
		sampleEvery: sampleEvery,
		total:       window.New(windowSize),
		failures:    window.New(windowSize),
		timeouts:    window.New(windowSize),
		retries:     window.New(windowSize),
		p95:         window.New(windowSize),
		flaps:       window.New(windowSize),
	}
}

// Run blocks, sampling on a fixed cadence until ctx is cancelled.
func (e *Extractor) Run(ctx context.Context) {
	ticker := time.NewTicker(e.sampleEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Sample()
		case <-ctx.Done():
			return
		}
	}
}

// Sample performs one tick: read the cumulative snapshot, compute
// clamped deltas, and append to the windows. Exported so tests can
// drive it deterministically.
func (e *Extractor) Sample() {
	snap := e.source.Snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.total.Append(delta(&e.prevTotal, snap.TotalRequests))
	e.failures.Append(delta(&e.prevFailures, snap.TotalFailures))
	e.timeouts.Append(delta(&e.prevTimeouts, snap.TotalTimeouts))
	e.retries.Append(delta(&e.prevRetries, snap.TotalRetries))
	e.flaps.Append(delta(&e.prevFlaps, snap.CircuitFlaps))
	e.p95.Append(snap.P95LatencyMs)
}

// delta computes max(0, current-prev) and advances prev, treating a
// counter reset (process restart) as a zero delta.
func delta(prev *float64, current float64) float64 {
	d := current - *prev
	*prev = current
	if d < 0 {
		return 0
	}
	return d
}

// ComputeFeatures derives the current feature vector, or the empty
// vector if the total-request window sums to zero.
func (e *Extractor) ComputeFeatures() Vector {
	e.mu.Lock()
	defer e.mu.Unlock()

	totalSum := e.total.Sum()
	if totalSum == 0 {
		return Vector{}
	}

	failSum := e.failures.Sum()
	retrySum := e.retries.Sum()
	timeoutSum := e.timeouts.Sum()

	v := Vector{
		"failure_ratio":       round(failSum/totalSum, 4),
		"failure_ratio_slope": round(e.failures.Slope(), 4),
		"p95_latency":         round(e.p95.Last(), 2),
		"latency_slope":       round(e.p95.Slope(), 2),
		"retry_rate":          round(retrySum/totalSum, 4),
		"timeout_rate":        round(timeoutSum/totalSum, 4),
		"error_burstiness":    round(e.failures.Burstiness(), 2),
		"circuit_flap_rate":   round(e.flaps.Sum()/float64(e.windowSize), 4),
	}
	return v
}

func round(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
