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

// Package circuit implements the three-state reactive circuit
// breaker (C6): a single mutex guards the composite aggregate so any
// check-state -> act -> update-state sequence is observed atomically
// by concurrent callers, satisfying the HALF_OPEN exclusivity
// invariant. Grounded on the mutex+state-enum+rolling-window shape of
// other_examples' circuit_breaker.go.go, adapted to spec.md §4.6's
// exact transition table.
package circuit

import (
	"sync"
	"time"

	"phantomgate/internal/window"
)

// State is one of CLOSED/OPEN/HALF_OPEN.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// GaugeCode returns the circuit_state gauge value for s.
func (s State) GaugeCode() float64 {
	switch s {
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return 0
	}
}

// Metrics is the slice of the registry the breaker emits to. Matched
// structurally against *gwmetrics.Registry; kept local so this
// package has no dependency on the Prometheus client library.
type Metrics interface {
	SetCircuitState(code float64)
	IncCircuitOpen()
	IncCircuitShortCircuited()
	IncCircuitTracked()
	ObserveCircuitFailureRatio(ratio float64)
	ObserveCircuitFlap()
}

// Config holds the spec.md §4.6 defaults.
type Config struct {
	WindowSize        int           // CIRCUIT_WINDOW_SIZE, default 20
	MinRequests       int           // CIRCUIT_MIN_REQUESTS, default 10
	FailureThreshold  float64       // CIRCUIT_FAILURE_THRESHOLD, default 0.5
	OpenDuration      time.Duration // CIRCUIT_OPEN_DURATION_SECONDS, default 30s
}

// Breaker is the mutex-guarded circuit aggregate.
type Breaker struct {
	metrics Metrics
	cfg     Config
	now     func() time.Time

	mu            sync.Mutex
	state         State
	openedAt      time.Time
	probeInFlight bool
	window        *window.Rolling
}

// New builds a Breaker in the CLOSED state.
func New(metrics Metrics, cfg Config) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 10
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 0.5
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 30 * time.Second
	}
	b := &Breaker{
		metrics: metrics,
		cfg:     cfg,
		now:     time.Now,
		state:   Closed,
		window:  window.New(cfg.WindowSize),
	}
	return b
}

// SetClock overrides the breaker's time source. Test-only hook.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Decision is the outcome of an admission check.
type Decision int

const (
	// Admit proceeds to upstream as a normal request.
	Admit Decision = iota
	// AdmitProbe proceeds to upstream as the single HALF_OPEN trial.
	AdmitProbe
	// Reject short-circuits with 503.
	Reject
)

// Check consults the breaker for one inbound request and returns the
// admission decision.
func (b *Breaker) Check() Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return Admit

	case Open:
		if b.now().Sub(b.openedAt) >= b.cfg.OpenDuration {
			b.transitionTo(HalfOpen)
			// Falls through to the HALF_OPEN admission rule below so
			// the very request that observes the timeout becomes the
			// probe, per spec.md §4.6's OPEN->HALF_OPEN row.
		} else {
			b.metrics.IncCircuitShortCircuited()
			return Reject
		}
		fallthrough

	case HalfOpen:
		if b.probeInFlight {
			b.metrics.IncCircuitShortCircuited()
			return Reject
		}
		b.probeInFlight = true
		return AdmitProbe
	}
	return Admit
}

// State returns the current state under lock.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsClosed reports whether the breaker is currently CLOSED.
func (b *Breaker) IsClosed() bool {
	return b.State() == Closed
}

// RecordOutcome appends one terminal outcome to the failure window
// and runs the reactive open-check and HALF_OPEN resolution. wasProbe
// must match the value Check returned for this request.
func (b *Breaker) RecordOutcome(isFailure bool, wasProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if isFailure {
		b.window.Append(1)
	} else {
		b.window.Append(0)
	}
	b.metrics.IncCircuitTracked()

	if wasProbe {
		b.probeInFlight = false
		if isFailure {
			b.openLocked()
		} else {
			b.closeLocked()
		}
	}

	ratio := 0.0
	if b.window.Len() > 0 {
		ratio = b.window.Sum() / float64(b.window.Len())
	}
	b.metrics.ObserveCircuitFailureRatio(ratio)

	b.maybeOpenLocked(ratio)
}

// maybeOpenLocked mirrors the source's maybe_open_circuit: it is
// called unconditionally from the reactive path even while the
// breaker is already OPEN or HALF_OPEN, but the CLOSED-only guard
// makes that a no-op. Per spec.md §9, this guard is preserved as-is
// rather than "fixed" to also react while HALF_OPEN.
func (b *Breaker) maybeOpenLocked(ratio float64) {
	if b.state != Closed {
		return
	}
	if b.window.Len() >= b.cfg.MinRequests && ratio >= b.cfg.FailureThreshold {
		b.openLocked()
	}
}

// PredictiveOpen is C7's exclusive entry point: it may transition
// CLOSED->OPEN without an observed failure. Calling it while the
// breaker is not CLOSED is a no-op (C7 itself also skips non-CLOSED
// breakers, so this is defense in depth, not the primary guard).
func (b *Breaker) PredictiveOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Closed {
		return
	}
	b.openLocked()
}

func (b *Breaker) openLocked() {
	b.transitionTo(Open)
	b.openedAt = b.now()
	b.probeInFlight = false
	b.metrics.IncCircuitOpen()
}

func (b *Breaker) closeLocked() {
	b.transitionTo(Closed)
	b.window.Clear()
	b.probeInFlight = false
	b.openedAt = time.Time{}
}

func (b *Breaker) transitionTo(s State) {
	if s != b.state {
		b.metrics.ObserveCircuitFlap()
	}
	b.state = s
	b.metrics.SetCircuitState(s.GaugeCode())
}
