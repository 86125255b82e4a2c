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

// Package predictive implements C7: a background loop that polls
// C2->C4->C5 and may pre-emptively open C6. Grounded on
// core/worker.go's ticker+stopChan background-loop idiom and
// other_examples' failure_predictor.go.go predictionLoop.
package predictive

import (
	"context"
	"sync"
	"time"

	"phantomgate/internal/features"
)

// Extractor is the subset of *features.Extractor this controller polls.
type Extractor interface {
	ComputeFeatures() features.Vector
}

// RiskPredictor is the subset of *risk.Predictor this controller needs.
type RiskPredictor interface {
	PredictRisk(fv features.Vector) float64
}

// ThresholdController is the subset of risk.AdaptiveThreshold needed.
type ThresholdController interface {
	Compute(fv features.Vector) float64
}

// BreakerGate is the narrow circuit-breaker surface the controller
// actually needs: "is it closed right now" and "open it preemptively".
type BreakerGate interface {
	IsClosed() bool
	PredictiveOpen()
}

// Config holds the spec.md §4.7 defaults.
type Config struct {
	CheckInterval time.Duration // PREDICTIVE_CHECK_INTERVAL, default 5s
	Cooldown      time.Duration // PREDICTIVE_COOLDOWN, default 30s
}

// Controller runs the periodic predictive-open loop.
type Controller struct {
	extractor Extractor
	predictor RiskPredictor
	threshold ThresholdController
	breaker   BreakerGate
	cfg       Config

	mu                 sync.Mutex
	lastPredictiveOpen time.Time
	now                func() time.Time
}

// New builds a Controller.
func New(extractor Extractor, predictor RiskPredictor, threshold ThresholdController, breaker BreakerGate, cfg Config) *Controller {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Controller{
		extractor: extractor,
		predictor: predictor,
		threshold: threshold,
		breaker:   breaker,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetClock overrides the controller's time source. Test-only hook.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Run blocks, ticking until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Tick()
		case <-ctx.Done():
			return
		}
	}
}

// Tick runs one evaluation cycle. Exported so tests and the S3
// scenario can drive it deterministically instead of waiting on a
// real ticker.
func (c *Controller) Tick() {
	if !c.breaker.IsClosed() {
		return
	}

	c.mu.Lock()
	now := c.now()
	onCooldown := !c.lastPredictiveOpen.IsZero() && now.Sub(c.lastPredictiveOpen) < c.cfg.Cooldown
	c.mu.Unlock()
	if onCooldown {
		return
	}

	fv := c.extractor.ComputeFeatures()
	risk := c.predictor.PredictRisk(fv)
	threshold := c.threshold.Compute(fv)

	if risk >= threshold {
		c.breaker.PredictiveOpen()
		c.mu.Lock()
		c.lastPredictiveOpen = now
		c.mu.Unlock()
	}
}
