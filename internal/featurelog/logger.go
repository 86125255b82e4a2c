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

// Package featurelog implements the delay-labeling feature logger
// (C3): it samples feature vectors from the extractor, waits
// label_window seconds to observe whether failures actually
// materialized, and appends labeled rows to a Sink.
package featurelog

import (
	"context"
	"log"
	"sync"
	"time"

	"phantomgate/internal/features"
	"phantomgate/internal/featuresink"
)

// Source is the subset of *features.Extractor the logger needs.
type Source interface {
	ComputeFeatures() features.Vector
}

// pending is one buffered, not-yet-labeled sample.
type pending struct {
	ts time.Time
	fv features.Vector
}

// Logger drains Source on a fixed cadence and emits labeled rows to a
// Sink after label_window has elapsed. Grounded on
// original_source/features/logger.py.
type Logger struct {
	source           Source
	sink             featuresink.Sink
	logInterval      time.Duration
	labelWindow      time.Duration
	failureThreshold float64

	mu      sync.Mutex
	buffer  []pending
}

// Config holds the constructor defaults from spec.md §4.3.
type Config struct {
	LogInterval      time.Duration // default 5s
	LabelWindow      time.Duration // default 30s
	FailureThreshold float64       // default 0.5
}

// New builds a Logger writing to sink.
func New(source Source, sink featuresink.Sink, cfg Config) *Logger {
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = 5 * time.Second
	}
	if cfg.LabelWindow <= 0 {
		cfg.LabelWindow = 30 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 0.5
	}
	return &Logger{
		source:           source,
		sink:             sink,
		logInterval:      cfg.LogInterval,
		labelWindow:      cfg.LabelWindow,
		failureThreshold: cfg.FailureThreshold,
	}
}

// Run blocks, draining on a fixed cadence until ctx is cancelled.
func (l *Logger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.tick(ctx, time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// tick is the testable unit of work for one log_interval cycle.
func (l *Logger) tick(ctx context.Context, now time.Time) {
	fv := l.source.ComputeFeatures()

	l.mu.Lock()
	if !fv.Empty() {
		l.buffer = append(l.buffer, pending{ts: now, fv: fv})
	}

	cutoff := now.Add(-l.labelWindow)
	var ready []pending
	var kept []pending
	for _, p := range l.buffer {
		if !p.ts.After(cutoff) {
			ready = append(ready, p)
		} else {
			kept = append(kept, p)
		}
	}
	l.buffer = kept
	l.mu.Unlock()

	if len(ready) == 0 {
		return
	}

	rows := make([]featuresink.LabeledRow, 0, len(ready))
	for _, p := range ready {
		label := 0
		if p.fv["failure_ratio"] >= l.failureThreshold {
			label = 1
		}
		var vec [8]float64
		for i, name := range features.Names {
			vec[i] = p.fv[name]
		}
		rows = append(rows, featuresink.LabeledRow{
			TimestampUnix: p.ts.Unix(),
			Features:      vec,
			Label:         label,
		})
	}

	// Sink failures are logged and dropped: they must never impact the
	// request path (spec §7).
	if err := l.sink.AppendRows(ctx, rows); err != nil {
		log.Printf("featurelog: sink append failed, dropping %d rows: %v", len(rows), err)
	}
}
