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

// Package window provides a fixed-capacity rolling buffer of float64
// samples, the single-writer/multi-reader primitive the feature
// extractor and circuit breaker build their rolling statistics on.
package window

import "math"

// Rolling is a fixed-capacity ordered sequence of float64 samples.
// Appending past capacity evicts the oldest sample. Not safe for
// concurrent use; callers serialize writes and snapshot on read.
type Rolling struct {
	buf      []float64
	cap      int
	start    int
	size     int
}

// New creates a Rolling window with the given capacity. Capacity must
// be positive.
func New(capacity int) *Rolling {
	if capacity <= 0 {
		capacity = 1
	}
	return &Rolling{buf: make([]float64, capacity), cap: capacity}
}

// Append adds a sample, evicting the oldest one if the window is full.
func (r *Rolling) Append(v float64) {
	idx := (r.start + r.size) % r.cap
	r.buf[idx] = v
	if r.size < r.cap {
		r.size++
	} else {
		r.start = (r.start + 1) % r.cap
	}
}

// Len returns the number of samples currently held.
func (r *Rolling) Len() int { return r.size }

// Cap returns the configured capacity.
func (r *Rolling) Cap() int { return r.cap }

// Clear empties the window.
func (r *Rolling) Clear() {
	r.start = 0
	r.size = 0
}

// Values returns a snapshot slice of samples in insertion order,
// oldest first. Safe for the caller to retain; it does not alias the
// window's internal buffer.
func (r *Rolling) Values() []float64 {
	out := make([]float64, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%r.cap]
	}
	return out
}

// Sum returns the sum of all samples currently held.
func (r *Rolling) Sum() float64 {
	var s float64
	for i := 0; i < r.size; i++ {
		s += r.buf[(r.start+i)%r.cap]
	}
	return s
}

// Last returns the most recently appended sample, or 0 if empty.
func (r *Rolling) Last() float64 {
	if r.size == 0 {
		return 0
	}
	idx := (r.start + r.size - 1) % r.cap
	return r.buf[idx]
}

// First returns the oldest retained sample, or 0 if empty.
func (r *Rolling) First() float64 {
	if r.size == 0 {
		return 0
	}
	return r.buf[r.start]
}

// Slope computes (last - first) / len, or 0 when len < 2 — the same
// coarse trend estimate original_source/features/extractor.py uses.
func (r *Rolling) Slope() float64 {
	if r.size < 2 {
		return 0
	}
	return (r.Last() - r.First()) / float64(r.size)
}

// Mean returns the arithmetic mean of the samples, or 0 when empty.
func (r *Rolling) Mean() float64 {
	if r.size == 0 {
		return 0
	}
	return r.Sum() / float64(r.size)
}

// Stdev returns the sample standard deviation (Bessel-corrected, as
// Python's statistics.stdev does), or 0 when len < 2.
func (r *Rolling) Stdev() float64 {
	if r.size < 2 {
		return 0
	}
	mean := r.Mean()
	var acc float64
	for i := 0; i < r.size; i++ {
		d := r.buf[(r.start+i)%r.cap] - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(r.size-1))
}

// Burstiness returns Stdev/Mean, or 0 when len < 2 or mean == 0.
func (r *Rolling) Burstiness() float64 {
	if r.size < 2 {
		return 0
	}
	mean := r.Mean()
	if mean == 0 {
		return 0
	}
	return r.Stdev() / mean
}
