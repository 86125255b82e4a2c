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

package risk

import (
	"math"

	"phantomgate/internal/features"
)

// AdaptiveThreshold is the pure function from features to a bounded
// risk threshold (C5). Grounded on
// original_source/features/adaptive.py.
type AdaptiveThreshold struct {
	Base float64
	Min  float64
	Max  float64
}

// NewAdaptiveThreshold builds a controller with spec.md §4.5 defaults
// when zero values are passed.
func NewAdaptiveThreshold(base, min, max float64) AdaptiveThreshold {
	if base == 0 {
		base = 0.7
	}
	if min == 0 {
		min = 0.4
	}
	if max == 0 {
		max = 0.9
	}
	return AdaptiveThreshold{Base: base, Min: min, Max: max}
}

// Compute returns Base for an empty vector, else Base adjusted by the
// four rules in spec.md §4.5, clamped to [Min, Max] and rounded to 2
// decimals.
func (c AdaptiveThreshold) Compute(fv features.Vector) float64 {
	if fv.Empty() {
		return c.Base
	}

	t := c.Base
	if fv["retry_rate"] > 0.3 {
		t -= 0.10
	}
	if fv["latency_slope"] > 0 {
		t -= 0.10
	}
	if fv["circuit_flap_rate"] > 0 {
		t -= 0.15
	}
	if fv["failure_ratio"] == 0 && fv["latency_slope"] <= 0 {
		t += 0.10
	}

	t = math.Round(t*100) / 100
	if t < c.Min {
		return c.Min
	}
	if t > c.Max {
		return c.Max
	}
	return t
}
