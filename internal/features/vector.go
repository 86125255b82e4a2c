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

package features

// Names lists the canonical, ordered feature keys. The feature logger
// and the dataset sinks depend on this exact order; the risk predictor
// projects by name onto its artifact's own FeatureNames instead.
var Names = []string{
	"failure_ratio",
	"failure_ratio_slope",
	"p95_latency",
	"latency_slope",
	"retry_rate",
	"timeout_rate",
	"error_burstiness",
	"circuit_flap_rate",
}

// Vector is a feature sample. A nil or empty Vector is the
// distinguished "insufficient data" value.
type Vector map[string]float64

// Empty reports whether v carries no data.
func (v Vector) Empty() bool { return len(v) == 0 }
