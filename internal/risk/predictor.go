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
	"sync"

	"phantomgate/internal/features"
)

// Predictor is the advisory failure-risk model (C4). It must never
// raise and never block on I/O after load — grounded on
// original_source/features/predictor.py's try/except-everything
// contract.
type Predictor struct {
	mu       sync.Mutex
	artifact Artifact
}

// NewPredictor wraps a loaded Artifact.
func NewPredictor(a Artifact) *Predictor {
	return &Predictor{artifact: a}
}

// PredictRisk projects fv onto the artifact's feature_names (missing
// keys become 0.0, extra keys are ignored), then scores it. Empty
// input and any internal failure both fail safe to 0.0.
func (p *Predictor) PredictRisk(fv features.Vector) (risk float64) {
	defer func() {
		if recover() != nil {
			risk = 0.0
		}
	}()

	if fv.Empty() {
		return 0.0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	row := make([]float64, len(p.artifact.FeatureNames))
	for i, name := range p.artifact.FeatureNames {
		row[i] = fv[name] // zero value for missing keys
	}
	score := p.artifact.score(row)
	if score < 0 || score > 1 || score != score { // NaN guard
		return 0.0
	}
	return score
}
