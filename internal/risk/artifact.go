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

// Package risk holds the advisory failure-risk predictor (C4) and the
// adaptive threshold controller (C5).
package risk

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
)

// Artifact is the Go-native stand-in for the joblib-pickled
// {"model", "feature_names"} bundle
// experiments/models/train_failure_model.py produces: a logistic
// regression's weights and intercept plus the ordered feature names
// it was trained against.
type Artifact struct {
	FeatureNames []string
	Weights      []float64
	Intercept    float64
}

// ZeroArtifact is the fallback used when no model path is configured:
// a constant-risk model (sigmoid(0) = 0.5) rather than treating "no
// model" the same as "no features".
func ZeroArtifact() Artifact {
	names := make([]string, len(defaultFeatureOrder))
	copy(names, defaultFeatureOrder)
	return Artifact{
		FeatureNames: names,
		Weights:      make([]float64, len(names)),
		Intercept:    0,
	}
}

var defaultFeatureOrder = []string{
	"failure_ratio",
	"failure_ratio_slope",
	"p95_latency",
	"latency_slope",
	"retry_rate",
	"timeout_rate",
	"error_burstiness",
	"circuit_flap_rate",
}

// LoadArtifact reads a gob-encoded Artifact from path.
func LoadArtifact(path string) (Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("risk: open artifact: %w", err)
	}
	defer f.Close()
	var a Artifact
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		return Artifact{}, fmt.Errorf("risk: decode artifact: %w", err)
	}
	if len(a.Weights) != len(a.FeatureNames) {
		return Artifact{}, fmt.Errorf("risk: artifact has %d weights for %d feature names", len(a.Weights), len(a.FeatureNames))
	}
	return a, nil
}

// SaveArtifact writes a gob-encoded Artifact to path. Offline training
// is out of scope (spec.md §1); this exists only so operators can
// serialize a model produced elsewhere into the format LoadArtifact
// expects.
func SaveArtifact(path string, a Artifact) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(a)
}

// score computes sigmoid(dot(weights, row) + intercept).
func (a Artifact) score(row []float64) float64 {
	var z float64
	for i, w := range a.Weights {
		z += w * row[i]
	}
	z += a.Intercept
	return 1.0 / (1.0 + math.Exp(-z))
}
