package risk

import (
	"math"
	"testing"

	"phantomgate/internal/features"
)

func TestPredictRiskEmptyVectorIsZero(t *testing.T) {
	p := NewPredictor(ZeroArtifact())
	if got := p.PredictRisk(features.Vector{}); got != 0 {
		t.Errorf("PredictRisk(empty) = %v, want 0", got)
	}
}

func TestPredictRiskZeroArtifactIsConstantHalf(t *testing.T) {
	p := NewPredictor(ZeroArtifact())
	fv := features.Vector{"failure_ratio": 0.9, "p95_latency": 4000}
	got := p.PredictRisk(fv)
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("PredictRisk(zero artifact) = %v, want 0.5", got)
	}
}

func TestPredictRiskMissingFeatureNamesFillZero(t *testing.T) {
	a := Artifact{
		FeatureNames: []string{"failure_ratio", "retry_rate"},
		Weights:      []float64{10, 10},
		Intercept:    0,
	}
	p := NewPredictor(a)
	// retry_rate absent from fv entirely -> treated as 0.
	fv := features.Vector{"failure_ratio": 1.0}
	got := p.PredictRisk(fv)
	want := 1.0 / (1.0 + math.Exp(-10))
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("PredictRisk = %v, want %v", got, want)
	}
}

func TestPredictRiskNeverPanics(t *testing.T) {
	a := Artifact{FeatureNames: []string{"x"}, Weights: []float64{1, 2}} // malformed: len mismatch
	p := NewPredictor(a)
	fv := features.Vector{"x": 1}
	got := p.PredictRisk(fv)
	if got != 0 {
		t.Errorf("PredictRisk with malformed artifact = %v, want 0 (fail-safe)", got)
	}
}

func TestAdaptiveThresholdDefaults(t *testing.T) {
	c := NewAdaptiveThreshold(0, 0, 0)
	if c.Base != 0.7 || c.Min != 0.4 || c.Max != 0.9 {
		t.Fatalf("NewAdaptiveThreshold(0,0,0) = %+v, want defaults", c)
	}
}

func TestAdaptiveThresholdEmptyReturnsBase(t *testing.T) {
	c := NewAdaptiveThreshold(0.7, 0.4, 0.9)
	if got := c.Compute(features.Vector{}); got != 0.7 {
		t.Errorf("Compute(empty) = %v, want base 0.7", got)
	}
}

func TestAdaptiveThresholdRulesAndClamp(t *testing.T) {
	c := NewAdaptiveThreshold(0.7, 0.4, 0.9)
	fv := features.Vector{
		"retry_rate":        0.5,
		"latency_slope":     1.0,
		"circuit_flap_rate": 0.1,
		"failure_ratio":     0.2,
	}
	// 0.7 - 0.10 (retry) - 0.10 (latency slope) - 0.15 (flap) = 0.35, clamped to Min 0.4
	got := c.Compute(fv)
	if got != 0.4 {
		t.Errorf("Compute() = %v, want 0.4 (clamped to Min)", got)
	}
}

func TestAdaptiveThresholdRaisesOnHealthySignal(t *testing.T) {
	c := NewAdaptiveThreshold(0.7, 0.4, 0.9)
	fv := features.Vector{
		"retry_rate":        0,
		"latency_slope":     -1,
		"circuit_flap_rate": 0,
		"failure_ratio":     0,
	}
	got := c.Compute(fv)
	if got != 0.8 {
		t.Errorf("Compute() = %v, want 0.8 (base + 0.10 healthy bonus)", got)
	}
}
