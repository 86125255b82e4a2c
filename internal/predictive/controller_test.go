package predictive

import (
	"testing"
	"time"

	"phantomgate/internal/features"
)

type stubExtractor struct{ fv features.Vector }

func (s stubExtractor) ComputeFeatures() features.Vector { return s.fv }

type stubPredictor struct{ risk float64 }

func (s stubPredictor) PredictRisk(features.Vector) float64 { return s.risk }

type stubThreshold struct{ threshold float64 }

func (s stubThreshold) Compute(features.Vector) float64 { return s.threshold }

type stubBreaker struct {
	closed bool
	opens  int
}

func (b *stubBreaker) IsClosed() bool    { return b.closed }
func (b *stubBreaker) PredictiveOpen()   { b.opens++ }

func TestTickSkipsWhenNotClosed(t *testing.T) {
	breaker := &stubBreaker{closed: false}
	c := New(stubExtractor{fv: features.Vector{"x": 1}}, stubPredictor{risk: 0.99}, stubThreshold{threshold: 0.1}, breaker, Config{})
	c.Tick()
	if breaker.opens != 0 {
		t.Errorf("opens = %d, want 0 (breaker not CLOSED)", breaker.opens)
	}
}

func TestTickOpensWhenRiskExceedsThreshold(t *testing.T) {
	breaker := &stubBreaker{closed: true}
	c := New(stubExtractor{fv: features.Vector{"x": 1}}, stubPredictor{risk: 0.9}, stubThreshold{threshold: 0.5}, breaker, Config{})
	c.Tick()
	if breaker.opens != 1 {
		t.Fatalf("opens = %d, want 1", breaker.opens)
	}
}

func TestTickRespectsCooldown(t *testing.T) {
	breaker := &stubBreaker{closed: true}
	now := time.Now()
	c := New(stubExtractor{fv: features.Vector{"x": 1}}, stubPredictor{risk: 0.9}, stubThreshold{threshold: 0.1}, breaker, Config{Cooldown: time.Minute})
	c.SetClock(func() time.Time { return now })
	c.Tick()
	if breaker.opens != 1 {
		t.Fatalf("opens after first tick = %d, want 1", breaker.opens)
	}

	c.SetClock(func() time.Time { return now.Add(30 * time.Second) })
	c.Tick()
	if breaker.opens != 1 {
		t.Errorf("opens after second tick within cooldown = %d, want still 1", breaker.opens)
	}

	c.SetClock(func() time.Time { return now.Add(61 * time.Second) })
	c.Tick()
	if breaker.opens != 2 {
		t.Errorf("opens after cooldown elapsed = %d, want 2", breaker.opens)
	}
}

func TestTickDoesNotOpenWhenRiskBelowThreshold(t *testing.T) {
	breaker := &stubBreaker{closed: true}
	c := New(stubExtractor{fv: features.Vector{"x": 1}}, stubPredictor{risk: 0.1}, stubThreshold{threshold: 0.5}, breaker, Config{})
	c.Tick()
	if breaker.opens != 0 {
		t.Errorf("opens = %d, want 0", breaker.opens)
	}
}
