package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"phantomgate/internal/circuit"
	"phantomgate/internal/features"
)

type countingMetrics struct {
	responses       []int
	upstream5xx     int
	timeouts        int
	retries         int
	retriesExhaust  int
	shortCircuited  int
}

func (m *countingMetrics) RecordResponse(_, _ string, status int, _ bool, _ float64) {
	m.responses = append(m.responses, status)
}
func (m *countingMetrics) RecordUpstream5xx(_, _ string)      { m.upstream5xx++ }
func (m *countingMetrics) RecordTimeout(_, _ string)          { m.timeouts++ }
func (m *countingMetrics) RecordRetry(_, _ string)            { m.retries++ }
func (m *countingMetrics) RecordRetryExhausted(_, _ string)   { m.retriesExhaust++ }
func (m *countingMetrics) IncCircuitShortCircuited()          { m.shortCircuited++ }

type fakeBreaker struct {
	decision      circuit.Decision
	outcomes      []bool
	wasProbeSeen  []bool
}

func (b *fakeBreaker) Check() circuit.Decision { return b.decision }
func (b *fakeBreaker) RecordOutcome(isFailure, wasProbe bool) {
	b.outcomes = append(b.outcomes, isFailure)
	b.wasProbeSeen = append(b.wasProbeSeen, wasProbe)
}

type fixedExtractor struct{ fv features.Vector }

func (f fixedExtractor) ComputeFeatures() features.Vector { return f.fv }

type fixedPredictor struct{ risk float64 }

func (f fixedPredictor) PredictRisk(features.Vector) float64 { return f.risk }

func newEngine(t *testing.T, upstream *httptest.Server, breaker Breaker, risk float64, cfg Config) *Engine {
	t.Helper()
	cfg.ServiceURL = upstream.URL
	return New(&countingMetrics{}, breaker, fixedExtractor{fv: features.Vector{"x": 1}}, fixedPredictor{risk: risk}, nil, cfg)
}

func TestHardFailNeverContactsUpstream(t *testing.T) {
	contacted := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contacted = true
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	breaker := &fakeBreaker{decision: circuit.Admit}
	metrics := &countingMetrics{}
	e := New(metrics, breaker, fixedExtractor{fv: features.Vector{"x": 1}}, fixedPredictor{risk: 0.9}, nil, Config{ServiceURL: upstream.URL, HardRiskThreshold: 0.70, SoftRiskThreshold: 0.45})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	e.ServeHTTP(rec, req)

	if contacted {
		t.Fatal("upstream was contacted during HARD_FAIL")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if len(breaker.outcomes) != 0 {
		t.Errorf("breaker.RecordOutcome called %d times, want 0 (no window append on hard-fail)", len(breaker.outcomes))
	}
	if metrics.shortCircuited != 1 {
		t.Errorf("shortCircuited = %d, want 1", metrics.shortCircuited)
	}
}

func TestGradedDegradationUsesShorterTimeoutAndNoRetry(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	breaker := &fakeBreaker{decision: circuit.Admit}
	e := New(&countingMetrics{}, breaker, fixedExtractor{fv: features.Vector{"x": 1}}, fixedPredictor{risk: 0.5}, nil, Config{
		ServiceURL: upstream.URL, HardRiskThreshold: 0.70, SoftRiskThreshold: 0.45,
		DegradedTimeout: 50 * time.Millisecond, UpstreamTimeout: 2 * time.Second, MaxRetries: 2,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504 (degraded timeout exceeded)", rec.Code)
	}
	if len(breaker.outcomes) != 1 {
		t.Fatalf("RecordOutcome called %d times, want exactly 1", len(breaker.outcomes))
	}
}

func TestIdempotencyOnlyGetRetries(t *testing.T) {
	attempts := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	breaker := &fakeBreaker{decision: circuit.Admit}
	metrics := &countingMetrics{}
	e := New(metrics, breaker, fixedExtractor{fv: features.Vector{"x": 1}}, fixedPredictor{risk: 0.1}, nil, Config{
		ServiceURL: upstream.URL, HardRiskThreshold: 0.70, SoftRiskThreshold: 0.45,
		UpstreamTimeout: time.Second, MaxRetries: 2, RetryBackoff: time.Millisecond,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	e.ServeHTTP(rec, req)
	if attempts != 1 {
		t.Errorf("POST attempts = %d, want 1 (non-idempotent, no retry)", attempts)
	}
	if metrics.retries != 0 {
		t.Errorf("retries recorded for POST = %d, want 0", metrics.retries)
	}

	attempts = 0
	metrics2 := &countingMetrics{}
	e2 := New(metrics2, breaker, fixedExtractor{fv: features.Vector{"x": 1}}, fixedPredictor{risk: 0.1}, nil, Config{
		ServiceURL: upstream.URL, HardRiskThreshold: 0.70, SoftRiskThreshold: 0.45,
		UpstreamTimeout: time.Second, MaxRetries: 2, RetryBackoff: time.Millisecond,
	})
	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/orders", nil)
	e2.ServeHTTP(rec2, req2)
	if attempts != 3 {
		t.Errorf("GET attempts = %d, want 3 (1 + MAX_RETRIES=2)", attempts)
	}
	if metrics2.retries != 2 {
		t.Errorf("retries recorded for GET = %d, want 2", metrics2.retries)
	}
	if rec2.Code != http.StatusInternalServerError {
		t.Errorf("final status = %d, want 500", rec2.Code)
	}
}

func TestProbeForcesNormalModeRegardlessOfRisk(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	breaker := &fakeBreaker{decision: circuit.AdmitProbe}
	e := New(&countingMetrics{}, breaker, fixedExtractor{fv: features.Vector{"x": 1}}, fixedPredictor{risk: 0.99}, nil, Config{
		ServiceURL: upstream.URL, HardRiskThreshold: 0.70, SoftRiskThreshold: 0.45, UpstreamTimeout: time.Second,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (probe must bypass risk-based HARD_FAIL)", rec.Code)
	}
	if len(breaker.wasProbeSeen) != 1 || !breaker.wasProbeSeen[0] {
		t.Errorf("RecordOutcome wasProbe = %v, want [true]", breaker.wasProbeSeen)
	}
}

func TestRejectShortCircuitsWithNoUpstreamContact(t *testing.T) {
	contacted := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contacted = true
	}))
	defer upstream.Close()

	breaker := &fakeBreaker{decision: circuit.Reject}
	metrics := &countingMetrics{}
	e := New(metrics, breaker, fixedExtractor{fv: features.Vector{"x": 1}}, fixedPredictor{risk: 0}, nil, Config{ServiceURL: upstream.URL})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	e.ServeHTTP(rec, req)

	if contacted {
		t.Fatal("upstream contacted despite Reject decision")
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if len(breaker.outcomes) != 0 {
		t.Errorf("RecordOutcome called on Reject, want 0 calls")
	}
}

func TestQuotaGateRejectsBeforeBreaker(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	breaker := &fakeBreaker{decision: circuit.Admit}
	limiter := denyAllLimiter{}
	e := New(&countingMetrics{}, breaker, fixedExtractor{fv: features.Vector{"x": 1}}, fixedPredictor{risk: 0}, limiter, Config{ServiceURL: upstream.URL})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 (quota exceeded)", rec.Code)
	}
	if breaker.decision != circuit.Admit {
		t.Fatal("sanity: breaker decision mutated unexpectedly")
	}
}

type denyAllLimiter struct{}

func (denyAllLimiter) Admit(string) bool { return false }
