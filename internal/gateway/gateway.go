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

// Package gateway wires C1-C8 (plus the optional quota layer) into
// the single aggregate spec.md §9 calls for, and serves the HTTP
// surface from spec.md §6.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"phantomgate/internal/circuit"
	"phantomgate/internal/featurelog"
	"phantomgate/internal/features"
	"phantomgate/internal/featuresink"
	"phantomgate/internal/gwmetrics"
	"phantomgate/internal/predictive"
	"phantomgate/internal/proxy"
	"phantomgate/internal/quota"
	"phantomgate/internal/risk"
)

// Config aggregates every constructor-time constant from spec.md §4
// plus the SPEC_FULL.md enrichments (quota, sink backend, model path).
type Config struct {
	ServiceURL string

	WindowSize     int
	SampleInterval time.Duration

	CircuitWindowSize       int
	CircuitMinRequests      int
	CircuitFailureThreshold float64
	CircuitOpenDuration     time.Duration

	HardRiskThreshold float64
	SoftRiskThreshold float64
	DegradedTimeout   time.Duration
	UpstreamTimeout   time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration

	PredictiveInterval time.Duration
	PredictiveCooldown time.Duration

	ModelPath string

	LogInterval      time.Duration
	LabelWindow      time.Duration
	FailureThreshold float64
	FeatureSinkKind  string
	FeatureSinkPath  string

	QuotaRate       int64 // 0 disables the quota gate
	QuotaPersister  string
	RedisAddr       string
	KafkaTopic      string
}

// Gateway owns every component and serves the HTTP surface.
type Gateway struct {
	cfg Config

	Metrics   *gwmetrics.Registry
	Extractor *features.Extractor
	Predictor *risk.Predictor
	Threshold risk.AdaptiveThreshold
	Breaker   *circuit.Breaker
	Predictive *predictive.Controller
	Engine    *proxy.Engine
	Logger    *featurelog.Logger

	sink         featuresink.Sink
	quotaWorker  *quota.Worker
	quotaMock    *quota.MockPersister
	promRegistry *prometheus.Registry

	mux *http.ServeMux
}

// metricsSource adapts *gwmetrics.Registry's Snapshot to the
// features.Source interface, which intentionally does not import
// gwmetrics so C2 stays decoupled from the Prometheus client.
type metricsSource struct{ reg *gwmetrics.Registry }

func (m metricsSource) Snapshot() features.SourceSnapshot {
	s := m.reg.Snapshot()
	return features.SourceSnapshot{
		TotalRequests: s.TotalRequests,
		TotalFailures: s.TotalFailures,
		TotalTimeouts: s.TotalTimeouts,
		TotalRetries:  s.TotalRetries,
		CircuitFlaps:  s.CircuitFlaps,
		P95LatencyMs:  s.P95LatencyMs,
	}
}

// New builds the Gateway bottom-up: C1 -> C2 -> {C4,C5} -> C6 ->
// {C7,C8}, per spec.md §9's "construct bottom-up" note.
func New(cfg Config) (*Gateway, error) {
	applyDefaults(&cfg)

	promReg := prometheus.NewRegistry()
	metrics := gwmetrics.New()
	metrics.MustRegister(promReg)

	extractor := features.New(metricsSource{reg: metrics}, cfg.WindowSize, cfg.SampleInterval)

	var artifact risk.Artifact
	if cfg.ModelPath != "" {
		a, err := risk.LoadArtifact(cfg.ModelPath)
		if err != nil {
			return nil, err
		}
		artifact = a
	} else {
		artifact = risk.ZeroArtifact()
	}
	predictor := risk.NewPredictor(artifact)
	threshold := risk.NewAdaptiveThreshold(0.7, 0.4, 0.9)

	breaker := circuit.New(metrics, circuit.Config{
		WindowSize:       cfg.CircuitWindowSize,
		MinRequests:      cfg.CircuitMinRequests,
		FailureThreshold: cfg.CircuitFailureThreshold,
		OpenDuration:     cfg.CircuitOpenDuration,
	})

	predictiveCtl := predictive.New(extractor, predictor, threshold, breaker, predictive.Config{
		CheckInterval: cfg.PredictiveInterval,
		Cooldown:      cfg.PredictiveCooldown,
	})

	var limiter *quota.Limiter
	var worker *quota.Worker
	var mockPersister *quota.MockPersister
	if cfg.QuotaRate > 0 {
		store := quota.NewStore(cfg.QuotaRate)
		limiter = quota.NewLimiter(store)
		persister, err := quota.BuildPersister(cfg.QuotaPersister, cfg.RedisAddr, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		if mp, ok := persister.(*quota.MockPersister); ok {
			mockPersister = mp
		}
		worker = quota.NewWorker(store, persister, cfg.QuotaRate/2, time.Second, 30*time.Second, 5*time.Minute)
	}

	var engineLimiter proxy.Limiter
	if limiter != nil {
		engineLimiter = limiter
	}
	engine := proxy.New(metrics, breaker, extractor, predictor, engineLimiter, proxy.Config{
		ServiceURL:        cfg.ServiceURL,
		HardRiskThreshold: cfg.HardRiskThreshold,
		SoftRiskThreshold: cfg.SoftRiskThreshold,
		DegradedTimeout:   cfg.DegradedTimeout,
		UpstreamTimeout:   cfg.UpstreamTimeout,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	})

	sink, err := featuresink.Build(cfg.FeatureSinkKind, featuresink.Options{
		Path:      cfg.FeatureSinkPath,
		RedisAddr: cfg.RedisAddr,
	})
	if err != nil {
		return nil, err
	}
	logger := featurelog.New(extractor, sink, featurelog.Config{
		LogInterval:      cfg.LogInterval,
		LabelWindow:      cfg.LabelWindow,
		FailureThreshold: cfg.FailureThreshold,
	})

	g := &Gateway{
		cfg:          cfg,
		Metrics:      metrics,
		Extractor:    extractor,
		Predictor:    predictor,
		Threshold:    threshold,
		Breaker:      breaker,
		Predictive:   predictiveCtl,
		Engine:       engine,
		Logger:       logger,
		sink:         sink,
		quotaWorker:  worker,
		quotaMock:    mockPersister,
		promRegistry: promReg,
	}
	g.mux = g.buildMux()
	return g, nil
}

func applyDefaults(cfg *Config) {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 30
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = time.Second
	}
	if cfg.CircuitWindowSize <= 0 {
		cfg.CircuitWindowSize = 20
	}
	if cfg.CircuitMinRequests <= 0 {
		cfg.CircuitMinRequests = 10
	}
	if cfg.CircuitFailureThreshold <= 0 {
		cfg.CircuitFailureThreshold = 0.5
	}
	if cfg.CircuitOpenDuration <= 0 {
		cfg.CircuitOpenDuration = 30 * time.Second
	}
	if cfg.HardRiskThreshold <= 0 {
		cfg.HardRiskThreshold = 0.70
	}
	if cfg.SoftRiskThreshold <= 0 {
		cfg.SoftRiskThreshold = 0.45
	}
	if cfg.DegradedTimeout <= 0 {
		cfg.DegradedTimeout = time.Second
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 2 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.PredictiveInterval <= 0 {
		cfg.PredictiveInterval = 5 * time.Second
	}
	if cfg.PredictiveCooldown <= 0 {
		cfg.PredictiveCooldown = 30 * time.Second
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = 5 * time.Second
	}
	if cfg.LabelWindow <= 0 {
		cfg.LabelWindow = 30 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 0.5
	}
}

// Handler returns the full HTTP surface.
func (g *Gateway) Handler() http.Handler { return g.mux }

func (g *Gateway) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(g.promRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/features", g.handleDebugFeatures)
	mux.HandleFunc("/debug/risk", g.handleDebugRisk)
	mux.HandleFunc("/debug/mode", g.handleDebugMode)
	mux.Handle("/", g.Engine)
	return mux
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (g *Gateway) handleDebugFeatures(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, g.Extractor.ComputeFeatures())
}

func (g *Gateway) handleDebugRisk(w http.ResponseWriter, _ *http.Request) {
	fv := g.Extractor.ComputeFeatures()
	risk := g.Predictor.PredictRisk(fv)
	writeJSON(w, map[string]interface{}{
		"risk":               risk,
		"adaptive_threshold": g.Threshold.Compute(fv),
		"features":           fv,
	})
}

func (g *Gateway) handleDebugMode(w http.ResponseWriter, _ *http.Request) {
	fv := g.Extractor.ComputeFeatures()
	r := g.Predictor.PredictRisk(fv)
	m := "NORMAL"
	switch {
	case r >= g.cfg.HardRiskThreshold:
		m = "HARD_FAIL"
	case r >= g.cfg.SoftRiskThreshold:
		m = "DEGRADED"
	}
	writeJSON(w, map[string]interface{}{
		"risk":     r,
		"mode":     m,
		"features": fv,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Start launches every background loop: the feature sampler, the
// feature logger, and the predictive controller, plus the quota
// worker if the gate is enabled.
func (g *Gateway) Start(ctx context.Context) {
	go g.Extractor.Run(ctx)
	go g.Logger.Run(ctx)
	go g.Predictive.Run(ctx)
	if g.quotaWorker != nil {
		g.quotaWorker.Start()
	}
}

// Shutdown stops background workers and flushes the feature sink, in
// the teacher's worker.Stop() -> persister.PrintFinalMetrics() order.
func (g *Gateway) Shutdown() {
	if g.quotaWorker != nil {
		g.quotaWorker.Stop()
		if g.quotaMock != nil {
			g.quotaMock.PrintSummary()
		}
	}
	if err := g.sink.Close(); err != nil {
		_ = err // best-effort; Close flushes buffered rows and its error is discarded
	}
}
