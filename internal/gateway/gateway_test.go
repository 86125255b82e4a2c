package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestNewAppliesDefaultsAndBuildsHandler(t *testing.T) {
	dir := t.TempDir()
	gw, err := New(Config{
		ServiceURL:      "http://localhost:0",
		FeatureSinkKind: "csv",
		FeatureSinkPath: filepath.Join(dir, "rows.csv"),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer gw.Shutdown()

	if gw.Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}

func TestHealthEndpoint(t *testing.T) {
	dir := t.TempDir()
	gw, err := New(Config{ServiceURL: "http://localhost:0", FeatureSinkPath: filepath.Join(dir, "rows.csv")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer gw.Shutdown()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	gw.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status body = %+v, want ok", body)
	}
}

func TestDebugFeaturesEndpointBeforeAnySample(t *testing.T) {
	dir := t.TempDir()
	gw, err := New(Config{ServiceURL: "http://localhost:0", FeatureSinkPath: filepath.Join(dir, "rows.csv")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer gw.Shutdown()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/debug/features", nil)
	gw.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStartAndShutdownWithQuotaEnabled(t *testing.T) {
	dir := t.TempDir()
	gw, err := New(Config{
		ServiceURL:      "http://localhost:0",
		FeatureSinkPath: filepath.Join(dir, "rows.csv"),
		QuotaRate:       10,
		QuotaPersister:  "mock",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	gw.Start(ctx)
	cancel()
	gw.Shutdown()
}

func TestMetricsSourceAdapterFieldMapping(t *testing.T) {
	dir := t.TempDir()
	gw, err := New(Config{ServiceURL: "http://localhost:0", FeatureSinkPath: filepath.Join(dir, "rows.csv")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer gw.Shutdown()

	src := metricsSource{reg: gw.Metrics}
	gw.Metrics.RecordResponse("/x", "GET", 200, true, 10)
	snap := src.Snapshot()
	if snap.TotalRequests != 1 {
		t.Errorf("TotalRequests via adapter = %v, want 1", snap.TotalRequests)
	}
}
