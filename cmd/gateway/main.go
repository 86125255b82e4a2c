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

package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"phantomgate/internal/gateway"
)

func main() {
	addr := flag.String("addr", ":8080", "gateway listen address")
	serviceURL := flag.String("service-url", "", "upstream origin base URL")

	windowSize := flag.Int("window-size", 30, "feature extractor rolling window capacity")
	sampleInterval := flag.Duration("sample-interval", time.Second, "feature sampler cadence")

	circuitWindowSize := flag.Int("circuit-window-size", 20, "circuit breaker failure window capacity")
	circuitMinRequests := flag.Int("circuit-min-requests", 10, "minimum window length before tripping")
	circuitFailureThreshold := flag.Float64("circuit-failure-threshold", 0.5, "failure ratio that trips the breaker")
	circuitOpenDuration := flag.Duration("circuit-open-duration", 30*time.Second, "OPEN->HALF_OPEN timeout")

	hardRiskThreshold := flag.Float64("hard-risk-threshold", 0.70, "risk at/above which requests hard-fail")
	softRiskThreshold := flag.Float64("soft-risk-threshold", 0.45, "risk at/above which requests degrade")
	degradedTimeout := flag.Duration("degraded-timeout", time.Second, "effective timeout in DEGRADED mode")
	upstreamTimeout := flag.Duration("upstream-timeout", 2*time.Second, "effective timeout in NORMAL mode")
	maxRetries := flag.Int("max-retries", 2, "retry budget for idempotent methods in NORMAL mode")
	retryBackoff := flag.Duration("retry-backoff", 200*time.Millisecond, "linear retry backoff base")

	predictiveInterval := flag.Duration("predictive-interval", 5*time.Second, "predictive controller tick cadence")
	predictiveCooldown := flag.Duration("predictive-cooldown", 30*time.Second, "minimum gap between predictive opens")

	modelPath := flag.String("model-path", "", "gob-encoded risk model artifact (empty = constant 0.5 risk)")

	logInterval := flag.Duration("log-interval", 5*time.Second, "feature logger sampling cadence")
	labelWindow := flag.Duration("label-window", 30*time.Second, "delay before a buffered row is labeled")
	failureThreshold := flag.Float64("failure-threshold", 0.5, "failure_ratio at/above which a labeled row is positive")
	featureSinkKind := flag.String("feature-sink", "csv", "feature dataset sink: csv|redis")
	featureSinkPath := flag.String("feature-sink-path", "dataset/phase3_features.csv", "CSV sink path")

	quotaRate := flag.Int64("quota-rate", 0, "per-client admission budget, not replenished until the key is evicted as idle (0 disables the gate)")
	quotaPersister := flag.String("quota-persister", "mock", "quota commit persister: mock|redis|kafka")
	redisAddr := flag.String("redis-addr", "", "redis address, shared by the quota and feature-sink redis backends")
	kafkaTopic := flag.String("kafka-topic", "", "kafka topic for the quota persister")

	flag.Parse()

	if *serviceURL == "" {
		*serviceURL = "http://localhost:9000"
	}

	gw, err := gateway.New(gateway.Config{
		ServiceURL: *serviceURL,

		WindowSize:     *windowSize,
		SampleInterval: *sampleInterval,

		CircuitWindowSize:       *circuitWindowSize,
		CircuitMinRequests:      *circuitMinRequests,
		CircuitFailureThreshold: *circuitFailureThreshold,
		CircuitOpenDuration:     *circuitOpenDuration,

		HardRiskThreshold: *hardRiskThreshold,
		SoftRiskThreshold: *softRiskThreshold,
		DegradedTimeout:   *degradedTimeout,
		UpstreamTimeout:   *upstreamTimeout,
		MaxRetries:        *maxRetries,
		RetryBackoff:      *retryBackoff,

		PredictiveInterval: *predictiveInterval,
		PredictiveCooldown: *predictiveCooldown,

		ModelPath: *modelPath,

		LogInterval:      *logInterval,
		LabelWindow:      *labelWindow,
		FailureThreshold: *failureThreshold,
		FeatureSinkKind:  *featureSinkKind,
		FeatureSinkPath:  *featureSinkPath,

		QuotaRate:      *quotaRate,
		QuotaPersister: *quotaPersister,
		RedisAddr:      *redisAddr,
		KafkaTopic:     *kafkaTopic,
	})
	if err != nil {
		log.Fatalf("gateway: failed to construct: %v", err)
	}

	ctx, cancelBackground := context.WithCancel(context.Background())
	gw.Start(ctx)

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: gw.Handler(),
	}

	go func() {
		log.Printf("phantomgate listening on %s, proxying to %s", *addr, *serviceURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway: listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("phantomgate shutting down")
	cancelBackground()
	gw.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("gateway: shutdown: %v", err)
	}
}
