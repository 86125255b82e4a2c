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

package quota

import (
	"fmt"
	"log"
	"sync"
)

// Commit is one batched vector write-back, adapted from
// core/persistence.go's Commit struct.
type Commit struct {
	Key    string
	Vector int64
}

// Persister applies a batch of commits to durable storage.
type Persister interface {
	CommitBatch(commits []Commit) error
}

// MockPersister is the default in-memory/log-only persister, adapted
// from core/persistence.go's mockPersister: it keeps running totals
// for a final summary rather than writing anywhere durable.
type MockPersister struct {
	mu           sync.Mutex
	batches      int64
	rowsCommitted int64
}

// NewMockPersister builds a MockPersister.
func NewMockPersister() *MockPersister { return &MockPersister{} }

// CommitBatch records the batch in memory only.
func (p *MockPersister) CommitBatch(commits []Commit) error {
	if len(commits) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches++
	p.rowsCommitted += int64(len(commits))
	return nil
}

// PrintSummary prints a final commit count, in the style of
// core/persistence.go's PrintFinalMetrics.
func (p *MockPersister) PrintSummary() {
	p.mu.Lock()
	defer p.mu.Unlock()
	log.Printf("quota: committed %d batches (%d rows) to the mock persister", p.batches, p.rowsCommitted)
}

// BuildPersister selects a Persister by name, adapted from
// persistence/factory.go's BuildPersister.
func BuildPersister(kind string, redisAddr string, kafkaTopic string) (Persister, error) {
	switch kind {
	case "", "mock":
		return NewMockPersister(), nil
	case "redis":
		if redisAddr == "" {
			return nil, fmt.Errorf("quota: redis persister requires -redis-addr")
		}
		return NewRedisPersister(redisAddr), nil
	case "kafka":
		if kafkaTopic == "" {
			return nil, fmt.Errorf("quota: kafka persister requires -kafka-topic")
		}
		return NewKafkaPersister(kafkaTopic), nil
	default:
		return nil, fmt.Errorf("quota: unknown persister %q", kind)
	}
}
