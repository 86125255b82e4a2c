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

// Package quota implements the optional per-client admission quota
// gate (SPEC_FULL.md §4), adapted from the teacher's rate-limiter
// core: a sync.Map-keyed store of per-client accumulators, a
// background worker that batches commits and evicts idle keys, and a
// pluggable Persister.
package quota

import (
	"sync"
	"sync/atomic"
	"time"
)

// managedAccumulator pairs a per-key quotaAccumulator with its
// last-touched clock, adapted from internal/ratelimiter/core/store.go.
type managedAccumulator struct {
	instance     *quotaAccumulator
	lastAccessed atomic.Int64 // unix nanos
}

// Store holds one accumulator per client key, created lazily on first use.
type Store struct {
	data          sync.Map // string -> *managedAccumulator
	initialScalar int64
}

// NewStore builds a Store where every new key starts with
// initialScalar available units. The budget is not replenished; a key
// starts over with initialScalar only after the Worker evicts it as
// idle and it is created again.
func NewStore(initialScalar int64) *Store {
	return &Store{initialScalar: initialScalar}
}

// GetOrCreate returns the accumulator for key, creating it on first
// sight. Fast path: Load with no allocation on hit; only on miss do
// we allocate and race via LoadOrStore, discarding the loser.
func (s *Store) GetOrCreate(key string) *managedAccumulator {
	if v, ok := s.data.Load(key); ok {
		m := v.(*managedAccumulator)
		m.lastAccessed.Store(time.Now().UnixNano())
		return m
	}
	fresh := &managedAccumulator{instance: newQuotaAccumulator(s.initialScalar)}
	fresh.lastAccessed.Store(time.Now().UnixNano())
	actual, _ := s.data.LoadOrStore(key, fresh)
	m := actual.(*managedAccumulator)
	m.lastAccessed.Store(time.Now().UnixNano())
	return m
}

// ForEach iterates every tracked key.
func (s *Store) ForEach(f func(key string, m *managedAccumulator)) {
	s.data.Range(func(k, v interface{}) bool {
		f(k.(string), v.(*managedAccumulator))
		return true
	})
}

// Delete removes a key, e.g. after eviction.
func (s *Store) Delete(key string) {
	s.data.Delete(key)
}
