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

// Limiter is the narrow surface internal/proxy consults. Adapted from
// api/server.go's handleCheckRateLimit, minus the standalone HTTP
// route: the decision is folded inline into C8's admission pipeline.
type Limiter struct {
	store *Store
}

// NewLimiter wraps store.
func NewLimiter(store *Store) *Limiter {
	return &Limiter{store: store}
}

// Admit atomically checks and consumes one unit of key's quota.
func (l *Limiter) Admit(key string) bool {
	return l.store.GetOrCreate(key).instance.tryConsume(1)
}
