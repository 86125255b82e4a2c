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

package featuresink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"phantomgate/internal/features"
)

// RedisSink pushes each labeled row as a JSON blob onto a Redis list,
// for deployments that stream training data out rather than write to
// local disk. Adapted from persistence/redis.go and
// persistence/clients.go's GoRedisEvaler, trading the rate limiter's
// idempotent SETNX+HINCRBY script for a plain RPUSH since dataset
// rows have no commit-id dedup requirement — at-least-once delivery
// is acceptable for training data.
type RedisSink struct {
	client *redis.Client
	key    string
}

// NewRedisSink connects to addr and targets the given list key.
func NewRedisSink(addr, key string) *RedisSink {
	return &RedisSink{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
	}
}

// jsonRow is the wire shape pushed to Redis.
type jsonRow struct {
	Timestamp int64              `json:"timestamp"`
	Features  map[string]float64 `json:"features"`
	Label     int                `json:"label"`
}

// AppendRows RPUSHes each row as a JSON-encoded list element.
func (s *RedisSink) AppendRows(ctx context.Context, rows []LabeledRow) error {
	if len(rows) == 0 {
		return nil
	}
	vals := make([]interface{}, 0, len(rows))
	for _, r := range rows {
		m := make(map[string]float64, len(r.Features))
		for i, name := range features.Names {
			m[name] = r.Features[i]
		}
		b, err := json.Marshal(jsonRow{Timestamp: r.TimestampUnix, Features: m, Label: r.Label})
		if err != nil {
			return fmt.Errorf("featuresink: marshal row: %w", err)
		}
		vals = append(vals, b)
	}
	return s.client.RPush(ctx, s.key, vals...).Err()
}

// Close closes the underlying Redis client.
func (s *RedisSink) Close() error { return s.client.Close() }
