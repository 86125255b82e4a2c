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

// Package featuresink holds the pluggable dataset-row backends the
// Feature Logger drains labeled rows into. The CSV sink is the
// spec-mandated default; Redis is an optional streaming alternative.
package featuresink

import (
	"context"
	"fmt"
)

// LabeledRow is one (timestamp, feature vector, label) tuple, already
// projected onto the canonical feature order.
type LabeledRow struct {
	TimestampUnix int64
	Features      [8]float64 // in features.Names order
	Label         int
}

// Sink appends labeled rows to a durable or streaming destination.
// Implementations must not block indefinitely; write errors are
// logged and the batch is dropped per spec.md's error-handling table —
// a Sink failure never surfaces to the request path.
type Sink interface {
	AppendRows(ctx context.Context, rows []LabeledRow) error
	Close() error
}

// Options configures sink construction.
type Options struct {
	Path      string // CSV file path
	RedisAddr string
	RedisKey  string
}

// Build constructs a Sink by name, mirroring
// persistence/factory.go's BuildPersister string-selector shape.
func Build(kind string, opts Options) (Sink, error) {
	switch kind {
	case "", "csv":
		path := opts.Path
		if path == "" {
			path = "dataset/phase3_features.csv"
		}
		return NewCSVSink(path)
	case "redis":
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("featuresink: redis backend requires -redis-addr")
		}
		key := opts.RedisKey
		if key == "" {
			key = "phantomgate:features"
		}
		return NewRedisSink(opts.RedisAddr, key), nil
	default:
		return nil, fmt.Errorf("featuresink: unknown backend %q", kind)
	}
}
