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
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"phantomgate/internal/features"
)

// header is the fixed schema from spec.md §6.
var header = append([]string{"timestamp"}, append(append([]string{}, features.Names...), "label_failure_next_30s")...)

// CSVSink is a buffered, append-only CSV file sink. Adapted from
// internal/sinks/sbatch_file_sink.go's buffered-writer-plus-periodic-
// flush idiom, swapping JSON-line encoding for CSV rows.
type CSVSink struct {
	mu        sync.Mutex
	f         *os.File
	w         *csv.Writer
	lastFlush time.Time
}

// NewCSVSink opens (creating if absent) the file at path, writing the
// header row only when the file didn't already exist.
func NewCSVSink(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	s := &CSVSink{f: f, w: w, lastFlush: time.Now()}
	if writeHeader {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, err
		}
		w.Flush()
	}
	return s, nil
}

// AppendRows writes each row and flushes periodically, matching the
// teacher sink's 100ms flush cadence.
func (s *CSVSink) AppendRows(_ context.Context, rows []LabeledRow) error {
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, strconv.FormatInt(r.TimestampUnix, 10))
		for _, v := range r.Features {
			rec = append(rec, strconv.FormatFloat(v, 'f', -1, 64))
		}
		rec = append(rec, strconv.Itoa(r.Label))
		if err := s.w.Write(rec); err != nil {
			return err
		}
	}
	if time.Since(s.lastFlush) > 100*time.Millisecond {
		s.w.Flush()
		s.lastFlush = time.Now()
		if err := s.w.Error(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.f.Close()
}
