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
	"encoding/json"
	"fmt"
	"log"
)

// KafkaPersister publishes commits as logical WAL entries. We
// intentionally avoid importing a concrete Kafka client (the teacher
// does the same in persistence/kafka.go) — wiring a real broker
// client is a deployment decision outside this module's scope, so
// production is represented by a logging stand-in, matching
// persistence/clients.go's LoggingKafkaProducer.
type KafkaPersister struct {
	topic string
}

// NewKafkaPersister targets topic.
func NewKafkaPersister(topic string) *KafkaPersister {
	return &KafkaPersister{topic: topic}
}

type commitMessage struct {
	Key    string `json:"key"`
	Vector int64  `json:"vc"`
}

// CommitBatch logs each commit as if produced to topic.
func (p *KafkaPersister) CommitBatch(commits []Commit) error {
	for _, c := range commits {
		b, err := json.Marshal(commitMessage{Key: c.Key, Vector: c.Vector})
		if err != nil {
			return fmt.Errorf("quota kafka marshal: %w", err)
		}
		log.Printf("quota: kafka produce topic=%s key=%s value=%s", p.topic, c.Key, b)
	}
	return nil
}
