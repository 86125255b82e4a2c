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
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// commitScript mirrors persistence/redis.go's idempotent
// SETNX+HINCRBY+EXPIRE pattern: each commit has a synthetic
// idempotency marker derived from key+vector so replays of the same
// batch (e.g. after a worker restart) are safe.
const commitScript = `
local marker = KEYS[1]
local counter = KEYS[2]
local vc = tonumber(ARGV[1])
if redis.call("SETNX", marker, "1") == 1 then
  redis.call("HINCRBY", counter, "scalar", -vc)
  redis.call("EXPIRE", marker, 86400)
end
return 1
`

// RedisPersister applies commits through go-redis, grounded on
// persistence/redis.go + persistence/clients.go's GoRedisEvaler.
type RedisPersister struct {
	client *redis.Client
}

// NewRedisPersister connects to addr.
func NewRedisPersister(addr string) *RedisPersister {
	return &RedisPersister{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// CommitBatch applies each commit via the idempotent Lua script.
func (p *RedisPersister) CommitBatch(commits []Commit) error {
	if len(commits) == 0 {
		return nil
	}
	ctx := context.Background()
	for _, c := range commits {
		marker := fmt.Sprintf("phantomgate:quota:commit:%s:%d", c.Key, c.Vector)
		counter := fmt.Sprintf("phantomgate:quota:counter:%s", c.Key)
		if err := p.client.Eval(ctx, commitScript, []string{marker, counter}, c.Vector).Err(); err != nil {
			return fmt.Errorf("quota redis commit %s: %w", c.Key, err)
		}
	}
	return nil
}
