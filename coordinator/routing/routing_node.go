// Copyright 2025 StreamNative, Inc.
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

package routing

import (
	"sort"

	"github.com/streamnative/shardalloc/coordinator/model"
)

// RoutingNode is the set of copies assigned to one node, relocation
// targets included.
type RoutingNode struct {
	nodeID string
	shards map[model.ShardID]model.ShardRouting
}

func newRoutingNode(nodeID string) *RoutingNode {
	return &RoutingNode{
		nodeID: nodeID,
		shards: make(map[model.ShardID]model.ShardRouting),
	}
}

func (n *RoutingNode) NodeID() string {
	return n.nodeID
}

func (n *RoutingNode) Size() int {
	return len(n.shards)
}

// Shard returns the copy of a shard held by the node, if any.
func (n *RoutingNode) Shard(id model.ShardID) (model.ShardRouting, bool) {
	s, ok := n.shards[id]
	return s, ok
}

// Shards returns the copies on the node ordered by shard id.
func (n *RoutingNode) Shards() []model.ShardRouting {
	res := make([]model.ShardRouting, 0, len(n.shards))
	for _, s := range n.shards {
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ShardID.Compare(res[j].ShardID) < 0 })
	return res
}

func (n *RoutingNode) NumberOfShardsOfIndex(index string) int {
	count := 0
	for id := range n.shards {
		if id.Index == index {
			count++
		}
	}
	return count
}

func (n *RoutingNode) NumberOfShardsWithState(states ...model.ShardState) int {
	count := 0
	for _, s := range n.shards {
		for _, state := range states {
			if s.State == state {
				count++
				break
			}
		}
	}
	return count
}

// NumberOfOwningShards counts the copies that will stay on the node, which
// excludes the copies relocating away.
func (n *RoutingNode) NumberOfOwningShards() int {
	count := 0
	for _, s := range n.shards {
		if !s.Relocating() {
			count++
		}
	}
	return count
}

func (n *RoutingNode) NumberOfOwningShardsOfIndex(index string) int {
	count := 0
	for id, s := range n.shards {
		if id.Index == index && !s.Relocating() {
			count++
		}
	}
	return count
}

func (n *RoutingNode) put(s model.ShardRouting) {
	n.shards[s.ShardID] = s
}

func (n *RoutingNode) remove(id model.ShardID) {
	delete(n.shards, id)
}
