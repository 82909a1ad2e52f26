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

package deciders

import (
	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

const SameShardName = allocation.SameShardDeciderName

// SameShard never puts two copies of a shard on one node, nor on one host
// when sameHost is set.
type SameShard struct {
	Base
	sameHost bool
}

func NewSameShard(sameHost bool) *SameShard {
	return &SameShard{sameHost: sameHost}
}

func (*SameShard) Name() string {
	return SameShardName
}

func (d *SameShard) CanAllocate(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	if existing, found := node.Shard(shard.ShardID); found {
		return allocation.NoDecision(SameShardName,
			"a copy of this shard is already allocated to this node [%s]", existing)
	}
	if !d.sameHost {
		return allocation.YesDecision(SameShardName, "this node does not hold a copy of this shard")
	}

	target, ok := alloc.Node(node.NodeID())
	if !ok || target.Host == "" {
		return allocation.YesDecision(SameShardName, "this node has no host to compare")
	}
	for _, c := range alloc.RoutingNodes().AssignedCopies(shard.ShardID) {
		if c.CurrentNodeID == node.NodeID() || c.IsSameAllocation(shard) {
			continue
		}
		if other, ok := alloc.Node(c.CurrentNodeID); ok && other.Host == target.Host {
			return allocation.NoDecision(SameShardName,
				"a copy of this shard is already allocated to host [%s], on node [%s], and [sameHost] is enabled",
				target.Host, c.CurrentNodeID)
		}
	}
	return allocation.YesDecision(SameShardName, "no copy of this shard is allocated to host [%s]", target.Host)
}
