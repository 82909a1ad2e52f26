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

package allocation

import (
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

// SameShardDeciderName names the rule that keeps copies of one shard on
// distinct nodes. The allocator reports it for nodes it skips because they
// already hold a copy.
const SameShardDeciderName = "same_shard"

// Decider is one allocation rule. Implementations only read the allocation
// they are given.
type Decider interface {
	Name() string

	// CanAllocate decides whether the shard may be placed on the node,
	// either from unassigned or as the target of a relocation.
	CanAllocate(shard model.ShardRouting, node *routing.RoutingNode, alloc *RoutingAllocation) Decision

	// CanRemain decides whether a shard which is already on the node may stay there.
	CanRemain(shard model.ShardRouting, node *routing.RoutingNode, alloc *RoutingAllocation) Decision

	// CanRebalance decides whether the shard may be moved for balance.
	CanRebalance(shard model.ShardRouting, alloc *RoutingAllocation) Decision

	// CanRebalanceCluster decides whether any rebalancing may happen at all.
	CanRebalanceCluster(alloc *RoutingAllocation) Decision
}
