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

const (
	MaxRetryName            = "max_retry"
	ShardsLimitName         = "shards_limit"
	ReplicaAfterPrimaryName = "replica_after_primary"
)

// MaxRetry gives up on a copy once its allocation failed too many times in
// a row. A reroute with RetryFailed resets the counters.
type MaxRetry struct {
	Base
	maxRetries int
}

func NewMaxRetry(maxRetries int) *MaxRetry {
	return &MaxRetry{maxRetries: maxRetries}
}

func (*MaxRetry) Name() string {
	return MaxRetryName
}

func (d *MaxRetry) CanAllocate(shard model.ShardRouting, _ *routing.RoutingNode, _ *allocation.RoutingAllocation) allocation.Decision {
	info := shard.UnassignedInfo
	if info == nil || info.FailedAllocations == 0 {
		return allocation.YesDecision(MaxRetryName, "shard has no previous failures")
	}
	if info.FailedAllocations >= d.maxRetries {
		return allocation.NoDecision(MaxRetryName,
			"shard has exceeded the maximum number of retries [%d] on failed allocation attempts, reroute with retryFailed to retry, last failure [%s]",
			d.maxRetries, info.Message)
	}
	return allocation.YesDecision(MaxRetryName, "shard has failed allocating [%d] times but [%d] retries are allowed",
		info.FailedAllocations, d.maxRetries)
}

// ShardsLimit caps the copies a node may hold, across all indices and per
// index. Non-positive limits are unlimited.
type ShardsLimit struct {
	Base
	clusterLimit int
}

func NewShardsLimit(clusterLimit int) *ShardsLimit {
	return &ShardsLimit{clusterLimit: clusterLimit}
}

func (*ShardsLimit) Name() string {
	return ShardsLimitName
}

func (d *ShardsLimit) CanAllocate(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	return d.decide(shard, node, alloc, func(count, limit int) bool { return count >= limit })
}

func (d *ShardsLimit) CanRemain(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	return d.decide(shard, node, alloc, func(count, limit int) bool { return count > limit })
}

func (d *ShardsLimit) decide(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation,
	exceeded func(count, limit int) bool) allocation.Decision {
	indexLimit := 0
	if m, ok := alloc.Index(shard.ShardID.Index); ok && m.TotalShardsPerNode != nil {
		indexLimit = *m.TotalShardsPerNode
	}
	if indexLimit <= 0 && d.clusterLimit <= 0 {
		return allocation.YesDecision(ShardsLimitName, "total shard limits are disabled")
	}

	if d.clusterLimit > 0 {
		if count := node.NumberOfOwningShards(); exceeded(count, d.clusterLimit) {
			return allocation.NoDecision(ShardsLimitName,
				"too many shards [%d] allocated to this node, cluster setting [totalShardsPerNode=%d]", count, d.clusterLimit)
		}
	}
	if indexLimit > 0 {
		if count := node.NumberOfOwningShardsOfIndex(shard.ShardID.Index); exceeded(count, indexLimit) {
			return allocation.NoDecision(ShardsLimitName,
				"too many shards [%d] of index [%s] allocated to this node, index setting [totalShardsPerNode=%d]",
				count, shard.ShardID.Index, indexLimit)
		}
	}
	return allocation.YesDecision(ShardsLimitName, "the shard count on this node is under the total shard limits")
}

// ReplicaAfterPrimary keeps replicas unassigned until their primary is
// assigned, or started when requireActive is set.
type ReplicaAfterPrimary struct {
	Base
	requireActive bool
}

func NewReplicaAfterPrimary(requireActive bool) *ReplicaAfterPrimary {
	return &ReplicaAfterPrimary{requireActive: requireActive}
}

func (*ReplicaAfterPrimary) Name() string {
	return ReplicaAfterPrimaryName
}

func (d *ReplicaAfterPrimary) CanAllocate(shard model.ShardRouting, _ *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	if shard.Primary || !shard.Unassigned() {
		return allocation.YesDecision(ReplicaAfterPrimaryName, "shard is a primary or already assigned")
	}
	primary, ok := alloc.RoutingNodes().Primary(shard.ShardID)
	if !ok || primary.Unassigned() {
		return allocation.NoDecision(ReplicaAfterPrimaryName, "primary shard for this replica is not yet assigned")
	}
	if d.requireActive && !primary.Active() {
		return allocation.NoDecision(ReplicaAfterPrimaryName, "primary shard for this replica is not yet active")
	}
	return allocation.YesDecision(ReplicaAfterPrimaryName, "primary shard for this replica is assigned")
}
