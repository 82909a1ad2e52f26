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
	"github.com/streamnative/shardalloc/coordinator/policies"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

const (
	ThrottlingName          = "throttling"
	ConcurrentRebalanceName = "concurrent_rebalance"
)

// Throttling limits the recoveries running on each node. Primaries which
// recover from their own store have a separate limit from peer recoveries.
type Throttling struct {
	Base
	settings policies.ThrottlingSettings
}

func NewThrottling(settings policies.ThrottlingSettings) *Throttling {
	return &Throttling{settings: settings}
}

func (*Throttling) Name() string {
	return ThrottlingName
}

func (d *Throttling) CanAllocate(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	nodes := alloc.RoutingNodes()
	s := d.settings

	if shard.Primary && shard.Unassigned() && shard.RecoverySource != model.RecoverySourcePeer {
		current := nodes.InitializingPrimaries(node.NodeID())
		if current >= s.NodeInitialPrimariesRecoveries {
			return allocation.ThrottleDecision(ThrottlingName,
				"reached the limit of ongoing initial primary recoveries [%d], cluster setting [throttling.nodeInitialPrimariesRecoveries=%d]",
				current, s.NodeInitialPrimariesRecoveries)
		}
		return allocation.YesDecision(ThrottlingName, "below primary recovery limit of [%d]", s.NodeInitialPrimariesRecoveries)
	}

	incoming := nodes.IncomingRecoveries(node.NodeID())
	if incoming >= s.NodeConcurrentIncomingRecoveries {
		return allocation.ThrottleDecision(ThrottlingName,
			"reached the limit of incoming shard recoveries [%d], cluster setting [throttling.nodeConcurrentIncomingRecoveries=%d]",
			incoming, s.NodeConcurrentIncomingRecoveries)
	}

	source := ""
	if shard.Assigned() {
		source = shard.CurrentNodeID
	} else if p, ok := nodes.Primary(shard.ShardID); ok && p.Assigned() {
		source = p.CurrentNodeID
	}
	if source != "" {
		outgoing := nodes.OutgoingRecoveries(source)
		if outgoing >= s.NodeConcurrentOutgoingRecoveries {
			return allocation.ThrottleDecision(ThrottlingName,
				"reached the limit of outgoing shard recoveries [%d] on the node [%s] which holds the source copy, cluster setting [throttling.nodeConcurrentOutgoingRecoveries=%d]",
				outgoing, source, s.NodeConcurrentOutgoingRecoveries)
		}
	}
	return allocation.YesDecision(ThrottlingName, "below shard recovery limit of incoming [%d] and outgoing [%d]",
		s.NodeConcurrentIncomingRecoveries, s.NodeConcurrentOutgoingRecoveries)
}

// ConcurrentRebalance limits the relocations in flight across the cluster.
type ConcurrentRebalance struct {
	Base
	limit int
}

func NewConcurrentRebalance(limit int) *ConcurrentRebalance {
	return &ConcurrentRebalance{limit: limit}
}

func (*ConcurrentRebalance) Name() string {
	return ConcurrentRebalanceName
}

func (d *ConcurrentRebalance) CanRebalance(_ model.ShardRouting, alloc *allocation.RoutingAllocation) allocation.Decision {
	return d.CanRebalanceCluster(alloc)
}

func (d *ConcurrentRebalance) CanRebalanceCluster(alloc *allocation.RoutingAllocation) allocation.Decision {
	if d.limit < 0 {
		return allocation.YesDecision(ConcurrentRebalanceName, "unlimited concurrent rebalances are allowed")
	}
	relocating := alloc.RoutingNodes().RelocatingShards()
	if relocating >= d.limit {
		return allocation.ThrottleDecision(ConcurrentRebalanceName,
			"reached the limit of concurrently rebalancing shards [%d], cluster setting [clusterConcurrentRebalance=%d]",
			relocating, d.limit)
	}
	return allocation.YesDecision(ConcurrentRebalanceName,
		"below the limit of concurrently rebalancing shards [%d < %d]", relocating, d.limit)
}
