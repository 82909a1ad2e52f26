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
)

const ClusterRebalanceName = "cluster_rebalance"

// ClusterRebalance holds rebalancing back until the cluster has recovered
// as far as the allowRebalance setting requires.
type ClusterRebalance struct {
	Base
	allow policies.AllowRebalance
}

func NewClusterRebalance(allow policies.AllowRebalance) *ClusterRebalance {
	return &ClusterRebalance{allow: allow}
}

func (*ClusterRebalance) Name() string {
	return ClusterRebalanceName
}

func (d *ClusterRebalance) CanRebalance(_ model.ShardRouting, alloc *allocation.RoutingAllocation) allocation.Decision {
	return d.CanRebalanceCluster(alloc)
}

func (d *ClusterRebalance) CanRebalanceCluster(alloc *allocation.RoutingAllocation) allocation.Decision {
	nodes := alloc.RoutingNodes()
	switch d.allow {
	case policies.AllowRebalanceIndicesPrimariesActive:
		if nodes.HasInactivePrimaries() {
			return allocation.NoDecision(ClusterRebalanceName,
				"the cluster has inactive primary shards and cluster setting [allowRebalance=%s]", d.allow)
		}
		return allocation.YesDecision(ClusterRebalanceName, "all primary shards are active")
	case policies.AllowRebalanceIndicesAllActive:
		if nodes.HasUnassignedShards() {
			return allocation.NoDecision(ClusterRebalanceName,
				"the cluster has unassigned shards and cluster setting [allowRebalance=%s]", d.allow)
		}
		if nodes.HasInactiveShards() {
			return allocation.NoDecision(ClusterRebalanceName,
				"the cluster has inactive shards and cluster setting [allowRebalance=%s]", d.allow)
		}
		return allocation.YesDecision(ClusterRebalanceName, "all shards are active")
	}
	return allocation.YesDecision(ClusterRebalanceName, "rebalancing is always allowed")
}
