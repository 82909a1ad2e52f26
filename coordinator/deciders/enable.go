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

const EnableName = "enable"

// Enable switches allocation and rebalancing on and off, entirely or by
// shard role.
type Enable struct {
	Base
	settings policies.EnableSettings
}

func NewEnable(settings policies.EnableSettings) *Enable {
	return &Enable{settings: settings}
}

func (*Enable) Name() string {
	return EnableName
}

func (d *Enable) CanAllocate(shard model.ShardRouting, _ *routing.RoutingNode, _ *allocation.RoutingAllocation) allocation.Decision {
	mode := d.settings.Allocation
	switch mode {
	case policies.EnableAllocationNone:
		return allocation.NoDecision(EnableName, "no allocations are allowed due to cluster setting [enable.allocation=%s]", mode)
	case policies.EnableAllocationNewPrimaries:
		if !isNewPrimary(shard) {
			return allocation.NoDecision(EnableName, "only new primaries are allowed due to cluster setting [enable.allocation=%s]", mode)
		}
	case policies.EnableAllocationPrimaries:
		if !shard.Primary {
			return allocation.NoDecision(EnableName, "replica allocations are forbidden due to cluster setting [enable.allocation=%s]", mode)
		}
	}
	return allocation.YesDecision(EnableName, "allocation is allowed by cluster setting [enable.allocation=%s]", mode)
}

func (d *Enable) CanRebalance(shard model.ShardRouting, _ *allocation.RoutingAllocation) allocation.Decision {
	mode := d.settings.Rebalance
	switch mode {
	case policies.EnableRebalanceNone:
		return allocation.NoDecision(EnableName, "no rebalancing is allowed due to cluster setting [enable.rebalance=%s]", mode)
	case policies.EnableRebalancePrimaries:
		if !shard.Primary {
			return allocation.NoDecision(EnableName, "replica rebalancing is forbidden due to cluster setting [enable.rebalance=%s]", mode)
		}
	case policies.EnableRebalanceReplicas:
		if shard.Primary {
			return allocation.NoDecision(EnableName, "primary rebalancing is forbidden due to cluster setting [enable.rebalance=%s]", mode)
		}
	}
	return allocation.YesDecision(EnableName, "rebalancing is allowed by cluster setting [enable.rebalance=%s]", mode)
}

func (d *Enable) CanRebalanceCluster(_ *allocation.RoutingAllocation) allocation.Decision {
	if d.settings.Rebalance == policies.EnableRebalanceNone {
		return allocation.NoDecision(EnableName, "no rebalancing is allowed due to cluster setting [enable.rebalance=%s]", d.settings.Rebalance)
	}
	return allocation.YesDecision(EnableName, "rebalancing is allowed by cluster setting [enable.rebalance=%s]", d.settings.Rebalance)
}
