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

// Base answers YES to every question. Deciders embed it and override the
// questions they have an opinion on.
type Base struct{}

func (Base) CanAllocate(model.ShardRouting, *routing.RoutingNode, *allocation.RoutingAllocation) allocation.Decision {
	return allocation.Always
}

func (Base) CanRemain(model.ShardRouting, *routing.RoutingNode, *allocation.RoutingAllocation) allocation.Decision {
	return allocation.Always
}

func (Base) CanRebalance(model.ShardRouting, *allocation.RoutingAllocation) allocation.Decision {
	return allocation.Always
}

func (Base) CanRebalanceCluster(*allocation.RoutingAllocation) allocation.Decision {
	return allocation.Always
}

var _ allocation.Decider = &Chain{}

// Chain is the conjunction of its deciders: the verdict is the most
// restrictive one, whatever the order. Unless the allocation asks for an
// explanation, the chain stops at the first NO and drops YES explanations.
type Chain struct {
	deciders []allocation.Decider
}

func NewChain(deciders ...allocation.Decider) *Chain {
	return &Chain{deciders: deciders}
}

func (*Chain) Name() string {
	return "chain"
}

// Names returns the names of the deciders in evaluation order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.deciders))
	for i, d := range c.deciders {
		names[i] = d.Name()
	}
	return names
}

func (c *Chain) CanAllocate(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	return c.evaluate(alloc, func(d allocation.Decider) allocation.Decision {
		return d.CanAllocate(shard, node, alloc)
	})
}

func (c *Chain) CanRemain(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	return c.evaluate(alloc, func(d allocation.Decider) allocation.Decision {
		return d.CanRemain(shard, node, alloc)
	})
}

func (c *Chain) CanRebalance(shard model.ShardRouting, alloc *allocation.RoutingAllocation) allocation.Decision {
	return c.evaluate(alloc, func(d allocation.Decider) allocation.Decision {
		return d.CanRebalance(shard, alloc)
	})
}

func (c *Chain) CanRebalanceCluster(alloc *allocation.RoutingAllocation) allocation.Decision {
	return c.evaluate(alloc, func(d allocation.Decider) allocation.Decision {
		return d.CanRebalanceCluster(alloc)
	})
}

func (c *Chain) evaluate(alloc *allocation.RoutingAllocation, ask func(d allocation.Decider) allocation.Decision) allocation.Decision {
	res := allocation.Always
	for _, d := range c.deciders {
		decision := ask(d)
		if alloc.Explain() {
			res = res.Merge(decision)
			continue
		}
		if decision.Type == allocation.Yes {
			continue
		}
		res = res.Merge(decision)
		if decision.Type == allocation.No {
			return res
		}
	}
	return res
}
