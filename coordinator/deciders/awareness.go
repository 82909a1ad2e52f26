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
	"strings"

	"github.com/emirpasic/gods/sets/linkedhashset"

	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/policies"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

const AwarenessName = "awareness"

// Awareness spreads the copies of a shard evenly over the values of each
// awareness attribute, so that losing a zone or a rack loses as few copies
// as possible.
type Awareness struct {
	Base
	settings policies.AwarenessSettings
}

func NewAwareness(settings policies.AwarenessSettings) *Awareness {
	return &Awareness{settings: settings}
}

func (*Awareness) Name() string {
	return AwarenessName
}

func (d *Awareness) CanAllocate(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	return d.decide(shard, node, alloc, true)
}

func (d *Awareness) CanRemain(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	return d.decide(shard, node, alloc, false)
}

func (d *Awareness) decide(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation, moveToNode bool) allocation.Decision {
	if len(d.settings.Attributes) == 0 {
		return allocation.YesDecision(AwarenessName, "allocation awareness is not enabled")
	}
	m, ok := alloc.Index(shard.ShardID.Index)
	if !ok {
		return allocation.YesDecision(AwarenessName, "index [%s] is unknown", shard.ShardID.Index)
	}
	target, ok := alloc.Node(node.NodeID())
	if !ok {
		return allocation.NoDecision(AwarenessName, "node [%s] is not part of the cluster", node.NodeID())
	}

	grouped := GroupNodesByAttribute(alloc.State().Nodes(), d.settings.Attributes)
	copies := alloc.RoutingNodes().AssignedCopies(shard.ShardID)
	for _, attr := range d.settings.Attributes {
		value, ok := target.Attribute(attr)
		if !ok {
			return allocation.NoDecision(AwarenessName,
				"node does not contain the awareness attribute [%s], required by cluster setting [awareness.attributes=%s]",
				attr, strings.Join(d.settings.Attributes, ","))
		}

		values := linkedhashset.New()
		for v := range grouped[attr] {
			values.Add(v)
		}
		for _, v := range d.settings.Force[attr] {
			values.Add(v)
		}

		counts := map[string]int{}
		for _, c := range copies {
			if c.Relocating() {
				// counted on its target
				continue
			}
			if n, found := alloc.Node(c.CurrentNodeID); found {
				if v, found := n.Attribute(attr); found {
					counts[v]++
				}
			}
		}
		if moveToNode {
			if shard.Assigned() {
				if n, found := alloc.Node(shard.CurrentNodeID); found {
					if v, found := n.Attribute(attr); found {
						counts[v]--
					}
				}
			}
			counts[value]++
		}

		copiesCount := m.TotalCopies()
		maximum := (copiesCount + values.Size() - 1) / values.Size()
		if counts[value] > maximum {
			return allocation.NoDecision(AwarenessName,
				"there are [%d] copies of this shard and [%d] values for attribute [%s], so at most [%d] copies may be on [%s=%s], which would hold [%d]",
				copiesCount, values.Size(), attr, maximum, attr, value, counts[value])
		}
	}
	return allocation.YesDecision(AwarenessName, "node meets all awareness attribute requirements")
}

// GroupNodesByAttribute maps each attribute to the ids of the nodes holding
// each of its values, in node order.
func GroupNodesByAttribute(nodes []model.DiscoveryNode, attributes []string) map[string]map[string]*linkedhashset.Set {
	grouped := make(map[string]map[string]*linkedhashset.Set, len(attributes))
	for _, attr := range attributes {
		valueGroups, exist := grouped[attr]
		if !exist {
			valueGroups = make(map[string]*linkedhashset.Set)
			grouped[attr] = valueGroups
		}
		for _, n := range nodes {
			value, found := n.Attribute(attr)
			if !found {
				continue
			}
			group, exist := valueGroups[value]
			if !exist {
				group = linkedhashset.New()
				valueGroups[value] = group
			}
			group.Add(n.ID)
		}
	}
	return grouped
}
