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
	"github.com/streamnative/shardalloc/coordinator/cluster"
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

// RoutingAllocation is the context of one allocation pass: the input state,
// the working copy of its routing table and the decider chain.
type RoutingAllocation struct {
	state    *cluster.State
	nodes    *routing.RoutingNodes
	deciders Decider
	explain  bool
}

func NewRoutingAllocation(deciders Decider, state *cluster.State, explain bool) *RoutingAllocation {
	return &RoutingAllocation{
		state:    state,
		nodes:    routing.NewRoutingNodes(state.RoutingTable(), state.NodeIDs()),
		deciders: deciders,
		explain:  explain,
	}
}

func (a *RoutingAllocation) State() *cluster.State {
	return a.state
}

func (a *RoutingAllocation) RoutingNodes() *routing.RoutingNodes {
	return a.nodes
}

func (a *RoutingAllocation) Deciders() Decider {
	return a.deciders
}

// Explain reports whether every decider is consulted and every explanation
// kept, rather than stopping at the first NO.
func (a *RoutingAllocation) Explain() bool {
	return a.explain
}

func (a *RoutingAllocation) Info() model.ClusterInfo {
	return a.state.Info()
}

func (a *RoutingAllocation) Index(name string) (model.IndexMetadata, bool) {
	return a.state.Index(name)
}

func (a *RoutingAllocation) Node(nodeID string) (model.DiscoveryNode, bool) {
	return a.state.Node(nodeID)
}

// ShardSize is the expected size of a copy in bytes: the sampled size if
// known, else the forecast of its index, else zero.
func (a *RoutingAllocation) ShardSize(shard model.ShardRouting) int64 {
	if size, ok := a.state.Info().ShardSize(shard.ShardID); ok {
		return size
	}
	if m, ok := a.state.Index(shard.ShardID.Index); ok && m.ShardSizeForecastBytes != nil {
		return *m.ShardSizeForecastBytes
	}
	return 0
}

// WriteLoad is the forecast write load of a copy.
func (a *RoutingAllocation) WriteLoad(shard model.ShardRouting) float64 {
	if m, ok := a.state.Index(shard.ShardID.Index); ok {
		return m.WriteLoad()
	}
	return 0
}
