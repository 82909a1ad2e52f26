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

package balancer

import (
	"cmp"
	"strings"

	"github.com/emirpasic/gods/lists/arraylist"
	"github.com/pkg/errors"

	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/policies"
)

var ErrUnknownNode = errors.New("node is not part of the model")

// WeightFunction scores how far the projected load of a node is from the
// cluster average. A zero factor disables its term.
type WeightFunction struct {
	shardFactor     float64
	diskFactor      float64
	writeLoadFactor float64
}

func NewWeightFunction(settings policies.BalanceSettings) WeightFunction {
	return WeightFunction{
		shardFactor:     settings.ShardBalanceFactor,
		diskFactor:      settings.DiskUsageBalanceFactor,
		writeLoadFactor: settings.WriteLoadBalanceFactor,
	}
}

func (w WeightFunction) Weight(m *Model, n *ModelNode) float64 {
	return w.shardFactor*(float64(n.NumShards())-m.AvgShards()) +
		w.diskFactor*(float64(n.DiskBytes())-m.AvgDiskBytes()) +
		w.writeLoadFactor*(n.WriteLoad()-m.AvgWriteLoad())
}

// Delta is the weight a node gains by taking a copy with the given load,
// the averages left unchanged.
func (w WeightFunction) Delta(diskBytes int64, writeLoad float64) float64 {
	return w.shardFactor + w.diskFactor*float64(diskBytes) + w.writeLoadFactor*writeLoad
}

// Model is the working set of one pass: the projected load of every node,
// with running totals for the averages.
type Model struct {
	nodes   map[string]*ModelNode
	nodeIDs []string
	load    ShardLoad

	totalShards    int
	totalDiskBytes int64
	totalWriteLoad float64
}

// NewModel builds the working set from the routing of an allocation. A
// relocating copy is counted on its target only.
func NewModel(alloc *allocation.RoutingAllocation) (*Model, error) {
	routingNodes := alloc.RoutingNodes()
	m := &Model{
		nodes:   make(map[string]*ModelNode),
		nodeIDs: routingNodes.NodeIDs(),
		load: func(shard model.ShardRouting) (int64, float64) {
			return alloc.ShardSize(shard), alloc.WriteLoad(shard)
		},
	}
	for _, nodeID := range m.nodeIDs {
		m.nodes[nodeID] = NewModelNode(nodeID, m.load)
	}
	for _, nodeID := range m.nodeIDs {
		for _, shard := range routingNodes.Node(nodeID).Shards() {
			if shard.Relocating() {
				continue
			}
			if err := m.AddShard(nodeID, shard); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Model) Node(nodeID string) *ModelNode {
	return m.nodes[nodeID]
}

// NodeIDs returns the node ids, sorted.
func (m *Model) NodeIDs() []string {
	return m.nodeIDs
}

func (m *Model) AddShard(nodeID string, shard model.ShardRouting) error {
	n, ok := m.nodes[nodeID]
	if !ok {
		return errors.Wrapf(ErrUnknownNode, "%s", nodeID)
	}
	if err := n.AddShard(shard); err != nil {
		return err
	}
	disk, writeLoad := m.load(shard)
	m.totalShards++
	m.totalDiskBytes += disk
	m.totalWriteLoad += writeLoad
	return nil
}

func (m *Model) RemoveShard(nodeID string, shard model.ShardRouting) error {
	n, ok := m.nodes[nodeID]
	if !ok {
		return errors.Wrapf(ErrUnknownNode, "%s", nodeID)
	}
	if err := n.RemoveShard(shard); err != nil {
		return err
	}
	disk, writeLoad := m.load(shard)
	m.totalShards--
	m.totalDiskBytes -= disk
	m.totalWriteLoad -= writeLoad
	return nil
}

// Move records a relocation: source leaves fromNodeID and target, the
// initializing copy, arrives on its node.
func (m *Model) Move(fromNodeID string, source, target model.ShardRouting) error {
	if err := m.RemoveShard(fromNodeID, source); err != nil {
		return err
	}
	return m.AddShard(target.CurrentNodeID, target)
}

func (m *Model) AvgShards() float64 {
	return m.avg(float64(m.totalShards))
}

func (m *Model) AvgDiskBytes() float64 {
	return m.avg(float64(m.totalDiskBytes))
}

func (m *Model) AvgWriteLoad() float64 {
	return m.avg(m.totalWriteLoad)
}

// avg spreads a total over every node of the pass. Nodes the deciders rule
// out still hold copies and count towards the averages.
func (m *Model) avg(total float64) float64 {
	if len(m.nodeIDs) == 0 {
		return 0
	}
	return total / float64(len(m.nodeIDs))
}

// WeightedNode is a node with its weight at ranking time.
type WeightedNode struct {
	*ModelNode
	Weight float64
}

// Rank returns the nodes ascending by weight, ties by node id.
func (m *Model) Rank(w WeightFunction) []WeightedNode {
	list := arraylist.New()
	for _, nodeID := range m.nodeIDs {
		n := m.nodes[nodeID]
		list.Add(WeightedNode{ModelNode: n, Weight: w.Weight(m, n)})
	}
	list.Sort(func(a, b any) int {
		x, y := a.(WeightedNode), b.(WeightedNode) //nolint:revive
		if c := cmp.Compare(x.Weight, y.Weight); c != 0 {
			return c
		}
		return strings.Compare(x.NodeID(), y.NodeID())
	})

	res := make([]WeightedNode, 0, list.Size())
	for _, v := range list.Values() {
		res = append(res, v.(WeightedNode)) //nolint:revive
	}
	return res
}

// Variance is the population variance of the node weights.
func (m *Model) Variance(w WeightFunction) float64 {
	if len(m.nodeIDs) == 0 {
		return 0
	}
	weights := make([]float64, 0, len(m.nodeIDs))
	mean := 0.0
	for _, nodeID := range m.nodeIDs {
		weight := w.Weight(m, m.nodes[nodeID])
		weights = append(weights, weight)
		mean += weight
	}
	mean /= float64(len(weights))

	res := 0.0
	for _, weight := range weights {
		res += (weight - mean) * (weight - mean)
	}
	return res / float64(len(weights))
}
