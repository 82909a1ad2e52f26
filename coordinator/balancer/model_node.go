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
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/pkg/errors"

	"github.com/streamnative/shardalloc/common/collection"
	"github.com/streamnative/shardalloc/coordinator/model"
)

var (
	ErrCollocation   = errors.New("a copy of the shard is already on the node")
	ErrShardNotFound = errors.New("shard is not on the node")
)

// ShardLoad returns the disk bytes and the write load a copy adds to the
// node holding it.
type ShardLoad func(shard model.ShardRouting) (int64, float64)

// ModelNode is the projected load of a node during one allocation pass.
type ModelNode struct {
	nodeID string
	load   ShardLoad

	// index name -> ShardID -> model.ShardRouting
	indices   map[string]*treemap.Map
	numShards int
	diskBytes int64
	writeLoad float64
}

func NewModelNode(nodeID string, load ShardLoad) *ModelNode {
	return &ModelNode{
		nodeID:  nodeID,
		load:    load,
		indices: make(map[string]*treemap.Map),
	}
}

func (n *ModelNode) NodeID() string {
	return n.nodeID
}

// AddShard records a copy as held by the node. At most one copy of a shard
// may be on a node.
func (n *ModelNode) AddShard(shard model.ShardRouting) error {
	shards, ok := n.indices[shard.ShardID.Index]
	if !ok {
		shards = treemap.NewWith(model.ShardIDComparator)
		n.indices[shard.ShardID.Index] = shards
	}
	if existing, found := shards.Get(shard.ShardID); found {
		return errors.Wrapf(ErrCollocation, "node %s holds %s, cannot add %s", n.nodeID, existing, shard)
	}
	shards.Put(shard.ShardID, shard)

	disk, writeLoad := n.load(shard)
	n.numShards++
	n.diskBytes += disk
	n.writeLoad += writeLoad
	return nil
}

func (n *ModelNode) RemoveShard(shard model.ShardRouting) error {
	shards, ok := n.indices[shard.ShardID.Index]
	if !ok {
		return errors.Wrapf(ErrShardNotFound, "%s on node %s", shard.ShardID, n.nodeID)
	}
	if _, found := shards.Get(shard.ShardID); !found {
		return errors.Wrapf(ErrShardNotFound, "%s on node %s", shard.ShardID, n.nodeID)
	}
	shards.Remove(shard.ShardID)
	if shards.Empty() {
		delete(n.indices, shard.ShardID.Index)
	}

	disk, writeLoad := n.load(shard)
	n.numShards--
	n.diskBytes -= disk
	n.writeLoad -= writeLoad
	return nil
}

func (n *ModelNode) NumShards() int {
	return n.numShards
}

func (n *ModelNode) NumShardsOfIndex(index string) int {
	if shards, ok := n.indices[index]; ok {
		return shards.Size()
	}
	return 0
}

func (n *ModelNode) DiskBytes() int64 {
	return n.diskBytes
}

func (n *ModelNode) WriteLoad() float64 {
	return n.writeLoad
}

func (n *ModelNode) Contains(id model.ShardID) bool {
	if shards, ok := n.indices[id.Index]; ok {
		_, found := shards.Get(id)
		return found
	}
	return false
}

// Shards returns the copies on the node ordered by ShardID.
func (n *ModelNode) Shards() []model.ShardRouting {
	names := collection.NewSet[string]()
	for index := range n.indices {
		names.Add(index)
	}

	res := make([]model.ShardRouting, 0, n.numShards)
	for _, index := range names.GetSorted() {
		for it := n.indices[index].Iterator(); it.Next(); {
			res = append(res, it.Value().(model.ShardRouting)) //nolint:revive
		}
	}
	return res
}
