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
	"github.com/dustin/go-humanize"

	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/policies"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

const DiskThresholdName = "disk_threshold"

// DiskThreshold keeps nodes below their disk watermarks. Above the low
// watermark a node only takes new primaries, above the high watermark it
// takes nothing and its shards are moved away.
type DiskThreshold struct {
	Base
	settings policies.DiskSettings
}

func NewDiskThreshold(settings policies.DiskSettings) *DiskThreshold {
	return &DiskThreshold{settings: settings}
}

func (*DiskThreshold) Name() string {
	return DiskThresholdName
}

func (d *DiskThreshold) CanAllocate(shard model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	usage, decision, ok := d.usage(node, alloc)
	if !ok {
		return decision
	}
	total := usage.TotalBytes()
	used := usage.UsedBytes + d.incomingBytes(node, alloc)
	s := d.settings

	if s.High.Exceeded(total, used) {
		return allocation.NoDecision(DiskThresholdName,
			"the node is above the high watermark [%s], having %s free of %s",
			s.High, freeBytes(total, used), humanize.IBytes(total))
	}
	if s.Low.Exceeded(total, used) && !isNewPrimary(shard) {
		return allocation.NoDecision(DiskThresholdName,
			"the node is above the low watermark [%s], having %s free of %s",
			s.Low, freeBytes(total, used), humanize.IBytes(total))
	}

	size := alloc.ShardSize(shard)
	after := used
	if size > 0 {
		after += uint64(size)
	}
	if s.High.Exceeded(total, after) {
		return allocation.NoDecision(DiskThresholdName,
			"allocating the shard to this node would bring it above the high watermark [%s], with shard size %s and %s free",
			s.High, humanize.IBytes(uint64(max(size, 0))), freeBytes(total, used))
	}
	return allocation.YesDecision(DiskThresholdName,
		"enough disk for the shard on the node, %s free of %s", freeBytes(total, after), humanize.IBytes(total))
}

func (d *DiskThreshold) CanRemain(_ model.ShardRouting, node *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	usage, decision, ok := d.usage(node, alloc)
	if !ok {
		return decision
	}
	total := usage.TotalBytes()
	used := usage.UsedBytes + d.incomingBytes(node, alloc)
	if leaving := d.leavingBytes(node, alloc); leaving < used {
		used -= leaving
	} else {
		used = 0
	}
	s := d.settings

	if s.FloodStage.Exceeded(total, used) {
		return allocation.NoDecision(DiskThresholdName,
			"the shard cannot remain on this node because it is above the flood stage watermark [%s], having %s free",
			s.FloodStage, freeBytes(total, used))
	}
	if s.High.Exceeded(total, used) {
		return allocation.NoDecision(DiskThresholdName,
			"the shard cannot remain on this node because it is above the high watermark [%s], having %s free",
			s.High, freeBytes(total, used))
	}
	return allocation.YesDecision(DiskThresholdName,
		"the node is below the high watermark [%s], having %s free", s.High, freeBytes(total, used))
}

func (d *DiskThreshold) usage(node *routing.RoutingNode, alloc *allocation.RoutingAllocation) (model.DiskUsage, allocation.Decision, bool) {
	if !d.settings.Enabled {
		return model.DiskUsage{}, allocation.YesDecision(DiskThresholdName, "the disk threshold decider is disabled"), false
	}
	usage, ok := alloc.Info().DiskUsage(node.NodeID())
	if !ok || usage.TotalBytes() == 0 {
		return model.DiskUsage{}, allocation.YesDecision(DiskThresholdName, "there is no disk usage information for node [%s]", node.NodeID()), false
	}
	return usage, allocation.Always, true
}

// incomingBytes is the size of the copies still recovering onto the node,
// which the sampled usage does not account for yet.
func (*DiskThreshold) incomingBytes(node *routing.RoutingNode, alloc *allocation.RoutingAllocation) uint64 {
	var res uint64
	for _, s := range node.Shards() {
		if s.Initializing() {
			if size := alloc.ShardSize(s); size > 0 {
				res += uint64(size)
			}
		}
	}
	return res
}

func (*DiskThreshold) leavingBytes(node *routing.RoutingNode, alloc *allocation.RoutingAllocation) uint64 {
	var res uint64
	for _, s := range node.Shards() {
		if s.Relocating() {
			if size := alloc.ShardSize(s); size > 0 {
				res += uint64(size)
			}
		}
	}
	return res
}

// isNewPrimary reports a primary of a freshly created index, which has no
// data yet and may exceed the low watermark.
func isNewPrimary(shard model.ShardRouting) bool {
	return shard.Primary && shard.Unassigned() && shard.RecoverySource == model.RecoverySourceEmptyStore
}

func freeBytes(total, used uint64) string {
	if used >= total {
		return humanize.IBytes(0)
	}
	return humanize.IBytes(total - used)
}
