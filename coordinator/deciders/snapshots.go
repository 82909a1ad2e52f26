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
	RestoreInProgressName  = "restore_in_progress"
	SnapshotInProgressName = "snapshot_in_progress"
)

// RestoreInProgress only allocates primaries recovering from a snapshot
// while their restore is running.
type RestoreInProgress struct {
	Base
}

func NewRestoreInProgress() *RestoreInProgress {
	return &RestoreInProgress{}
}

func (*RestoreInProgress) Name() string {
	return RestoreInProgressName
}

func (*RestoreInProgress) CanAllocate(shard model.ShardRouting, _ *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	if !shard.Primary || !shard.Unassigned() || shard.RecoverySource != model.RecoverySourceSnapshot {
		return allocation.YesDecision(RestoreInProgressName, "shard is not being restored from a snapshot")
	}
	if alloc.State().IsRestoring(shard.ShardID) {
		return allocation.YesDecision(RestoreInProgressName, "shard is currently being restored")
	}
	return allocation.NoDecision(RestoreInProgressName,
		"shard failed to be restored from the snapshot, or its restore is no longer running")
}

// SnapshotInProgress delays moving primaries which a running snapshot is
// copying.
type SnapshotInProgress struct {
	Base
}

func NewSnapshotInProgress() *SnapshotInProgress {
	return &SnapshotInProgress{}
}

func (*SnapshotInProgress) Name() string {
	return SnapshotInProgressName
}

func (d *SnapshotInProgress) CanAllocate(shard model.ShardRouting, _ *routing.RoutingNode, alloc *allocation.RoutingAllocation) allocation.Decision {
	return d.CanRebalance(shard, alloc)
}

func (*SnapshotInProgress) CanRebalance(shard model.ShardRouting, alloc *allocation.RoutingAllocation) allocation.Decision {
	if shard.Primary && shard.Active() && alloc.State().IsSnapshotting(shard.ShardID) {
		return allocation.ThrottleDecision(SnapshotInProgressName,
			"waiting for the snapshot of shard %s on node [%s] to complete", shard.ShardID, shard.CurrentNodeID)
	}
	return allocation.YesDecision(SnapshotInProgressName, "shard is not being snapshotted")
}
