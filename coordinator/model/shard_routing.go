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

package model

import (
	"fmt"
	"strings"
)

// ShardID identifies a logical shard: all its copies share it.
type ShardID struct {
	Index string `json:"index" yaml:"index"`
	Shard int    `json:"shard" yaml:"shard"`
}

func (s ShardID) String() string {
	return fmt.Sprintf("[%s][%d]", s.Index, s.Shard)
}

func (s ShardID) Compare(o ShardID) int {
	if c := strings.Compare(s.Index, o.Index); c != 0 {
		return c
	}
	switch {
	case s.Shard < o.Shard:
		return -1
	case s.Shard > o.Shard:
		return 1
	}
	return 0
}

// ShardIDComparator orders ShardID values in gods containers.
func ShardIDComparator(a, b any) int {
	return a.(ShardID).Compare(b.(ShardID)) //nolint:revive
}

// ShardRouting is one copy of a shard. Values are treated as immutable: the
// transition methods return a modified copy.
type ShardRouting struct {
	ShardID          ShardID         `json:"shardId" yaml:"shardId"`
	Primary          bool            `json:"primary" yaml:"primary"`
	State            ShardState      `json:"state" yaml:"state"`
	CurrentNodeID    string          `json:"currentNode,omitempty" yaml:"currentNode,omitempty"`
	RelocatingNodeID string          `json:"relocatingNode,omitempty" yaml:"relocatingNode,omitempty"`
	AllocationID     string          `json:"allocationId,omitempty" yaml:"allocationId,omitempty"`
	RelocationID     string          `json:"relocationId,omitempty" yaml:"relocationId,omitempty"`
	RecoverySource   RecoverySource  `json:"recoverySource" yaml:"recoverySource"`
	UnassignedInfo   *UnassignedInfo `json:"unassignedInfo,omitempty" yaml:"unassignedInfo,omitempty"`
}

// NewUnassignedShard creates a copy of a shard which was never allocated.
func NewUnassignedShard(id ShardID, primary bool, source RecoverySource, info *UnassignedInfo) ShardRouting {
	return ShardRouting{
		ShardID:        id,
		Primary:        primary,
		State:          ShardStateUnassigned,
		RecoverySource: source,
		UnassignedInfo: info,
	}
}

func (s ShardRouting) Unassigned() bool {
	return s.State == ShardStateUnassigned
}

func (s ShardRouting) Initializing() bool {
	return s.State == ShardStateInitializing
}

func (s ShardRouting) Started() bool {
	return s.State == ShardStateStarted
}

func (s ShardRouting) Relocating() bool {
	return s.State == ShardStateRelocating
}

// Active copies serve requests: they are either started or relocating away.
func (s ShardRouting) Active() bool {
	return s.Started() || s.Relocating()
}

func (s ShardRouting) Assigned() bool {
	return s.CurrentNodeID != ""
}

// IsRelocationTarget reports whether the copy is the initializing half of a
// relocation.
func (s ShardRouting) IsRelocationTarget() bool {
	return s.Initializing() && s.RelocatingNodeID != ""
}

// IsSameAllocation reports whether both values describe the same assigned copy.
func (s ShardRouting) IsSameAllocation(o ShardRouting) bool {
	return s.ShardID == o.ShardID && s.AllocationID != "" && s.AllocationID == o.AllocationID
}

// TargetRelocatingShard returns the initializing copy that a relocating
// copy is moving to.
func (s ShardRouting) TargetRelocatingShard() ShardRouting {
	return ShardRouting{
		ShardID:          s.ShardID,
		Primary:          s.Primary,
		State:            ShardStateInitializing,
		CurrentNodeID:    s.RelocatingNodeID,
		RelocatingNodeID: s.CurrentNodeID,
		AllocationID:     s.RelocationID,
		RelocationID:     s.AllocationID,
		RecoverySource:   RecoverySourcePeer,
	}
}

// Initialize assigns an unassigned copy to a node. The unassigned info is
// retained until the copy starts, so that a failed recovery keeps counting
// towards the retry limit.
func (s ShardRouting) Initialize(nodeID string, allocationID string) ShardRouting {
	s.State = ShardStateInitializing
	s.CurrentNodeID = nodeID
	s.AllocationID = allocationID
	s.UnassignedInfo = s.UnassignedInfo.Clone()
	return s
}

func (s ShardRouting) Relocate(targetNodeID string, relocationID string) ShardRouting {
	s.State = ShardStateRelocating
	s.RelocatingNodeID = targetNodeID
	s.RelocationID = relocationID
	s.UnassignedInfo = nil
	return s
}

func (s ShardRouting) CancelRelocation() ShardRouting {
	s.State = ShardStateStarted
	s.RelocatingNodeID = ""
	s.RelocationID = ""
	return s
}

func (s ShardRouting) MoveToStarted() ShardRouting {
	s.State = ShardStateStarted
	s.RelocatingNodeID = ""
	s.RelocationID = ""
	s.UnassignedInfo = nil
	if s.Primary {
		s.RecoverySource = RecoverySourceExistingStore
	} else {
		s.RecoverySource = RecoverySourcePeer
	}
	return s
}

func (s ShardRouting) MoveToUnassigned(info *UnassignedInfo) ShardRouting {
	s.State = ShardStateUnassigned
	s.CurrentNodeID = ""
	s.RelocatingNodeID = ""
	s.AllocationID = ""
	s.RelocationID = ""
	s.UnassignedInfo = info
	if !s.Primary {
		s.RecoverySource = RecoverySourcePeer
	}
	return s
}

func (s ShardRouting) MoveToPrimary() ShardRouting {
	s.Primary = true
	return s
}

func (s ShardRouting) MoveToReplica() ShardRouting {
	s.Primary = false
	s.RecoverySource = RecoverySourcePeer
	return s
}

func (s ShardRouting) String() string {
	var b strings.Builder
	b.WriteString(s.ShardID.String())
	b.WriteString(", node[")
	b.WriteString(s.CurrentNodeID)
	b.WriteString("]")
	if s.RelocatingNodeID != "" {
		if s.Relocating() {
			b.WriteString(" relocating to [")
		} else {
			b.WriteString(" relocating from [")
		}
		b.WriteString(s.RelocatingNodeID)
		b.WriteString("]")
	}
	if s.Primary {
		b.WriteString(", [P]")
	} else {
		b.WriteString(", [R]")
	}
	b.WriteString(", s[")
	b.WriteString(s.State.String())
	b.WriteString("]")
	if s.UnassignedInfo != nil && s.UnassignedInfo.FailedAllocations > 0 {
		fmt.Fprintf(&b, ", failed_attempts[%d]", s.UnassignedInfo.FailedAllocations)
	}
	return b.String()
}
