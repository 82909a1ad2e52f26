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

type UnassignedReason uint16

const (
	UnassignedReasonIndexCreated UnassignedReason = iota
	UnassignedReasonClusterRecovered
	UnassignedReasonReplicaAdded
	UnassignedReasonNodeLeft
	UnassignedReasonAllocationFailed
	UnassignedReasonReinitialized
	UnassignedReasonSnapshotRestore
)

var unassignedReasonToString = map[UnassignedReason]string{
	UnassignedReasonIndexCreated:     "INDEX_CREATED",
	UnassignedReasonClusterRecovered: "CLUSTER_RECOVERED",
	UnassignedReasonReplicaAdded:     "REPLICA_ADDED",
	UnassignedReasonNodeLeft:         "NODE_LEFT",
	UnassignedReasonAllocationFailed: "ALLOCATION_FAILED",
	UnassignedReasonReinitialized:    "REINITIALIZED",
	UnassignedReasonSnapshotRestore:  "SNAPSHOT_RESTORE",
}

var toUnassignedReason = invert(unassignedReasonToString)

func (r UnassignedReason) String() string {
	return unassignedReasonToString[r]
}

func (r UnassignedReason) MarshalText() ([]byte, error) {
	return marshalEnum(unassignedReasonToString, r)
}

func (r *UnassignedReason) UnmarshalText(b []byte) error {
	return unmarshalEnum(toUnassignedReason, b, r)
}

// AllocationStatus is the outcome of the last attempt to allocate an
// unassigned shard.
type AllocationStatus uint16

const (
	AllocationStatusNoAttempt AllocationStatus = iota
	AllocationStatusDecidersNo
	AllocationStatusDecidersThrottled
)

var allocationStatusToString = map[AllocationStatus]string{
	AllocationStatusNoAttempt:         "NO_ATTEMPT",
	AllocationStatusDecidersNo:        "DECIDERS_NO",
	AllocationStatusDecidersThrottled: "DECIDERS_THROTTLED",
}

var toAllocationStatus = invert(allocationStatusToString)

func (s AllocationStatus) String() string {
	return allocationStatusToString[s]
}

func (s AllocationStatus) MarshalText() ([]byte, error) {
	return marshalEnum(allocationStatusToString, s)
}

func (s *AllocationStatus) UnmarshalText(b []byte) error {
	return unmarshalEnum(toAllocationStatus, b, s)
}

// UnassignedInfo records why a copy is unassigned and how allocating it
// went so far.
type UnassignedInfo struct {
	Reason               UnassignedReason `json:"reason" yaml:"reason"`
	Message              string           `json:"message,omitempty" yaml:"message,omitempty"`
	FailedAllocations    int              `json:"failedAllocations,omitempty" yaml:"failedAllocations,omitempty"`
	FailedNodeIDs        []string         `json:"failedNodeIds,omitempty" yaml:"failedNodeIds,omitempty"`
	LastAllocationStatus AllocationStatus `json:"lastAllocationStatus" yaml:"lastAllocationStatus"`
}

func (u *UnassignedInfo) Clone() *UnassignedInfo {
	if u == nil {
		return nil
	}
	c := *u
	if u.FailedNodeIDs != nil {
		c.FailedNodeIDs = append([]string(nil), u.FailedNodeIDs...)
	}
	return &c
}
