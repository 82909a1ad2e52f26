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

package routing

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/streamnative/shardalloc/coordinator/model"
)

// RoutingNodes is the mutable working copy of a routing table used during a
// single allocation pass. It indexes copies by node and keeps the recovery
// counters the throttling deciders need. Shard groups are copied on first
// write, so the source table is never modified.
//
// RoutingNodes is not safe for concurrent use.
type RoutingNodes struct {
	base    *RoutingTable
	version int64
	groups  map[model.ShardID][]model.ShardRouting
	owned   map[model.ShardID]bool
	nodes   map[string]*RoutingNode

	incoming         map[string]int
	outgoing         map[string]int
	initialPrimaries map[string]int
	relocations      int

	changed bool
}

// NewRoutingNodes creates the working copy of a table. Every node in
// nodeIDs gets an entry, even when it holds no copy.
func NewRoutingNodes(table *RoutingTable, nodeIDs []string) *RoutingNodes {
	n := &RoutingNodes{
		base:    table,
		version: table.version,
		groups:  make(map[model.ShardID][]model.ShardRouting, len(table.groups)),
		owned:   make(map[model.ShardID]bool),
		nodes:   make(map[string]*RoutingNode, len(nodeIDs)),
	}
	for id, g := range table.groups {
		n.groups[id] = g
	}
	for _, id := range nodeIDs {
		n.nodes[id] = newRoutingNode(id)
	}
	for _, id := range table.ids {
		for _, s := range table.groups[id] {
			if s.Assigned() {
				n.node(s.CurrentNodeID).put(s)
			}
			if s.Relocating() {
				t := s.TargetRelocatingShard()
				n.node(t.CurrentNodeID).put(t)
			}
		}
	}
	n.recomputeRecoveries()
	return n
}

func (n *RoutingNodes) Version() int64 {
	return n.version
}

// Node returns the copies of a node, or nil for an unknown node.
func (n *RoutingNodes) Node(nodeID string) *RoutingNode {
	return n.nodes[nodeID]
}

func (n *RoutingNodes) NodeIDs() []string {
	ids := make([]string, 0, len(n.nodes))
	for id := range n.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (n *RoutingNodes) ShardIDs() []model.ShardID {
	return n.base.ShardIDs()
}

// Copies returns the stored copies of a shard. Relocation targets are
// represented by their source.
func (n *RoutingNodes) Copies(id model.ShardID) []model.ShardRouting {
	return append([]model.ShardRouting(nil), n.groups[id]...)
}

// AssignedCopies returns the copies of a shard which occupy a node,
// relocation targets included.
func (n *RoutingNodes) AssignedCopies(id model.ShardID) []model.ShardRouting {
	var res []model.ShardRouting
	for _, s := range n.groups[id] {
		if s.Assigned() {
			res = append(res, s)
		}
		if s.Relocating() {
			res = append(res, s.TargetRelocatingShard())
		}
	}
	return res
}

func (n *RoutingNodes) Primary(id model.ShardID) (model.ShardRouting, bool) {
	for _, s := range n.groups[id] {
		if s.Primary {
			return s, true
		}
	}
	return model.ShardRouting{}, false
}

func (n *RoutingNodes) ActivePrimary(id model.ShardID) (model.ShardRouting, bool) {
	p, ok := n.Primary(id)
	if !ok || !p.Active() {
		return model.ShardRouting{}, false
	}
	return p, true
}

// Unassigned returns the unassigned copies in canonical table order.
func (n *RoutingNodes) Unassigned() []model.ShardRouting {
	var res []model.ShardRouting
	for _, id := range n.base.ids {
		for _, s := range n.groups[id] {
			if s.Unassigned() {
				res = append(res, s)
			}
		}
	}
	return res
}

func (n *RoutingNodes) HasUnassignedShards() bool {
	return n.any(func(s model.ShardRouting) bool { return s.Unassigned() })
}

// HasInactiveShards reports copies which are unassigned or recovering.
// Relocation targets do not count: their source stays active.
func (n *RoutingNodes) HasInactiveShards() bool {
	return n.any(func(s model.ShardRouting) bool { return s.Unassigned() || s.Initializing() })
}

func (n *RoutingNodes) HasInactivePrimaries() bool {
	return n.any(func(s model.ShardRouting) bool { return s.Primary && !s.Active() })
}

func (n *RoutingNodes) any(f func(s model.ShardRouting) bool) bool {
	for _, g := range n.groups {
		for _, s := range g {
			if f(s) {
				return true
			}
		}
	}
	return false
}

// IncomingRecoveries counts the peer recoveries targeting a node.
func (n *RoutingNodes) IncomingRecoveries(nodeID string) int {
	return n.incoming[nodeID]
}

// OutgoingRecoveries counts the peer recoveries a node is the source of.
func (n *RoutingNodes) OutgoingRecoveries(nodeID string) int {
	return n.outgoing[nodeID]
}

// InitializingPrimaries counts the primaries recovering from their store on a node.
func (n *RoutingNodes) InitializingPrimaries(nodeID string) int {
	return n.initialPrimaries[nodeID]
}

func (n *RoutingNodes) RelocatingShards() int {
	return n.relocations
}

// RecoverySourceNode returns the node an initializing copy recovers from,
// or "" when it recovers from its own store.
func (n *RoutingNodes) RecoverySourceNode(s model.ShardRouting) string {
	if s.IsRelocationTarget() {
		return s.RelocatingNodeID
	}
	if s.Primary {
		return ""
	}
	if p, ok := n.Primary(s.ShardID); ok && p.Assigned() {
		return p.CurrentNodeID
	}
	return ""
}

// Initialize assigns an unassigned copy of the shard to a node.
func (n *RoutingNodes) Initialize(shard model.ShardRouting, nodeID string) (model.ShardRouting, error) {
	if !shard.Unassigned() {
		return model.ShardRouting{}, errors.Wrapf(ErrIllegalState, "cannot initialize %s", shard)
	}
	idx := n.indexOf(shard.ShardID, func(s model.ShardRouting) bool {
		return s.Unassigned() && s.Primary == shard.Primary
	})
	if idx < 0 {
		return model.ShardRouting{}, errors.Wrapf(ErrShardNotFound, "no unassigned copy of %s", shard)
	}
	target := n.node(nodeID)
	if existing, found := target.Shard(shard.ShardID); found {
		return model.ShardRouting{}, errors.Wrapf(ErrInvariantViolation, "node %s already holds %s", nodeID, existing)
	}

	group := n.writableGroup(shard.ShardID)
	initialized := group[idx].Initialize(nodeID, newAllocationID(shard.ShardID, shard.Primary, nodeID, n.version, "initialize"))
	group[idx] = initialized
	target.put(initialized)
	n.addRecovery(initialized)
	n.changed = true
	return initialized, nil
}

// Relocate moves a started copy to another node. It returns the relocating
// source and the initializing target.
func (n *RoutingNodes) Relocate(shard model.ShardRouting, targetNodeID string) (model.ShardRouting, model.ShardRouting, error) {
	idx := n.indexOfAllocation(shard)
	if idx < 0 {
		return model.ShardRouting{}, model.ShardRouting{}, errors.Wrapf(ErrShardNotFound, "%s", shard)
	}
	group := n.groups[shard.ShardID]
	current := group[idx]
	if !current.Started() {
		return model.ShardRouting{}, model.ShardRouting{}, errors.Wrapf(ErrIllegalState, "cannot relocate %s", current)
	}
	if current.CurrentNodeID == targetNodeID {
		return model.ShardRouting{}, model.ShardRouting{}, errors.Wrapf(ErrIllegalState, "%s is already on node %s", current, targetNodeID)
	}
	target := n.node(targetNodeID)
	if existing, found := target.Shard(shard.ShardID); found {
		return model.ShardRouting{}, model.ShardRouting{}, errors.Wrapf(ErrInvariantViolation, "node %s already holds %s", targetNodeID, existing)
	}

	source := current.Relocate(targetNodeID, newAllocationID(shard.ShardID, shard.Primary, targetNodeID, n.version, "relocate"))
	relocationTarget := source.TargetRelocatingShard()
	n.writableGroup(shard.ShardID)[idx] = source
	n.node(source.CurrentNodeID).put(source)
	target.put(relocationTarget)
	n.relocations++
	n.addRecovery(relocationTarget)
	n.changed = true
	return source, relocationTarget, nil
}

// Start marks an initializing copy as started. A started relocation target
// replaces its source.
func (n *RoutingNodes) Start(shard model.ShardRouting) (model.ShardRouting, error) {
	id := shard.ShardID
	if shard.IsRelocationTarget() {
		idx := n.indexOfRelocationSource(shard)
		if idx < 0 {
			return model.ShardRouting{}, errors.Wrapf(ErrShardNotFound, "no relocation source for %s", shard)
		}
		source := n.groups[id][idx]
		started := source.TargetRelocatingShard().MoveToStarted()
		n.node(source.CurrentNodeID).remove(id)
		n.node(started.CurrentNodeID).put(started)
		n.writableGroup(id)[idx] = started
		n.recomputeRecoveries()
		n.changed = true
		return started, nil
	}

	idx := n.indexOfAllocation(shard)
	if idx < 0 {
		return model.ShardRouting{}, errors.Wrapf(ErrShardNotFound, "%s", shard)
	}
	current := n.groups[id][idx]
	if !current.Initializing() {
		return model.ShardRouting{}, errors.Wrapf(ErrIllegalState, "cannot start %s", current)
	}
	started := current.MoveToStarted()
	n.writableGroup(id)[idx] = started
	n.node(started.CurrentNodeID).put(started)
	n.recomputeRecoveries()
	n.changed = true
	return started, nil
}

// Fail unassigns a copy. Allocation failures count towards the retry limit,
// other reasons do not. When an active primary fails an active replica is
// promoted in its place.
func (n *RoutingNodes) Fail(shard model.ShardRouting, reason model.UnassignedReason, message string) error {
	id := shard.ShardID
	if shard.IsRelocationTarget() {
		idx := n.indexOfRelocationSource(shard)
		if idx < 0 {
			return errors.Wrapf(ErrShardNotFound, "no relocation source for %s", shard)
		}
		restored := n.groups[id][idx].CancelRelocation()
		n.node(shard.CurrentNodeID).remove(id)
		n.node(restored.CurrentNodeID).put(restored)
		n.writableGroup(id)[idx] = restored
		n.recomputeRecoveries()
		n.changed = true
		return nil
	}

	idx := n.indexOfAllocation(shard)
	if idx < 0 {
		return errors.Wrapf(ErrShardNotFound, "%s", shard)
	}
	group := n.writableGroup(id)
	current := group[idx]
	if current.Relocating() {
		n.node(current.RelocatingNodeID).remove(id)
	}
	n.node(current.CurrentNodeID).remove(id)

	failed := current.MoveToUnassigned(failureInfo(current, reason, message))
	group[idx] = failed

	if current.Primary {
		if !n.promoteReplica(id, idx) {
			n.failRecoveringReplicas(id, message)
		}
	}
	n.recomputeRecoveries()
	n.changed = true
	return nil
}

// RemoveNode unassigns every copy held by a node, without counting the
// failures towards the retry limit.
func (n *RoutingNodes) RemoveNode(nodeID string) error {
	node, ok := n.nodes[nodeID]
	if !ok {
		return nil
	}
	message := fmt.Sprintf("node %s left the cluster", nodeID)
	for _, s := range node.Shards() {
		current, found := node.Shard(s.ShardID)
		if !found {
			continue
		}
		if err := n.Fail(current, model.UnassignedReasonNodeLeft, message); err != nil {
			return err
		}
	}
	delete(n.nodes, nodeID)
	n.changed = true
	return nil
}

// UpdateUnassigned records the outcome of an allocation attempt on every
// unassigned copy of a shard with the given role.
func (n *RoutingNodes) UpdateUnassigned(id model.ShardID, primary bool, status model.AllocationStatus) {
	for idx, s := range n.groups[id] {
		if !s.Unassigned() || s.Primary != primary {
			continue
		}
		if s.UnassignedInfo != nil && s.UnassignedInfo.LastAllocationStatus == status {
			continue
		}
		info := s.UnassignedInfo.Clone()
		if info == nil {
			info = &model.UnassignedInfo{Reason: model.UnassignedReasonClusterRecovered}
		}
		info.LastAllocationStatus = status
		s.UnassignedInfo = info
		n.writableGroup(id)[idx] = s
		n.changed = true
	}
}

// ResetFailedAllocations clears the failure counter of every unassigned
// copy and returns how many copies were reset.
func (n *RoutingNodes) ResetFailedAllocations() int {
	count := 0
	for _, id := range n.base.ids {
		for idx, s := range n.groups[id] {
			if !s.Unassigned() || s.UnassignedInfo == nil || s.UnassignedInfo.FailedAllocations == 0 {
				continue
			}
			info := s.UnassignedInfo.Clone()
			info.FailedAllocations = 0
			info.FailedNodeIDs = nil
			s.UnassignedInfo = info
			n.writableGroup(id)[idx] = s
			n.changed = true
			count++
		}
	}
	return count
}

// Build returns the table resulting from the mutations so far. Without any
// mutation the source table itself is returned.
func (n *RoutingNodes) Build() *RoutingTable {
	if !n.changed {
		return n.base
	}
	groups := make(map[model.ShardID][]model.ShardRouting, len(n.groups))
	for id, g := range n.groups {
		if n.owned[id] {
			sortGroup(g)
		}
		groups[id] = g
	}
	n.owned = make(map[model.ShardID]bool)
	return &RoutingTable{
		version: n.version + 1,
		groups:  groups,
		ids:     n.base.ids,
	}
}

func failureInfo(current model.ShardRouting, reason model.UnassignedReason, message string) *model.UnassignedInfo {
	info := &model.UnassignedInfo{Reason: reason, Message: message}
	if current.UnassignedInfo != nil {
		info.FailedAllocations = current.UnassignedInfo.FailedAllocations
		info.FailedNodeIDs = append(info.FailedNodeIDs, current.UnassignedInfo.FailedNodeIDs...)
	}
	if reason == model.UnassignedReasonAllocationFailed {
		info.FailedAllocations++
		info.FailedNodeIDs = append(info.FailedNodeIDs, current.CurrentNodeID)
	}
	return info
}

// promoteReplica turns the active replica on the lowest node id into the
// primary, and the failed primary at failedIdx into a replica.
func (n *RoutingNodes) promoteReplica(id model.ShardID, failedIdx int) bool {
	group := n.writableGroup(id)
	candidate := -1
	for i, s := range group {
		if s.Primary || !s.Active() {
			continue
		}
		if candidate < 0 || s.CurrentNodeID < group[candidate].CurrentNodeID {
			candidate = i
		}
	}
	if candidate < 0 {
		return false
	}
	promoted := group[candidate].MoveToPrimary()
	group[candidate] = promoted
	n.node(promoted.CurrentNodeID).put(promoted)
	if promoted.Relocating() {
		n.node(promoted.RelocatingNodeID).put(promoted.TargetRelocatingShard())
	}
	group[failedIdx] = group[failedIdx].MoveToReplica()
	return true
}

func (n *RoutingNodes) failRecoveringReplicas(id model.ShardID, message string) {
	group := n.writableGroup(id)
	for i, s := range group {
		if s.Primary || !s.Initializing() {
			continue
		}
		n.node(s.CurrentNodeID).remove(id)
		info := failureInfo(s, model.UnassignedReasonReinitialized, "primary failed: "+message)
		group[i] = s.MoveToUnassigned(info)
	}
}

func (n *RoutingNodes) node(nodeID string) *RoutingNode {
	node, ok := n.nodes[nodeID]
	if !ok {
		node = newRoutingNode(nodeID)
		n.nodes[nodeID] = node
	}
	return node
}

func (n *RoutingNodes) writableGroup(id model.ShardID) []model.ShardRouting {
	if !n.owned[id] {
		n.groups[id] = append([]model.ShardRouting(nil), n.groups[id]...)
		n.owned[id] = true
	}
	return n.groups[id]
}

func (n *RoutingNodes) indexOf(id model.ShardID, match func(s model.ShardRouting) bool) int {
	for i, s := range n.groups[id] {
		if match(s) {
			return i
		}
	}
	return -1
}

func (n *RoutingNodes) indexOfAllocation(shard model.ShardRouting) int {
	return n.indexOf(shard.ShardID, func(s model.ShardRouting) bool {
		return s.Assigned() && s.IsSameAllocation(shard)
	})
}

func (n *RoutingNodes) indexOfRelocationSource(target model.ShardRouting) int {
	return n.indexOf(target.ShardID, func(s model.ShardRouting) bool {
		return s.Relocating() && s.RelocationID == target.AllocationID && s.CurrentNodeID == target.RelocatingNodeID
	})
}

func (n *RoutingNodes) addRecovery(s model.ShardRouting) {
	if !s.Primary || s.IsRelocationTarget() {
		n.incoming[s.CurrentNodeID]++
		if source := n.RecoverySourceNode(s); source != "" {
			n.outgoing[source]++
		}
		return
	}
	n.initialPrimaries[s.CurrentNodeID]++
}

func (n *RoutingNodes) recomputeRecoveries() {
	n.incoming = make(map[string]int)
	n.outgoing = make(map[string]int)
	n.initialPrimaries = make(map[string]int)
	n.relocations = 0
	for _, g := range n.groups {
		for _, s := range g {
			switch {
			case s.Relocating():
				n.relocations++
				n.addRecovery(s.TargetRelocatingShard())
			case s.Initializing():
				n.addRecovery(s)
			}
		}
	}
}
