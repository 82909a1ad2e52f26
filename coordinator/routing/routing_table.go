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
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"

	"github.com/streamnative/shardalloc/coordinator/model"
)

var (
	ErrShardNotFound      = errors.New("shard copy not found")
	ErrIllegalState       = errors.New("illegal shard state transition")
	ErrInvariantViolation = errors.New("routing invariant violated")
	ErrIndexExists        = errors.New("index already exists in the routing table")
)

var allocationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("shardalloc/allocation-id"))

// newAllocationID derives the id of a new copy from its placement, so that
// identical passes over identical inputs produce identical tables.
func newAllocationID(id model.ShardID, primary bool, nodeID string, version int64, op string) string {
	key := fmt.Sprintf("%s/%d/%t/%s/%d/%s", id.Index, id.Shard, primary, nodeID, version, op)
	return uuid.NewSHA1(allocationNamespace, []byte(key)).String()
}

// RoutingTable is an immutable snapshot of the placement of every shard copy.
// Every mutation returns a new table and leaves the receiver untouched.
//
// Relocation targets are not stored: a RELOCATING copy implies an
// INITIALIZING copy on its target node.
type RoutingTable struct {
	version int64
	groups  map[model.ShardID][]model.ShardRouting
	ids     []model.ShardID
}

func EmptyRoutingTable() *RoutingTable {
	return &RoutingTable{groups: map[model.ShardID][]model.ShardRouting{}}
}

// NewRoutingTable builds a table from a flat list of copies. Missing
// allocation ids of assigned copies are filled in deterministically.
func NewRoutingTable(version int64, shards []model.ShardRouting) (*RoutingTable, error) {
	t := &RoutingTable{
		version: version,
		groups:  make(map[model.ShardID][]model.ShardRouting),
	}
	for _, s := range shards {
		if s.Assigned() && s.AllocationID == "" {
			s.AllocationID = newAllocationID(s.ShardID, s.Primary, s.CurrentNodeID, version, "existing")
		}
		if s.Relocating() && s.RelocationID == "" {
			s.RelocationID = newAllocationID(s.ShardID, s.Primary, s.RelocatingNodeID, version, "existing-relocation")
		}
		s.UnassignedInfo = s.UnassignedInfo.Clone()
		t.groups[s.ShardID] = append(t.groups[s.ShardID], s)
	}
	for id, group := range t.groups {
		sortGroup(group)
		t.groups[id] = group
	}
	t.ids = sortedIDs(t.groups)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *RoutingTable) Version() int64 {
	return t.version
}

// ShardIDs returns every shard id ordered by index name and shard number.
func (t *RoutingTable) ShardIDs() []model.ShardID {
	return append([]model.ShardID(nil), t.ids...)
}

func (t *RoutingTable) HasIndex(index string) bool {
	i := sort.Search(len(t.ids), func(i int) bool { return t.ids[i].Index >= index })
	return i < len(t.ids) && t.ids[i].Index == index
}

// Copies returns the stored copies of a shard, primary first.
func (t *RoutingTable) Copies(id model.ShardID) []model.ShardRouting {
	return append([]model.ShardRouting(nil), t.groups[id]...)
}

func (t *RoutingTable) Primary(id model.ShardID) (model.ShardRouting, bool) {
	for _, s := range t.groups[id] {
		if s.Primary {
			return s, true
		}
	}
	return model.ShardRouting{}, false
}

// AllShards returns every stored copy in canonical order.
func (t *RoutingTable) AllShards() []model.ShardRouting {
	var res []model.ShardRouting
	for _, id := range t.ids {
		res = append(res, t.groups[id]...)
	}
	return res
}

// AssignedShards returns every copy on a node, with the relocation targets
// materialized.
func (t *RoutingTable) AssignedShards() []model.ShardRouting {
	var res []model.ShardRouting
	for _, id := range t.ids {
		for _, s := range t.groups[id] {
			if s.Assigned() {
				res = append(res, s)
			}
			if s.Relocating() {
				res = append(res, s.TargetRelocatingShard())
			}
		}
	}
	return res
}

func (t *RoutingTable) ShardsWithState(states ...model.ShardState) []model.ShardRouting {
	var res []model.ShardRouting
	for _, s := range t.AllShards() {
		for _, state := range states {
			if s.State == state {
				res = append(res, s)
				break
			}
		}
	}
	return res
}

// AddIndex creates the unassigned copies of a new index.
func (t *RoutingTable) AddIndex(meta model.IndexMetadata, source model.RecoverySource) (*RoutingTable, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if t.HasIndex(meta.Name) {
		return nil, errors.Wrap(ErrIndexExists, meta.Name)
	}
	reason := model.UnassignedReasonIndexCreated
	if source == model.RecoverySourceSnapshot {
		reason = model.UnassignedReasonSnapshotRestore
	}

	res := t.shallowCopy()
	for shard := 0; shard < meta.NumberOfShards; shard++ {
		id := model.ShardID{Index: meta.Name, Shard: shard}
		group := make([]model.ShardRouting, 0, meta.TotalCopies())
		group = append(group, model.NewUnassignedShard(id, true, source, &model.UnassignedInfo{Reason: reason}))
		for r := 0; r < meta.NumberOfReplicas; r++ {
			group = append(group, model.NewUnassignedShard(id, false, model.RecoverySourcePeer, &model.UnassignedInfo{Reason: reason}))
		}
		res.groups[id] = group
	}
	res.ids = sortedIDs(res.groups)
	res.version++
	return res, nil
}

func (t *RoutingTable) RemoveIndex(index string) *RoutingTable {
	if !t.HasIndex(index) {
		return t
	}
	res := t.shallowCopy()
	for id := range res.groups {
		if id.Index == index {
			delete(res.groups, id)
		}
	}
	res.ids = sortedIDs(res.groups)
	res.version++
	return res
}

// Initialize assigns an unassigned copy to a node.
func (t *RoutingTable) Initialize(shard model.ShardRouting, nodeID string) (*RoutingTable, error) {
	return t.mutate(func(n *RoutingNodes) error {
		_, err := n.Initialize(shard, nodeID)
		return err
	})
}

// Relocate starts moving a started copy to another node.
func (t *RoutingTable) Relocate(shard model.ShardRouting, targetNodeID string) (*RoutingTable, error) {
	return t.mutate(func(n *RoutingNodes) error {
		_, _, err := n.Relocate(shard, targetNodeID)
		return err
	})
}

// StartShard marks an initializing copy as started. Starting a relocation
// target completes the relocation and drops the source copy.
func (t *RoutingTable) StartShard(shard model.ShardRouting) (*RoutingTable, error) {
	return t.mutate(func(n *RoutingNodes) error {
		_, err := n.Start(shard)
		return err
	})
}

// CompleteRelocation starts the target of a relocating copy.
func (t *RoutingTable) CompleteRelocation(source model.ShardRouting) (*RoutingTable, error) {
	if !source.Relocating() {
		return nil, errors.Wrapf(ErrIllegalState, "%s is not relocating", source)
	}
	return t.StartShard(source.TargetRelocatingShard())
}

// FailShard reports a failed copy, which becomes unassigned and counts one
// more failed allocation attempt.
func (t *RoutingTable) FailShard(shard model.ShardRouting, message string) (*RoutingTable, error) {
	return t.mutate(func(n *RoutingNodes) error {
		return n.Fail(shard, model.UnassignedReasonAllocationFailed, message)
	})
}

// RemoveNode unassigns every copy held by a node which left the cluster.
func (t *RoutingTable) RemoveNode(nodeID string) (*RoutingTable, error) {
	return t.mutate(func(n *RoutingNodes) error {
		return n.RemoveNode(nodeID)
	})
}

func (t *RoutingTable) mutate(f func(n *RoutingNodes) error) (*RoutingTable, error) {
	n := NewRoutingNodes(t, nil)
	if err := f(n); err != nil {
		return nil, err
	}
	return n.Build(), nil
}

// Validate checks the structural invariants of the table.
func (t *RoutingTable) Validate() error {
	for _, id := range t.ids {
		if err := validateGroup(id, t.groups[id]); err != nil {
			return err
		}
	}
	return nil
}

func validateGroup(id model.ShardID, group []model.ShardRouting) error {
	primaries := 0
	nodes := map[string]struct{}{}
	occupy := func(nodeID string, s model.ShardRouting) error {
		if _, found := nodes[nodeID]; found {
			return errors.Wrapf(ErrInvariantViolation, "%s has more than one copy on node %s", id, nodeID)
		}
		nodes[nodeID] = struct{}{}
		return nil
	}
	for _, s := range group {
		if s.ShardID != id {
			return errors.Wrapf(ErrInvariantViolation, "%s is grouped under %s", s, id)
		}
		if s.Primary {
			primaries++
		}
		switch s.State {
		case model.ShardStateUnassigned:
			if s.Assigned() || s.RelocatingNodeID != "" {
				return errors.Wrapf(ErrInvariantViolation, "unassigned copy %s has a node", s)
			}
		case model.ShardStateInitializing, model.ShardStateStarted:
			if !s.Assigned() {
				return errors.Wrapf(ErrInvariantViolation, "%s has no node", s)
			}
			if s.RelocatingNodeID != "" {
				return errors.Wrapf(ErrInvariantViolation, "%s must be represented by its relocating source", s)
			}
			if err := occupy(s.CurrentNodeID, s); err != nil {
				return err
			}
		case model.ShardStateRelocating:
			if !s.Assigned() || s.RelocatingNodeID == "" || s.RelocatingNodeID == s.CurrentNodeID {
				return errors.Wrapf(ErrInvariantViolation, "relocating copy %s needs distinct source and target nodes", s)
			}
			if err := occupy(s.CurrentNodeID, s); err != nil {
				return err
			}
			if err := occupy(s.RelocatingNodeID, s); err != nil {
				return err
			}
		default:
			return errors.Wrapf(ErrInvariantViolation, "%s has an unknown state", s)
		}
	}
	if primaries != 1 {
		return errors.Wrapf(ErrInvariantViolation, "%s has %d primaries", id, primaries)
	}
	return nil
}

// Fingerprint hashes the content of the table, the version excluded.
func (t *RoutingTable) Fingerprint() uint64 {
	h := xxh3.New()
	write := func(v string) {
		_, _ = h.WriteString(v)
		_, _ = h.Write([]byte{0})
	}
	for _, id := range t.ids {
		for _, s := range t.groups[id] {
			write(id.Index)
			write(strconv.Itoa(id.Shard))
			write(strconv.FormatBool(s.Primary))
			write(s.State.String())
			write(s.CurrentNodeID)
			write(s.RelocatingNodeID)
			write(s.AllocationID)
			write(s.RelocationID)
			write(s.RecoverySource.String())
			if u := s.UnassignedInfo; u != nil {
				write(u.Reason.String())
				write(u.Message)
				write(strconv.Itoa(u.FailedAllocations))
				write(u.LastAllocationStatus.String())
				for _, n := range u.FailedNodeIDs {
					write(n)
				}
			}
			write("|")
		}
	}
	return h.Sum64()
}

func (t *RoutingTable) shallowCopy() *RoutingTable {
	groups := make(map[model.ShardID][]model.ShardRouting, len(t.groups))
	for id, g := range t.groups {
		groups[id] = g
	}
	return &RoutingTable{version: t.version, groups: groups, ids: t.ids}
}

func sortedIDs(groups map[model.ShardID][]model.ShardRouting) []model.ShardID {
	ids := make([]model.ShardID, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids
}

// sortGroup puts the primary first, then assigned copies by node, then
// unassigned copies.
func sortGroup(group []model.ShardRouting) {
	sort.SliceStable(group, func(i, j int) bool {
		a, b := group[i], group[j]
		if a.Primary != b.Primary {
			return a.Primary
		}
		if a.Assigned() != b.Assigned() {
			return a.Assigned()
		}
		return a.CurrentNodeID < b.CurrentNodeID
	})
}
