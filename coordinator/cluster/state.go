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

package cluster

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

var (
	ErrInvalidState = errors.New("invalid cluster state")
	ErrUnknownNode  = errors.New("unknown node")
	ErrUnknownIndex = errors.New("unknown index")
)

// RestoreInProgress lists the indices a running snapshot restore is
// recovering, and the shards it failed to restore.
type RestoreInProgress struct {
	Snapshot     string          `json:"snapshot" yaml:"snapshot"`
	Indices      []string        `json:"indices" yaml:"indices"`
	FailedShards []model.ShardID `json:"failedShards,omitempty" yaml:"failedShards,omitempty"`
}

// SnapshotInProgress lists the shards a running snapshot is copying.
type SnapshotInProgress struct {
	Snapshot string          `json:"snapshot" yaml:"snapshot"`
	Shards   []model.ShardID `json:"shards" yaml:"shards"`
}

// State is the immutable input of an allocation pass.
type State struct {
	version   int64
	nodes     []model.DiscoveryNode
	nodeIndex map[string]int
	indices   map[string]model.IndexMetadata
	routing   *routing.RoutingTable
	info      model.ClusterInfo
	restores  []RestoreInProgress
	snapshots []SnapshotInProgress
}

type Options struct {
	Version      int64
	Nodes        []model.DiscoveryNode
	Indices      []model.IndexMetadata
	RoutingTable *routing.RoutingTable
	Info         model.ClusterInfo
	Restores     []RestoreInProgress
	Snapshots    []SnapshotInProgress
}

// NewState validates and assembles a cluster state. Indices which have no
// copies in the routing table get unassigned copies, as on index creation.
func NewState(o Options) (*State, error) {
	s := &State{
		version:   o.Version,
		nodes:     append([]model.DiscoveryNode(nil), o.Nodes...),
		nodeIndex: make(map[string]int, len(o.Nodes)),
		indices:   make(map[string]model.IndexMetadata, len(o.Indices)),
		routing:   o.RoutingTable,
		info:      o.Info.Clone(),
		restores:  append([]RestoreInProgress(nil), o.Restores...),
		snapshots: append([]SnapshotInProgress(nil), o.Snapshots...),
	}
	if s.routing == nil {
		s.routing = routing.EmptyRoutingTable()
	}

	sort.Slice(s.nodes, func(i, j int) bool { return s.nodes[i].ID < s.nodes[j].ID })
	for i, n := range s.nodes {
		if n.ID == "" {
			return nil, errors.Wrap(ErrInvalidState, "node id must not be empty")
		}
		if _, found := s.nodeIndex[n.ID]; found {
			return nil, errors.Wrapf(ErrInvalidState, "duplicate node %s", n.ID)
		}
		s.nodeIndex[n.ID] = i
	}

	for _, m := range o.Indices {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, found := s.indices[m.Name]; found {
			return nil, errors.Wrapf(ErrInvalidState, "duplicate index %s", m.Name)
		}
		s.indices[m.Name] = m
	}

	for _, m := range s.Indices() {
		if s.routing.HasIndex(m.Name) {
			continue
		}
		source := model.RecoverySourceEmptyStore
		if s.isRestoringIndex(m.Name) {
			source = model.RecoverySourceSnapshot
		}
		rt, err := s.routing.AddIndex(m, source)
		if err != nil {
			return nil, err
		}
		s.routing = rt
	}

	if err := s.validateRouting(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) validateRouting() error {
	copies := map[model.ShardID]int{}
	for _, shard := range s.routing.AllShards() {
		m, ok := s.indices[shard.ShardID.Index]
		if !ok {
			return errors.Wrapf(ErrUnknownIndex, "routing table references %s", shard.ShardID)
		}
		if shard.ShardID.Shard < 0 || shard.ShardID.Shard >= m.NumberOfShards {
			return errors.Wrapf(ErrInvalidState, "%s is out of range for index %s with %d shards",
				shard.ShardID, m.Name, m.NumberOfShards)
		}
		copies[shard.ShardID]++
		for _, nodeID := range []string{shard.CurrentNodeID, shard.RelocatingNodeID} {
			if _, known := s.nodeIndex[nodeID]; nodeID != "" && !known {
				return errors.Wrapf(ErrUnknownNode, "%s is assigned to node %s", shard, nodeID)
			}
		}
	}
	for _, m := range s.indices {
		for shard := 0; shard < m.NumberOfShards; shard++ {
			id := model.ShardID{Index: m.Name, Shard: shard}
			if copies[id] != m.TotalCopies() {
				return errors.Wrapf(ErrInvalidState, "%s has %d copies, expected %d", id, copies[id], m.TotalCopies())
			}
		}
	}
	return nil
}

func (s *State) Version() int64 {
	return s.version
}

// Nodes returns the data nodes ordered by id.
func (s *State) Nodes() []model.DiscoveryNode {
	return append([]model.DiscoveryNode(nil), s.nodes...)
}

func (s *State) NodeIDs() []string {
	ids := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		ids[i] = n.ID
	}
	return ids
}

func (s *State) Node(id string) (model.DiscoveryNode, bool) {
	i, ok := s.nodeIndex[id]
	if !ok {
		return model.DiscoveryNode{}, false
	}
	return s.nodes[i], true
}

// Indices returns the index metadata ordered by name.
func (s *State) Indices() []model.IndexMetadata {
	res := make([]model.IndexMetadata, 0, len(s.indices))
	for _, m := range s.indices {
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

func (s *State) Index(name string) (model.IndexMetadata, bool) {
	m, ok := s.indices[name]
	return m, ok
}

func (s *State) RoutingTable() *routing.RoutingTable {
	return s.routing
}

func (s *State) Info() model.ClusterInfo {
	return s.info
}

func (s *State) Restores() []RestoreInProgress {
	return append([]RestoreInProgress(nil), s.restores...)
}

func (s *State) Snapshots() []SnapshotInProgress {
	return append([]SnapshotInProgress(nil), s.snapshots...)
}

// IsRestoring reports whether a running restore is still recovering the shard.
func (s *State) IsRestoring(id model.ShardID) bool {
	for _, r := range s.restores {
		if !contains(r.Indices, id.Index) {
			continue
		}
		failed := false
		for _, f := range r.FailedShards {
			if f == id {
				failed = true
				break
			}
		}
		if !failed {
			return true
		}
	}
	return false
}

func (s *State) isRestoringIndex(index string) bool {
	for _, r := range s.restores {
		if contains(r.Indices, index) {
			return true
		}
	}
	return false
}

// IsSnapshotting reports whether a running snapshot is copying the shard.
func (s *State) IsSnapshotting(id model.ShardID) bool {
	for _, snap := range s.snapshots {
		for _, shard := range snap.Shards {
			if shard == id {
				return true
			}
		}
	}
	return false
}

// WithRoutingTable returns the state produced by an allocation pass. The
// receiver is returned as is when the table did not change.
func (s *State) WithRoutingTable(rt *routing.RoutingTable) *State {
	if rt == s.routing {
		return s
	}
	res := s.clone()
	res.routing = rt
	res.version++
	return res
}

// WithInfo replaces the sampled cluster info.
func (s *State) WithInfo(info model.ClusterInfo) *State {
	res := s.clone()
	res.info = info.Clone()
	res.version++
	return res
}

// WithoutNodes removes nodes which left the cluster and unassigns their copies.
func (s *State) WithoutNodes(ids ...string) (*State, error) {
	rt := s.routing
	remaining := make([]model.DiscoveryNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		if !contains(ids, n.ID) {
			remaining = append(remaining, n)
			continue
		}
		var err error
		if rt, err = rt.RemoveNode(n.ID); err != nil {
			return nil, err
		}
	}
	return NewState(Options{
		Version:      s.version + 1,
		Nodes:        remaining,
		Indices:      s.Indices(),
		RoutingTable: rt,
		Info:         s.info,
		Restores:     s.restores,
		Snapshots:    s.snapshots,
	})
}

// WithNodes adds nodes which joined the cluster, or updates their attributes.
func (s *State) WithNodes(nodes ...model.DiscoveryNode) (*State, error) {
	merged := map[string]model.DiscoveryNode{}
	for _, n := range s.nodes {
		merged[n.ID] = n
	}
	for _, n := range nodes {
		merged[n.ID] = n
	}
	all := make([]model.DiscoveryNode, 0, len(merged))
	for _, n := range merged {
		all = append(all, n)
	}
	return NewState(Options{
		Version:      s.version + 1,
		Nodes:        all,
		Indices:      s.Indices(),
		RoutingTable: s.routing,
		Info:         s.info,
		Restores:     s.restores,
		Snapshots:    s.snapshots,
	})
}

// WithIndex creates a new index whose copies are all unassigned.
func (s *State) WithIndex(m model.IndexMetadata) (*State, error) {
	if _, found := s.indices[m.Name]; found {
		return nil, errors.Wrapf(ErrInvalidState, "index %s already exists", m.Name)
	}
	return NewState(Options{
		Version:      s.version + 1,
		Nodes:        s.nodes,
		Indices:      append(s.Indices(), m),
		RoutingTable: s.routing,
		Info:         s.info,
		Restores:     s.restores,
		Snapshots:    s.snapshots,
	})
}

func (s *State) clone() *State {
	c := *s
	return &c
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
