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
	"encoding/json"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var ErrUnknownFormat = errors.New("unknown snapshot format")

// FormatOf guesses the format of a snapshot file from its extension.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

type ShardSize struct {
	Index string `json:"index" yaml:"index"`
	Shard int    `json:"shard" yaml:"shard"`
	Bytes int64  `json:"bytes" yaml:"bytes"`
}

// Snapshot is the serialized form of a cluster state.
type Snapshot struct {
	Version    int64                      `json:"version" yaml:"version"`
	Nodes      []model.DiscoveryNode      `json:"nodes" yaml:"nodes"`
	Indices    []model.IndexMetadata      `json:"indices" yaml:"indices"`
	Shards     []model.ShardRouting       `json:"shards,omitempty" yaml:"shards,omitempty"`
	DiskUsage  map[string]model.DiskUsage `json:"diskUsage,omitempty" yaml:"diskUsage,omitempty"`
	ShardSizes []ShardSize                `json:"shardSizes,omitempty" yaml:"shardSizes,omitempty"`
	Restores   []RestoreInProgress        `json:"restores,omitempty" yaml:"restores,omitempty"`
	Snapshots  []SnapshotInProgress       `json:"snapshots,omitempty" yaml:"snapshots,omitempty"`
}

func (s Snapshot) ToState() (*State, error) {
	var rt *routing.RoutingTable
	if len(s.Shards) > 0 {
		var err error
		if rt, err = routing.NewRoutingTable(s.Version, s.Shards); err != nil {
			return nil, err
		}
	}
	info := model.ClusterInfo{
		NodeDiskUsage: s.DiskUsage,
		ShardSizes:    make(map[model.ShardID]int64, len(s.ShardSizes)),
	}
	for _, size := range s.ShardSizes {
		info.ShardSizes[model.ShardID{Index: size.Index, Shard: size.Shard}] = size.Bytes
	}
	return NewState(Options{
		Version:      s.Version,
		Nodes:        s.Nodes,
		Indices:      s.Indices,
		RoutingTable: rt,
		Info:         info,
		Restores:     s.Restores,
		Snapshots:    s.Snapshots,
	})
}

func (s *State) ToSnapshot() Snapshot {
	res := Snapshot{
		Version:   s.version,
		Nodes:     s.Nodes(),
		Indices:   s.Indices(),
		Shards:    s.routing.AllShards(),
		Restores:  s.Restores(),
		Snapshots: s.Snapshots(),
	}
	if len(s.info.NodeDiskUsage) > 0 {
		res.DiskUsage = s.info.Clone().NodeDiskUsage
	}
	for id, bytes := range s.info.ShardSizes {
		res.ShardSizes = append(res.ShardSizes, ShardSize{Index: id.Index, Shard: id.Shard, Bytes: bytes})
	}
	sort.Slice(res.ShardSizes, func(i, j int) bool {
		a, b := res.ShardSizes[i], res.ShardSizes[j]
		return model.ShardID{Index: a.Index, Shard: a.Shard}.Compare(model.ShardID{Index: b.Index, Shard: b.Shard}) < 0
	})
	return res
}

func ReadSnapshot(r io.Reader, format Format) (Snapshot, error) {
	var s Snapshot
	var err error
	switch format {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&s)
	case FormatJSON:
		d := json.NewDecoder(r)
		d.DisallowUnknownFields()
		err = d.Decode(&s)
	default:
		return s, errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	if err != nil {
		return s, errors.Wrap(err, "failed to decode cluster snapshot")
	}
	return s, nil
}

func WriteSnapshot(w io.Writer, format Format, s Snapshot) error {
	switch format {
	case FormatYAML:
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		if err := e.Encode(s); err != nil {
			return errors.Wrap(err, "failed to encode cluster snapshot")
		}
		return e.Close()
	case FormatJSON:
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return errors.Wrap(e.Encode(s), "failed to encode cluster snapshot")
	}
	return errors.Wrapf(ErrUnknownFormat, "%q", format)
}
