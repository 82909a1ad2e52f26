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

type DiskUsage struct {
	UsedBytes uint64 `json:"usedBytes" yaml:"usedBytes"`
	FreeBytes uint64 `json:"freeBytes" yaml:"freeBytes"`
}

func (d DiskUsage) TotalBytes() uint64 {
	return d.UsedBytes + d.FreeBytes
}

func (d DiskUsage) UsedPercent() float64 {
	total := d.TotalBytes()
	if total == 0 {
		return 0
	}
	return 100 * float64(d.UsedBytes) / float64(total)
}

// ClusterInfo is the resource usage sampled from the cluster, possibly stale.
type ClusterInfo struct {
	NodeDiskUsage map[string]DiskUsage
	ShardSizes    map[ShardID]int64
}

func (c ClusterInfo) DiskUsage(nodeID string) (DiskUsage, bool) {
	d, ok := c.NodeDiskUsage[nodeID]
	return d, ok
}

func (c ClusterInfo) ShardSize(id ShardID) (int64, bool) {
	s, ok := c.ShardSizes[id]
	return s, ok
}

func (c ClusterInfo) Clone() ClusterInfo {
	res := ClusterInfo{
		NodeDiskUsage: make(map[string]DiskUsage, len(c.NodeDiskUsage)),
		ShardSizes:    make(map[ShardID]int64, len(c.ShardSizes)),
	}
	for k, v := range c.NodeDiskUsage {
		res.NodeDiskUsage[k] = v
	}
	for k, v := range c.ShardSizes {
		res.ShardSizes[k] = v
	}
	return res
}
