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
	"github.com/pkg/errors"

	"github.com/streamnative/shardalloc/coordinator/policies"
)

var ErrInvalidIndex = errors.New("invalid index metadata")

type IndexMetadata struct {
	Name             string `json:"name" yaml:"name"`
	NumberOfShards   int    `json:"numberOfShards" yaml:"numberOfShards"`
	NumberOfReplicas int    `json:"numberOfReplicas" yaml:"numberOfReplicas"`

	// CreationVersion orders indices by creation. Newer indices are
	// allocated first.
	CreationVersion int64 `json:"creationVersion" yaml:"creationVersion"`

	// Priority takes precedence over the creation order.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`

	// WriteLoadForecast is the expected write load of each copy.
	WriteLoadForecast *float64 `json:"writeLoadForecast,omitempty" yaml:"writeLoadForecast,omitempty"`

	// ShardSizeForecastBytes is used when the cluster info has no size for a shard.
	ShardSizeForecastBytes *int64 `json:"shardSizeForecastBytes,omitempty" yaml:"shardSizeForecastBytes,omitempty"`

	RoutingFilters     policies.FilterSettings `json:"routingFilters,omitempty" yaml:"routingFilters,omitempty"`
	TotalShardsPerNode *int                    `json:"totalShardsPerNode,omitempty" yaml:"totalShardsPerNode,omitempty"`
}

func (m IndexMetadata) Validate() error {
	if m.Name == "" {
		return errors.Wrap(ErrInvalidIndex, "index name must not be empty")
	}
	if m.NumberOfShards < 1 {
		return errors.Wrapf(ErrInvalidIndex, "index %s must have at least one shard", m.Name)
	}
	if m.NumberOfReplicas < 0 {
		return errors.Wrapf(ErrInvalidIndex, "index %s has a negative number of replicas", m.Name)
	}
	return nil
}

// TotalCopies is the number of copies of each shard, the primary included.
func (m IndexMetadata) TotalCopies() int {
	return 1 + m.NumberOfReplicas
}

func (m IndexMetadata) WriteLoad() float64 {
	if m.WriteLoadForecast == nil {
		return 0
	}
	return *m.WriteLoadForecast
}

// CompareAllocationPriority orders indices in the sequence in which their
// unassigned shards are allocated: higher priority first, then newer
// indices first, then by name.
func CompareAllocationPriority(a, b IndexMetadata) int {
	switch {
	case a.Priority != b.Priority:
		if a.Priority > b.Priority {
			return -1
		}
		return 1
	case a.CreationVersion != b.CreationVersion:
		if a.CreationVersion > b.CreationVersion {
			return -1
		}
		return 1
	case a.Name < b.Name:
		return -1
	case a.Name > b.Name:
		return 1
	}
	return 0
}
