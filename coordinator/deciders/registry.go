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
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/streamnative/shardalloc/common/collection"
	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/policies"
)

var ErrUnknownDecider = errors.New("unknown decider")

type factory func(s policies.DeciderSettings) allocation.Decider

var factories = map[string]factory{
	MaxRetryName: func(s policies.DeciderSettings) allocation.Decider {
		return NewMaxRetry(s.MaxRetries)
	},
	ReplicaAfterPrimaryName: func(s policies.DeciderSettings) allocation.Decider {
		return NewReplicaAfterPrimary(s.RequireActivePrimary)
	},
	EnableName: func(s policies.DeciderSettings) allocation.Decider {
		return NewEnable(s.Enable)
	},
	ClusterRebalanceName: func(s policies.DeciderSettings) allocation.Decider {
		return NewClusterRebalance(s.AllowRebalance)
	},
	ConcurrentRebalanceName: func(s policies.DeciderSettings) allocation.Decider {
		return NewConcurrentRebalance(s.ClusterConcurrentRebalance)
	},
	SameShardName: func(s policies.DeciderSettings) allocation.Decider {
		return NewSameShard(s.SameHost)
	},
	FilterName: func(s policies.DeciderSettings) allocation.Decider {
		return NewFilter(s.Filter)
	},
	AwarenessName: func(s policies.DeciderSettings) allocation.Decider {
		return NewAwareness(s.Awareness)
	},
	ShardsLimitName: func(s policies.DeciderSettings) allocation.Decider {
		return NewShardsLimit(s.TotalShardsPerNode)
	},
	DiskThresholdName: func(s policies.DeciderSettings) allocation.Decider {
		return NewDiskThreshold(s.Disk)
	},
	ThrottlingName: func(s policies.DeciderSettings) allocation.Decider {
		return NewThrottling(s.Throttling)
	},
	RestoreInProgressName: func(policies.DeciderSettings) allocation.Decider {
		return NewRestoreInProgress()
	},
	SnapshotInProgressName: func(policies.DeciderSettings) allocation.Decider {
		return NewSnapshotInProgress()
	},
}

// DefaultOrder lists every decider, the cheap and most often negative ones
// first.
var DefaultOrder = []string{
	MaxRetryName,
	ReplicaAfterPrimaryName,
	EnableName,
	ClusterRebalanceName,
	ConcurrentRebalanceName,
	SameShardName,
	FilterName,
	AwarenessName,
	ShardsLimitName,
	RestoreInProgressName,
	SnapshotInProgressName,
	DiskThresholdName,
	ThrottlingName,
}

// Names returns the registered decider names, sorted.
func Names() []string {
	names := collection.NewSet[string]()
	for name := range factories {
		names.Add(name)
	}
	return names.GetSorted()
}

// New builds the chain of the active deciders, in the configured order.
func New(settings policies.DeciderSettings) (*Chain, error) {
	active := settings.Active
	if len(active) == 0 {
		active = DefaultOrder
	}

	var err error
	seen := collection.NewSet[string]()
	chain := make([]allocation.Decider, 0, len(active))
	for _, name := range active {
		f, found := factories[name]
		if !found {
			err = multierr.Append(err, errors.Wrapf(ErrUnknownDecider, "%q", name))
			continue
		}
		if seen.Contains(name) {
			err = multierr.Append(err, errors.Wrapf(policies.ErrInvalidSettings, "decider %q is listed twice", name))
			continue
		}
		seen.Add(name)
		chain = append(chain, f(settings))
	}
	if err != nil {
		return nil, err
	}
	return NewChain(chain...), nil
}
