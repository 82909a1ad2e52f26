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

package policies

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var ErrInvalidSettings = errors.New("invalid allocation settings")

type AllowRebalance string

const (
	// AllowRebalanceAlways Rebalance regardless of the state of other shards.
	AllowRebalanceAlways AllowRebalance = "always"

	// AllowRebalanceIndicesPrimariesActive Rebalance once every primary is active.
	AllowRebalanceIndicesPrimariesActive AllowRebalance = "indices_primaries_active"

	// AllowRebalanceIndicesAllActive Rebalance once every shard copy is active.
	AllowRebalanceIndicesAllActive AllowRebalance = "indices_all_active"
)

type EnableAllocation string

const (
	EnableAllocationAll          EnableAllocation = "all"
	EnableAllocationPrimaries    EnableAllocation = "primaries"
	EnableAllocationNewPrimaries EnableAllocation = "new_primaries"
	EnableAllocationNone         EnableAllocation = "none"
)

type EnableRebalance string

const (
	EnableRebalanceAll       EnableRebalance = "all"
	EnableRebalancePrimaries EnableRebalance = "primaries"
	EnableRebalanceReplicas  EnableRebalance = "replicas"
	EnableRebalanceNone      EnableRebalance = "none"
)

// BalanceSettings configures the weight function and the rebalancing phase.
type BalanceSettings struct {
	// ShardBalanceFactor weighs the difference between the shard count of a node and the average.
	ShardBalanceFactor float64 `json:"shardBalanceFactor" yaml:"shardBalanceFactor" mapstructure:"shardBalanceFactor"`

	// DiskUsageBalanceFactor weighs the difference in projected disk bytes. Zero disables the term.
	DiskUsageBalanceFactor float64 `json:"diskUsageBalanceFactor" yaml:"diskUsageBalanceFactor" mapstructure:"diskUsageBalanceFactor"`

	// WriteLoadBalanceFactor weighs the difference in forecast write load. Zero disables the term.
	WriteLoadBalanceFactor float64 `json:"writeLoadBalanceFactor" yaml:"writeLoadBalanceFactor" mapstructure:"writeLoadBalanceFactor"`

	// Threshold is the minimum weight gap between two nodes worth a relocation.
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`

	// RebalanceMoveBudget caps the number of rebalancing relocations started by a single pass.
	RebalanceMoveBudget int `json:"rebalanceMoveBudget" yaml:"rebalanceMoveBudget" mapstructure:"rebalanceMoveBudget"`
}

type EnableSettings struct {
	Allocation EnableAllocation `json:"allocation" yaml:"allocation" mapstructure:"allocation"`
	Rebalance  EnableRebalance  `json:"rebalance" yaml:"rebalance" mapstructure:"rebalance"`
}

type DiskSettings struct {
	Enabled    bool      `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Low        Watermark `json:"low" yaml:"low" mapstructure:"low"`
	High       Watermark `json:"high" yaml:"high" mapstructure:"high"`
	FloodStage Watermark `json:"floodStage" yaml:"floodStage" mapstructure:"floodStage"`
}

// FilterSettings restricts the nodes a shard can live on by node attribute.
// Each map goes from attribute name to a comma separated list of values,
// and values may contain `*` wildcards. The `_id`, `_name` and `_host`
// pseudo-attributes match the node identity.
type FilterSettings struct {
	// Require every listed attribute to match one of its values.
	Require map[string]string `json:"require,omitempty" yaml:"require,omitempty" mapstructure:"require"`
	// Include requires at least one listed attribute to match.
	Include map[string]string `json:"include,omitempty" yaml:"include,omitempty" mapstructure:"include"`
	// Exclude rejects nodes matching any listed attribute.
	Exclude map[string]string `json:"exclude,omitempty" yaml:"exclude,omitempty" mapstructure:"exclude"`
}

func (f FilterSettings) IsEmpty() bool {
	return len(f.Require) == 0 && len(f.Include) == 0 && len(f.Exclude) == 0
}

// AwarenessSettings spreads the copies of a shard across the values of
// node attributes such as zone or rack.
type AwarenessSettings struct {
	Attributes []string `json:"attributes,omitempty" yaml:"attributes,omitempty" mapstructure:"attributes"`

	// Force lists the expected values of an attribute, so that copies are not
	// piled onto the surviving values when a whole zone is missing.
	Force map[string][]string `json:"force,omitempty" yaml:"force,omitempty" mapstructure:"force"`
}

type ThrottlingSettings struct {
	NodeConcurrentIncomingRecoveries int `json:"nodeConcurrentIncomingRecoveries" yaml:"nodeConcurrentIncomingRecoveries" mapstructure:"nodeConcurrentIncomingRecoveries"`
	NodeConcurrentOutgoingRecoveries int `json:"nodeConcurrentOutgoingRecoveries" yaml:"nodeConcurrentOutgoingRecoveries" mapstructure:"nodeConcurrentOutgoingRecoveries"`
	NodeInitialPrimariesRecoveries   int `json:"nodeInitialPrimariesRecoveries" yaml:"nodeInitialPrimariesRecoveries" mapstructure:"nodeInitialPrimariesRecoveries"`
}

type DeciderSettings struct {
	// Active is the ordered list of deciders in the chain. Empty means every
	// registered decider in its default order.
	Active []string `json:"active,omitempty" yaml:"active,omitempty" mapstructure:"active"`

	Enable     EnableSettings     `json:"enable" yaml:"enable" mapstructure:"enable"`
	Disk       DiskSettings       `json:"disk" yaml:"disk" mapstructure:"disk"`
	Filter     FilterSettings     `json:"filter" yaml:"filter" mapstructure:"filter"`
	Awareness  AwarenessSettings  `json:"awareness" yaml:"awareness" mapstructure:"awareness"`
	Throttling ThrottlingSettings `json:"throttling" yaml:"throttling" mapstructure:"throttling"`

	// SameHost also prevents two copies of a shard on different nodes of one host.
	SameHost bool `json:"sameHost" yaml:"sameHost" mapstructure:"sameHost"`

	// ClusterConcurrentRebalance caps the relocations in flight across the cluster. Negative is unlimited.
	ClusterConcurrentRebalance int `json:"clusterConcurrentRebalance" yaml:"clusterConcurrentRebalance" mapstructure:"clusterConcurrentRebalance"`

	AllowRebalance AllowRebalance `json:"allowRebalance" yaml:"allowRebalance" mapstructure:"allowRebalance"`

	// MaxRetries is the number of failed allocation attempts after which a shard is left unassigned.
	MaxRetries int `json:"maxRetries" yaml:"maxRetries" mapstructure:"maxRetries"`

	// TotalShardsPerNode caps the shards of any index on a node. Negative is unlimited.
	TotalShardsPerNode int `json:"totalShardsPerNode" yaml:"totalShardsPerNode" mapstructure:"totalShardsPerNode"`

	// RequireActivePrimary holds replicas back until their primary has started
	// rather than only until it is assigned.
	RequireActivePrimary bool `json:"requireActivePrimary" yaml:"requireActivePrimary" mapstructure:"requireActivePrimary"`
}

type Settings struct {
	Balance  BalanceSettings `json:"balance" yaml:"balance" mapstructure:"balance"`
	Deciders DeciderSettings `json:"deciders" yaml:"deciders" mapstructure:"deciders"`
}

func NewSettings() Settings {
	return Settings{
		Balance: BalanceSettings{
			ShardBalanceFactor:     1.0,
			DiskUsageBalanceFactor: 2e-11,
			WriteLoadBalanceFactor: 10.0,
			Threshold:              1.0,
			RebalanceMoveBudget:    10,
		},
		Deciders: DeciderSettings{
			Enable: EnableSettings{
				Allocation: EnableAllocationAll,
				Rebalance:  EnableRebalanceAll,
			},
			Disk: DiskSettings{
				Enabled:    true,
				Low:        PercentWatermark(85),
				High:       PercentWatermark(90),
				FloodStage: PercentWatermark(95),
			},
			Throttling: ThrottlingSettings{
				NodeConcurrentIncomingRecoveries: 2,
				NodeConcurrentOutgoingRecoveries: 2,
				NodeInitialPrimariesRecoveries:   4,
			},
			ClusterConcurrentRebalance: 2,
			AllowRebalance:             AllowRebalanceIndicesAllActive,
			MaxRetries:                 5,
			TotalShardsPerNode:         -1,
		},
	}
}

// Validate reports every problem of the settings at once.
func (s Settings) Validate() error {
	var err error
	b := s.Balance
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"shardBalanceFactor", b.ShardBalanceFactor},
		{"diskUsageBalanceFactor", b.DiskUsageBalanceFactor},
		{"writeLoadBalanceFactor", b.WriteLoadBalanceFactor},
	} {
		if f.value < 0 || math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidSettings, "balance.%s must be a finite non-negative number, got %v", f.name, f.value))
		}
	}
	if b.ShardBalanceFactor+b.DiskUsageBalanceFactor+b.WriteLoadBalanceFactor <= 0 {
		err = multierr.Append(err, errors.Wrap(ErrInvalidSettings, "at least one balance factor must be positive"))
	}
	if b.Threshold <= 0 || math.IsNaN(b.Threshold) {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidSettings, "balance.threshold must be positive, got %v", b.Threshold))
	}
	if b.RebalanceMoveBudget < 0 {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidSettings, "balance.rebalanceMoveBudget must not be negative, got %d", b.RebalanceMoveBudget))
	}

	d := s.Deciders
	switch d.Enable.Allocation {
	case EnableAllocationAll, EnableAllocationPrimaries, EnableAllocationNewPrimaries, EnableAllocationNone:
	default:
		err = multierr.Append(err, errors.Wrapf(ErrInvalidSettings, "unknown allocation enable mode %q", d.Enable.Allocation))
	}
	switch d.Enable.Rebalance {
	case EnableRebalanceAll, EnableRebalancePrimaries, EnableRebalanceReplicas, EnableRebalanceNone:
	default:
		err = multierr.Append(err, errors.Wrapf(ErrInvalidSettings, "unknown rebalance enable mode %q", d.Enable.Rebalance))
	}
	switch d.AllowRebalance {
	case AllowRebalanceAlways, AllowRebalanceIndicesPrimariesActive, AllowRebalanceIndicesAllActive:
	default:
		err = multierr.Append(err, errors.Wrapf(ErrInvalidSettings, "unknown allow rebalance mode %q", d.AllowRebalance))
	}
	if d.Disk.Enabled {
		if e := validateWatermarks(d.Disk.Low, d.Disk.High, d.Disk.FloodStage); e != nil {
			err = multierr.Append(err, e)
		}
	}
	t := d.Throttling
	if t.NodeConcurrentIncomingRecoveries < 1 || t.NodeConcurrentOutgoingRecoveries < 1 || t.NodeInitialPrimariesRecoveries < 1 {
		err = multierr.Append(err, errors.Wrap(ErrInvalidSettings, "throttling limits must be at least 1"))
	}
	if d.MaxRetries < 0 {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidSettings, "maxRetries must not be negative, got %d", d.MaxRetries))
	}
	for attr := range d.Awareness.Force {
		if !contains(d.Awareness.Attributes, attr) {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidSettings, "forced awareness attribute %q is not an awareness attribute", attr))
		}
	}
	return err
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
