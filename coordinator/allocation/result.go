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

package allocation

import (
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

// Outcome is what a pass did with one shard copy.
type Outcome string

const (
	// OutcomeAllocated an unassigned copy was initialized on a node.
	OutcomeAllocated Outcome = "allocated"
	// OutcomeThrottled the copy could go somewhere, but not yet.
	OutcomeThrottled Outcome = "throttled"
	// OutcomeNoValidNode no node accepts the copy.
	OutcomeNoValidNode Outcome = "no_valid_node"
	// OutcomeMoved a copy which could not remain on its node was relocated.
	OutcomeMoved Outcome = "moved"
	// OutcomeMoveThrottled a copy which could not remain has to wait for a target.
	OutcomeMoveThrottled Outcome = "move_throttled"
	// OutcomeCannotMove a copy which could not remain has nowhere to go.
	OutcomeCannotMove Outcome = "cannot_move"
	// OutcomeRebalanced a copy was relocated to even out the node weights.
	OutcomeRebalanced Outcome = "rebalanced"
	// OutcomeRebalanceDisallowed rebalancing was skipped for the whole pass.
	OutcomeRebalanceDisallowed Outcome = "rebalance_disallowed"
)

// NodeDecision is the verdict of the decider chain for one candidate node.
type NodeDecision struct {
	NodeID   string   `json:"nodeId" yaml:"nodeId"`
	Decision Decision `json:"decision" yaml:"decision"`
	Weight   float64  `json:"weight" yaml:"weight"`
}

// ShardDecision records the outcome for one shard copy, with the reasons
// when it could not be placed.
type ShardDecision struct {
	Shard   model.ShardRouting `json:"shard" yaml:"shard"`
	Outcome Outcome            `json:"outcome" yaml:"outcome"`

	// NodeID is the node the copy was placed on or moved to.
	NodeID string `json:"nodeId,omitempty" yaml:"nodeId,omitempty"`

	// Explanations of the deciders which said NO or THROTTLE, across all nodes.
	Explanations []Explanation `json:"explanations,omitempty" yaml:"explanations,omitempty"`

	NodeDecisions []NodeDecision `json:"nodeDecisions,omitempty" yaml:"nodeDecisions,omitempty"`
}

type Result struct {
	RoutingTable *routing.RoutingTable `json:"-" yaml:"-"`
	Decisions    []ShardDecision       `json:"decisions" yaml:"decisions"`

	// Changed is false when the pass left the routing table untouched.
	Changed bool `json:"changed" yaml:"changed"`
}

func (r *Result) Count(outcome Outcome) int {
	count := 0
	for _, d := range r.Decisions {
		if d.Outcome == outcome {
			count++
		}
	}
	return count
}

// Decision returns the last recorded decision for a shard copy role.
func (r *Result) Decision(id model.ShardID, primary bool) (ShardDecision, bool) {
	for i := len(r.Decisions) - 1; i >= 0; i-- {
		d := r.Decisions[i]
		if d.Shard.ShardID == id && d.Shard.Primary == primary {
			return d, true
		}
	}
	return ShardDecision{}, false
}
