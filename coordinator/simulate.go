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

package coordinator

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/cluster"
	"github.com/streamnative/shardalloc/coordinator/model"
)

var ErrInvalidRounds = errors.New("the number of simulation rounds must be positive")

type SimulationResult struct {
	State *cluster.State

	// Rounds is the number of allocation passes which ran.
	Rounds int

	// Converged is true when the last pass changed nothing and no recovery
	// was left in flight.
	Converged bool

	// Decisions of the last pass.
	Decisions []allocation.ShardDecision

	// Outcomes counts the decisions of every pass by outcome.
	Outcomes map[allocation.Outcome]int
}

// Simulate alternates allocation passes with the completion of every
// recovery they started, as if all copies recovered instantly, until a
// pass changes nothing or maxRounds passes ran.
func (s *AllocationService) Simulate(ctx context.Context, state *cluster.State, maxRounds int, opts RerouteOptions) (SimulationResult, error) {
	if maxRounds <= 0 {
		return SimulationResult{}, errors.Wrapf(ErrInvalidRounds, "got %d", maxRounds)
	}

	res := SimulationResult{
		State:    state,
		Outcomes: make(map[allocation.Outcome]int),
	}
	for res.Rounds < maxRounds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		pass, err := s.Reroute(ctx, res.State, opts)
		if err != nil {
			return res, err
		}
		res.Rounds++
		res.Decisions = pass.Decisions
		for _, d := range pass.Decisions {
			res.Outcomes[d.Outcome]++
		}
		res.State = res.State.WithRoutingTable(pass.RoutingTable)
		// retrying failed copies only once
		opts.RetryFailed = false

		recovering := recoveries(res.State)
		if !pass.Changed && len(recovering) == 0 {
			res.Converged = true
			break
		}
		if res.State, err = startShards(res.State, recovering); err != nil {
			return res, err
		}
	}

	s.Info("Simulation completed",
		slog.Int("rounds", res.Rounds),
		slog.Bool("converged", res.Converged),
		slog.Int("allocated", res.Outcomes[allocation.OutcomeAllocated]),
		slog.Int("moved", res.Outcomes[allocation.OutcomeMoved]),
		slog.Int("rebalanced", res.Outcomes[allocation.OutcomeRebalanced]),
	)
	return res, nil
}

// recoveries returns the initializing copies of a state, relocation
// targets included.
func recoveries(state *cluster.State) []model.ShardRouting {
	rt := state.RoutingTable()
	var res []model.ShardRouting
	for _, shard := range rt.ShardsWithState(model.ShardStateRelocating) {
		res = append(res, shard.TargetRelocatingShard())
	}
	return append(res, rt.ShardsWithState(model.ShardStateInitializing)...)
}

func startShards(state *cluster.State, shards []model.ShardRouting) (*cluster.State, error) {
	rt := state.RoutingTable()
	for _, shard := range shards {
		var err error
		if rt, err = rt.StartShard(shard); err != nil {
			return nil, err
		}
	}
	return state.WithRoutingTable(rt), nil
}
