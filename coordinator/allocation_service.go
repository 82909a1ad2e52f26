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
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/streamnative/shardalloc/common/metric"
	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/balancer"
	"github.com/streamnative/shardalloc/coordinator/cluster"
	"github.com/streamnative/shardalloc/coordinator/deciders"
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/policies"
)

var ErrDeciderFailure = errors.New("allocation decider failed")

var outcomes = []allocation.Outcome{
	allocation.OutcomeAllocated,
	allocation.OutcomeThrottled,
	allocation.OutcomeNoValidNode,
	allocation.OutcomeMoved,
	allocation.OutcomeMoveThrottled,
	allocation.OutcomeCannotMove,
	allocation.OutcomeRebalanced,
	allocation.OutcomeRebalanceDisallowed,
}

type RerouteOptions struct {
	// Explain runs every decider on every node and keeps the per node
	// decisions in the result.
	Explain bool

	// RetryFailed clears the failure counter of the unassigned copies which
	// reached the retry limit before the pass.
	RetryFailed bool
}

// AllocationService runs allocation passes over immutable cluster states.
// It holds no per-state data, so concurrent calls are safe.
type AllocationService struct {
	*slog.Logger

	settings policies.Settings
	deciders *deciders.Chain
	balancer *balancer.Balancer

	rerouteLatency  metric.LatencyHistogram
	rerouteFailures metric.Counter
	outcomeCounters map[allocation.Outcome]metric.Counter
	unassigned      atomic.Int64
	unassignedGauge metric.Gauge
}

// NewAllocationService validates the settings, reporting every problem at
// once, and builds the decider chain.
func NewAllocationService(settings policies.Settings) (*AllocationService, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	chain, err := deciders.New(settings.Deciders)
	if err != nil {
		return nil, err
	}

	s := &AllocationService{
		Logger: slog.With(
			slog.String("component", "allocation-service"),
		),
		settings: settings,
		deciders: chain,
		balancer: balancer.NewBalancer(settings.Balance),

		rerouteLatency: metric.NewLatencyHistogram("shardalloc_coordinator_reroute_latency",
			"The time it takes to run an allocation pass", nil),
		rerouteFailures: metric.NewCounter("shardalloc_coordinator_reroute_failed",
			"The number of allocation passes which were aborted", "count", nil),
		outcomeCounters: make(map[allocation.Outcome]metric.Counter, len(outcomes)),
	}
	for _, o := range outcomes {
		s.outcomeCounters[o] = metric.NewCounter("shardalloc_coordinator_shard_decisions",
			"The number of shard decisions taken by allocation passes", "count",
			map[string]any{"outcome": string(o)})
	}
	s.unassignedGauge = metric.NewGauge("shardalloc_coordinator_unassigned_shards",
		"The number of unassigned shard copies after the last allocation pass", "count", nil, func() int64 {
			return s.unassigned.Load()
		})
	return s, nil
}

func (s *AllocationService) Settings() policies.Settings {
	return s.settings
}

func (s *AllocationService) Deciders() *deciders.Chain {
	return s.deciders
}

// Reroute runs one allocation pass over state. The state is never
// modified: the result carries the next routing table, which is the table
// of state itself when nothing changed. On error the pass is discarded.
func (s *AllocationService) Reroute(ctx context.Context, state *cluster.State, opts RerouteOptions) (allocation.Result, error) {
	timer := s.rerouteLatency.Timer()
	defer timer.Done()

	alloc := allocation.NewRoutingAllocation(s.deciders, state, opts.Explain)
	if opts.RetryFailed {
		if reset := alloc.RoutingNodes().ResetFailedAllocations(); reset > 0 {
			s.Info("Retrying failed allocations", slog.Int("shards", reset))
		}
	}

	decisions, err := s.allocate(ctx, alloc)
	if err != nil {
		s.rerouteFailures.Inc()
		return allocation.Result{}, err
	}

	rt := alloc.RoutingNodes().Build()
	if err := rt.Validate(); err != nil {
		s.rerouteFailures.Inc()
		return allocation.Result{}, errors.Wrap(err, "allocation pass produced an invalid routing table")
	}

	res := allocation.Result{
		RoutingTable: rt,
		Decisions:    decisions,
		Changed:      rt != state.RoutingTable(),
	}
	s.record(state, res)
	return res, nil
}

func (s *AllocationService) allocate(ctx context.Context, alloc *allocation.RoutingAllocation) (decisions []allocation.ShardDecision, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.Error("Allocation pass aborted by a decider",
				slog.Int64("version", alloc.State().Version()),
				slog.Any("panic", r),
			)
			decisions = nil
			err = errors.Wrap(ErrDeciderFailure, fmt.Sprint(r))
		}
	}()
	return s.balancer.Allocate(ctx, alloc)
}

func (s *AllocationService) record(state *cluster.State, res allocation.Result) {
	counts := make(map[allocation.Outcome]int, len(outcomes))
	for _, d := range res.Decisions {
		counts[d.Outcome]++
	}
	for outcome, count := range counts {
		if c, ok := s.outcomeCounters[outcome]; ok {
			c.Add(count)
		}
	}
	unassigned := len(res.RoutingTable.ShardsWithState(model.ShardStateUnassigned))
	s.unassigned.Store(int64(unassigned))

	level := slog.LevelDebug
	if res.Changed {
		level = slog.LevelInfo
	}
	s.Log(context.Background(), level, "Allocation pass completed",
		slog.Int64("version", state.Version()),
		slog.Int64("routing-version", res.RoutingTable.Version()),
		slog.Bool("changed", res.Changed),
		slog.Int("allocated", counts[allocation.OutcomeAllocated]),
		slog.Int("throttled", counts[allocation.OutcomeThrottled]+counts[allocation.OutcomeMoveThrottled]),
		slog.Int("moved", counts[allocation.OutcomeMoved]),
		slog.Int("rebalanced", counts[allocation.OutcomeRebalanced]),
		slog.Int("unassigned", unassigned),
	)
}

func (s *AllocationService) Close() error {
	s.unassignedGauge.Unregister()
	return nil
}
