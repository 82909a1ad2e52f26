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
	"github.com/streamnative/shardalloc/coordinator/routing"
)

// FailedShard reports a copy which failed to recover or to keep running.
type FailedShard struct {
	Shard   model.ShardRouting `json:"shard" yaml:"shard"`
	Message string             `json:"message" yaml:"message"`
}

// ApplyStartedShards marks recovered copies as started, then reroutes. A
// started relocation target completes its relocation. Copies which are no
// longer initializing are ignored, since the report may be stale.
func (s *AllocationService) ApplyStartedShards(ctx context.Context, state *cluster.State, started []model.ShardRouting, opts RerouteOptions) (*cluster.State, allocation.Result, error) {
	nodes := routing.NewRoutingNodes(state.RoutingTable(), state.NodeIDs())
	for _, shard := range started {
		if _, err := nodes.Start(shard); err != nil {
			if !isStale(err) {
				return nil, allocation.Result{}, err
			}
			s.Warn("Ignoring started shard",
				slog.Any("shard", shard),
				slog.Any("error", err),
			)
		}
	}
	return s.rerouteAfter(ctx, state, state.WithRoutingTable(nodes.Build()), opts)
}

// ApplyFailedShards unassigns failed copies, then reroutes. Each failure
// counts towards the retry limit of the copy.
func (s *AllocationService) ApplyFailedShards(ctx context.Context, state *cluster.State, failed []FailedShard, opts RerouteOptions) (*cluster.State, allocation.Result, error) {
	nodes := routing.NewRoutingNodes(state.RoutingTable(), state.NodeIDs())
	for _, f := range failed {
		if err := nodes.Fail(f.Shard, model.UnassignedReasonAllocationFailed, f.Message); err != nil {
			if !isStale(err) {
				return nil, allocation.Result{}, err
			}
			s.Warn("Ignoring failed shard",
				slog.Any("shard", f.Shard),
				slog.Any("error", err),
			)
			continue
		}
		s.Info("Shard failed",
			slog.Any("shard", f.Shard),
			slog.String("message", f.Message),
		)
	}
	return s.rerouteAfter(ctx, state, state.WithRoutingTable(nodes.Build()), opts)
}

// RemoveNodes drops nodes which left the cluster, then reroutes. Their
// copies become unassigned without a retry penalty.
func (s *AllocationService) RemoveNodes(ctx context.Context, state *cluster.State, nodeIDs []string, opts RerouteOptions) (*cluster.State, allocation.Result, error) {
	next, err := state.WithoutNodes(nodeIDs...)
	if err != nil {
		return nil, allocation.Result{}, err
	}
	s.Info("Nodes left the cluster", slog.Any("nodes", nodeIDs))
	return s.rerouteAfter(ctx, state, next, opts)
}

// AddNodes registers nodes which joined the cluster, then reroutes.
func (s *AllocationService) AddNodes(ctx context.Context, state *cluster.State, nodes []model.DiscoveryNode, opts RerouteOptions) (*cluster.State, allocation.Result, error) {
	next, err := state.WithNodes(nodes...)
	if err != nil {
		return nil, allocation.Result{}, err
	}
	return s.rerouteAfter(ctx, state, next, opts)
}

// CreateIndex adds an index whose copies are all unassigned, then reroutes.
func (s *AllocationService) CreateIndex(ctx context.Context, state *cluster.State, index model.IndexMetadata, opts RerouteOptions) (*cluster.State, allocation.Result, error) {
	next, err := state.WithIndex(index)
	if err != nil {
		return nil, allocation.Result{}, err
	}
	return s.rerouteAfter(ctx, state, next, opts)
}

// rerouteAfter reroutes next, the state after an event, and reports the
// change relative to the state before the event.
func (s *AllocationService) rerouteAfter(ctx context.Context, before, next *cluster.State, opts RerouteOptions) (*cluster.State, allocation.Result, error) {
	res, err := s.Reroute(ctx, next, opts)
	if err != nil {
		return nil, allocation.Result{}, err
	}
	after := next.WithRoutingTable(res.RoutingTable)
	res.Changed = after != before
	return after, res, nil
}

func isStale(err error) bool {
	return errors.Is(err, routing.ErrShardNotFound) || errors.Is(err, routing.ErrIllegalState)
}
