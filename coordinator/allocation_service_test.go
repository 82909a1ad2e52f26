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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/cluster"
	"github.com/streamnative/shardalloc/coordinator/deciders"
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/policies"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

func shardID(index string, n int) model.ShardID {
	return model.ShardID{Index: index, Shard: n}
}

func started(index string, n int, primary bool, node string) model.ShardRouting {
	source := model.RecoverySourcePeer
	if primary {
		source = model.RecoverySourceExistingStore
	}
	return model.ShardRouting{
		ShardID:        shardID(index, n),
		Primary:        primary,
		State:          model.ShardStateStarted,
		CurrentNodeID:  node,
		RecoverySource: source,
	}
}

func nodes(ids ...string) []model.DiscoveryNode {
	res := make([]model.DiscoveryNode, len(ids))
	for i, id := range ids {
		res[i] = model.DiscoveryNode{ID: id}
	}
	return res
}

func newState(t *testing.T, o cluster.Options, shards ...model.ShardRouting) *cluster.State {
	t.Helper()
	if len(shards) > 0 {
		rt, err := routing.NewRoutingTable(1, shards)
		require.NoError(t, err)
		o.RoutingTable = rt
	}
	state, err := cluster.NewState(o)
	require.NoError(t, err)
	return state
}

func newService(t *testing.T, settings policies.Settings) *AllocationService {
	t.Helper()
	s, err := NewAllocationService(settings)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func shardsPerNode(state *cluster.State) map[string]int {
	res := map[string]int{}
	for _, s := range state.RoutingTable().AssignedShards() {
		res[s.CurrentNodeID]++
	}
	return res
}

type panicking struct {
	deciders.Base
}

func (panicking) Name() string {
	return "panicking"
}

func (panicking) CanAllocate(model.ShardRouting, *routing.RoutingNode, *allocation.RoutingAllocation) allocation.Decision {
	panic("disk usage is not available")
}

func TestNewAllocationServiceRejectsInvalidSettings(t *testing.T) {
	settings := policies.NewSettings()
	settings.Balance.ShardBalanceFactor = -1
	settings.Balance.Threshold = 0

	s, err := NewAllocationService(settings)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, policies.ErrInvalidSettings)
	assert.Len(t, multierr.Errors(err), 2)

	settings = policies.NewSettings()
	settings.Deciders.Active = []string{deciders.SameShardName, "unknown"}
	_, err = NewAllocationService(settings)
	assert.ErrorIs(t, err, deciders.ErrUnknownDecider)
}

func TestReroute(t *testing.T) {
	s := newService(t, policies.NewSettings())
	state := newState(t, cluster.Options{
		Nodes:   nodes("n1", "n2"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 1, NumberOfReplicas: 2}},
	})

	res, err := s.Reroute(context.Background(), state, RerouteOptions{})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 2, res.Count(allocation.OutcomeAllocated))
	assert.Equal(t, 1, res.Count(allocation.OutcomeNoValidNode))
	assert.Len(t, res.RoutingTable.ShardsWithState(model.ShardStateInitializing), 2)
	assert.EqualValues(t, 1, s.unassigned.Load())

	// the input state is not modified
	assert.Len(t, state.RoutingTable().ShardsWithState(model.ShardStateUnassigned), 3)

	// nothing left to do while the copies recover
	next := state.WithRoutingTable(res.RoutingTable)
	again, err := s.Reroute(context.Background(), next, RerouteOptions{})
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Same(t, next.RoutingTable(), again.RoutingTable)
	assert.Equal(t, 1, again.Count(allocation.OutcomeNoValidNode))
	assert.Equal(t, 1, again.Count(allocation.OutcomeRebalanceDisallowed))
	assert.EqualValues(t, 1, s.unassigned.Load())
}

func TestRerouteExplain(t *testing.T) {
	s := newService(t, policies.NewSettings())
	state := newState(t, cluster.Options{
		Nodes:   nodes("n1"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 1, NumberOfReplicas: 1}},
	}, started("logs", 0, true, "n1"), model.NewUnassignedShard(shardID("logs", 0), false, model.RecoverySourcePeer, nil))

	res, err := s.Reroute(context.Background(), state, RerouteOptions{Explain: true})
	require.NoError(t, err)
	d, ok := res.Decision(shardID("logs", 0), false)
	require.True(t, ok)
	assert.Equal(t, allocation.OutcomeNoValidNode, d.Outcome)
	require.Len(t, d.NodeDecisions, 1)
	assert.Equal(t, "n1", d.NodeDecisions[0].NodeID)
	assert.Equal(t, allocation.No, d.NodeDecisions[0].Decision.Type)
}

func TestRerouteRetryFailed(t *testing.T) {
	s := newService(t, policies.NewSettings())
	failed := model.NewUnassignedShard(shardID("logs", 0), true, model.RecoverySourceEmptyStore, &model.UnassignedInfo{
		Reason:            model.UnassignedReasonAllocationFailed,
		Message:           "corrupted store",
		FailedAllocations: 5,
		FailedNodeIDs:     []string{"n1"},
	})
	state := newState(t, cluster.Options{
		Nodes:   nodes("n1"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 1}},
	}, failed)

	res, err := s.Reroute(context.Background(), state, RerouteOptions{})
	require.NoError(t, err)
	d, ok := res.Decision(shardID("logs", 0), true)
	require.True(t, ok)
	assert.Equal(t, allocation.OutcomeNoValidNode, d.Outcome)
	require.NotEmpty(t, d.Explanations)
	assert.Equal(t, deciders.MaxRetryName, d.Explanations[0].Decider)

	res, err = s.Reroute(context.Background(), state, RerouteOptions{RetryFailed: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count(allocation.OutcomeAllocated))
	primary, ok := res.RoutingTable.Primary(shardID("logs", 0))
	require.True(t, ok)
	assert.True(t, primary.Initializing())
	assert.Equal(t, "n1", primary.CurrentNodeID)
}

func TestRerouteRecoversDeciderPanic(t *testing.T) {
	s := newService(t, policies.NewSettings())
	s.deciders = deciders.NewChain(panicking{})

	state := newState(t, cluster.Options{
		Nodes:   nodes("n1"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 1}},
	})
	before := state.RoutingTable().Fingerprint()

	res, err := s.Reroute(context.Background(), state, RerouteOptions{})
	assert.ErrorIs(t, err, ErrDeciderFailure)
	assert.Contains(t, err.Error(), "disk usage is not available")
	assert.Nil(t, res.RoutingTable)
	assert.Equal(t, before, state.RoutingTable().Fingerprint())
}

func TestRerouteCancelled(t *testing.T) {
	s := newService(t, policies.NewSettings())
	state := newState(t, cluster.Options{
		Nodes:   nodes("n1"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 2}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Reroute(ctx, state, RerouteOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
