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

	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/cluster"
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/policies"
)

func TestSimulate(t *testing.T) {
	s := newService(t, policies.NewSettings())
	state := newState(t, cluster.Options{
		Nodes:   nodes("n1", "n2", "n3"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 3, NumberOfReplicas: 1}},
	})

	res, err := s.Simulate(context.Background(), state, 20, RerouteOptions{})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Rounds, 20)
	assert.Equal(t, 6, res.Outcomes[allocation.OutcomeAllocated])

	rt := res.State.RoutingTable()
	assert.Len(t, rt.ShardsWithState(model.ShardStateStarted), 6)
	assert.Equal(t, map[string]int{"n1": 2, "n2": 2, "n3": 2}, shardsPerNode(res.State))
	for _, id := range rt.ShardIDs() {
		copies := rt.Copies(id)
		require.Len(t, copies, 2)
		assert.NotEqual(t, copies[0].CurrentNodeID, copies[1].CurrentNodeID)
	}

	// a converged state stays as it is
	again, err := s.Simulate(context.Background(), res.State, 20, RerouteOptions{})
	require.NoError(t, err)
	assert.True(t, again.Converged)
	assert.Equal(t, 1, again.Rounds)
	assert.Same(t, res.State, again.State)
}

func TestSimulateStopsAfterMaxRounds(t *testing.T) {
	s := newService(t, policies.NewSettings())
	state := newState(t, cluster.Options{
		Nodes:   nodes("n1", "n2"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 2}},
	})

	res, err := s.Simulate(context.Background(), state, 1, RerouteOptions{})
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Rounds)
	assert.Len(t, res.State.RoutingTable().ShardsWithState(model.ShardStateStarted), 2)

	_, err = s.Simulate(context.Background(), state, 0, RerouteOptions{})
	assert.ErrorIs(t, err, ErrInvalidRounds)
}
