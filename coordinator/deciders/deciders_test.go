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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"k8s.io/utils/ptr"

	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/cluster"
	"github.com/streamnative/shardalloc/coordinator/model"
	"github.com/streamnative/shardalloc/coordinator/policies"
	"github.com/streamnative/shardalloc/coordinator/routing"
)

func id(index string, n int) model.ShardID {
	return model.ShardID{Index: index, Shard: n}
}

func startedCopy(index string, n int, primary bool, node string) model.ShardRouting {
	source := model.RecoverySourcePeer
	if primary {
		source = model.RecoverySourceExistingStore
	}
	return model.ShardRouting{
		ShardID:        id(index, n),
		Primary:        primary,
		State:          model.ShardStateStarted,
		CurrentNodeID:  node,
		RecoverySource: source,
	}
}

func initializingCopy(index string, n int, primary bool, node string) model.ShardRouting {
	s := unassignedCopy(index, n, primary)
	s.State = model.ShardStateInitializing
	s.CurrentNodeID = node
	return s
}

func unassignedCopy(index string, n int, primary bool) model.ShardRouting {
	source := model.RecoverySourcePeer
	if primary {
		source = model.RecoverySourceEmptyStore
	}
	return model.NewUnassignedShard(id(index, n), primary, source,
		&model.UnassignedInfo{Reason: model.UnassignedReasonIndexCreated})
}

func nodes(ids ...string) []model.DiscoveryNode {
	res := make([]model.DiscoveryNode, len(ids))
	for i, n := range ids {
		res[i] = model.DiscoveryNode{ID: n}
	}
	return res
}

func newAllocation(t *testing.T, o cluster.Options, shards ...model.ShardRouting) *allocation.RoutingAllocation {
	t.Helper()
	if len(shards) > 0 {
		rt, err := routing.NewRoutingTable(1, shards)
		require.NoError(t, err)
		o.RoutingTable = rt
	}
	state, err := cluster.NewState(o)
	require.NoError(t, err)
	return allocation.NewRoutingAllocation(nil, state, true)
}

func node(alloc *allocation.RoutingAllocation, nodeID string) *routing.RoutingNode {
	return alloc.RoutingNodes().Node(nodeID)
}

func assertDecision(t *testing.T, expected allocation.Type, decider string, d allocation.Decision) {
	t.Helper()
	assert.Equal(t, expected, d.Type, d.String())
	if assert.NotEmpty(t, d.Explanations) {
		assert.Equal(t, decider, d.Explanations[0].Decider)
	}
}

func TestSameShard(t *testing.T) {
	logs := model.IndexMetadata{Name: "logs", NumberOfShards: 1, NumberOfReplicas: 1}
	alloc := newAllocation(t, cluster.Options{
		Nodes: []model.DiscoveryNode{
			{ID: "n1", Host: "h1"},
			{ID: "n2", Host: "h1"},
			{ID: "n3", Host: "h2"},
		},
		Indices: []model.IndexMetadata{logs},
	}, startedCopy("logs", 0, true, "n1"), unassignedCopy("logs", 0, false))
	replica := unassignedCopy("logs", 0, false)

	d := NewSameShard(false)
	assertDecision(t, allocation.No, SameShardName, d.CanAllocate(replica, node(alloc, "n1"), alloc))
	assertDecision(t, allocation.Yes, SameShardName, d.CanAllocate(replica, node(alloc, "n2"), alloc))

	d = NewSameShard(true)
	assertDecision(t, allocation.No, SameShardName, d.CanAllocate(replica, node(alloc, "n2"), alloc))
	assertDecision(t, allocation.Yes, SameShardName, d.CanAllocate(replica, node(alloc, "n3"), alloc))
}

func TestDiskThreshold(t *testing.T) {
	alloc := newAllocation(t, cluster.Options{
		Nodes: nodes("n1", "n2", "n3", "n4", "n5"),
		Indices: []model.IndexMetadata{
			{Name: "logs", NumberOfShards: 1, NumberOfReplicas: 1},
			{Name: "big", NumberOfShards: 1, ShardSizeForecastBytes: ptr.To(int64(15))},
			{Name: "fresh", NumberOfShards: 1},
		},
		Info: model.ClusterInfo{
			NodeDiskUsage: map[string]model.DiskUsage{
				"n1": {UsedBytes: 92, FreeBytes: 8},
				"n2": {UsedBytes: 80, FreeBytes: 20},
				"n3": {UsedBytes: 87, FreeBytes: 13},
				"n5": {UsedBytes: 96, FreeBytes: 4},
			},
			ShardSizes: map[model.ShardID]int64{id("logs", 0): 1},
		},
	}, startedCopy("logs", 0, true, "n1"), startedCopy("logs", 0, false, "n5"))

	d := NewDiskThreshold(policies.NewSettings().Deciders.Disk)
	replica := unassignedCopy("logs", 0, false)
	for _, test := range []struct {
		node     string
		shard    model.ShardRouting
		expected allocation.Type
	}{
		{"n1", replica, allocation.No},
		{"n2", replica, allocation.Yes},
		{"n3", replica, allocation.No},
		{"n4", replica, allocation.Yes},
		{"n3", unassignedCopy("fresh", 0, true), allocation.Yes},
		{"n1", unassignedCopy("fresh", 0, true), allocation.No},
		{"n2", unassignedCopy("big", 0, true), allocation.No},
	} {
		t.Run(test.node+"/"+test.shard.ShardID.String(), func(t *testing.T) {
			assertDecision(t, test.expected, DiskThresholdName, d.CanAllocate(test.shard, node(alloc, test.node), alloc))
		})
	}

	remain := d.CanRemain(startedCopy("logs", 0, true, "n1"), node(alloc, "n1"), alloc)
	assertDecision(t, allocation.No, DiskThresholdName, remain)
	assert.Contains(t, remain.Explanations[0].Reason, "high watermark")

	flood := d.CanRemain(startedCopy("logs", 0, false, "n5"), node(alloc, "n5"), alloc)
	assertDecision(t, allocation.No, DiskThresholdName, flood)
	assert.Contains(t, flood.Explanations[0].Reason, "flood stage")

	assertDecision(t, allocation.Yes, DiskThresholdName, d.CanRemain(replica, node(alloc, "n2"), alloc))

	disabled := NewDiskThreshold(policies.DiskSettings{})
	assertDecision(t, allocation.Yes, DiskThresholdName, disabled.CanAllocate(replica, node(alloc, "n1"), alloc))
}

func TestDiskThresholdCountsIncomingShards(t *testing.T) {
	alloc := newAllocation(t, cluster.Options{
		Nodes:   nodes("n1"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 2}},
		Info: model.ClusterInfo{
			NodeDiskUsage: map[string]model.DiskUsage{"n1": {UsedBytes: 80, FreeBytes: 20}},
			ShardSizes:    map[model.ShardID]int64{id("logs", 0): 8},
		},
	}, initializingCopy("logs", 0, true, "n1"), unassignedCopy("logs", 1, true))

	d := NewDiskThreshold(policies.DiskSettings{
		Enabled:    true,
		Low:        policies.PercentWatermark(85),
		High:       policies.PercentWatermark(90),
		FloodStage: policies.PercentWatermark(95),
	})
	// 80 used plus 8 recovering is above the low watermark
	assertDecision(t, allocation.No, DiskThresholdName, d.CanAllocate(unassignedCopy("logs", 1, false), node(alloc, "n1"), alloc))
}

func TestFilter(t *testing.T) {
	logs := model.IndexMetadata{
		Name:           "logs",
		NumberOfShards: 1,
		RoutingFilters: policies.FilterSettings{Require: map[string]string{"zone": "eu-*"}},
	}
	alloc := newAllocation(t, cluster.Options{
		Nodes: []model.DiscoveryNode{
			{ID: "n1", Attributes: map[string]string{"zone": "eu-west", "disk": "ssd"}},
			{ID: "n2", Attributes: map[string]string{"zone": "eu-east", "disk": "hdd"}},
			{ID: "n3", Attributes: map[string]string{"zone": "us-east", "disk": "ssd"}},
			{ID: "n4", Name: "spare", Attributes: map[string]string{"zone": "eu-west"}},
		},
		Indices: []model.IndexMetadata{logs, {Name: "other", NumberOfShards: 1}},
	})
	shard := unassignedCopy("logs", 0, true)
	other := unassignedCopy("other", 0, true)

	for _, test := range []struct {
		name     string
		filter   policies.FilterSettings
		shard    model.ShardRouting
		node     string
		expected allocation.Type
	}{
		{"index require matches", policies.FilterSettings{}, shard, "n1", allocation.Yes},
		{"index require rejects", policies.FilterSettings{}, shard, "n3", allocation.No},
		{"no filters", policies.FilterSettings{}, other, "n3", allocation.Yes},
		{"exclude by id", policies.FilterSettings{Exclude: map[string]string{"_id": "n2, n3"}}, other, "n3", allocation.No},
		{"exclude other id", policies.FilterSettings{Exclude: map[string]string{"_id": "n2, n3"}}, other, "n1", allocation.Yes},
		{"exclude by name", policies.FilterSettings{Exclude: map[string]string{"_name": "spare"}}, other, "n4", allocation.No},
		{"include any", policies.FilterSettings{Include: map[string]string{"disk": "ssd", "zone": "eu-east"}}, other, "n2", allocation.Yes},
		{"include none", policies.FilterSettings{Include: map[string]string{"disk": "ssd"}}, other, "n2", allocation.No},
		{"include missing attribute", policies.FilterSettings{Include: map[string]string{"disk": "ssd"}}, other, "n4", allocation.No},
		{"require both", policies.FilterSettings{Require: map[string]string{"disk": "ssd", "zone": "*-west"}}, other, "n1", allocation.Yes},
		{"require one missing", policies.FilterSettings{Require: map[string]string{"disk": "ssd", "zone": "*-west"}}, other, "n3", allocation.No},
	} {
		t.Run(test.name, func(t *testing.T) {
			d := NewFilter(test.filter)
			assertDecision(t, test.expected, FilterName, d.CanAllocate(test.shard, node(alloc, test.node), alloc))
			assertDecision(t, test.expected, FilterName, d.CanRemain(test.shard, node(alloc, test.node), alloc))
		})
	}
}

func TestAwareness(t *testing.T) {
	zone := func(nodeID, z string) model.DiscoveryNode {
		return model.DiscoveryNode{ID: nodeID, Attributes: map[string]string{"zone": z}}
	}
	logs := model.IndexMetadata{Name: "logs", NumberOfShards: 1, NumberOfReplicas: 1}
	alloc := newAllocation(t, cluster.Options{
		Nodes:   []model.DiscoveryNode{zone("n1", "a"), zone("n2", "a"), zone("n3", "b"), {ID: "n4"}},
		Indices: []model.IndexMetadata{logs},
	}, startedCopy("logs", 0, true, "n1"), unassignedCopy("logs", 0, false))
	replica := unassignedCopy("logs", 0, false)

	d := NewAwareness(policies.AwarenessSettings{Attributes: []string{"zone"}})
	assertDecision(t, allocation.No, AwarenessName, d.CanAllocate(replica, node(alloc, "n2"), alloc))
	assertDecision(t, allocation.Yes, AwarenessName, d.CanAllocate(replica, node(alloc, "n3"), alloc))
	assertDecision(t, allocation.No, AwarenessName, d.CanAllocate(replica, node(alloc, "n4"), alloc))
	assertDecision(t, allocation.Yes, AwarenessName, d.CanRemain(startedCopy("logs", 0, true, "n1"), node(alloc, "n1"), alloc))

	// moving the primary within its zone keeps the spread
	primary, _ := alloc.RoutingNodes().Primary(id("logs", 0))
	assertDecision(t, allocation.Yes, AwarenessName, d.CanAllocate(primary, node(alloc, "n2"), alloc))

	disabled := NewAwareness(policies.AwarenessSettings{})
	assertDecision(t, allocation.Yes, AwarenessName, disabled.CanAllocate(replica, node(alloc, "n2"), alloc))
}

func TestForcedAwareness(t *testing.T) {
	zone := func(nodeID, z string) model.DiscoveryNode {
		return model.DiscoveryNode{ID: nodeID, Attributes: map[string]string{"zone": z}}
	}
	alloc := newAllocation(t, cluster.Options{
		Nodes:   []model.DiscoveryNode{zone("n1", "a"), zone("n2", "a")},
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 1, NumberOfReplicas: 1}},
	}, startedCopy("logs", 0, true, "n1"), unassignedCopy("logs", 0, false))
	replica := unassignedCopy("logs", 0, false)

	unforced := NewAwareness(policies.AwarenessSettings{Attributes: []string{"zone"}})
	assertDecision(t, allocation.Yes, AwarenessName, unforced.CanAllocate(replica, node(alloc, "n2"), alloc))

	forced := NewAwareness(policies.AwarenessSettings{
		Attributes: []string{"zone"},
		Force:      map[string][]string{"zone": {"a", "b"}},
	})
	assertDecision(t, allocation.No, AwarenessName, forced.CanAllocate(replica, node(alloc, "n2"), alloc))
}

func TestGroupNodesByAttribute(t *testing.T) {
	grouped := GroupNodesByAttribute([]model.DiscoveryNode{
		{ID: "n1", Attributes: map[string]string{"zone": "a", "rack": "r1"}},
		{ID: "n2", Attributes: map[string]string{"zone": "a"}},
		{ID: "n3", Attributes: map[string]string{"zone": "b", "rack": "r1"}},
	}, []string{"zone", "rack", "_id"})

	assert.Len(t, grouped["zone"], 2)
	assert.Equal(t, []any{"n1", "n2"}, grouped["zone"]["a"].Values())
	assert.Equal(t, []any{"n1", "n3"}, grouped["rack"]["r1"].Values())
	assert.Len(t, grouped["_id"], 3)
}

func TestThrottling(t *testing.T) {
	alloc := newAllocation(t, cluster.Options{
		Nodes: nodes("n1", "n2", "n3"),
		Indices: []model.IndexMetadata{
			{Name: "a", NumberOfShards: 2},
			{Name: "b", NumberOfShards: 1, NumberOfReplicas: 1},
			{Name: "c", NumberOfShards: 1, NumberOfReplicas: 1},
		},
	},
		initializingCopy("a", 0, true, "n1"), unassignedCopy("a", 1, true),
		startedCopy("b", 0, true, "n2"), initializingCopy("b", 0, false, "n3"),
		startedCopy("c", 0, true, "n2"), unassignedCopy("c", 0, false),
	)
	nodesView := alloc.RoutingNodes()
	assert.Equal(t, 1, nodesView.InitializingPrimaries("n1"))
	assert.Equal(t, 1, nodesView.OutgoingRecoveries("n2"))
	assert.Equal(t, 1, nodesView.IncomingRecoveries("n3"))

	d := NewThrottling(policies.ThrottlingSettings{
		NodeConcurrentIncomingRecoveries: 1,
		NodeConcurrentOutgoingRecoveries: 1,
		NodeInitialPrimariesRecoveries:   1,
	})
	assertDecision(t, allocation.Throttle, ThrottlingName, d.CanAllocate(unassignedCopy("a", 1, true), node(alloc, "n1"), alloc))
	assertDecision(t, allocation.Yes, ThrottlingName, d.CanAllocate(unassignedCopy("a", 1, true), node(alloc, "n2"), alloc))
	assertDecision(t, allocation.Throttle, ThrottlingName, d.CanAllocate(unassignedCopy("c", 0, false), node(alloc, "n1"), alloc))
	assertDecision(t, allocation.Throttle, ThrottlingName, d.CanAllocate(unassignedCopy("c", 0, false), node(alloc, "n3"), alloc))

	relaxed := NewThrottling(policies.NewSettings().Deciders.Throttling)
	assertDecision(t, allocation.Yes, ThrottlingName, relaxed.CanAllocate(unassignedCopy("c", 0, false), node(alloc, "n1"), alloc))
}

func TestConcurrentRebalance(t *testing.T) {
	relocating := startedCopy("logs", 0, true, "n1")
	relocating.State = model.ShardStateRelocating
	relocating.RelocatingNodeID = "n2"
	alloc := newAllocation(t, cluster.Options{
		Nodes:   nodes("n1", "n2"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 1}},
	}, relocating)

	for _, test := range []struct {
		limit    int
		expected allocation.Type
	}{
		{-1, allocation.Yes},
		{1, allocation.Throttle},
		{2, allocation.Yes},
	} {
		d := NewConcurrentRebalance(test.limit)
		assertDecision(t, test.expected, ConcurrentRebalanceName, d.CanRebalanceCluster(alloc))
		assertDecision(t, test.expected, ConcurrentRebalanceName, d.CanRebalance(relocating, alloc))
	}
}

func TestClusterRebalance(t *testing.T) {
	indices := []model.IndexMetadata{{Name: "logs", NumberOfShards: 1, NumberOfReplicas: 1}}
	opts := cluster.Options{Nodes: nodes("n1", "n2"), Indices: indices}

	active := newAllocation(t, opts, startedCopy("logs", 0, true, "n1"), startedCopy("logs", 0, false, "n2"))
	recovering := newAllocation(t, opts, startedCopy("logs", 0, true, "n1"), initializingCopy("logs", 0, false, "n2"))
	unassigned := newAllocation(t, opts, startedCopy("logs", 0, true, "n1"), unassignedCopy("logs", 0, false))
	noPrimary := newAllocation(t, opts, initializingCopy("logs", 0, true, "n1"), unassignedCopy("logs", 0, false))

	for _, test := range []struct {
		allow    policies.AllowRebalance
		alloc    *allocation.RoutingAllocation
		expected allocation.Type
	}{
		{policies.AllowRebalanceAlways, noPrimary, allocation.Yes},
		{policies.AllowRebalanceIndicesPrimariesActive, noPrimary, allocation.No},
		{policies.AllowRebalanceIndicesPrimariesActive, unassigned, allocation.Yes},
		{policies.AllowRebalanceIndicesAllActive, unassigned, allocation.No},
		{policies.AllowRebalanceIndicesAllActive, recovering, allocation.No},
		{policies.AllowRebalanceIndicesAllActive, active, allocation.Yes},
	} {
		d := NewClusterRebalance(test.allow)
		assertDecision(t, test.expected, ClusterRebalanceName, d.CanRebalanceCluster(test.alloc))
	}
}

func TestEnable(t *testing.T) {
	alloc := newAllocation(t, cluster.Options{
		Nodes:   nodes("n1"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 1, NumberOfReplicas: 1}},
	})
	newPrimary := unassignedCopy("logs", 0, true)
	oldPrimary := unassignedCopy("logs", 0, true)
	oldPrimary.RecoverySource = model.RecoverySourceExistingStore
	replica := unassignedCopy("logs", 0, false)

	for _, test := range []struct {
		mode     policies.EnableAllocation
		shard    model.ShardRouting
		expected allocation.Type
	}{
		{policies.EnableAllocationAll, replica, allocation.Yes},
		{policies.EnableAllocationNone, newPrimary, allocation.No},
		{policies.EnableAllocationPrimaries, oldPrimary, allocation.Yes},
		{policies.EnableAllocationPrimaries, replica, allocation.No},
		{policies.EnableAllocationNewPrimaries, newPrimary, allocation.Yes},
		{policies.EnableAllocationNewPrimaries, oldPrimary, allocation.No},
	} {
		d := NewEnable(policies.EnableSettings{Allocation: test.mode, Rebalance: policies.EnableRebalanceAll})
		assertDecision(t, test.expected, EnableName, d.CanAllocate(test.shard, node(alloc, "n1"), alloc))
	}

	for _, test := range []struct {
		mode     policies.EnableRebalance
		shard    model.ShardRouting
		expected allocation.Type
	}{
		{policies.EnableRebalanceAll, replica, allocation.Yes},
		{policies.EnableRebalanceNone, replica, allocation.No},
		{policies.EnableRebalancePrimaries, newPrimary, allocation.Yes},
		{policies.EnableRebalancePrimaries, replica, allocation.No},
		{policies.EnableRebalanceReplicas, replica, allocation.Yes},
		{policies.EnableRebalanceReplicas, newPrimary, allocation.No},
	} {
		d := NewEnable(policies.EnableSettings{Allocation: policies.EnableAllocationAll, Rebalance: test.mode})
		assertDecision(t, test.expected, EnableName, d.CanRebalance(test.shard, alloc))
	}

	assertDecision(t, allocation.No, EnableName,
		NewEnable(policies.EnableSettings{Rebalance: policies.EnableRebalanceNone}).CanRebalanceCluster(alloc))
}

func TestMaxRetry(t *testing.T) {
	alloc := newAllocation(t, cluster.Options{
		Nodes:   nodes("n1"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 1}},
	})
	failed := func(attempts int) model.ShardRouting {
		s := unassignedCopy("logs", 0, true)
		s.UnassignedInfo.Reason = model.UnassignedReasonAllocationFailed
		s.UnassignedInfo.FailedAllocations = attempts
		s.UnassignedInfo.Message = "disk broken"
		return s
	}

	d := NewMaxRetry(5)
	assertDecision(t, allocation.Yes, MaxRetryName, d.CanAllocate(unassignedCopy("logs", 0, true), node(alloc, "n1"), alloc))
	assertDecision(t, allocation.Yes, MaxRetryName, d.CanAllocate(failed(4), node(alloc, "n1"), alloc))
	no := d.CanAllocate(failed(5), node(alloc, "n1"), alloc)
	assertDecision(t, allocation.No, MaxRetryName, no)
	assert.Contains(t, no.Explanations[0].Reason, "disk broken")
}

func TestShardsLimit(t *testing.T) {
	alloc := newAllocation(t, cluster.Options{
		Nodes: nodes("n1", "n2"),
		Indices: []model.IndexMetadata{
			{Name: "logs", NumberOfShards: 3, TotalShardsPerNode: ptr.To(1)},
			{Name: "other", NumberOfShards: 1},
		},
	},
		startedCopy("logs", 0, true, "n1"), unassignedCopy("logs", 1, true), unassignedCopy("logs", 2, true),
		startedCopy("other", 0, true, "n1"),
	)
	shard := unassignedCopy("logs", 1, true)

	assertDecision(t, allocation.No, ShardsLimitName, NewShardsLimit(-1).CanAllocate(shard, node(alloc, "n1"), alloc))
	assertDecision(t, allocation.Yes, ShardsLimitName, NewShardsLimit(-1).CanAllocate(shard, node(alloc, "n2"), alloc))
	assertDecision(t, allocation.Yes, ShardsLimitName,
		NewShardsLimit(2).CanRemain(startedCopy("logs", 0, true, "n1"), node(alloc, "n1"), alloc))
	assertDecision(t, allocation.No, ShardsLimitName,
		NewShardsLimit(2).CanAllocate(unassignedCopy("other", 0, true), node(alloc, "n1"), alloc))
	assertDecision(t, allocation.No, ShardsLimitName,
		NewShardsLimit(1).CanRemain(startedCopy("other", 0, true, "n1"), node(alloc, "n1"), alloc))
}

func TestReplicaAfterPrimary(t *testing.T) {
	indices := []model.IndexMetadata{{Name: "logs", NumberOfShards: 1, NumberOfReplicas: 1}}
	opts := cluster.Options{Nodes: nodes("n1", "n2"), Indices: indices}
	replica := unassignedCopy("logs", 0, false)

	unassigned := newAllocation(t, opts)
	initializing := newAllocation(t, opts, initializingCopy("logs", 0, true, "n1"), replica)
	started := newAllocation(t, opts, startedCopy("logs", 0, true, "n1"), replica)

	lenient := NewReplicaAfterPrimary(false)
	strict := NewReplicaAfterPrimary(true)
	assertDecision(t, allocation.No, ReplicaAfterPrimaryName, lenient.CanAllocate(replica, node(unassigned, "n2"), unassigned))
	assertDecision(t, allocation.Yes, ReplicaAfterPrimaryName, lenient.CanAllocate(replica, node(initializing, "n2"), initializing))
	assertDecision(t, allocation.No, ReplicaAfterPrimaryName, strict.CanAllocate(replica, node(initializing, "n2"), initializing))
	assertDecision(t, allocation.Yes, ReplicaAfterPrimaryName, strict.CanAllocate(replica, node(started, "n2"), started))
	assertDecision(t, allocation.Yes, ReplicaAfterPrimaryName,
		strict.CanAllocate(unassignedCopy("logs", 0, true), node(unassigned, "n2"), unassigned))
}

func TestRestoreAndSnapshotInProgress(t *testing.T) {
	opts := cluster.Options{
		Nodes:     nodes("n1", "n2"),
		Indices:   []model.IndexMetadata{{Name: "restored", NumberOfShards: 2}, {Name: "live", NumberOfShards: 1}},
		Restores:  []cluster.RestoreInProgress{{Snapshot: "s1", Indices: []string{"restored"}, FailedShards: []model.ShardID{id("restored", 1)}}},
		Snapshots: []cluster.SnapshotInProgress{{Snapshot: "s2", Shards: []model.ShardID{id("live", 0)}}},
	}
	restoring := unassignedCopy("restored", 0, true)
	restoring.RecoverySource = model.RecoverySourceSnapshot
	failed := unassignedCopy("restored", 1, true)
	failed.RecoverySource = model.RecoverySourceSnapshot
	live := startedCopy("live", 0, true, "n1")

	alloc := newAllocation(t, opts, restoring, failed, live)

	restore := NewRestoreInProgress()
	assertDecision(t, allocation.Yes, RestoreInProgressName, restore.CanAllocate(restoring, node(alloc, "n1"), alloc))
	assertDecision(t, allocation.No, RestoreInProgressName, restore.CanAllocate(failed, node(alloc, "n1"), alloc))
	assertDecision(t, allocation.Yes, RestoreInProgressName, restore.CanAllocate(unassignedCopy("live", 0, true), node(alloc, "n1"), alloc))

	snapshot := NewSnapshotInProgress()
	assertDecision(t, allocation.Throttle, SnapshotInProgressName, snapshot.CanAllocate(live, node(alloc, "n2"), alloc))
	assertDecision(t, allocation.Throttle, SnapshotInProgressName, snapshot.CanRebalance(live, alloc))
	assertDecision(t, allocation.Yes, SnapshotInProgressName, snapshot.CanRebalance(startedCopy("restored", 0, true, "n1"), alloc))
}

type fixed struct {
	Base
	name     string
	decision allocation.Type
	calls    int
}

func (f *fixed) Name() string {
	return f.name
}

func (f *fixed) CanAllocate(model.ShardRouting, *routing.RoutingNode, *allocation.RoutingAllocation) allocation.Decision {
	f.calls++
	switch f.decision {
	case allocation.No:
		return allocation.NoDecision(f.name, "no")
	case allocation.Throttle:
		return allocation.ThrottleDecision(f.name, "later")
	}
	return allocation.YesDecision(f.name, "yes")
}

func permutations(in []allocation.Decider) [][]allocation.Decider {
	if len(in) <= 1 {
		return [][]allocation.Decider{in}
	}
	var res [][]allocation.Decider
	for i := range in {
		rest := make([]allocation.Decider, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			res = append(res, append([]allocation.Decider{in[i]}, p...))
		}
	}
	return res
}

func TestChainVerdictIsOrderIndependent(t *testing.T) {
	state, err := cluster.NewState(cluster.Options{
		Nodes:   nodes("n1"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 1}},
	})
	require.NoError(t, err)
	shard := unassignedCopy("logs", 0, true)

	for _, test := range []struct {
		name     string
		types    []allocation.Type
		expected allocation.Type
	}{
		{"all yes", []allocation.Type{allocation.Yes, allocation.Yes, allocation.Yes}, allocation.Yes},
		{"throttle", []allocation.Type{allocation.Yes, allocation.Throttle, allocation.Yes}, allocation.Throttle},
		{"no over throttle", []allocation.Type{allocation.Throttle, allocation.Yes, allocation.No}, allocation.No},
		{"two no", []allocation.Type{allocation.No, allocation.Throttle, allocation.No, allocation.Yes}, allocation.No},
	} {
		t.Run(test.name, func(t *testing.T) {
			var all []allocation.Decider
			for i, typ := range test.types {
				all = append(all, &fixed{name: string(rune('a' + i)), decision: typ})
			}
			for _, explain := range []bool{false, true} {
				alloc := allocation.NewRoutingAllocation(nil, state, explain)
				for _, p := range permutations(all) {
					d := NewChain(p...).CanAllocate(shard, alloc.RoutingNodes().Node("n1"), alloc)
					assert.Equal(t, test.expected, d.Type)
				}
			}
		})
	}
}

func TestChainExplanations(t *testing.T) {
	state, err := cluster.NewState(cluster.Options{
		Nodes:   nodes("n1"),
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 1}},
	})
	require.NoError(t, err)
	shard := unassignedCopy("logs", 0, true)

	yes := &fixed{name: "yes", decision: allocation.Yes}
	throttle := &fixed{name: "throttle", decision: allocation.Throttle}
	no := &fixed{name: "no", decision: allocation.No}
	last := &fixed{name: "last", decision: allocation.Yes}
	chain := NewChain(yes, throttle, no, last)
	assert.Equal(t, []string{"yes", "throttle", "no", "last"}, chain.Names())

	quiet := allocation.NewRoutingAllocation(nil, state, false)
	d := chain.CanAllocate(shard, quiet.RoutingNodes().Node("n1"), quiet)
	assert.Equal(t, allocation.No, d.Type)
	assert.Equal(t, []string{"throttle", "no"}, deciderNames(d.Explanations))
	assert.Equal(t, 0, last.calls)

	explained := allocation.NewRoutingAllocation(nil, state, true)
	d = chain.CanAllocate(shard, explained.RoutingNodes().Node("n1"), explained)
	assert.Equal(t, allocation.No, d.Type)
	assert.Equal(t, []string{"yes", "throttle", "no", "last"}, deciderNames(d.Explanations))
	assert.Equal(t, 1, last.calls)

	assert.Equal(t, allocation.Yes, chain.CanRemain(shard, explained.RoutingNodes().Node("n1"), explained).Type)
}

func deciderNames(explanations []allocation.Explanation) []string {
	res := make([]string, len(explanations))
	for i, e := range explanations {
		res[i] = e.Decider
	}
	return res
}

func TestRegistry(t *testing.T) {
	chain, err := New(policies.NewSettings().Deciders)
	require.NoError(t, err)
	assert.Equal(t, DefaultOrder, chain.Names())
	assert.Len(t, Names(), len(DefaultOrder))

	s := policies.NewSettings().Deciders
	s.Active = []string{ThrottlingName, SameShardName}
	chain, err = New(s)
	require.NoError(t, err)
	assert.Equal(t, []string{ThrottlingName, SameShardName}, chain.Names())

	s.Active = []string{"bogus", SameShardName, SameShardName, "other"}
	_, err = New(s)
	assert.ErrorIs(t, err, ErrUnknownDecider)
	assert.ErrorIs(t, err, policies.ErrInvalidSettings)
	assert.Len(t, multierr.Errors(err), 3)
}
