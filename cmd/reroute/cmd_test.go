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


package reroute

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnative/shardalloc/coordinator"
	"github.com/streamnative/shardalloc/coordinator/cluster"
	"github.com/streamnative/shardalloc/coordinator/metadata"
	"github.com/streamnative/shardalloc/coordinator/model"
)

type result struct {
	Changed   bool `json:"changed"`
	Decisions []struct {
		Outcome       string `json:"outcome"`
		NodeID        string `json:"nodeId"`
		NodeDecisions []any  `json:"nodeDecisions"`
	} `json:"decisions"`
}

func writeState(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cluster-state.yaml")
	state, err := cluster.NewState(cluster.Options{
		Version: 1,
		Nodes:   []model.DiscoveryNode{{ID: "n1"}, {ID: "n2"}},
		Indices: []model.IndexMetadata{{Name: "logs", NumberOfShards: 2}},
	})
	require.NoError(t, err)
	_, err = metadata.NewProviderFile(path).Store(state, metadata.NotExists)
	require.NoError(t, err)
	return path
}

func run(t *testing.T, args ...string) (result, error) {
	t.Helper()
	statePath, configFile, format, dryRun = "", "", "yaml", false
	opts = coordinator.RerouteOptions{}

	out := &bytes.Buffer{}
	Cmd.SetOut(out)
	Cmd.SetArgs(args)
	if err := Cmd.Execute(); err != nil {
		return result{}, err
	}

	var res result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	return res, nil
}

func initializing(t *testing.T, path string) int {
	t.Helper()
	state, _, err := metadata.NewProviderFile(path).Get()
	require.NoError(t, err)
	return len(state.RoutingTable().ShardsWithState(model.ShardStateInitializing))
}

func TestReroute(t *testing.T) {
	path := writeState(t)

	res, err := run(t, "-s", path, "-o", "json")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	// both primaries, then the rebalancing gate as they are not started yet
	require.Len(t, res.Decisions, 3)
	assert.Equal(t, "allocated", res.Decisions[0].Outcome)
	assert.Equal(t, "allocated", res.Decisions[1].Outcome)
	assert.Equal(t, "rebalance_disallowed", res.Decisions[2].Outcome)
	assert.Empty(t, res.Decisions[0].NodeDecisions)
	assert.NotEqual(t, res.Decisions[0].NodeID, res.Decisions[1].NodeID)
	assert.Equal(t, 2, initializing(t, path))

	res, err = run(t, "-s", path, "-o", "json")
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestRerouteDryRun(t *testing.T) {
	path := writeState(t)

	res, err := run(t, "-s", path, "-o", "json", "--dry-run", "--explain")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	require.Len(t, res.Decisions, 3)
	assert.NotEmpty(t, res.Decisions[0].NodeDecisions)
	assert.Equal(t, 0, initializing(t, path))
}

func TestRerouteErrors(t *testing.T) {
	path := writeState(t)

	_, err := run(t, "-s", path, "-o", "xml")
	assert.Error(t, err)

	_, err = run(t, "-s", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrNoState)

	settings := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("balance:\n  threshold: -1\n"), 0640))
	_, err = run(t, "-s", path, "-f", settings)
	assert.Error(t, err)
}
