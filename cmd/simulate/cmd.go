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


package simulate

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/streamnative/shardalloc/cmd/config"
	"github.com/streamnative/shardalloc/cmd/flag"
	"github.com/streamnative/shardalloc/cmd/output"
	"github.com/streamnative/shardalloc/coordinator"
	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/metadata"
	"github.com/streamnative/shardalloc/coordinator/model"
)

var ErrNoState = errors.New("no cluster state")

var (
	statePath  string
	configFile string
	format     string
	maxRounds  int
	write      bool
	opts       coordinator.RerouteOptions

	Cmd = &cobra.Command{
		Use:   "simulate",
		Short: "Simulate allocation passes until the cluster is balanced",
		Long: `Alternate allocation passes with the completion of the recoveries they start,
as if every copy recovered instantly, until a pass changes nothing. Prints the
number of passes, the decisions by outcome and the resulting shards per node.`,
		Args:    cobra.NoArgs,
		PreRunE: validate,
		RunE:    exec,
	}
)

type Summary struct {
	Rounds        int                        `json:"rounds" yaml:"rounds"`
	Converged     bool                       `json:"converged" yaml:"converged"`
	Outcomes      map[allocation.Outcome]int `json:"outcomes" yaml:"outcomes"`
	ShardsPerNode map[string]int             `json:"shardsPerNode" yaml:"shardsPerNode"`
	Unassigned    int                        `json:"unassigned" yaml:"unassigned"`
}

func init() {
	flag.StateFile(Cmd, &statePath)
	flag.SettingsFile(Cmd, &configFile)
	flag.Output(Cmd, &format)
	flag.RetryFailed(Cmd, &opts.RetryFailed)
	Cmd.Flags().IntVar(&maxRounds, "rounds", 100, "Maximum number of allocation passes")
	Cmd.Flags().BoolVar(&write, "write", false, "Write the resulting state back to the state file")
}

func validate(*cobra.Command, []string) error {
	if maxRounds <= 0 {
		return errors.Wrapf(coordinator.ErrInvalidRounds, "got %d", maxRounds)
	}
	return output.Validate(format)
}

func exec(cmd *cobra.Command, _ []string) (err error) {
	settings, err := config.NewLoader(configFile).Load()
	if err != nil {
		return err
	}
	service, err := coordinator.NewAllocationService(settings)
	if err != nil {
		return err
	}
	provider := metadata.NewProviderFile(statePath)
	defer func() {
		err = multierr.Combine(err, service.Close(), provider.Close())
	}()

	state, version, err := provider.Get()
	if err != nil {
		return err
	}
	if state == nil {
		return errors.Wrapf(ErrNoState, "in %s", statePath)
	}

	res, err := service.Simulate(cmd.Context(), state, maxRounds, opts)
	if err != nil {
		return err
	}
	if write && res.State != state {
		if _, err = provider.Store(res.State, version); err != nil {
			return errors.Wrapf(err, "failed to update %s", statePath)
		}
	}
	return output.Write(cmd.OutOrStdout(), format, summarize(res))
}

func summarize(res coordinator.SimulationResult) Summary {
	s := Summary{
		Rounds:        res.Rounds,
		Converged:     res.Converged,
		Outcomes:      res.Outcomes,
		ShardsPerNode: make(map[string]int),
	}
	for _, id := range res.State.NodeIDs() {
		s.ShardsPerNode[id] = 0
	}
	rt := res.State.RoutingTable()
	for _, shard := range rt.AssignedShards() {
		s.ShardsPerNode[shard.CurrentNodeID]++
	}
	s.Unassigned = len(rt.ShardsWithState(model.ShardStateUnassigned))
	return s
}
