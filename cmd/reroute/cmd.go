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
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/streamnative/shardalloc/cmd/config"
	"github.com/streamnative/shardalloc/cmd/flag"
	"github.com/streamnative/shardalloc/cmd/output"
	"github.com/streamnative/shardalloc/coordinator"
	"github.com/streamnative/shardalloc/coordinator/metadata"
)

var ErrNoState = errors.New("no cluster state")

var (
	statePath  string
	configFile string
	format     string
	dryRun     bool
	opts       coordinator.RerouteOptions

	Cmd = &cobra.Command{
		Use:   "reroute",
		Short: "Run one allocation pass over a cluster state file",
		Long: `Run one allocation pass over a cluster state file and print the decisions.
The resulting routing is written back to the file, unless --dry-run is set.`,
		Args:    cobra.NoArgs,
		PreRunE: validate,
		RunE:    exec,
	}
)

func init() {
	flag.StateFile(Cmd, &statePath)
	flag.SettingsFile(Cmd, &configFile)
	flag.Output(Cmd, &format)
	flag.Explain(Cmd, &opts.Explain)
	flag.RetryFailed(Cmd, &opts.RetryFailed)
	Cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the decisions without updating the state file")
}

func validate(*cobra.Command, []string) error {
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

	res, err := service.Reroute(cmd.Context(), state, opts)
	if err != nil {
		return err
	}
	if res.Changed && !dryRun {
		if version, err = provider.Store(state.WithRoutingTable(res.RoutingTable), version); err != nil {
			return errors.Wrapf(err, "failed to update %s", statePath)
		}
		slog.Info(
			"Cluster state updated",
			slog.String("path", statePath),
			slog.Int64("version", version),
		)
	}
	return output.Write(cmd.OutOrStdout(), format, res)
}
