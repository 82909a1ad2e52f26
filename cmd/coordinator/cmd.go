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
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/streamnative/shardalloc/cmd/config"
	"github.com/streamnative/shardalloc/cmd/flag"
	"github.com/streamnative/shardalloc/common/process"
	"github.com/streamnative/shardalloc/coordinator"
)

var (
	conf       = coordinator.NewConfig()
	configFile string

	Cmd = &cobra.Command{
		Use:   "coordinator",
		Short: "Start a coordinator",
		Long: `Start a coordinator, which keeps the routing of the cluster state file up to date.
The state is rerouted periodically and whenever the file is modified. Changes of the
allocation settings file are applied without a restart.`,
		PreRunE: validate,
		RunE:    exec,
	}
)

func init() {
	flag.MetricsAddr(Cmd, &conf.MetricsServiceAddr)
	flag.StateFile(Cmd, &conf.StatePath)
	flag.SettingsFile(Cmd, &configFile)
	Cmd.Flags().DurationVar(&conf.RerouteInterval, "reroute-interval", conf.RerouteInterval, "Interval between periodic reroutes")
	Cmd.Flags().Float64Var(&conf.ReroutesPerSecond, "reroutes-per-second", conf.ReroutesPerSecond, "Maximum rate of reroutes")
}

func validate(*cobra.Command, []string) error {
	if conf.RerouteInterval <= 0 {
		return errors.New("reroute-interval must be positive")
	}
	if conf.ReroutesPerSecond <= 0 {
		return errors.New("reroutes-per-second must be positive")
	}
	return nil
}

func exec(*cobra.Command, []string) error {
	loader := config.NewLoader(configFile)
	if _, err := loader.Load(); err != nil {
		return err
	}

	conf.SettingsProvider = loader.Load
	conf.SettingsChangeNotifications = make(chan any)
	loader.Watch(conf.SettingsChangeNotifications)

	process.RunProcess(func() (io.Closer, error) {
		return coordinator.New(conf)
	})
	return nil
}
