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
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/streamnative/shardalloc/coordinator"
)

func TestCmd(t *testing.T) {
	for _, test := range []struct {
		args         []string
		expectedConf coordinator.Config
		isErr        bool
	}{
		{[]string{}, coordinator.Config{
			MetricsServiceAddr: "localhost:8080",
			StatePath:          "data/cluster-state.yaml",
			RerouteInterval:    30 * time.Second,
			ReroutesPerSecond:  5,
		}, false},
		{[]string{"-m=localhost:9090", "-s=/tmp/state.json"}, coordinator.Config{
			MetricsServiceAddr: "localhost:9090",
			StatePath:          "/tmp/state.json",
			RerouteInterval:    30 * time.Second,
			ReroutesPerSecond:  5,
		}, false},
		{[]string{"--reroute-interval=1m", "--reroutes-per-second=0.5"}, coordinator.Config{
			MetricsServiceAddr: "localhost:8080",
			StatePath:          "data/cluster-state.yaml",
			RerouteInterval:    time.Minute,
			ReroutesPerSecond:  0.5,
		}, false},
		{[]string{"--reroute-interval=0s"}, coordinator.Config{}, true},
		{[]string{"--reroutes-per-second=-1"}, coordinator.Config{}, true},
	} {
		t.Run(strings.Join(test.args, " "), func(t *testing.T) {
			conf = coordinator.NewConfig()
			configFile = ""

			Cmd.SetArgs(test.args)
			Cmd.RunE = func(*cobra.Command, []string) error {
				assert.Equal(t, test.expectedConf.MetricsServiceAddr, conf.MetricsServiceAddr)
				assert.Equal(t, test.expectedConf.StatePath, conf.StatePath)
				assert.Equal(t, test.expectedConf.RerouteInterval, conf.RerouteInterval)
				assert.InDelta(t, test.expectedConf.ReroutesPerSecond, conf.ReroutesPerSecond, 1e-9)
				return nil
			}
			err := Cmd.Execute()
			assert.Equal(t, test.isErr, err != nil)
		})
	}
}
