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


package flag

import (
	"github.com/spf13/cobra"
)

const (
	DefaultMetricsAddr = "localhost:8080"
	DefaultStatePath   = "data/cluster-state.yaml"
)

func MetricsAddr(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVarP(conf, "metrics-addr", "m", DefaultMetricsAddr, "Metrics service bind address")
}

func StateFile(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVarP(conf, "state", "s", DefaultStatePath, "Cluster state file, in yaml or json depending on the extension")
}

func SettingsFile(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVarP(conf, "conf", "f", "", "Allocation settings file. Defaults apply when not set")
}

func Explain(cmd *cobra.Command, conf *bool) {
	cmd.Flags().BoolVar(conf, "explain", false, "Record the decision of every decider for every shard")
}

func RetryFailed(cmd *cobra.Command, conf *bool) {
	cmd.Flags().BoolVar(conf, "retry-failed", false, "Reset the failed allocation counters before allocating")
}

func Output(cmd *cobra.Command, conf *string) {
	cmd.Flags().StringVarP(conf, "output", "o", "yaml", "Output format: yaml or json")
}
