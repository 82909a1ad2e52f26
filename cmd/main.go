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


package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/streamnative/shardalloc/cmd/coordinator"
	"github.com/streamnative/shardalloc/cmd/reroute"
	"github.com/streamnative/shardalloc/cmd/simulate"
	"github.com/streamnative/shardalloc/common/logging"
	"github.com/streamnative/shardalloc/common/process"
)

var (
	logLevelStr string
	rootCmd     = &cobra.Command{
		Use:               "shardalloc",
		Short:             "Shard allocation and balancing",
		Long:              `Decides where the copies of the shards of a cluster live, and keeps them balanced`,
		PersistentPreRunE: configureLogLevel,
		SilenceUsage:      true,
	}
)

type LogLevelError string

func (l LogLevelError) Error() string {
	return fmt.Sprintf("unknown log level (%s)", string(l))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevelStr, "log-level", "l", logging.DefaultLogLevel.String(), "Set logging level [debug|info|warn|error]")
	rootCmd.PersistentFlags().BoolVarP(&logging.LogJSON, "log-json", "j", false, "Print logs in JSON format")

	rootCmd.AddCommand(coordinator.Cmd)
	rootCmd.AddCommand(reroute.Cmd)
	rootCmd.AddCommand(simulate.Cmd)
}

func configureLogLevel(*cobra.Command, []string) error {
	logLevel, err := logging.ParseLogLevel(logLevelStr)
	if err != nil {
		return LogLevelError(logLevelStr)
	}
	logging.LogLevel = logLevel
	logging.ConfigureLogger()
	return nil
}

func main() {
	process.DoWithLabels(context.Background(), map[string]string{
		"shardalloc": "main",
	}, func() {
		if _, err := maxprocs.Set(); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := rootCmd.Execute(); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	})
}
