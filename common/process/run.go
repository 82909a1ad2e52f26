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

package process

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"go.uber.org/multierr"
)

// DoWithLabels runs f with the given pprof labels attached, so that
// background goroutines can be told apart in profiles.
func DoWithLabels(ctx context.Context, labels map[string]string, f func()) {
	var l []string
	for k, v := range labels {
		l = append(l, k, v)
	}

	pprof.Do(
		ctx,
		pprof.Labels(l...),
		func(_ context.Context) {
			f()
		})
}

// RunProcess starts a long-running process and blocks until the process
// receives SIGINT or SIGTERM, at which point every closer is closed.
func RunProcess(startProcess func() (io.Closer, error)) {
	p, err := startProcess()
	if err != nil {
		slog.Error(
			"Failed to start the process",
			slog.Any("error", err),
		)
		os.Exit(1)
	}

	if err := WaitUntilSignal(p); err != nil {
		os.Exit(1)
	}
}

func WaitUntilSignal(closers ...io.Closer) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	sig := <-c
	slog.Info(
		"Received signal, exiting",
		slog.String("signal", sig.String()),
	)

	var err error
	for _, closer := range closers {
		err = multierr.Append(err, closer.Close())
	}
	if err != nil {
		slog.Error(
			"Failed when shutting down",
			slog.Any("error", err),
		)
		return err
	}

	slog.Info("Shutdown Completed")
	return nil
}
