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
	"log/slog"

	"github.com/pkg/errors"

	"github.com/streamnative/shardalloc/coordinator/action"
	"github.com/streamnative/shardalloc/coordinator/cluster"
	"github.com/streamnative/shardalloc/coordinator/metadata"
)

// StateSupplier reads the current state of a provider. A state which
// cannot be read is reported as nil, and the scheduler skips the pass.
func StateSupplier(provider metadata.Provider) func() *cluster.State {
	return func() *cluster.State {
		state, _, err := provider.Get()
		if err != nil {
			slog.Warn("Failed to read the cluster state", slog.Any("error", err))
			return nil
		}
		return state
	}
}

// ApplyActions stores the routing proposed by a scheduler into the
// provider, until the action channel is closed. A proposal based on a
// state which is no longer current is rejected.
func ApplyActions(provider metadata.Provider, actions <-chan action.Action) {
	for a := range actions {
		proposal, ok := a.(*action.ApplyRoutingAction)
		if !ok {
			slog.Warn("Unexpected action", slog.Any("type", a.Type()))
			a.Done(false)
			continue
		}
		version, err := provider.Store(proposal.Next(), proposal.Base.Version())
		if err != nil {
			if !errors.Is(err, metadata.ErrBadVersion) {
				slog.Error("Failed to store the cluster state", slog.Any("error", err))
			}
			a.Done(false)
			continue
		}
		slog.Debug("Applied routing",
			slog.Int64("version", version),
			slog.Int64("routing-version", proposal.Result.RoutingTable.Version()),
		)
		a.Done(true)
	}
}
