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

package action

import (
	"context"

	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/cluster"
)

var _ Action = &ApplyRoutingAction{}

// ApplyRoutingAction carries the result of a reroute of Base. The owner of
// the state applies it only if Base is still current, and calls Done with
// whether it did.
type ApplyRoutingAction struct {
	Base   *cluster.State
	Result allocation.Result

	done chan bool
}

func NewApplyRoutingAction(base *cluster.State, result allocation.Result) *ApplyRoutingAction {
	return &ApplyRoutingAction{
		Base:   base,
		Result: result,
		done:   make(chan bool, 1),
	}
}

func (*ApplyRoutingAction) Type() Type {
	return ApplyRouting
}

// Next is the state resulting from applying the action to Base.
func (a *ApplyRoutingAction) Next() *cluster.State {
	return a.Base.WithRoutingTable(a.Result.RoutingTable)
}

// Done reports whether the routing was applied. Only the first call counts.
func (a *ApplyRoutingAction) Done(applied any) {
	ok, _ := applied.(bool)
	select {
	case a.done <- ok:
	default:
	}
}

// Wait blocks until Done was called, and returns its value.
func (a *ApplyRoutingAction) Wait(ctx context.Context) (bool, error) {
	select {
	case applied := <-a.done:
		return applied, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
