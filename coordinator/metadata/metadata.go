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

package metadata

import (
	"io"

	"github.com/pkg/errors"

	"github.com/streamnative/shardalloc/coordinator/cluster"
)

const NotExists int64 = -1

var ErrBadVersion = errors.New("metadata bad version")

// Provider keeps the authoritative cluster state. The version of a stored
// state is its own version, and Store only succeeds when expectedVersion
// matches the stored one, so that concurrent writers cannot lose updates.
type Provider interface {
	io.Closer

	// Get returns the stored state, or nil and NotExists.
	Get() (state *cluster.State, version int64, err error)

	Store(state *cluster.State, expectedVersion int64) (newVersion int64, err error)
}

func checkVersion(state *cluster.State, expectedVersion, currentVersion int64) error {
	if expectedVersion != currentVersion {
		return errors.Wrapf(ErrBadVersion, "expected version %d, found %d", expectedVersion, currentVersion)
	}
	if state.Version() <= currentVersion {
		return errors.Wrapf(ErrBadVersion, "version %d does not advance past %d", state.Version(), currentVersion)
	}
	return nil
}
