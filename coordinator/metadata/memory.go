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
	"sync"

	"github.com/streamnative/shardalloc/coordinator/cluster"
)

type memory struct {
	sync.Mutex

	state   *cluster.State
	version int64
}

// NewProviderMemory keeps the state in memory only.
func NewProviderMemory() Provider {
	return &memory{version: NotExists}
}

func (*memory) Close() error {
	return nil
}

func (m *memory) Get() (*cluster.State, int64, error) {
	m.Lock()
	defer m.Unlock()
	return m.state, m.version, nil
}

func (m *memory) Store(state *cluster.State, expectedVersion int64) (int64, error) {
	m.Lock()
	defer m.Unlock()

	if err := checkVersion(state, expectedVersion, m.version); err != nil {
		return NotExists, err
	}
	m.state = state
	m.version = state.Version()
	return m.version, nil
}
