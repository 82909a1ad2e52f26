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
	"bytes"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/juju/fslock"
	"github.com/pkg/errors"

	"github.com/streamnative/shardalloc/coordinator/cluster"
)

// file keeps the state as a snapshot file, in YAML or JSON depending on the
// extension. Writers serialize on a lock file next to it, and replace the
// snapshot atomically so that readers never see a partial one.
type file struct {
	path     string
	format   cluster.Format
	fileLock *fslock.Lock
}

func NewProviderFile(path string) Provider {
	return &file{
		path:     path,
		format:   cluster.FormatOf(path),
		fileLock: fslock.New(path + ".lock"),
	}
}

func (*file) Close() error {
	return nil
}

func (f *file) Get() (*cluster.State, int64, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NotExists, nil
		}
		return nil, NotExists, err
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, NotExists, nil
	}

	snapshot, err := cluster.ReadSnapshot(bytes.NewReader(content), f.format)
	if err != nil {
		return nil, NotExists, errors.Wrapf(err, "failed to read %s", f.path)
	}
	state, err := snapshot.ToState()
	if err != nil {
		return nil, NotExists, errors.Wrapf(err, "invalid cluster state in %s", f.path)
	}
	return state, state.Version(), nil
}

func (f *file) Store(state *cluster.State, expectedVersion int64) (int64, error) {
	parentDir := filepath.Dir(f.path)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return NotExists, err
	}

	if err := f.fileLock.Lock(); err != nil {
		return NotExists, errors.Wrap(err, "failed to acquire file lock")
	}
	defer func() {
		if err := f.fileLock.Unlock(); err != nil {
			slog.Warn(
				"Failed to release file lock on cluster state",
				slog.String("path", f.path),
				slog.Any("error", err),
			)
		}
	}()

	_, existingVersion, err := f.Get()
	if err != nil {
		return NotExists, err
	}
	if err := checkVersion(state, expectedVersion, existingVersion); err != nil {
		return NotExists, err
	}

	buf := &bytes.Buffer{}
	if err := cluster.WriteSnapshot(buf, f.format, state.ToSnapshot()); err != nil {
		return NotExists, err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0640); err != nil {
		return NotExists, err
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return NotExists, errors.Wrapf(err, "failed to replace %s", f.path)
	}
	return state.Version(), nil
}
