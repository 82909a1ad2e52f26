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

package model

import (
	"github.com/pkg/errors"
)

var ErrUnknownEnumValue = errors.New("unknown enum value")

type ShardState uint16

const (
	ShardStateUnassigned ShardState = iota
	ShardStateInitializing
	ShardStateStarted
	ShardStateRelocating
)

var shardStateToString = map[ShardState]string{
	ShardStateUnassigned:   "UNASSIGNED",
	ShardStateInitializing: "INITIALIZING",
	ShardStateStarted:      "STARTED",
	ShardStateRelocating:   "RELOCATING",
}

var toShardState = invert(shardStateToString)

func (s ShardState) String() string {
	return shardStateToString[s]
}

// MarshalText marshals the enum as its name, which is used by both the
// json and the yaml encoders.
func (s ShardState) MarshalText() ([]byte, error) {
	return marshalEnum(shardStateToString, s)
}

func (s *ShardState) UnmarshalText(b []byte) error {
	return unmarshalEnum(toShardState, b, s)
}

// RecoverySource describes where an initializing copy gets its data from.
type RecoverySource uint16

const (
	// RecoverySourceEmptyStore A brand-new primary.
	RecoverySourceEmptyStore RecoverySource = iota
	// RecoverySourceExistingStore A primary reusing data already on the node.
	RecoverySourceExistingStore
	// RecoverySourcePeer A replica or relocation target copying from another node.
	RecoverySourcePeer
	// RecoverySourceSnapshot A primary restored from a snapshot.
	RecoverySourceSnapshot
)

var recoverySourceToString = map[RecoverySource]string{
	RecoverySourceEmptyStore:    "EMPTY_STORE",
	RecoverySourceExistingStore: "EXISTING_STORE",
	RecoverySourcePeer:          "PEER",
	RecoverySourceSnapshot:      "SNAPSHOT",
}

var toRecoverySource = invert(recoverySourceToString)

func (r RecoverySource) String() string {
	return recoverySourceToString[r]
}

func (r RecoverySource) MarshalText() ([]byte, error) {
	return marshalEnum(recoverySourceToString, r)
}

func (r *RecoverySource) UnmarshalText(b []byte) error {
	return unmarshalEnum(toRecoverySource, b, r)
}

func invert[E comparable](m map[E]string) map[string]E {
	res := make(map[string]E, len(m))
	for k, v := range m {
		res[v] = k
	}
	return res
}

func marshalEnum[E comparable](names map[E]string, e E) ([]byte, error) {
	name, ok := names[e]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEnumValue, "%#v", e)
	}
	return []byte(name), nil
}

func unmarshalEnum[E comparable](values map[string]E, b []byte, out *E) error {
	v, ok := values[string(b)]
	if !ok {
		return errors.Wrapf(ErrUnknownEnumValue, "%q", string(b))
	}
	*out = v
	return nil
}
