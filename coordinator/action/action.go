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

// Type names a proposal in the log. An applier rejects the types it does
// not handle, so the Done payload can stay specific to each type.
type Type string

const (
	ApplyRouting Type = "apply-routing"
)

// Action is proposed by a background component to the owner of the
// cluster state, which reports back through Done.
type Action interface {
	Type() Type

	Done(t any)
}
