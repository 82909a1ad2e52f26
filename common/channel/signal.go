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


package channel

// PushNoBlock sends t unless the channel is full, and reports whether it did.
func PushNoBlock[T any](ch chan T, t T) bool {
	select {
	case ch <- t:
		return true
	default:
		return false
	}
}

// Signal coalesces notifications: any number of calls to Notify between
// two receives are seen as a single one.
type Signal chan struct{}

func NewSignal() Signal {
	return make(Signal, 1)
}

// Notify reports false when a notification was already pending.
func (s Signal) Notify() bool {
	return PushNoBlock((chan struct{})(s), struct{}{})
}
