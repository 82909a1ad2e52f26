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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushNoBlock(t *testing.T) {
	ch := make(chan int, 1)
	assert.True(t, PushNoBlock(ch, 1))
	assert.False(t, PushNoBlock(ch, 2))
	assert.Equal(t, 1, <-ch)
}

func TestSignal(t *testing.T) {
	s := NewSignal()
	assert.True(t, s.Notify())
	assert.False(t, s.Notify())
	assert.False(t, s.Notify())

	<-s
	select {
	case <-s:
		assert.Fail(t, "notifications were not coalesced")
	default:
	}
	assert.True(t, s.Notify())
}
