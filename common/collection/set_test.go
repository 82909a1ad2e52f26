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

package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := NewSet[string]()
	assert.True(t, s.IsEmpty())
	assert.False(t, s.Contains("node-1"))

	s.Add("node-1")
	s.Add("node-1")
	assert.Equal(t, 1, s.Count())
	assert.True(t, s.Contains("node-1"))

	s.Remove("node-1")
	assert.True(t, s.IsEmpty())

	s.AddAll("node-3", "node-1", "node-2")
	assert.Equal(t, []string{"node-1", "node-2", "node-3"}, s.GetSorted())

	o := NewSetFrom([]string{"node-3", "node-4"})
	assert.Equal(t, []string{"node-1", "node-2"}, s.Complement(o).GetSorted())
	assert.True(t, s.Intersects(o))
	assert.False(t, s.Intersects(NewSetFrom([]string{"node-9"})))
}
