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


package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrite(t *testing.T) {
	v := struct {
		Name  string `json:"name" yaml:"name"`
		Count int    `json:"count" yaml:"count"`
	}{"logs", 3}

	for _, test := range []struct {
		format   string
		expected string
	}{
		{"yaml", "name: logs\ncount: 3\n"},
		{"json", "{\n  \"name\": \"logs\",\n  \"count\": 3\n}\n"},
	} {
		t.Run(test.format, func(t *testing.T) {
			buf := &bytes.Buffer{}
			assert.NoError(t, Validate(test.format))
			assert.NoError(t, Write(buf, test.format, v))
			assert.Equal(t, test.expected, buf.String())
		})
	}

	assert.ErrorIs(t, Write(&bytes.Buffer{}, "xml", v), ErrUnknownFormat)
	assert.ErrorIs(t, Validate("xml"), ErrUnknownFormat)
}
