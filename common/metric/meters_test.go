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

package metric

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	metrics, err := Start("localhost:0")
	require.NoError(t, err)
	defer metrics.Close()

	counter := NewCounter("shardalloc_test_placements", "placements", Dimensionless, map[string]any{"phase": "primaries"})
	counter.Add(3)
	gauge := NewGauge("shardalloc_test_unassigned", "unassigned", Dimensionless, nil, func() int64 { return 7 })
	defer gauge.Unregister()
	NewLatencyHistogram("shardalloc_test_latency", "latency", nil).Timer().Done()

	url := fmt.Sprintf("http://localhost:%d/metrics", metrics.Port())
	response, err := http.Get(url)
	require.NoError(t, err)
	defer response.Body.Close()

	assert.Equal(t, http.StatusOK, response.StatusCode)
	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "shardalloc_test_placements")
	assert.Contains(t, string(body), "shardalloc_test_unassigned")
	assert.Contains(t, string(body), "shardalloc_test_latency")
}
