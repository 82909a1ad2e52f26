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
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/streamnative/shardalloc/common/process"
)

var meter otelmetric.Meter

func init() {
	exporter, err := prometheus.New()
	if err != nil {
		slog.Error(
			"Failed to initialize Prometheus metrics exporter",
			slog.Any("error", err),
		)
		os.Exit(1)
	}

	latencyHistogramView := sdkmetric.NewView(
		sdkmetric.Instrument{
			Kind: sdkmetric.InstrumentKindHistogram,
			Unit: string(Milliseconds),
		},
		sdkmetric.Stream{
			Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: latencyBucketsMillis,
			},
		},
	)
	defaultView := sdkmetric.NewView(sdkmetric.Instrument{Name: "*"}, sdkmetric.Stream{})

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter),
		sdkmetric.WithView(latencyHistogramView, defaultView))
	meter = provider.Meter("shardalloc")
}

type PrometheusMetrics struct {
	server *http.Server
	port   int
}

func Start(bindAddress string) (*PrometheusMetrics, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	listener, err := net.Listen("tcp", bindAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", bindAddress)
	}

	p := &PrometheusMetrics{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: time.Second,
		},
		port: listener.Addr().(*net.TCPAddr).Port,
	}

	slog.Info(fmt.Sprintf("Serving Prometheus metrics at http://localhost:%d/metrics", p.port))

	go process.DoWithLabels(context.Background(), map[string]string{
		"shardalloc": "metrics",
	}, func() {
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(
				"Failed to serve metrics",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	})

	return p, nil
}

func (p *PrometheusMetrics) Port() int {
	return p.port
}

func (p *PrometheusMetrics) Close() error {
	return p.server.Close()
}
