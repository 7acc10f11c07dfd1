/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package driver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// PrometheusExporter serves the driver's Stats counters as gauges on
// /metrics. Unlike a scrape-based exporter it reads straight from the
// in-process Stats bag; there is no separate daemon to poll.
type PrometheusExporter struct {
	registry   *prometheus.Registry
	listenAddr string
	stats      *Stats
}

// NewPrometheusExporter returns an exporter for stats, listening on
// listenAddr (e.g. ":9124") once Start is called.
func NewPrometheusExporter(listenAddr string, stats *Stats) *PrometheusExporter {
	return &PrometheusExporter{registry: prometheus.NewRegistry(), listenAddr: listenAddr, stats: stats}
}

// Start installs the /metrics handler and blocks serving it. Run it
// in its own goroutine.
func (e *PrometheusExporter) Start() error {
	http.Handle("/metrics", promhttp.HandlerFor(
		e.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))
	return http.ListenAndServe(e.listenAddr, nil)
}

// Collect pushes the current counter values into the registry. Call
// it on a timer (e.g. once per poll round) to keep scrapes fresh.
func (e *PrometheusExporter) Collect() {
	for key, val := range e.stats.Get() {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: flattenKey(key),
			Help: key,
		})
		if err := e.registry.Register(g); err != nil {
			are := &prometheus.AlreadyRegisteredError{}
			if errors.As(err, are) {
				g = are.ExistingCollector.(prometheus.Gauge)
			} else {
				log.Errorf("driver: failed to register metric %s: %v", key, err)
				continue
			}
		}
		g.Set(float64(val))
	}
}

func flattenKey(key string) string {
	r := strings.NewReplacer(" ", "_", ".", "_", "-", "_", "=", "_", "/", "_")
	return r.Replace(key)
}
