// Copyright 2025 Poiesic Systems
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


package ingestion

import (
	"github.com/poiesic/filedrop/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	files    *prometheus.CounterVec
	bytes    prometheus.Counter
	retries  prometheus.Counter
	inFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		files: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filedrop_files_total",
				Help: "Files that reached a terminal result, by outcome and error kind.",
			},
			[]string{"outcome", "error_kind"},
		),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filedrop_bytes_acknowledged_total",
			Help: "Bytes acknowledged by the transfer endpoint.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filedrop_chunk_retries_total",
			Help: "Endpoint calls retried after a transient failure.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "filedrop_transfers_in_flight",
			Help: "Transfers currently running.",
		}),
	}

	for _, c := range []prometheus.Collector{m.files, m.bytes, m.retries, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeResult(r core.TransferResult) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(string(r.Outcome), string(r.ErrorKind)).Inc()
}

func (m *Metrics) addBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.Add(float64(n))
}

func (m *Metrics) retried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) transferStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) transferFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
