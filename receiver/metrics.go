//
// Copyright 2016 Gregory Trubetskoy. All Rights Reserved.
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

package receiver

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chartd"

var (
	ticksReceived = newCounter("ticks_received_total", "Ticks taken off the queue.")
	ticksApplied  = newCounter("ticks_applied_total", "Ticks ingested into a series.")
	ticksPadded   = newCounter("ticks_padded_total", "Missing ticks filled with zeros.")
	seriesReset   = newCounter("series_reset_total", "Series reset because of a large tick gap.")
	ticksRejected = newCounterVec("ticks_rejected_total", "Ticks dropped, by reason.", "reason")

	sessionsCached = newGauge("sessions_cached", "Sessions in the cache.")

	flushes       = newCounter("flushes_total", "Sessions written to storage.")
	flushErrors   = newCounter("flush_errors_total", "Failed session writes.")
	flushDuration = newHist("flush_duration_seconds", "Time to write one session.")

	runtimeCpu = newGauge("runtime_cpu_percent", "Host CPU utilization.")
	runtimeMem = newGauge("runtime_mem_alloc_bytes", "Bytes of allocated heap objects.")
)

func newCounter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	prometheus.MustRegister(c)
	return c
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	prometheus.MustRegister(c)
	return c
}

func newGauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	prometheus.MustRegister(g)
	return g
}

func newHist(name, help string) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help})
	prometheus.MustRegister(h)
	return h
}
