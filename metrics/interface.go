/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics exposes pool/client activity as Prometheus collectors:
// gauges for live connection counts, counters for reconnects and
// redirects. Callers register a *Pool's collectors once per pool by
// passing their own prometheus.Registerer to Register.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pool holds the collectors for one ConnectionPool instance.
type Pool struct {
	Available  prometheus.Gauge
	Concurrent prometheus.Gauge
	Reconnects prometheus.Counter
	Redirects  prometheus.Counter
	TooMany    prometheus.Counter
}

// NewPool builds collectors labeled by address, ready to register.
func NewPool(address string) *Pool {
	labels := prometheus.Labels{"address": address}

	return &Pool{
		Available: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "asyncnet",
			Subsystem:   "pool",
			Name:        "available_connections",
			Help:        "Idle, reusable connections currently held by this pool.",
			ConstLabels: labels,
		}),
		Concurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "asyncnet",
			Subsystem:   "pool",
			Name:        "concurrent_connections",
			Help:        "In-flight connections currently held by this pool.",
			ConstLabels: labels,
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "asyncnet",
			Subsystem:   "pool",
			Name:        "reconnects_total",
			Help:        "Reconnection attempts scheduled after connection_lost.",
			ConstLabels: labels,
		}),
		Redirects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "asyncnet",
			Subsystem:   "client",
			Name:        "redirects_total",
			Help:        "Redirects followed via request_again.",
			ConstLabels: labels,
		}),
		TooMany: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "asyncnet",
			Subsystem:   "pool",
			Name:        "too_many_connections_total",
			Help:        "Admission attempts rejected by the pool's semaphore.",
			ConstLabels: labels,
		}),
	}
}

// Register registers every collector in p with reg.
func (p *Pool) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{p.Available, p.Concurrent, p.Reconnects, p.Redirects, p.TooMany}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}
