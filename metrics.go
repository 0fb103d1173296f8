// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsSet is the worker loop's Prometheus instrumentation (design
// §2's DOMAIN STACK: "gc_cycles_total, gc_slots_reclaimed_total,
// gc_pools_released_total, gc_pause_seconds"). Registered into its own
// registry rather than prometheus.DefaultRegisterer so multiple
// Collectors (as in tests) never collide on metric names.
type metricsSet struct {
	registry *prometheus.Registry

	cyclesTotal    prometheus.Counter
	slotsReclaimed prometheus.Counter
	poolsReleased  prometheus.Counter
	pauseSeconds   prometheus.Histogram
}

func newMetricsSet() *metricsSet {
	m := &metricsSet{
		registry: prometheus.NewRegistry(),
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gc_cycles_total",
			Help: "Total number of mark-sweep-shrink cycles completed.",
		}),
		slotsReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gc_slots_reclaimed_total",
			Help: "Total number of slots reclaimed across all sweeps.",
		}),
		poolsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gc_pools_released_total",
			Help: "Total number of pools released back to the OS or region cache.",
		}),
		pauseSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gc_pause_seconds",
			Help:    "Wall-clock duration of each stop-the-world cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.cyclesTotal, m.slotsReclaimed, m.poolsReleased, m.pauseSeconds)
	return m
}

// Registry exposes the metric set's private registry so a host process
// can mount it under its own /metrics handler.
func (m *metricsSet) Registry() *prometheus.Registry { return m.registry }

func (m *metricsSet) observeCycle(d time.Duration, poolsReleased int) {
	m.cyclesTotal.Inc()
	m.pauseSeconds.Observe(d.Seconds())
	if poolsReleased > 0 {
		m.poolsReleased.Add(float64(poolsReleased))
	}
}

func (m *metricsSet) addSlotsReclaimed(n int) {
	if n > 0 {
		m.slotsReclaimed.Add(float64(n))
	}
}

func (m *metricsSet) addPoolsReleased(n int) {
	if n > 0 {
		m.poolsReleased.Add(float64(n))
	}
}

// Metrics exposes the collector's Prometheus registry so a host process
// can mount gc_* metrics under its own HTTP handler.
func (c *Collector) Metrics() *prometheus.Registry { return c.metrics.Registry() }
