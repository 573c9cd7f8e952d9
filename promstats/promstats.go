// Package promstats is an optional, additive Prometheus integration:
// a prometheus.Collector that scrapes a *rescache.Cache's GetStats()
// on demand instead of hooking increments into the hot path. Wiring
// it is the caller's choice — rescache.Cache itself has no Prometheus
// dependency, keeping the core framework-agnostic.
package promstats

import (
	"context"

	"github.com/auth-platform/rescache"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector adapts a *rescache.Cache to prometheus.Collector. Metric
// names follow a cache_<thing> / cache_<thing>_total convention. Every
// value is read from GetStats at scrape time, since this library keeps
// its own hit/miss counters internally rather than incrementing a
// global registry on every call; hit/miss totals are reported as
// counters and everything else as gauges.
type Collector struct {
	cache     *rescache.Cache
	namespace string

	l1Size         *prometheus.Desc
	l1MaxSize      *prometheus.Desc
	l1Hits         *prometheus.Desc
	l1Misses       *prometheus.Desc
	l2Connected    *prometheus.Desc
	l2CircuitState *prometheus.Desc
}

// circuitStateValue maps a breaker state string to the gauge value
// NewCollector reports: 0 closed, 0.5 half_open, 1 open. A state this
// package doesn't recognize reports -1 so it's visibly distinct from
// "closed" on a dashboard. With L2 disabled no L2 metric is emitted.
func circuitStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half_open":
		return 0.5
	case "open":
		return 1
	default:
		return -1
	}
}

// NewCollector creates a Collector over cache. namespace prefixes
// every metric name, matching promauto.NewCounterVec's Namespace
// field convention.
func NewCollector(cache *rescache.Cache, namespace string) *Collector {
	label := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		cache:          cache,
		namespace:      namespace,
		l1Size:         label("cache_l1_size", "Current number of entries held in the L1 tier"),
		l1MaxSize:      label("cache_l1_max_size", "Configured maximum number of entries for the L1 tier"),
		l1Hits:         label("cache_l1_hits_total", "Total number of L1 hits observed at scrape time"),
		l1Misses:       label("cache_l1_misses_total", "Total number of L1 misses observed at scrape time"),
		l2Connected:    label("cache_l2_connected", "Whether the L2 tier reported a healthy connection at scrape time (1) or not (0)"),
		l2CircuitState: label("cache_l2_circuit_state", "L2 circuit breaker state: 0 closed, 0.5 half_open, 1 open, -1 unknown"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.l1Size
	ch <- c.l1MaxSize
	ch <- c.l1Hits
	ch <- c.l1Misses
	ch <- c.l2Connected
	ch <- c.l2CircuitState
}

// Collect implements prometheus.Collector. A GetStats failure is
// dropped silently: a scrape must never panic or block the registry,
// and a missing sample for one interval is preferable to surfacing an
// error through an interface that has no room for one.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats, err := c.cache.GetStats(context.Background())
	if err != nil {
		return
	}

	if stats.L1.Enabled {
		ch <- prometheus.MustNewConstMetric(c.l1Size, prometheus.GaugeValue, float64(stats.L1.Size))
		ch <- prometheus.MustNewConstMetric(c.l1MaxSize, prometheus.GaugeValue, float64(stats.L1.MaxSize))
		ch <- prometheus.MustNewConstMetric(c.l1Hits, prometheus.CounterValue, float64(stats.L1.Hits))
		ch <- prometheus.MustNewConstMetric(c.l1Misses, prometheus.CounterValue, float64(stats.L1.Misses))
	}

	if stats.L2.Enabled {
		connected := 0.0
		if stats.L2.Connected {
			connected = 1
		}
		ch <- prometheus.MustNewConstMetric(c.l2Connected, prometheus.GaugeValue, connected)
		ch <- prometheus.MustNewConstMetric(c.l2CircuitState, prometheus.GaugeValue, circuitStateValue(stats.L2.CircuitState))
	}
}

var _ prometheus.Collector = (*Collector)(nil)
