// Package metrics exposes the fast path's diagnostic Stats structs
// (sabfs, elfcache, procipc) as Prometheus gauges served over HTTP,
// the same instrumentation surface rclone's own accounting layer
// wires client_golang against.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tappress/qemu-wasm/internal/elfcache"
	"github.com/tappress/qemu-wasm/internal/procipc"
	"github.com/tappress/qemu-wasm/internal/sabfs"
)

// Collector forwards point-in-time Stats snapshots from the three
// accelerated components onto registered gauges. It never scrapes on
// its own; callers push a fresh snapshot via Observe.
type Collector struct {
	sabOpenFds prometheus.Gauge
	sabOpens   prometheus.Gauge
	sabCloses  prometheus.Gauge

	cacheHits      prometheus.Gauge
	cacheMisses    prometheus.Gauge
	cacheEvictions prometheus.Gauge
	cacheFailures  prometheus.Gauge

	procRoundTrips prometheus.Gauge
	procTimeouts   prometheus.Gauge
	procLocalWaits prometheus.Gauge
}

// NewCollector builds and registers the fast path's gauges against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sabfsaccel",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(g)
		return g
	}

	return &Collector{
		sabOpenFds: gauge("sabfs", "open_fds", "Currently open SABFS virtual file descriptors."),
		sabOpens:   gauge("sabfs", "opens_total", "Cumulative successful SABFS opens."),
		sabCloses:  gauge("sabfs", "closes_total", "Cumulative SABFS closes."),

		cacheHits:      gauge("elfcache", "hits_total", "Cumulative preload-cache open hits."),
		cacheMisses:    gauge("elfcache", "misses_total", "Cumulative preload-cache open misses."),
		cacheEvictions: gauge("elfcache", "evictions_total", "Cumulative preload-cache slot evictions."),
		cacheFailures:  gauge("elfcache", "failures_total", "Cumulative preload failures."),

		procRoundTrips: gauge("procipc", "round_trips_total", "Cumulative worker-to-supervisor IPC round trips."),
		procTimeouts:   gauge("procipc", "timeouts_total", "Cumulative IPC round trips that timed out."),
		procLocalWaits: gauge("procipc", "local_waits_total", "Cumulative wait4 calls answered without an IPC round trip."),
	}
}

// Observe pushes a fresh snapshot of the three components' counters
// onto the registered gauges.
func (c *Collector) Observe(sab sabfs.Stats, cache elfcache.Stats, proc procipc.Stats) {
	c.sabOpenFds.Set(float64(sab.OpenFds))
	c.sabOpens.Set(float64(sab.Opens))
	c.sabCloses.Set(float64(sab.Closes))

	c.cacheHits.Set(float64(cache.Hits))
	c.cacheMisses.Set(float64(cache.Misses))
	c.cacheEvictions.Set(float64(cache.Evictions))
	c.cacheFailures.Set(float64(cache.Failures))

	c.procRoundTrips.Set(float64(proc.RoundTrips))
	c.procTimeouts.Set(float64(proc.Timeouts))
	c.procLocalWaits.Set(float64(proc.LocalWaits))
}
