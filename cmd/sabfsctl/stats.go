package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tappress/qemu-wasm/internal/metrics"
	"github.com/tappress/qemu-wasm/internal/rlog"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Run a canned workload against the fast-path components and print their counters",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	s := buildStack()
	defer s.close()

	seedDemoFiles(s.img)

	fd := s.sab.Open(cfg.ImagePrefix+"etc/hello", 0, 0)
	if fd >= 0 {
		buf := make([]byte, 16)
		s.sab.Pread(int(fd), buf, 0)
		s.sab.Close(int(fd))
	}

	if errno := s.cache.Preload(cfg.ImagePrefix + "bin/busybox"); errno == 0 {
		vfd := s.cache.Open(cfg.ImagePrefix + "bin/busybox")
		if vfd >= 0 {
			buf := make([]byte, 4)
			s.cache.Pread(int(vfd), buf, 0)
			s.cache.Close(int(vfd))
		}
	}

	pid, _ := s.proc.Fork(int64(cfg.PIDBase))
	s.proc.Exit(0)
	_, _, _ = s.proc.Wait4(pid)

	sabStats := s.sab.Stats()
	cacheStats := s.cache.Stats()
	procStats := s.proc.Stats()

	fmt.Printf("sabfs:    open_fds=%d opens=%d closes=%d\n", sabStats.OpenFds, sabStats.Opens, sabStats.Closes)
	fmt.Printf("elfcache: hits=%d misses=%d evictions=%d failures=%d\n",
		cacheStats.Hits, cacheStats.Misses, cacheStats.Evictions, cacheStats.Failures)
	fmt.Printf("procipc:  %+v\n", procStats)

	if metricsAddr == "" {
		return nil
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.Observe(sabStats, cacheStats, procStats)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	rlog.Infof(rlog.Plain("metrics"), "serving on %s", metricsAddr)
	return http.ListenAndServe(metricsAddr, mux)
}
