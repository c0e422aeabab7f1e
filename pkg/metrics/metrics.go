// Package metrics exposes sync run counters on a private prometheus registry.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	Runs      *prometheus.CounterVec
	Batches   *prometheus.CounterVec
	Mutations *prometheus.CounterVec
	Resources *prometheus.GaugeVec
	Diff      *prometheus.GaugeVec
	LastRun   prometheus.Gauge
	Duration  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datimsync_runs_total",
			Help: "Sync runs by final status.",
		}, []string{"status"}),
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datimsync_batches_total",
			Help: "Batch outcomes by batch and status.",
		}, []string{"batch", "status"}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datimsync_mutations_total",
			Help: "Import script mutations by batch, resource type and operation.",
		}, []string{"batch", "type", "op"}),
		Resources: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "datimsync_resources",
			Help: "Resources in the last snapshot by batch and side (dhis2 or ocl).",
		}, []string{"batch", "side"}),
		Diff: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "datimsync_diff_records",
			Help: "Records per diff bucket in the last run.",
		}, []string{"batch", "bucket"}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datimsync_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "datimsync_run_duration_seconds",
			Help:    "Wall time of sync runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	m.reg.MustRegister(m.Runs, m.Batches, m.Mutations, m.Resources, m.Diff, m.LastRun, m.Duration)
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "go_heap_alloc_bytes",
		Help: "Current heap allocation in bytes.",
	}, func() float64 {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		return float64(stats.HeapAlloc)
	}))
	return m
}

// Registry returns the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
