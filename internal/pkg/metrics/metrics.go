// Package metrics 定义节目单加载及查询的Prometheus指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	LoadsTotal       *prometheus.CounterVec
	LoadDuration     prometheus.Histogram
	ProgramsIngested prometheus.Gauge
	ProgramsSkipped  *prometheus.CounterVec
	Channels         prometheus.Gauge
	SearchDuration   prometheus.Histogram
	SearchResults    prometheus.Histogram
}

// New 创建并注册所有指标，每个实例使用独立的Registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epg_loads_total",
				Help: "Total guide loads by status (success, too_large, malformed, canceled, error).",
			},
			[]string{"status"},
		),
		LoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "epg_load_duration_seconds",
				Help:    "Guide load latency in seconds, from fetch to publish.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		ProgramsIngested: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "epg_programs_ingested",
				Help: "Number of programs ingested by the last successful load.",
			},
		),
		ProgramsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "epg_programs_skipped_total",
				Help: "Total programme records skipped during ingestion by reason.",
			},
			[]string{"reason"},
		),
		Channels: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "epg_channels",
				Help: "Number of channels currently held by the store.",
			},
		),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "epg_search_duration_seconds",
				Help:    "Program search latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		SearchResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "epg_search_results",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
	}

	m.registry.MustRegister(
		m.LoadsTotal,
		m.LoadDuration,
		m.ProgramsIngested,
		m.ProgramsSkipped,
		m.Channels,
		m.SearchDuration,
		m.SearchResults,
	)
	return m
}

// Handler 返回Prometheus抓取接口
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
