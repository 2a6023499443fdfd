// Package metrics exposes prometheus collectors for the API and backups.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "schoolrecords"

// Metrics groups every collector the service registers.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	BackupOps    *prometheus.CounterVec
	Broadcasts   *prometheus.CounterVec
}

// Counter reports current collection sizes, e.g. records.Store.
type Counter interface {
	Counts() map[string]int
}

// New builds a registry with process and Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		BackupOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_operations_total",
			Help:      "Backup and restore operations by outcome.",
		}, []string{"op", "result"}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcast deliveries by outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.BackupOps,
		m.Broadcasts,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WatchStore registers a gauge per collection reading c on every scrape.
func (m *Metrics) WatchStore(c Counter) error {
	return m.registry.Register(&storeCollector{
		counter: c,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "records"),
			"Number of records held per collection.",
			[]string{"collection"}, nil,
		),
	})
}

// ObserveBackup matches the backup manager's observer signature.
func (m *Metrics) ObserveBackup(op string, err error) {
	m.BackupOps.WithLabelValues(op, result(err)).Inc()
}

// ObserveBroadcast counts one delivery attempt.
func (m *Metrics) ObserveBroadcast(err error) {
	m.Broadcasts.WithLabelValues(result(err)).Inc()
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type storeCollector struct {
	counter Counter
	desc    *prometheus.Desc
}

func (s *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.desc
}

func (s *storeCollector) Collect(ch chan<- prometheus.Metric) {
	for name, n := range s.counter.Counts() {
		ch <- prometheus.MustNewConstMetric(s.desc, prometheus.GaugeValue, float64(n), name)
	}
}
