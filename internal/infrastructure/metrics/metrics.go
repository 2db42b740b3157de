package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Dataset holds the collectors updated by the dataset service and the sweeper.
type Dataset struct {
	Reads          *prometheus.CounterVec
	Writes         *prometheus.CounterVec
	DeleteFailures prometheus.Counter
	Swept          prometheus.Counter
	DocumentBytes  prometheus.Histogram
}

// NewDataset creates the dataset collectors and registers them on reg.
// A nil registerer leaves them unregistered, which is what tests want.
func NewDataset(reg prometheus.Registerer) *Dataset {
	m := &Dataset{
		Reads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_dataset_reads_total",
				Help: "Dataset reads by outcome (ok, empty, error)",
			},
			[]string{"outcome"},
		),
		Writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_dataset_writes_total",
				Help: "Dataset writes by outcome (ok, error)",
			},
			[]string{"outcome"},
		),
		DeleteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_previous_blob_delete_failures_total",
				Help: "Failed deletions of the previous blob during a write",
			},
		),
		Swept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_orphan_blobs_swept_total",
				Help: "Stale blobs removed by the sweeper",
			},
		),
		DocumentBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scheduler_dataset_document_bytes",
				Help:    "Size of written dataset documents",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Reads, m.Writes, m.DeleteFailures, m.Swept, m.DocumentBytes)
	}

	return m
}

// HTTP holds the request collectors used by the server middleware.
type HTTP struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewHTTP creates the request collectors and registers them on reg.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.RequestsTotal, m.RequestDuration)
	}

	return m
}
