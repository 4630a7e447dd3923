package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store lifecycle metrics
	StoreState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "filebox_store_state",
			Help: "Current store state (0 = uninitialized, 1 = initializing, 2 = ready, 3 = closed)",
		},
	)

	StoreOpenAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "filebox_store_open_attempts_total",
			Help: "Total number of attempts to open the store",
		},
	)

	StoreOpenFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebox_store_open_failures_total",
			Help: "Total number of failed store open attempts by reason",
		},
		[]string{"reason"},
	)

	StoreInitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filebox_store_init_duration_seconds",
			Help:    "Time taken to initialize the store, retries included",
			Buckets: prometheus.DefBuckets,
		},
	)

	MigrationsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "filebox_migrations_applied_total",
			Help: "Total number of schema migration steps applied",
		},
	)

	// Operation queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "filebox_queue_depth",
			Help: "Number of operations waiting for the store to become ready",
		},
	)

	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filebox_operations_total",
			Help: "Total number of store operations by kind and status",
		},
		[]string{"kind", "status"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filebox_operation_duration_seconds",
			Help:    "Store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Content metrics
	FilesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "filebox_files_total",
			Help: "Total number of stored files",
		},
	)

	StorageBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filebox_storage_bytes",
			Help: "Stored bytes by kind (original or compressed)",
		},
		[]string{"kind"},
	)

	CascadeCleanups = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "filebox_cascade_cleanups_total",
			Help: "Total number of container entries rewritten by cascading deletes",
		},
	)
)

func init() {
	prometheus.MustRegister(StoreState)
	prometheus.MustRegister(StoreOpenAttempts)
	prometheus.MustRegister(StoreOpenFailures)
	prometheus.MustRegister(StoreInitDuration)
	prometheus.MustRegister(MigrationsApplied)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(FilesTotal)
	prometheus.MustRegister(StorageBytes)
	prometheus.MustRegister(CascadeCleanups)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
