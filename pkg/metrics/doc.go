/*
Package metrics provides Prometheus metrics and health reporting for filebox.

All metrics are registered with the default registry at init and served by
Handler. The store manager and repository update them directly; Collector
samples storage usage on an interval.

# Metrics

Store lifecycle:

	filebox_store_state                        gauge   0 uninitialized, 1 initializing, 2 ready, 3 closed
	filebox_store_open_attempts_total          counter
	filebox_store_open_failures_total{reason}  counter open, upgrade, version_conflict
	filebox_store_init_duration_seconds        histogram, retries included
	filebox_migrations_applied_total           counter

Operations:

	filebox_queue_depth                            gauge   operations waiting for the store
	filebox_operations_total{kind,status}          counter status is ok or error
	filebox_operation_duration_seconds{kind}       histogram

Content (from Collector):

	filebox_files_total                  gauge
	filebox_storage_bytes{kind}          gauge   original, compressed
	filebox_cascade_cleanups_total       counter containers rewritten by removes

# Health

Components report through UpdateComponent. /health turns unhealthy as soon
as any reported component is; /ready waits only for the critical ones (the
store, by default).

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())

# Timing

	timer := metrics.NewTimer()
	err := doWork()
	timer.ObserveDurationVec(metrics.OperationDuration, "files.put")
*/
package metrics
