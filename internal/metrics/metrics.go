package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	}, []string{"method", "path"})

	HTTPResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "HTTP response size in bytes",
		Buckets: prometheus.ExponentialBuckets(100, 10, 5),
	}, []string{"method", "path"})

	// gRPC метрики
	GRPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grpc_requests_total",
		Help: "Total number of gRPC requests",
	}, []string{"method", "status"})

	GRPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grpc_request_duration_seconds",
		Help:    "gRPC request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	// метрики историана
	HistorianCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "historian_calls_total",
		Help: "Total number of historian calls by operation and outcome status",
	}, []string{"operation", "status"})

	HistorianCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "historian_call_duration_seconds",
		Help:    "Historian call duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	HistorianQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "historian_query_duration_seconds",
		Help:    "Historian backend query duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	HistorianActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "historian_db_active_connections",
		Help: "Number of in-use historian database connections",
	})

	HistorianIdleConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "historian_db_idle_connections",
		Help: "Number of idle historian database connections",
	})

	HistorianUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "historian_up",
		Help: "Whether the last historian ping succeeded (1) or not (0)",
	})

	// метрики планировщика станций
	StationTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "station_tasks_total",
		Help: "Total number of station tasks by mode and outcome",
	}, []string{"mode", "outcome"})

	StationTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "station_task_duration_seconds",
		Help:    "Histogram of station task durations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 18), // от 1ms до ~2 минут
	}, []string{"mode"})

	SchedulerActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_active_workers",
		Help: "Current number of workers processing station tasks",
	})

	// итог запросов
	GenealogyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genealogy_requests_total",
		Help: "Total number of resolved requests by mode and overall status",
	}, []string{"mode", "status"})
)
