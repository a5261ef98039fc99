package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	chunksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_chunks_received_total",
		Help: "Total number of uploaded chunks",
	}, []string{"kind"}) // kind: "real" or "signal"

	chunkBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_chunk_bytes_total",
		Help: "Total audio bytes received",
	})

	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_sessions_created_total",
		Help: "Total number of recording sessions created",
	})

	sessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_sessions_completed_total",
		Help: "Total number of sessions that reached the complete state",
	})

	sessionsResumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_sessions_resumed_total",
		Help: "Total number of completed sessions reopened by a late chunk",
	})

	// STT metrics
	sttRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_stt_requests_total",
		Help: "Total number of STT requests",
	}, []string{"status"})

	sttLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_stt_latency_seconds",
		Help:    "STT processing latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// Summarization metrics
	summaryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_summary_requests_total",
		Help: "Total number of summarization requests",
	}, []string{"status"})

	summaryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_summary_latency_seconds",
		Help:    "Summarization latency in seconds",
		Buckets: []float64{0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
	})

	// Task queue metrics
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_task_queue_depth",
		Help: "Number of tasks waiting in the queue",
	})

	tasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_tasks_processed_total",
		Help: "Total number of background tasks processed",
	}, []string{"kind", "status"})

	tasksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_tasks_dropped_total",
		Help: "Total number of tasks dropped because the queue was full",
	}, []string{"kind"})

	// Janitor metrics
	janitorSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_janitor_sweeps_total",
		Help: "Total number of janitor sweeps",
	})

	janitorRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_janitor_recoveries_total",
		Help: "Total number of janitor recovery actions",
	}, []string{"action"}) // action: "finalized", "requeued", "resummarized"

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// RecordChunkReceived records one uploaded chunk and its size.
func RecordChunkReceived(real bool, size int) {
	kind := "signal"
	if real {
		kind = "real"
	}
	chunksReceived.WithLabelValues(kind).Inc()
	chunkBytes.Add(float64(size))
}

// RecordSessionCreated records a new recording session.
func RecordSessionCreated() {
	sessionsCreated.Inc()
}

// RecordSessionCompleted records a session reaching the complete state.
func RecordSessionCompleted() {
	sessionsCompleted.Inc()
}

// RecordSessionResumed records a completed session reopened by a late chunk.
func RecordSessionResumed() {
	sessionsResumed.Inc()
}

// RecordSTT records the outcome and latency of one STT call.
func RecordSTT(start time.Time, err error) {
	sttLatency.Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	sttRequests.WithLabelValues(status).Inc()
}

// RecordSummary records the outcome and latency of one summarization call.
func RecordSummary(start time.Time, err error) {
	summaryLatency.Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	summaryRequests.WithLabelValues(status).Inc()
}

// SetQueueDepth updates the task queue depth gauge.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordTask records a processed background task.
func RecordTask(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	tasksProcessed.WithLabelValues(kind, status).Inc()
}

// RecordTaskDropped records a task dropped on a full queue.
func RecordTaskDropped(kind string) {
	tasksDropped.WithLabelValues(kind).Inc()
}

// RecordJanitorSweep records one janitor pass.
func RecordJanitorSweep() {
	janitorSweeps.Inc()
}

// RecordJanitorRecovery records one janitor recovery action.
func RecordJanitorRecovery(action string) {
	janitorRecoveries.WithLabelValues(action).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}
