// Package metrics provides Prometheus metrics for the pitwall engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Ingestion
	observationsProcessed prometheus.Counter
	observationsDuplicate prometheus.Counter
	observationsRejected  *prometheus.CounterVec

	// History merging
	mergeDecisions    *prometheus.CounterVec
	mergesWithNew     prometheus.Counter
	competitorsSeeded prometheus.Counter
	rosterSize        prometheus.Gauge

	// Threshold prediction
	thresholdComputations *prometheus.CounterVec
	thresholdSearchSteps  prometheus.Histogram

	// Snapshot persistence
	snapshotSaves    prometheus.Counter
	snapshotLoads    prometheus.Counter
	snapshotErrors   *prometheus.CounterVec
	snapshotDuration *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueTotal  prometheus.Counter
	queueDequeueTotal  prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pitwall",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		})
	}
	counterVec := func(name, help string, labelNames ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		}, labelNames)
	}

	m.observationsProcessed = counter("observations_processed_total", "Observations merged into the roster")
	m.observationsDuplicate = counter("observations_duplicate_total", "Observations skipped because their id was already seen")
	m.observationsRejected = counterVec("observations_rejected_total", "Observations rejected before merging", "reason")

	m.mergeDecisions = counterVec("merge_decisions_total", "Per-event merge decisions", "decision")
	m.mergesWithNew = counter("merges_with_new_events_total", "Merges that added at least one event")
	m.competitorsSeeded = counter("competitors_seeded_total", "Competitors created from a first observation")
	m.rosterSize = gauge("roster_size", "Number of competitors in the roster")

	m.thresholdComputations = counterVec("threshold_computations_total", "Threshold computations by outcome", "outcome")
	m.thresholdSearchSteps = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("threshold_search_steps"),
		Help:        "Candidate points stepped through per threshold computation",
		Buckets:     prometheus.ExponentialBuckets(1, 4, 10),
		ConstLabels: labels,
	})

	m.snapshotSaves = counter("snapshot_saves_total", "Roster snapshots written")
	m.snapshotLoads = counter("snapshot_loads_total", "Roster snapshots read")
	m.snapshotErrors = counterVec("snapshot_errors_total", "Snapshot failures by operation", "op")
	m.snapshotDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("snapshot_duration_milliseconds"),
		Help:        "Snapshot save/load duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"op"})

	m.queueSize = gauge("queue_size", "Current number of queued observations")
	m.queueCapacity = gauge("queue_capacity", "Maximum queue capacity")
	m.queueEnqueueTotal = counter("queue_enqueue_total", "Observations enqueued")
	m.queueDequeueTotal = counter("queue_dequeue_total", "Observations dequeued")
	m.queueEnqueueErrors = counter("queue_enqueue_errors_total", "Enqueue attempts that failed")

	m.workerCount = gauge("worker_count", "Number of ingestion workers")
	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("worker_processing_latency_milliseconds"),
		Help:        "Worker processing latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	})
	m.workerErrors = counter("worker_errors_total", "Worker processing errors")

	m.httpRequests = counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
}

// RecordObservationProcessed increments the processed observations counter.
func RecordObservationProcessed() {
	if globalManager.enabled {
		globalManager.observationsProcessed.Inc()
	}
}

// RecordObservationDuplicate increments the duplicate observations counter.
func RecordObservationDuplicate() {
	if globalManager.enabled {
		globalManager.observationsDuplicate.Inc()
	}
}

// RecordObservationRejected counts an observation rejected for reason.
func RecordObservationRejected(reason string) {
	if globalManager.enabled {
		globalManager.observationsRejected.WithLabelValues(reason).Inc()
	}
}

// RecordMergeDecision counts a single per-event merge decision.
func RecordMergeDecision(decision string) {
	if globalManager.enabled {
		globalManager.mergeDecisions.WithLabelValues(decision).Inc()
	}
}

// RecordMergeWithNewEvents counts a merge that added events.
func RecordMergeWithNewEvents() {
	if globalManager.enabled {
		globalManager.mergesWithNew.Inc()
	}
}

// RecordCompetitorSeeded counts a competitor created from a first observation.
func RecordCompetitorSeeded() {
	if globalManager.enabled {
		globalManager.competitorsSeeded.Inc()
	}
}

// UpdateRosterSize sets the roster size gauge.
func UpdateRosterSize(n int) {
	if globalManager.enabled {
		globalManager.rosterSize.Set(float64(n))
	}
}

// RecordThresholdComputation counts a threshold computation by outcome.
func RecordThresholdComputation(outcome string) {
	if globalManager.enabled {
		globalManager.thresholdComputations.WithLabelValues(outcome).Inc()
	}
}

// RecordThresholdSearchSteps observes the number of search steps taken.
func RecordThresholdSearchSteps(steps int) {
	if globalManager.enabled {
		globalManager.thresholdSearchSteps.Observe(float64(steps))
	}
}

// RecordSnapshotSave records a successful snapshot write.
func RecordSnapshotSave(durationMs float64) {
	if globalManager.enabled {
		globalManager.snapshotSaves.Inc()
		globalManager.snapshotDuration.WithLabelValues("save").Observe(durationMs)
	}
}

// RecordSnapshotLoad records a successful snapshot read.
func RecordSnapshotLoad(durationMs float64) {
	if globalManager.enabled {
		globalManager.snapshotLoads.Inc()
		globalManager.snapshotDuration.WithLabelValues("load").Observe(durationMs)
	}
}

// RecordSnapshotError counts a failed snapshot operation.
func RecordSnapshotError(op string) {
	if globalManager.enabled {
		globalManager.snapshotErrors.WithLabelValues(op).Inc()
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if globalManager.enabled {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if globalManager.enabled {
		globalManager.queueEnqueueTotal.Inc()
	}
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if globalManager.enabled {
		globalManager.queueDequeueTotal.Inc()
	}
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if globalManager.enabled {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	if globalManager.enabled {
		globalManager.workerCount.Set(float64(count))
	}
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if globalManager.enabled {
		globalManager.workerErrors.Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
