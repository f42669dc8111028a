// Package metrics provides Prometheus metrics for the XP ledger engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus metric the engine exposes.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Award path
	awardsTotal     prometheus.Counter
	awardsRejected  *prometheus.CounterVec
	awardConflicts  prometheus.Counter
	awardRetries    prometheus.Counter
	duplicateAwards prometheus.Counter
	levelUps        prometheus.Counter
	xpGranted       prometheus.Counter
	awardLatency    prometheus.Histogram

	// Document store
	storeOpLatency *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec

	// Ledger integrity
	corruptionRepairs prometheus.Counter

	// Projection reconciliation
	driftDetected      prometheus.Counter
	reconcileJobs      *prometheus.CounterVec
	reconcileQueueSize prometheus.Gauge

	// Live sync
	syncNotifications prometheus.Counter
	syncReplacements  prometheus.Counter
	syncZeroInits     prometheus.Counter
	syncControllers   prometheus.Gauge

	// Dedupe
	dedupeSize prometheus.Gauge

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global manager on a custom registry to keep default Go metrics out.
var globalManager *Manager                     //nolint:gochecknoglobals // singleton metrics manager
var customRegistry = prometheus.NewRegistry()  //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "xpledger",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.awardsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "awards_total",
		Help:      "Total number of XP awards committed to the ledger",
	})

	m.awardsRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "awards_rejected_total",
		Help:      "Total number of awards rejected, by reason",
	}, []string{"reason"})

	m.awardConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "award_conflicts_total",
		Help:      "Total number of optimistic-concurrency conflicts on ledger writes",
	})

	m.awardRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "award_retries_total",
		Help:      "Total number of award attempts retried after a transient store failure",
	})

	m.duplicateAwards = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "duplicate_awards_total",
		Help:      "Total number of awards answered from an idempotency receipt",
	})

	m.levelUps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "level_ups_total",
		Help:      "Total number of level-up crossings detected on the award path",
	})

	m.xpGranted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "xp_granted_total",
		Help:      "Total XP granted across all committed awards",
	})

	m.awardLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "award_duration_ms",
		Help:      "End-to-end award latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeOpLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_op_duration_ms",
		Help:      "Document store operation latency in milliseconds, by operation",
		Buckets:   m.histogramBuckets,
	}, []string{"op"})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_errors_total",
		Help:      "Document store operation failures, by operation",
	}, []string{"op"})

	m.corruptionRepairs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "corruption_repairs_total",
		Help:      "Persisted level values recomputed from XP on read",
	})

	m.driftDetected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "projection_drift_total",
		Help:      "Leaderboard projection writes that failed after a ledger commit",
	})

	m.reconcileJobs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_jobs_total",
		Help:      "Projection repair jobs processed, by outcome",
	}, []string{"outcome"})

	m.reconcileQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_queue_size",
		Help:      "Projection repair jobs currently queued",
	})

	m.syncNotifications = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_notifications_total",
		Help:      "Change notifications received by live sync controllers",
	})

	m.syncReplacements = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_replacements_total",
		Help:      "Local state snapshots replaced from a change notification",
	})

	m.syncZeroInits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_zero_inits_total",
		Help:      "Zero-state initializations triggered for absent ledger documents",
	})

	m.syncControllers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sync_controllers_active",
		Help:      "Live sync controllers currently subscribed",
	})

	m.dedupeSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dedupe_receipts",
		Help:      "Idempotency receipts currently held",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests, by endpoint, method and status",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})
}

// Award path.

func RecordAward(amount int64) {
	globalManager.awardsTotal.Inc()
	globalManager.xpGranted.Add(float64(amount))
}

func RecordAwardRejected(reason string) {
	globalManager.awardsRejected.WithLabelValues(reason).Inc()
}

func RecordAwardConflict() {
	globalManager.awardConflicts.Inc()
}

func RecordAwardRetry() {
	globalManager.awardRetries.Inc()
}

func RecordDuplicateAward() {
	globalManager.duplicateAwards.Inc()
}

func RecordLevelUp() {
	globalManager.levelUps.Inc()
}

func RecordAwardLatency(ms float64) {
	globalManager.awardLatency.Observe(ms)
}

// Document store.

func RecordStoreOpLatency(op string, ms float64) {
	globalManager.storeOpLatency.WithLabelValues(op).Observe(ms)
}

func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// Ledger integrity.

func RecordCorruptionRepair() {
	globalManager.corruptionRepairs.Inc()
}

// Projection reconciliation.

func RecordProjectionDrift() {
	globalManager.driftDetected.Inc()
}

func RecordReconcileJob(outcome string) {
	globalManager.reconcileJobs.WithLabelValues(outcome).Inc()
}

func UpdateReconcileQueueSize(size int) {
	globalManager.reconcileQueueSize.Set(float64(size))
}

// Live sync.

func RecordSyncNotification() {
	globalManager.syncNotifications.Inc()
}

func RecordSyncReplacement() {
	globalManager.syncReplacements.Inc()
}

func RecordSyncZeroInit() {
	globalManager.syncZeroInits.Inc()
}

func UpdateActiveSyncControllers(delta int) {
	globalManager.syncControllers.Add(float64(delta))
}

// Dedupe.

func UpdateDedupeSize(size int64) {
	globalManager.dedupeSize.Set(float64(size))
}

// HTTP surface.

func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, status string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(ms)
}

// GetRegistry returns the registry metrics are collected on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
