package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "control_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	commandIssued       prometheus.Counter
	commandDelivery     *prometheus.CounterVec
	commandExecution    *prometheus.CounterVec
	commandVerification *prometheus.CounterVec
	commandFinal        *prometheus.CounterVec
	commandAlarmLinks   prometheus.Counter
	commandDuration     prometheus.Histogram
	pendingTimers       prometheus.Gauge

	resultDropped *prometheus.CounterVec
	storeErrors   *prometheus.CounterVec

	queryRequests *prometheus.CounterVec
	queryLatency  *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		commandIssued = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_issued_total",
				Help: "Total write commands created",
			},
		)
		commandDelivery = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_delivery_total",
				Help: "Total delivery outcomes by status",
			},
			[]string{"status"},
		)
		commandExecution = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_execution_total",
				Help: "Total execution results by result",
			},
			[]string{"result"},
		)
		commandVerification = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_verification_total",
				Help: "Total value verifications by result",
			},
			[]string{"result"},
		)
		commandFinal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_final_total",
				Help: "Total commands reaching a terminal status",
			},
			[]string{"status"},
		)
		commandAlarmLinks = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_alarm_links_total",
				Help: "Total commands linked to an alarm occurrence",
			},
		)
		commandDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "command_execution_duration_seconds",
				Help:    "Collector-reported execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		pendingTimers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "command_pending_timers",
				Help: "Armed delivery timeout timers",
			},
		)

		resultDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "result_dropped_total",
				Help: "Execution result messages dropped by reason",
			},
			[]string{"reason"},
		)
		storeErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_errors_total",
				Help: "Command store errors by operation",
			},
			[]string{"op"},
		)

		queryRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "query_requests_total",
				Help: "Total command log queries by result",
			},
			[]string{"result"},
		)
		queryLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "query_latency_seconds",
				Help:    "Command log query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total command log exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Command log export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			commandIssued,
			commandDelivery,
			commandExecution,
			commandVerification,
			commandFinal,
			commandAlarmLinks,
			commandDuration,
			pendingTimers,
			resultDropped,
			storeErrors,
			queryRequests,
			queryLatency,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncCommandIssued increments the created command counter.
func IncCommandIssued() {
	if commandIssued != nil {
		commandIssued.Inc()
	}
}

// IncDelivery counts a delivery outcome.
func IncDelivery(status string) {
	if status == "" {
		status = "unknown"
	}
	if commandDelivery != nil {
		commandDelivery.WithLabelValues(status).Inc()
	}
}

// ObserveExecution counts an execution result and its reported duration.
func ObserveExecution(result string, duration time.Duration) {
	if result == "" {
		result = "unknown"
	}
	if commandExecution != nil {
		commandExecution.WithLabelValues(result).Inc()
	}
	if commandDuration != nil && duration > 0 {
		commandDuration.Observe(duration.Seconds())
	}
}

// IncVerification counts a verification result.
func IncVerification(result string) {
	if result == "" {
		result = "unknown"
	}
	if commandVerification != nil {
		commandVerification.WithLabelValues(result).Inc()
	}
}

// IncFinal counts a command reaching a terminal status.
func IncFinal(status string) {
	AddFinal(status, 1)
}

// AddFinal counts count commands reaching a terminal status.
func AddFinal(status string, count int) {
	if count <= 0 {
		return
	}
	if status == "" {
		status = "unknown"
	}
	if commandFinal != nil {
		commandFinal.WithLabelValues(status).Add(float64(count))
	}
}

// IncAlarmLink counts a command linked to an alarm.
func IncAlarmLink() {
	if commandAlarmLinks != nil {
		commandAlarmLinks.Inc()
	}
}

// SetPendingTimers sets the armed timer gauge.
func SetPendingTimers(count int) {
	if count < 0 {
		count = 0
	}
	if pendingTimers != nil {
		pendingTimers.Set(float64(count))
	}
}

// IncResultDropped counts a dropped execution result message.
func IncResultDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if resultDropped != nil {
		resultDropped.WithLabelValues(reason).Inc()
	}
}

// IncStoreError counts a failed store operation.
func IncStoreError(op string) {
	if op == "" {
		op = "unknown"
	}
	if storeErrors != nil {
		storeErrors.WithLabelValues(op).Inc()
	}
}

// ObserveQuery records query latency and result.
func ObserveQuery(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if queryRequests != nil {
		queryRequests.WithLabelValues(result).Inc()
	}
	if queryLatency != nil {
		queryLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
