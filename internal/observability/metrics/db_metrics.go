package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "command_pending_records",
			Help: "Command records whose final status is still pending",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM control_command_logs WHERE final_status = 'pending'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "command_awaiting_execution",
			Help: "Command records still waiting for an execution result",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM control_command_logs WHERE execution_result = 'pending'")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
