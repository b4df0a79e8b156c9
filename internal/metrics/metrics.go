// Package metrics exposes the engine's Prometheus collectors on a private registry.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Collector holds every engine metric. A nil *Collector is valid and records nothing.
type Collector struct {
	registry           *prometheus.Registry
	validations        *prometheus.CounterVec
	validationDuration prometheus.Histogram
	complianceReasons  *prometheus.CounterVec
	brokerFailures     *prometheus.CounterVec
	cashAccountMode    *prometheus.GaugeVec
	accountBalance     *prometheus.GaugeVec
	profitExits        *prometheus.CounterVec
	recordDuration     prometheus.Histogram
	jobRuns            *prometheus.CounterVec
	log                zerolog.Logger
}

// NewCollector creates a collector with its own registry
func NewCollector(log zerolog.Logger) *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeguard_validations_total",
			Help: "Trade validations by outcome",
		}, []string{"outcome"}),
		validationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradeguard_validation_duration_seconds",
			Help:    "Time taken to validate a trade",
			Buckets: prometheus.DefBuckets,
		}),
		complianceReasons: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeguard_compliance_reasons_total",
			Help: "Compliance reason codes attached to validations",
		}, []string{"reason"}),
		brokerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeguard_broker_failures_total",
			Help: "Failed broker status calls",
		}, []string{"operation"}),
		cashAccountMode: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradeguard_cash_account_mode",
			Help: "1 when the account is below the cash-account threshold",
		}, []string{"account_id"}),
		accountBalance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradeguard_account_balance",
			Help: "Last known account net liquidation value",
		}, []string{"account_id"}),
		profitExits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeguard_profit_exits_total",
			Help: "Profit-taking exit instructions by level",
		}, []string{"level"}),
		recordDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradeguard_record_execution_duration_seconds",
			Help:    "Time taken to record a trade execution",
			Buckets: prometheus.DefBuckets,
		}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeguard_job_runs_total",
			Help: "Scheduled job runs by result",
		}, []string{"job", "result"}),
		log: log.With().Str("service", "metrics").Logger(),
	}
}

// RecordValidation counts a validation outcome ("allowed", "rejected", "error")
func (c *Collector) RecordValidation(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.validations.WithLabelValues(outcome).Inc()
	c.validationDuration.Observe(duration.Seconds())
}

// RecordComplianceReason counts one reason code
func (c *Collector) RecordComplianceReason(reason string) {
	if c == nil {
		return
	}
	c.complianceReasons.WithLabelValues(reason).Inc()
}

// RecordBrokerFailure counts a failed broker call
func (c *Collector) RecordBrokerFailure(operation string) {
	if c == nil {
		return
	}
	c.brokerFailures.WithLabelValues(operation).Inc()
}

// SetAccountState publishes an account's balance and mode
func (c *Collector) SetAccountState(accountID string, balance float64, cashAccountMode bool) {
	if c == nil {
		return
	}
	mode := 0.0
	if cashAccountMode {
		mode = 1
	}
	c.cashAccountMode.WithLabelValues(accountID).Set(mode)
	c.accountBalance.WithLabelValues(accountID).Set(balance)
}

// RecordProfitExit counts an exit instruction for a level
func (c *Collector) RecordProfitExit(level string) {
	if c == nil {
		return
	}
	c.profitExits.WithLabelValues(level).Inc()
}

// ObserveRecordExecution records how long persisting a fill took
func (c *Collector) ObserveRecordExecution(duration time.Duration) {
	if c == nil {
		return
	}
	c.recordDuration.Observe(duration.Seconds())
}

// RecordJobRun counts a scheduled job run
func (c *Collector) RecordJobRun(job string, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.jobRuns.WithLabelValues(job, result).Inc()
}

// Registry returns the private registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog: promLogger{log: c.log},
	})
}

// promLogger adapts zerolog to promhttp's Println logger
type promLogger struct {
	log zerolog.Logger
}

func (l promLogger) Println(v ...interface{}) {
	l.log.Error().Msg(fmt.Sprint(v...))
}
