// Package metrics exposes loan workflow and HTTP metrics to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "loankart_"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	loanApplications  *prometheus.CounterVec
	loanTransitions   *prometheus.CounterVec
	scheduleGenerated *prometheus.CounterVec
	paymentsSettled   *prometheus.CounterVec
	overdueMarked     prometheus.Counter
	remindersSent     *prometheus.CounterVec

	jobRuns    *prometheus.CounterVec
	jobLatency *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
)

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		loanApplications = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "loan_applications_total",
				Help: "Total loan applications by result",
			},
			[]string{"result"},
		)
		loanTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "loan_status_transitions_total",
				Help: "Total loan status transitions by target status",
			},
			[]string{"status"},
		)
		scheduleGenerated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "schedule_generate_total",
				Help: "Total payment schedule generations by result",
			},
			[]string{"result"},
		)
		paymentsSettled = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payments_settled_total",
				Help: "Total payment settlement attempts by result",
			},
			[]string{"result"},
		)
		overdueMarked = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "payments_marked_overdue_total",
				Help: "Total payments persisted as overdue by the sweep",
			},
		)
		remindersSent = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_reminders_total",
				Help: "Total payment reminders by result",
			},
			[]string{"result"},
		)
		jobRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "job_runs_total",
				Help: "Total scheduled job runs by job and result",
			},
			[]string{"job", "result"},
		)
		jobLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "job_latency_seconds",
				Help:    "Scheduled job latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		)
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		prometheus.MustRegister(
			loanApplications,
			loanTransitions,
			scheduleGenerated,
			paymentsSettled,
			overdueMarked,
			remindersSent,
			jobRuns,
			jobLatency,
			httpRequests,
			httpLatency,
		)
	})
}

func resultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// IncLoanApplication counts an application attempt.
func IncLoanApplication(err error) {
	if loanApplications != nil {
		loanApplications.WithLabelValues(resultOf(err)).Inc()
	}
}

// IncLoanTransition counts a committed status change.
func IncLoanTransition(status string) {
	if loanTransitions != nil {
		loanTransitions.WithLabelValues(status).Inc()
	}
}

// IncScheduleGenerate counts a schedule generation attempt.
func IncScheduleGenerate(err error) {
	if scheduleGenerated != nil {
		scheduleGenerated.WithLabelValues(resultOf(err)).Inc()
	}
}

// IncPaymentSettled counts a settlement attempt.
func IncPaymentSettled(err error) {
	if paymentsSettled != nil {
		paymentsSettled.WithLabelValues(resultOf(err)).Inc()
	}
}

// AddOverdueMarked adds n payments flipped to overdue.
func AddOverdueMarked(n int64) {
	if n <= 0 {
		return
	}
	if overdueMarked != nil {
		overdueMarked.Add(float64(n))
	}
}

// IncReminder counts a reminder outcome.
func IncReminder(result string) {
	if result == "" {
		result = ResultSuccess
	}
	if remindersSent != nil {
		remindersSent.WithLabelValues(result).Inc()
	}
}

// ObserveJob records a scheduled job run.
func ObserveJob(job string, err error, duration time.Duration) {
	if jobRuns != nil {
		jobRuns.WithLabelValues(job, resultOf(err)).Inc()
	}
	if jobLatency != nil {
		jobLatency.WithLabelValues(job).Observe(duration.Seconds())
	}
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route, code string, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, route, code).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}
