package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightticker_requests_total",
			Help: "Total number of read API requests per path",
		},
		[]string{"path"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flightticker_request_duration_seconds",
			Help:    "Read API request duration in seconds per path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightticker_request_errors_total",
			Help: "Total number of error responses per path and code",
		},
		[]string{"path", "code"},
	)
)

var (
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightticker_fetches_total",
			Help: "Quote fetches per route and outcome (quoted, no_quote, failed)",
		},
		[]string{"route", "outcome"},
	)

	LastPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flightticker_last_price_krw",
			Help: "Most recently collected price per route and departure date",
		},
		[]string{"route", "departure_date"},
	)

	DropAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightticker_drop_alerts_total",
			Help: "Drop alerts per notification sink and result",
		},
		[]string{"sink", "result"},
	)
)

// ObserveFetch records the outcome of a single quote fetch.
func ObserveFetch(route, outcome string) {
	FetchesTotal.WithLabelValues(route, outcome).Inc()
}

// ObservePrice records the latest price for a route and departure date.
func ObservePrice(route, departureDate string, price int64) {
	LastPrice.WithLabelValues(route, departureDate).Set(float64(price))
}

// ObserveAlert records one sink delivery attempt.
func ObserveAlert(sink string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	DropAlertsTotal.WithLabelValues(sink, result).Inc()
}

var (
	DBPoolTotalConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flightticker_db_pool_total_conns",
			Help: "Total number of connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBPoolIdleConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flightticker_db_pool_idle_conns",
			Help: "Idle connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBPoolAcquiredConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flightticker_db_pool_acquired_conns",
			Help: "Currently acquired (in-use) connections per driver",
		},
		[]string{"driver"},
	)

	DBPoolAcquires = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flightticker_db_pool_acquires",
			Help: "Cumulative number of connection acquires reported by the pool per driver",
		},
		[]string{"driver"},
	)
)

func UpdateDBPoolMetrics(driver string, total, idle, acquired float64, acquires uint64) {
	DBPoolTotalConns.WithLabelValues(driver).Set(total)
	DBPoolIdleConns.WithLabelValues(driver).Set(idle)
	DBPoolAcquiredConns.WithLabelValues(driver).Set(acquired)
	DBPoolAcquires.WithLabelValues(driver).Set(float64(acquires))
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flightticker_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flightticker_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flightticker_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
