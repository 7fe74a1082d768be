package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	pollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "poll_cycle_duration_seconds",
			Help:    "Duration of one dashboard poll cycle in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pollFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "poll_failures_total",
			Help: "Total poll cycles that failed to fetch issues.",
		},
	)
	staleSnapshots = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "poll_stale_results_discarded_total",
			Help: "Total poll results discarded for arriving out of order.",
		},
	)
	activeIssues = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_issues",
			Help: "Active issues in the current snapshot.",
		},
	)
	activeAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_alerts",
			Help: "Active alerts across all issues in the current snapshot.",
		},
	)
	alertTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_transitions_total",
			Help: "Alert lifecycle transitions by type and action.",
		},
		[]string{"type", "action"},
	)
	kafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag by topic.",
		},
		[]string{"topic", "group"},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	ticketingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_failures_total",
			Help: "Total ticketing API call failures.",
		},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequests, httpLatency,
		pollDuration, pollFailures, staleSnapshots,
		activeIssues, activeAlerts, alertTransitions,
		kafkaConsumerLag, influxWriteFailures, ticketingFailures, asynqQueueDepth,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func ObservePollDuration(d time.Duration) {
	pollDuration.Observe(d.Seconds())
}

func IncPollFailure() {
	pollFailures.Inc()
}

func IncStaleSnapshotDiscarded() {
	staleSnapshots.Inc()
}

func SetActiveIssues(n int) {
	activeIssues.Set(float64(n))
}

func SetActiveAlerts(n int) {
	activeAlerts.Set(float64(n))
}

func IncAlertTransition(alertType string, action string) {
	alertTransitions.WithLabelValues(alertType, action).Inc()
}

func SetKafkaLag(topic string, group string, lag int64) {
	kafkaConsumerLag.WithLabelValues(topic, group).Set(float64(lag))
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func IncTicketingFailure() {
	ticketingFailures.Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
