package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LeadOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_operations_total",
			Help: "Total number of lead CRUD operations by kind and outcome",
		},
		[]string{"op", "outcome"},
	)

	ListQueries = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_list_query_seconds",
			Help:    "Duration of paginated lead list queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"filtered"},
	)

	ActivityProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_events_processed_total",
			Help: "Total number of lead activity events processed per tenant",
		},
		[]string{"tenant"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "activity_queue_depth",
			Help: "Current activity queue depth per tenant",
		},
		[]string{"tenant"},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(LeadOperations)
	prometheus.MustRegister(ListQueries)
	prometheus.MustRegister(ActivityProcessed)
	prometheus.MustRegister(QueueDepth)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
