// Package metrics provides Prometheus metrics for the harvester:
// request counts, retry counts, pages and records per set, and the
// expected-vs-actual count mismatches surfaced after pagination.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks protocol requests by verb and outcome.
	// Labels: verb (ListSets/ListIdentifiers/ListRecords/GetRecord),
	// status (success/failure)
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oaiharvest_requests_total",
			Help: "Total number of OAI-PMH requests issued",
		},
		[]string{"verb", "status"},
	)

	// RetriesTotal tracks retries by failure class.
	// Labels: kind (transport/application)
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oaiharvest_retries_total",
			Help: "Total number of request retries",
		},
		[]string{"kind"},
	)

	// RecordsHarvested tracks persisted records per set.
	RecordsHarvested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oaiharvest_records_harvested_total",
			Help: "Total number of records persisted",
		},
		[]string{"set"},
	)

	// PagesFetched tracks pagination pages consumed per verb.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oaiharvest_pages_fetched_total",
			Help: "Total number of list pages fetched",
		},
		[]string{"verb"},
	)

	// CountMismatches tracks sets whose final tally disagreed with the
	// completeListSize the server advertised.
	CountMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oaiharvest_count_mismatches_total",
			Help: "Sets finishing with a record count different from the advertised total",
		},
	)

	// ActiveWorkers tracks currently running fetch workers.
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oaiharvest_active_fetch_workers",
			Help: "Number of record fetch workers currently running",
		},
	)

	// RequestLatency tracks the distribution of request latencies.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oaiharvest_request_latency_seconds",
			Help:    "OAI-PMH request latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"verb"},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop stops the timer and returns the elapsed duration since creation.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ObserveRequest records one request outcome plus its latency.
func ObserveRequest(verb string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	RequestsTotal.WithLabelValues(verb, status).Inc()
	RequestLatency.WithLabelValues(verb).Observe(d.Seconds())
}
