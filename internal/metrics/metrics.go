package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AdDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_decisions_total",
			Help: "Total number of ad decision requests by surface and outcome",
		},
		[]string{"surface", "outcome"},
	)

	ImpressionsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_impressions_recorded_total",
			Help: "Total number of ad impressions recorded",
		},
		[]string{"ad_type"},
	)

	ImpressionsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ad_impressions_processed_total",
			Help: "Total number of impression events published to the event stream",
		},
	)

	HoursCredited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adfree_hours_credited_total",
			Help: "Total ad-free hours credited to users",
		},
	)

	HoursConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adfree_hours_consumed_total",
			Help: "Total ad-free hours consumed by users",
		},
	)

	ResponseTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	QueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "impression_queue_size",
			Help: "Current size of the impression processing queue",
		},
	)
)

func init() {
	prometheus.MustRegister(AdDecisions)
	prometheus.MustRegister(ImpressionsRecorded)
	prometheus.MustRegister(ImpressionsProcessed)
	prometheus.MustRegister(HoursCredited)
	prometheus.MustRegister(HoursConsumed)
	prometheus.MustRegister(ResponseTime)
	prometheus.MustRegister(QueueSize)
}
