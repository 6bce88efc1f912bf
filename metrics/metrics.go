// Package metrics declares the Prometheus collectors of the routing service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "saferoute",
		Name:      "stage_seconds",
		Help:      "Time spent per routing stage.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"stage"})

	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saferoute",
		Name:      "cache_requests_total",
		Help:      "Cache lookups by cache name and result.",
	}, []string{"cache", "result"})

	UpstreamCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saferoute",
		Name:      "upstream_calls_total",
		Help:      "Calls issued to upstream data providers by provider and outcome.",
	}, []string{"provider", "outcome"})

	RouteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "saferoute",
		Name:      "route_requests_total",
		Help:      "Route requests by result code.",
	}, []string{"code"})
)

// ObserveStage records the duration since start for stage and returns it.
func ObserveStage(stage string, start time.Time) time.Duration {
	d := time.Since(start)
	StageSeconds.WithLabelValues(stage).Observe(d.Seconds())
	return d
}
