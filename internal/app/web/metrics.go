package web

import "github.com/daily-planner/planner/internal/platform/metrics"

var (
	httpRequestsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "planner_http_requests_total",
		Help: "HTTP requests by route pattern, method and status.",
	}, []string{"route", "method", "status"})

	httpRequestDuration = metrics.NewHistogramVec(metrics.Opts{
		Name: "planner_http_request_duration_seconds",
		Help: "HTTP request latency by route pattern.",
	}, []string{"route"}, metrics.DefBuckets)

	searchRequestsTotal = metrics.NewCounterVec(metrics.Opts{
		Name: "planner_search_requests_total",
		Help: "Qualifying search requests by surface.",
	}, []string{"surface"})

	feedSubscribers = metrics.NewGauge(metrics.Opts{
		Name: "planner_feed_subscribers",
		Help: "Open change-feed streams.",
	})
)

func init() {
	metrics.Default.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		searchRequestsTotal,
		feedSubscribers,
	)
}
