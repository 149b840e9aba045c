package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Счётчик вызовов методов репозитория
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	// Гистограмма времени выполнения запросов
	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	OrdersCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_completed_total",
			Help: "Total number of completed orders",
		},
	)

	CodesSold = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "game_codes_sold_total",
			Help: "Total number of game codes sold",
		},
	)

	CreditsApproved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credit_requests_approved_total",
			Help: "Total number of approved credit top-up requests",
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(
		RepositoryCalls,
		RepositoryDuration,
		OrdersCompleted,
		CodesSold,
		CreditsApproved,
	)
}
