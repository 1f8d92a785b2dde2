package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebp_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ebp_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	DBTxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ebp_db_tx_retries_total",
			Help: "Transactions retried after a serialization failure",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ebp_outbox_lag_seconds",
			Help: "Age of the oldest relayed outbox record",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ebp_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ebp_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebp_bookings_total",
			Help: "Booking attempts by result",
		},
		[]string{"result"},
	)

	TicketsReserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ebp_tickets_reserved_total",
			Help: "Tickets taken out of inventory",
		},
	)

	RefundsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebp_refunds_issued_total",
			Help: "Refund rows created by reason",
		},
		[]string{"reason"},
	)

	EscrowReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ebp_escrow_released_total",
			Help: "Escrows moved to Released",
		},
	)

	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebp_scheduler_runs_total",
			Help: "Scheduled job runs by job and result",
		},
		[]string{"job", "result"},
	)
)
