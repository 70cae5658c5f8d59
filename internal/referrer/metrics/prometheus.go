package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "referrer",
		Subsystem: "ledger",
		Name:      "transitions_total",
		Help:      "Balance state machine transitions applied (transition=add_task_amount/...)",
	}, []string{"transition"})

	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "referrer",
		Subsystem: "pipeline",
		Name:      "submissions_total",
		Help:      "Proof submissions by outcome (status=accepted/rejected/pending, policy=none/pattern_match/transaction_proof)",
	}, []string{"status", "policy"})

	ReferralPayoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "referrer",
		Subsystem: "pipeline",
		Name:      "referral_payouts_total",
		Help:      "Referral bonuses moved to the affiliate balance",
	})

	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "referrer",
		Subsystem: "withdrawal",
		Name:      "requests_total",
		Help:      "Withdrawal requests by result (result=created/not_enough_balance/too_small_sum/invalid)",
	}, []string{"result"})

	ExternalRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "referrer",
		Subsystem: "external",
		Name:      "request_duration_seconds",
		Help:      "Latency of calls to external collaborators (service=explorer/pricefeed)",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "result"})

	PriceRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "referrer",
		Subsystem: "pricefeed",
		Name:      "refresh_total",
		Help:      "Token price refresh runs (result=ok/error)",
	}, []string{"result"})

	BroadcastMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "referrer",
		Subsystem: "notifier",
		Name:      "messages_total",
		Help:      "Broadcast messages by delivery result (result=ok/error)",
	}, []string{"result"})
)
