// Package metrics holds the wallet, payment and gateway Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coinchat"

var (
	CoinsMoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coins_total",
			Help:      "Coins moved through the ledger, by source",
		},
		[]string{"source"},
	)

	SendsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_sends_rejected_total",
			Help:      "Message sends refused before persistence, by reason",
		},
		[]string{"reason"},
	)

	DuplicateSends = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_duplicate_sends_total",
			Help:      "Sends absorbed by the duplicate-send window",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages persisted",
		},
	)

	PaymentVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verifications_total",
			Help:      "Payment verification outcomes",
		},
		[]string{"outcome"},
	)

	SocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "socket_connections",
			Help:      "Currently open real-time connections",
		},
	)
)
