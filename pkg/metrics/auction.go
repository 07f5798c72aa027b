package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AuctionMetrics counts bidding, payment and escrow outcomes.
type AuctionMetrics struct {
	bids        *prometheus.CounterVec
	conflicts   prometheus.Counter
	payments    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	auctions    *prometheus.CounterVec
}

// NewAuctionMetrics registers the domain counters. A nil registerer yields a
// no-op collector.
func NewAuctionMetrics(reg prometheus.Registerer) *AuctionMetrics {
	if reg == nil {
		return &AuctionMetrics{}
	}
	m := &AuctionMetrics{
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bidding",
			Name:      "bids_total",
			Help:      "Bid submissions by outcome.",
		}, []string{"outcome"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bidding",
			Name:      "cas_conflicts_total",
			Help:      "Lost compare-and-swap attempts on listing rows.",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "operations_total",
			Help:      "Payment hold operations by provider, operation and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "transitions_total",
			Help:      "Committed escrow transitions by action.",
		}, []string{"action", "to"}),
		auctions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auctions",
			Name:      "closed_total",
			Help:      "Auctions closed by the sweeper by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.bids, m.conflicts, m.payments, m.transitions, m.auctions)
	return m
}

func (m *AuctionMetrics) IncBid(outcome string) {
	if m == nil || m.bids == nil {
		return
	}
	m.bids.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *AuctionMetrics) IncConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

func (m *AuctionMetrics) IncPayment(provider, operation, outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

func (m *AuctionMetrics) IncTransition(action, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(action), normalizeLabel(to)).Inc()
}

func (m *AuctionMetrics) IncAuctionClosed(outcome string) {
	if m == nil || m.auctions == nil {
		return
	}
	m.auctions.WithLabelValues(normalizeLabel(outcome)).Inc()
}
