package hook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAccumulated = "accumulated"
	outcomeBurned      = "burned"
	outcomeRejected    = "rejected"
)

type metrics struct {
	transfers   *prometheus.CounterVec
	burns       prometheus.Counter
	deploys     prometheus.Counter
	rebalances  prometheus.Counter
	collections prometheus.Counter
	routed      prometheus.Counter
	claims      prometheus.Counter
}

// newMetrics registers the hook's counters with reg. A nil registerer
// leaves the counters unregistered, which tests rely on.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treasury",
			Name:      "transfers_total",
			Help:      "Inbound reserved-token transfers by outcome.",
		}, []string{"outcome"}),
		burns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "treasury",
			Name:      "burns_total",
			Help:      "Project-token burns executed in deployment stage.",
		}),
		deploys: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "treasury",
			Name:      "deploys_total",
			Help:      "Successful liquidity deployments.",
		}),
		rebalances: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "treasury",
			Name:      "rebalances_total",
			Help:      "Successful position rebuilds.",
		}),
		collections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "treasury",
			Name:      "fee_collections_total",
			Help:      "Successful fee collections.",
		}),
		routed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "treasury",
			Name:      "routed_fee_payments_total",
			Help:      "Fee-leg payments made to the beneficiary project.",
		}),
		claims: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "treasury",
			Name:      "fee_claims_total",
			Help:      "Operator fee claims paid out.",
		}),
	}
}
