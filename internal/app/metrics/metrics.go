package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "linkpass"

type Metrics struct {
	reg prometheus.Registerer

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	IntentsCreated  *prometheus.CounterVec
	OrdersCreated   *prometheus.CounterVec
	ConfirmOutcomes *prometheus.CounterVec

	FinderTiers *prometheus.CounterVec

	UpstreamRequests        *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		reg: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total amount of processed HTTP requests.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Request processing latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		IntentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intents_created_total",
			Help:      "Amount of payment intents built, by chain.",
		}, []string{"chain"}),
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Amount of orders created, by chain.",
		}, []string{"chain"}),
		ConfirmOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirm_outcomes_total",
			Help:      "Order confirmation attempts grouped by chain and result.",
		}, []string{"chain", "result"}),
		FinderTiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finder_tier_outcomes_total",
			Help:      "Incoming transaction finder steps grouped by outcome.",
		}, []string{"chain", "tier", "outcome"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Chain RPC/REST requests grouped by source and result.",
		}, []string{"source", "result"}),
		UpstreamRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Chain RPC/REST request latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"source"}),
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.IntentsCreated,
		m.OrdersCreated,
		m.ConfirmOutcomes,
		m.FinderTiers,
		m.UpstreamRequests,
		m.UpstreamRequestDuration,
	)

	return m
}

// ObserveUpstream records one outbound chain call. Nil receivers are allowed
// so that clients built in tests can skip metrics.
func (m *Metrics) ObserveUpstream(source string, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.UpstreamRequests.WithLabelValues(source, result).Inc()
	m.UpstreamRequestDuration.WithLabelValues(source).Observe(seconds)
}

func (m *Metrics) ObserveTier(chain, tier, outcome string) {
	if m == nil {
		return
	}
	m.FinderTiers.WithLabelValues(chain, tier, outcome).Inc()
}

func (m *Metrics) ObserveConfirm(chain, result string) {
	if m == nil {
		return
	}
	m.ConfirmOutcomes.WithLabelValues(chain, result).Inc()
}
