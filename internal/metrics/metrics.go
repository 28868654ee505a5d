package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletcore"

// Metrics holds the service's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	webhookEvents          *prometheus.CounterVec
	webhookRejections      *prometheus.CounterVec
	authorizationDecisions *prometheus.CounterVec
	authorizationDuration  prometheus.Histogram
	ledgerMutations        *prometheus.CounterVec
	reconciliationCases    *prometheus.CounterVec
}

// New registers every collector on a private registry, together with the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "events_total",
				Help:      "Card events accepted by the webhook, partitioned by kind.",
			},
			[]string{"kind"},
		),
		webhookRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "rejections_total",
				Help:      "Webhook calls rejected before processing, partitioned by reason.",
			},
			[]string{"reason"},
		),
		authorizationDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "authorization",
				Name:      "decisions_total",
				Help:      "Authorization verdicts partitioned by result and decline reason.",
			},
			[]string{"result", "reason"},
		),
		authorizationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "authorization",
				Name:      "duration_seconds",
				Help:      "Time spent producing an authorization verdict.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		ledgerMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "mutations_total",
				Help:      "Ledger mutations partitioned by transaction kind and result.",
			},
			[]string{"kind", "result"},
		),
		reconciliationCases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciliation",
				Name:      "cases_total",
				Help:      "Reconciliation cases partitioned by sink and result.",
			},
			[]string{"sink", "result"},
		),
	}
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveWebhookEvent(kind string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveWebhookRejection(reason string) {
	if m == nil {
		return
	}
	m.webhookRejections.WithLabelValues(reason).Inc()
}

// ObserveAuthorization records one verdict and its latency.
func (m *Metrics) ObserveAuthorization(approved bool, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "declined"
	if approved {
		result = "approved"
	}
	m.authorizationDecisions.WithLabelValues(result, reason).Inc()
	m.authorizationDuration.Observe(elapsed.Seconds())
}

// ObserveLedgerMutation counts a mutation outcome: ok, duplicate, insufficient or error.
func (m *Metrics) ObserveLedgerMutation(kind, result string) {
	if m == nil {
		return
	}
	m.ledgerMutations.WithLabelValues(kind, result).Inc()
}

// ObserveReconciliation counts a case by sink and result: escalated, resolved, requeued,
// manual or error.
func (m *Metrics) ObserveReconciliation(sink, result string) {
	if m == nil {
		return
	}
	m.reconciliationCases.WithLabelValues(sink, result).Inc()
}
