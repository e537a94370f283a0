package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rukun"

// Metrics exposes billing and authorization instruments.
type Metrics struct {
	invoicesIssued     *prometheus.CounterVec
	invoiceTransitions *prometheus.CounterVec
	paymentsConfirmed  *prometheus.CounterVec
	providerTimeouts   *prometheus.CounterVec
	authzDecisions     *prometheus.CounterVec
	permissionReloads  prometheus.Counter
}

// NewRegistry returns the registry every collector is attached to.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return registry
}

// New configures the domain instruments on the given registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		invoicesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_issued_total",
			Help:      "Invoices issued by plan type.",
		}, []string{"plan_type"}),
		invoiceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_transitions_total",
			Help:      "Invoice status transitions.",
		}, []string{"from", "to"}),
		paymentsConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_confirmed_total",
			Help:      "Payments confirmed by channel.",
		}, []string{"channel"}),
		providerTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_provider_timeouts_total",
			Help:      "Payment provider calls that ran out of time.",
		}, []string{"channel"}),
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_decisions_total",
			Help:      "Authorization gate decisions.",
		}, []string{"decision", "reason"}),
		permissionReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_cache_reloads_total",
			Help:      "Role permission cache reloads.",
		}),
	}

	collectors := []prometheus.Collector{
		m.invoicesIssued,
		m.invoiceTransitions,
		m.paymentsConfirmed,
		m.providerTimeouts,
		m.authzDecisions,
		m.permissionReloads,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) RecordInvoiceIssued(planType string) {
	if m == nil {
		return
	}
	m.invoicesIssued.WithLabelValues(normalize(planType)).Inc()
}

func (m *Metrics) RecordInvoiceTransition(from, to string) {
	if m == nil {
		return
	}
	m.invoiceTransitions.WithLabelValues(normalize(from), normalize(to)).Inc()
}

func (m *Metrics) RecordPaymentConfirmed(channel string) {
	if m == nil {
		return
	}
	m.paymentsConfirmed.WithLabelValues(normalize(channel)).Inc()
}

func (m *Metrics) RecordProviderTimeout(channel string) {
	if m == nil {
		return
	}
	m.providerTimeouts.WithLabelValues(normalize(channel)).Inc()
}

func (m *Metrics) RecordAuthorization(allowed bool, reason string) {
	if m == nil {
		return
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.authzDecisions.WithLabelValues(decision, normalize(reason)).Inc()
}

func (m *Metrics) RecordPermissionReload() {
	if m == nil {
		return
	}
	m.permissionReloads.Inc()
}

func normalize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
