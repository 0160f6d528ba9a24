package metrics

import (
	"time"

	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReconcilerMetrics интерфейс для метрик обработки вебхуков и платежей
type ReconcilerMetrics interface {
	ObserveWebhook(provider, eventType, outcome string, duration time.Duration)
	IncOutOfBandCharge(outcome string)
	IncPlanLookup(source string)
	SetDependencyUp(dependency string, up bool)
}

type reconcilerMetrics struct {
	log             *logger.Logger
	webhookEvents   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	oobCharges      *prometheus.CounterVec
	planLookups     *prometheus.CounterVec
	dependencyUp    *prometheus.GaugeVec
}

// NewRegistry создает реестр с метриками рантайма Go и процесса
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// NewReconcilerMetrics создает метрики и регистрирует их в registry
func NewReconcilerMetrics(registry *prometheus.Registry, log *logger.Logger) ReconcilerMetrics {
	webhookEvents := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "The total number of received webhook events by outcome",
		},
		[]string{"provider", "type", "outcome"},
	)

	webhookDuration := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_seconds",
			Help:    "Webhook processing time distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "type"},
	)

	oobCharges := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "oob_charges_total",
			Help: "The total number of out-of-band charges attempted in the secondary processor",
		},
		[]string{"outcome"},
	)

	planLookups := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_lookups_total",
			Help: "Plan resolutions by the source that answered",
		},
		[]string{"source"},
	)

	dependencyUp := promauto.With(registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dependency_up",
			Help: "Whether a dependency answered the last health check (1) or not (0)",
		},
		[]string{"dependency"},
	)

	return &reconcilerMetrics{
		log:             log,
		webhookEvents:   webhookEvents,
		webhookDuration: webhookDuration,
		oobCharges:      oobCharges,
		planLookups:     planLookups,
		dependencyUp:    dependencyUp,
	}
}

// ObserveWebhook учитывает обработанное событие и время обработки
func (m *reconcilerMetrics) ObserveWebhook(provider, eventType, outcome string, duration time.Duration) {
	m.webhookEvents.WithLabelValues(provider, eventType, outcome).Inc()
	m.webhookDuration.WithLabelValues(provider, eventType).Observe(duration.Seconds())
}

// IncOutOfBandCharge увеличивает счетчик заказов в Conekta
func (m *reconcilerMetrics) IncOutOfBandCharge(outcome string) {
	m.oobCharges.WithLabelValues(outcome).Inc()
}

// IncPlanLookup увеличивает счетчик разрешений плана по источнику
func (m *reconcilerMetrics) IncPlanLookup(source string) {
	m.planLookups.WithLabelValues(source).Inc()
}

// SetDependencyUp записывает результат проверки зависимости
func (m *reconcilerMetrics) SetDependencyUp(dependency string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.dependencyUp.WithLabelValues(dependency).Set(v)
}

type nopMetrics struct{}

// NewNop возвращает метрики, которые ничего не записывают
func NewNop() ReconcilerMetrics { return nopMetrics{} }

func (nopMetrics) ObserveWebhook(string, string, string, time.Duration) {}
func (nopMetrics) IncOutOfBandCharge(string)                           {}
func (nopMetrics) IncPlanLookup(string)                                {}
func (nopMetrics) SetDependencyUp(string, bool)                        {}
