package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Migration Prometheus metrics. These are defined in a standalone package to
// avoid import cycles between the engine, the dispatcher and the HTTP clients.

var (
	RecordsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mudanza_records_processed_total",
		Help: "Registros procesados por resultado (created|updated|unresolved|parse_error)",
	}, []string{"outcome"})

	ActiveTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mudanza_active_tasks",
		Help: "Tareas en vuelo en el dispatcher",
	})

	RateLimitPauses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mudanza_rate_limit_pauses_total",
		Help: "Ciclos de pausa por rate limit",
	})

	APIRequestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mudanza_api_request_seconds",
		Help:    "Duración de llamadas a los servicios de identidad",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"service", "op"})

	Decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mudanza_duplicate_decisions_total",
		Help: "Decisiones de resolución de duplicados por acción",
	}, []string{"action"})
)

// Register registers the migration metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		RecordsProcessed, ActiveTasks, RateLimitPauses, APIRequestSeconds, Decisions,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
