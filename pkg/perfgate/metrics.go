package perfgate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the engine itself. Registered on the
// default registry; the dashboard exposes it at /metrics.

var (
	samplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perfgate",
		Name:      "samples_total",
		Help:      "Samples recorded, by budget and severity.",
	}, []string{"budget", "severity"})

	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perfgate",
		Name:      "violations_total",
		Help:      "Violation episodes opened, by budget.",
	}, []string{"budget"})

	recoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perfgate",
		Name:      "recoveries_total",
		Help:      "Violation episodes closed by a compliant sample, by budget.",
	}, []string{"budget"})

	degradationLevelGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "perfgate",
		Name:      "degradation_level",
		Help:      "Current degradation level (0=none, 1=light, 2=moderate, 3=aggressive).",
	})

	activeStrategiesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "perfgate",
		Name:      "active_strategies",
		Help:      "Number of currently active mitigation strategies.",
	})
)

func levelGaugeValue(l DegradationLevel) float64 {
	switch l {
	case LevelLight:
		return 1
	case LevelModerate:
		return 2
	case LevelAggressive:
		return 3
	default:
		return 0
	}
}
