// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ctlplane"

var (
	// SettingsReloads counts settings cache loads by result ("ok" or "error").
	SettingsReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settings_reloads_total",
		Help:      "Platform settings cache reloads.",
	}, []string{"result"})

	AdminMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admin_mutations_total",
		Help:      "Successful admin mutations by resource and action.",
	}, []string{"resource", "action"})

	DependentStepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dependent_step_failures_total",
		Help:      "Best-effort dependent writes that failed after the primary write succeeded.",
	}, []string{"step"})

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_write_failures_total",
		Help:      "Audit log rows that could not be written.",
	})

	PlanDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "plan_denials_total",
		Help:      "Plan enforcement decisions that denied an action, by rule code.",
	}, []string{"rule"})

	PaymentsClientBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_client_builds_total",
		Help:      "Payments API clients constructed after a secret key change.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
