// Package metrics exposes build, claim and deploy counters to Prometheus.
package metrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one process.
type Metrics struct {
	StepDuration     *prometheus.HistogramVec
	Claims           *prometheus.CounterVec
	Builds           *prometheus.CounterVec
	Deploys          *prometheus.CounterVec
	ToolchainRetries *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowforge_step_duration_seconds",
				Help:    "Duration of pipeline steps",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"step", "outcome"},
		),
		Claims: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowforge_claims_total",
				Help: "Claim attempts by result",
			},
			[]string{"result"},
		),
		Builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowforge_builds_total",
				Help: "Finished builds by status",
			},
			[]string{"status"},
		),
		Deploys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowforge_deploys_total",
				Help: "Deploy attempts by outcome",
			},
			[]string{"outcome"},
		),
		ToolchainRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowforge_toolchain_retries_total",
				Help: "Toolchain calls repeated because the tool was busy",
			},
			[]string{"op"},
		),
	}
	reg.MustRegister(m.StepDuration, m.Claims, m.Builds, m.Deploys, m.ToolchainRetries)
	return m
}

// Hooks returns step hooks that log each step and record its duration.
func (m *Metrics) Hooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepStart: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("step_start", "job_id", e.JobID, "step", e.Step, "index", e.Index)
		},
		OnStepEnd: func(ctx context.Context, e *domain.StepEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			logger.Debug("step_end", "job_id", e.JobID, "step", e.Step, "outcome", outcome, "elapsed", e.Elapsed)
			m.StepDuration.WithLabelValues(e.Step, outcome).Observe(e.Elapsed.Seconds())
		},
	}
}

// OnRetry counts a repeated toolchain call.
func (m *Metrics) OnRetry(op string, _ int) {
	m.ToolchainRetries.WithLabelValues(op).Inc()
}

// ObserveResult counts a reported build and its deploy, if any.
func (m *Metrics) ObserveResult(res domain.BuildResult) {
	m.Builds.WithLabelValues(string(res.Status())).Inc()
	if res.Deploy == nil {
		return
	}
	outcome := "success"
	if !res.Deploy.Success {
		outcome = "failure"
	}
	m.Deploys.WithLabelValues(outcome).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
