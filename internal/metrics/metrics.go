// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/LavonTMCQ/spear-agents/internal/domain"
	"github.com/LavonTMCQ/spear-agents/internal/tool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	runsTotalCounter         *prometheus.CounterVec
	runSuspensionsCounter    prometheus.Counter
	approvalDecisionsCounter *prometheus.CounterVec
	toolInvocationsCounter   *prometheus.CounterVec
	stepDurationMetric       prometheus.Histogram
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		runsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_runs_total",
				Help: "Total number of workflow run status transitions by status.",
			},
			[]string{"status"},
		)

		runSuspensionsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "workflow_run_suspensions_total",
				Help: "Total number of workflow run suspensions.",
			},
		)

		approvalDecisionsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approval_decisions_total",
				Help: "Total number of resolved approval requests by decision.",
			},
			[]string{"decision"},
		)

		toolInvocationsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_invocations_total",
				Help: "Total number of tool invocations by tool and outcome.",
			},
			[]string{"tool", "outcome"},
		)

		stepDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "workflow_step_duration_seconds",
				Help:    "Duration of workflow step executions in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		prometheus.MustRegister(
			runsTotalCounter,
			runSuspensionsCounter,
			approvalDecisionsCounter,
			toolInvocationsCounter,
			stepDurationMetric,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, status := range []domain.RunStatus{
			domain.RunRunning,
			domain.RunSuspended,
			domain.RunCompleted,
			domain.RunFailed,
		} {
			runsTotalCounter.WithLabelValues(string(status))
		}

		for _, decision := range []domain.ApprovalStatus{
			domain.ApprovalApproved,
			domain.ApprovalDenied,
		} {
			approvalDecisionsCounter.WithLabelValues(string(decision))
		}
	})
}

func IncRunStatus(status domain.RunStatus) {
	Init()
	runsTotalCounter.WithLabelValues(string(status)).Inc()
}

func IncRunSuspension() {
	Init()
	runSuspensionsCounter.Inc()
}

func IncApprovalDecision(decision string) {
	Init()
	approvalDecisionsCounter.WithLabelValues(decision).Inc()
}

func IncToolInvocation(name string, res tool.Result) {
	Init()
	outcome := "success"
	if !res.OK() {
		outcome = string(res.ErrKind)
	}
	toolInvocationsCounter.WithLabelValues(name, outcome).Inc()
}

func ObserveStepDuration(d time.Duration) {
	Init()
	stepDurationMetric.Observe(d.Seconds())
}
