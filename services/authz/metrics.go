package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics 授权流水线指标
type metrics struct {
	// decisions 各阶段决策次数
	decisions *prometheus.CounterVec

	// duration 各阶段耗时
	duration *prometheus.HistogramVec

	// finalizeFailures 动作已执行但消费记录失败的次数
	finalizeFailures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authz",
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Total number of authorization decisions",
		}, []string{"phase", "outcome", "reason"}), // outcome: allow/deny

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "authz",
			Subsystem: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Duration of authorization phases",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms ~ 20s
		}, []string{"phase"}),

		finalizeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authz",
			Subsystem: "replay",
			Name:      "finalize_failures_total",
			Help:      "Total number of executed actions whose consumption could not be recorded",
		}, []string{"reason"}),
	}
}
