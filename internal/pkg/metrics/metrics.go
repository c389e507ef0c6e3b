// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 领券/释放两条链路的核心指标，/metrics 端点由各服务自行挂载。
var (
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecoupon_claims_total",
		Help: "Coupon claim attempts by result.",
	}, []string{"result"})

	LockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ecoupon_claim_lock_wait_seconds",
		Help:    "Time spent waiting for the per-coupon distributed lock.",
		Buckets: prometheus.DefBuckets,
	})

	RecordLocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecoupon_record_locks_total",
		Help: "Lock-for-order attempts by result.",
	}, []string{"result"})

	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecoupon_reconcile_total",
		Help: "Release reconciliation decisions by outcome.",
	}, []string{"outcome"})
)
