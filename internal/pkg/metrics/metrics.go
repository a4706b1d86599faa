// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchesTotal 按平台统计命中的 (告警, 票源) 对数量。
	MatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketradar_alert_matches_total",
		Help: "Number of alert/listing match events emitted.",
	}, []string{"platform"})

	// AlertsSkippedTotal 统计因定义非法而被跳过的告警。
	AlertsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketradar_alerts_skipped_total",
		Help: "Number of malformed alert definitions skipped during matching.",
	})

	// ClaimsTotal 统计队列的抢占结果。
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketradar_purchase_claims_total",
		Help: "Number of purchase queue claim attempts.",
	}, []string{"result"}) // claimed / empty

	// AttemptsTotal 按最终结果统计购买尝试。
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketradar_purchase_attempts_total",
		Help: "Number of purchase attempts by outcome.",
	}, []string{"outcome"}) // success / transient / permanent

	// QueueDepth 记录当前待处理的购买意向数量。
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ticketradar_purchase_queue_depth",
		Help: "Number of purchase intents currently pending.",
	})

	// DeliveriesTotal 按渠道与结果统计通知投递。
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketradar_notification_deliveries_total",
		Help: "Number of notification delivery attempts by channel kind and result.",
	}, []string{"kind", "result"}) // delivered / retried / failed
)
