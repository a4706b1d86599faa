// internal/service/purchase/port/port.go
package port

import (
	"context"
	"time"

	"ticketradar/internal/service/purchase/domain"
)

// PurchaseResult 平台侧一次下单的结果。
type PurchaseResult struct {
	OrderRef   string   // 平台订单号
	FinalPrice *float64 // 成交单价
	Fee        *float64 // 平台手续费
}

// TicketPlatform 票务平台下单端口。
// 失败通过 error 表达：domain.ErrListingUnavailable / domain.ErrPriceChanged
// 为永久失败，其余（含 domain.ErrPlatformUnavailable）视为瞬时失败。
// attemptNumber 用于构造幂等键，同一次尝试的网络重放不会重复下单。
type TicketPlatform interface {
	AttemptPurchase(ctx context.Context, intent *domain.PurchaseIntent, attemptNumber int) (*PurchaseResult, error)
}

// QuantityReserver 下单前在共享库存计数上预留张数，失败的尝试必须释放。
type QuantityReserver interface {
	Reserve(ctx context.Context, listingID string, quantity int) (bool, error)
	Release(ctx context.Context, listingID string, quantity int) error
}

// ListingAvailability 入队前检查票源是否仍可售。
type ListingAvailability interface {
	Available(ctx context.Context, listingID string) (bool, error)
}

// RetryScheduler 把一条意向安排到 delay 时长之后重新投递执行。
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, intentID string, delay time.Duration) error
}

// OutcomeEvent 购买意向的状态结果事件，通知服务消费。
type OutcomeEvent struct {
	IntentID      string    `json:"intentId"`
	UserID        string    `json:"userId"`
	AlertID       string    `json:"alertId,omitempty"`
	ListingID     string    `json:"listingId"`
	State         string    `json:"state"`
	AttemptsMade  int       `json:"attemptsMade"`
	OrderRef      string    `json:"orderRef,omitempty"`
	FailureReason string    `json:"failureReason,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// OutcomeProducer 对外发布购买结果事件。
type OutcomeProducer interface {
	PublishOutcome(ctx context.Context, ev *OutcomeEvent) error
}
