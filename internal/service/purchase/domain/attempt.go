// internal/service/purchase/domain/attempt.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttemptOutcome 单次购买尝试的结果分类。
type AttemptOutcome string

const (
	OutcomeSuccess   AttemptOutcome = "SUCCESS"
	OutcomeTransient AttemptOutcome = "TRANSIENT_FAILURE" // 可重试
	OutcomePermanent AttemptOutcome = "PERMANENT_FAILURE" // 不可重试
)

// AttemptResult 一次尝试的业务结果明细，失败时各字段允许为空。
type AttemptResult struct {
	FinalPrice *float64 // 成交单价
	Fee        *float64 // 平台手续费
	TotalPaid  *float64 // 实付总额
	OrderRef   string   // 成功时平台返回的订单号
	Metadata   map[string]string
}

// PurchaseAttempt 一次购买尝试的不可变留痕。每次对平台的真实调用
// 产生且仅产生一条记录，写入后不再修改。
type PurchaseAttempt struct {
	ID            string
	IntentID      string
	AttemptNumber int // 同一意向下严格递增，从 1 开始，绝不复用
	Outcome       AttemptOutcome
	FailureReason string
	FinalPrice    *float64
	Fee           *float64
	TotalPaid     *float64
	OrderRef      string
	Metadata      map[string]string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// NewPurchaseAttempt 构造一条尝试留痕。
func NewPurchaseAttempt(intentID string, number int, outcome AttemptOutcome, reason string, result AttemptResult, startedAt time.Time) *PurchaseAttempt {
	return &PurchaseAttempt{
		ID:            uuid.NewString(),
		IntentID:      intentID,
		AttemptNumber: number,
		Outcome:       outcome,
		FailureReason: reason,
		FinalPrice:    result.FinalPrice,
		Fee:           result.Fee,
		TotalPaid:     result.TotalPaid,
		OrderRef:      result.OrderRef,
		Metadata:      result.Metadata,
		StartedAt:     startedAt,
		FinishedAt:    time.Now(),
	}
}
