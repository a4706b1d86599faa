// internal/service/purchase/domain/intent.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// State 购买意向的状态机。
//
//	PENDING ──> PROCESSING ──> SUCCESS
//	   ^            │    └───> FAILED   (预算耗尽或永久失败)
//	   └────────────┘  (瞬时失败且还有重试预算)
//	PENDING / PROCESSING ──> CANCELLED (用户取消)
//
// SUCCESS / FAILED / CANCELLED 是终态，任何流转都不允许离开终态。
type State string

const (
	StatePending    State = "PENDING"
	StateProcessing State = "PROCESSING"
	StateSuccess    State = "SUCCESS"
	StateFailed     State = "FAILED"
	StateCancelled  State = "CANCELLED"
)

// IsTerminal 判断是否终态。
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateCancelled
}

// PurchaseIntent 是购买队列的聚合根：一条待执行的购票任务。
type PurchaseIntent struct {
	ID        string
	UserID    string
	AlertID   string // 为空表示手动入队而非告警触发
	ListingID string
	Platform  string
	Quantity  int
	MaxPrice  *float64
	Priority  int  // 1..10，越大越先执行
	Auto      bool // 告警自动触发 or 用户手动入队
	Notes     string

	State         State
	AttemptsMade  int
	MaxAttempts   int
	NextAttemptAt time.Time // 早于此刻不会被领取
	FailureReason string

	StartedAt   *time.Time // 首次进入 processing 的时刻
	CompletedAt *time.Time // 进入终态的时刻

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPurchaseIntent 构造并校验一条新的购买意向。
func NewPurchaseIntent(userID, alertID, listingID, platform string, quantity, priority, maxAttempts int, maxPrice *float64, auto bool, notes string) (*PurchaseIntent, error) {
	if userID == "" || listingID == "" {
		return nil, Invalid("user and listing are required")
	}
	if quantity < 1 || quantity > 10 {
		return nil, Invalid("quantity must be in [1,10]")
	}
	if priority == 0 {
		priority = 5
	}
	if priority < 1 || priority > 10 {
		return nil, Invalid("priority must be in [1,10]")
	}
	if maxPrice != nil && *maxPrice < 0 {
		return nil, Invalid("max price must be >= 0")
	}
	if maxAttempts < 1 {
		maxAttempts = 3
	}

	now := time.Now()
	return &PurchaseIntent{
		ID:        uuid.NewString(),
		UserID:    userID,
		AlertID:   alertID,
		ListingID: listingID,
		Platform:  platform,
		Quantity:  quantity,
		MaxPrice:  maxPrice,
		Priority:  priority,
		Auto:      auto,
		Notes:     notes,

		State:         StatePending,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now,

		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// StartProcessing pending -> processing。由仓储在领取时原子地执行，
// 这里的守卫供内存流转和测试复用。
func (p *PurchaseIntent) StartProcessing() error {
	if p.State != StatePending {
		return ErrInvalidState
	}
	p.State = StateProcessing
	now := time.Now()
	if p.StartedAt == nil {
		p.StartedAt = &now
	}
	p.UpdatedAt = now
	return nil
}

// MarkSuccess processing -> success。
func (p *PurchaseIntent) MarkSuccess() error {
	if p.State != StateProcessing {
		return ErrInvalidState
	}
	p.State = StateSuccess
	p.FailureReason = ""
	now := time.Now()
	p.CompletedAt = &now
	p.UpdatedAt = now
	return nil
}

// MarkFailed processing -> failed，reason 记录最后一次失败原因。
func (p *PurchaseIntent) MarkFailed(reason string) error {
	if p.State != StateProcessing {
		return ErrInvalidState
	}
	p.State = StateFailed
	p.FailureReason = reason
	now := time.Now()
	p.CompletedAt = &now
	p.UpdatedAt = now
	return nil
}

// Requeue processing -> pending，nextAt 之前不会再被领取。
// 只有重试预算未耗尽时允许回队。
func (p *PurchaseIntent) Requeue(nextAt time.Time, reason string) error {
	if p.State != StateProcessing {
		return ErrInvalidState
	}
	if p.AttemptsMade >= p.MaxAttempts {
		return ErrInvalidState
	}
	p.State = StatePending
	p.NextAttemptAt = nextAt
	p.FailureReason = reason
	p.UpdatedAt = time.Now()
	return nil
}

// Cancel 用户取消。pending 与 processing 都允许取消；
// processing 中的取消不打断正在进行的尝试，尝试结果照常记录，
// 但意向的终态保持 cancelled。
func (p *PurchaseIntent) Cancel() error {
	if p.State.IsTerminal() {
		return ErrInvalidState
	}
	p.State = StateCancelled
	now := time.Now()
	p.CompletedAt = &now
	p.UpdatedAt = now
	return nil
}

// RecordAttempt 尝试计数 +1，返回本次尝试的序号（从 1 开始）。
func (p *PurchaseIntent) RecordAttempt() int {
	p.AttemptsMade++
	p.UpdatedAt = time.Now()
	return p.AttemptsMade
}

// BudgetExhausted 判断重试预算是否耗尽。
func (p *PurchaseIntent) BudgetExhausted() bool {
	return p.AttemptsMade >= p.MaxAttempts
}
