// internal/service/purchase/domain/repository.go
package domain

import (
	"context"
	"time"
)

// QueueFilter 队列列表的过滤与分页。
type QueueFilter struct {
	State   State // 为空表示不过滤
	Page    int
	PerPage int
}

// IntentRepository 购买意向的持久化端口。
type IntentRepository interface {
	// CreateUnlessOpen 在同一事务里检查冲突并落库：若该用户对同一票源
	// 已存在 pending / processing 的意向则返回 ErrConflict。
	CreateUnlessOpen(ctx context.Context, intent *PurchaseIntent) error

	Save(ctx context.Context, intent *PurchaseIntent) error
	FindByID(ctx context.Context, id string) (*PurchaseIntent, error)
	List(ctx context.Context, userID string, f QueueFilter) ([]*PurchaseIntent, int64, error)

	// ClaimNext 原子领取：取 next_attempt_at 已到的 pending 意向中
	// priority 最高、同优先级最早入队的一条，置为 processing 后返回。
	// 多个执行器并发领取时每条意向恰好被领取一次；队列为空返回
	// (nil, nil)。
	ClaimNext(ctx context.Context, now time.Time) (*PurchaseIntent, error)

	// ClaimByID 原子领取指定意向：仅当行仍处于 pending 时置为
	// processing 并返回。行不存在、已取消或已被并发执行器领走时返回
	// (nil, nil)。
	ClaimByID(ctx context.Context, id string, now time.Time) (*PurchaseIntent, error)

	// BumpAttempts 原子地把尝试计数 +1，与 ClaimNext 返回的内存副本
	// 上的 RecordAttempt 保持一致。
	BumpAttempts(ctx context.Context, id string) error

	// FinishProcessing 把 intent 携带的新状态落盘，仅当数据库中的行
	// 仍处于 processing 时生效。返回 false 表示意向在执行期间被取消，
	// 调用方放弃状态落盘（尝试留痕照常保留）。
	FinishProcessing(ctx context.Context, intent *PurchaseIntent) (bool, error)

	// Cancel 原子取消：仅当行处于 pending / processing 时置为
	// cancelled，否则返回 false。
	Cancel(ctx context.Context, id string) (bool, error)

	// Delete 物理删除，仅允许删除终态意向。
	Delete(ctx context.Context, id string) error

	// CountByState 按状态统计，供队列深度指标上报。
	CountByState(ctx context.Context, state State) (int64, error)
}

// AttemptRepository 尝试留痕的持久化端口，只增不改。
type AttemptRepository interface {
	Append(ctx context.Context, attempt *PurchaseAttempt) error
	ListByIntent(ctx context.Context, intentID string) ([]*PurchaseAttempt, error)
}
