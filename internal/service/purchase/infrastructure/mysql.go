// internal/service/purchase/infrastructure/mysql.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ticketradar/internal/service/purchase/domain"
)

// intentModel 购买意向表。
type intentModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"size:36;index:idx_intents_user_listing"`
	AlertID   string `gorm:"size:36"`
	ListingID string `gorm:"size:64;index:idx_intents_user_listing,priority:2"`
	Platform  string `gorm:"size:64"`
	Quantity  int
	MaxPrice  *float64
	Priority  int
	Auto      bool
	Notes     string `gorm:"size:1024"`

	State         string `gorm:"size:16;index:idx_intents_claim"`
	AttemptsMade  int
	MaxAttempts   int
	NextAttemptAt time.Time `gorm:"index:idx_intents_claim,priority:2"`
	FailureReason string    `gorm:"size:512"`

	StartedAt   *time.Time
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (intentModel) TableName() string { return "purchase_intents" }

// attemptModel 尝试留痕表，只插入。
type attemptModel struct {
	ID            string `gorm:"primaryKey;size:36"`
	IntentID      string `gorm:"size:36;index:idx_attempts_intent,unique,priority:1"`
	AttemptNumber int    `gorm:"index:idx_attempts_intent,unique,priority:2"`
	Outcome       string `gorm:"size:32"`
	FailureReason string `gorm:"size:512"`
	FinalPrice    *float64
	Fee           *float64
	TotalPaid     *float64
	OrderRef      string `gorm:"size:128"`
	Metadata      string `gorm:"type:json"`
	StartedAt     time.Time
	FinishedAt    time.Time
}

func (attemptModel) TableName() string { return "purchase_attempts" }

// MysqlIntentRepository domain.IntentRepository 的 gorm 实现。
type MysqlIntentRepository struct {
	db *gorm.DB
}

func NewMysqlIntentRepository(db *gorm.DB) (*MysqlIntentRepository, error) {
	if err := db.AutoMigrate(&intentModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate purchase_intents")
	}
	return &MysqlIntentRepository{db: db}, nil
}

// CreateUnlessOpen 冲突检查与落库走同一事务，对已存在的未完结意向行
// 加锁，并发入队同一票源时只有一条能写入。
func (r *MysqlIntentRepository) CreateUnlessOpen(ctx context.Context, intent *domain.PurchaseIntent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&intentModel{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND listing_id = ?", intent.UserID, intent.ListingID).
			Where("state IN ?", []string{string(domain.StatePending), string(domain.StateProcessing)}).
			Count(&count).Error
		if err != nil {
			return errors.Wrap(err, "check open intents")
		}
		if count > 0 {
			return domain.ErrConflict
		}
		return tx.Create(toIntentModel(intent)).Error
	})
}

func (r *MysqlIntentRepository) Save(ctx context.Context, intent *domain.PurchaseIntent) error {
	return r.db.WithContext(ctx).Save(toIntentModel(intent)).Error
}

func (r *MysqlIntentRepository) FindByID(ctx context.Context, id string) (*domain.PurchaseIntent, error) {
	var m intentModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find intent")
	}
	return toIntentDomain(&m), nil
}

func (r *MysqlIntentRepository) List(ctx context.Context, userID string, f domain.QueueFilter) ([]*domain.PurchaseIntent, int64, error) {
	q := r.db.WithContext(ctx).Model(&intentModel{}).Where("user_id = ?", userID)
	if f.State != "" {
		q = q.Where("state = ?", string(f.State))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count intents")
	}

	page, perPage := f.Page, f.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var models []intentModel
	err := q.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list intents")
	}

	intents := make([]*domain.PurchaseIntent, 0, len(models))
	for i := range models {
		intents = append(intents, toIntentDomain(&models[i]))
	}
	return intents, total, nil
}

// ClaimNext 在事务内用 FOR UPDATE SKIP LOCKED 领取队首：到期的 pending
// 里 priority 最高、同优先级最早入队的一条。被其他执行器锁住的行直接
// 跳过，每条意向恰好被领取一次。
func (r *MysqlIntentRepository) ClaimNext(ctx context.Context, now time.Time) (*domain.PurchaseIntent, error) {
	var claimed *domain.PurchaseIntent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m intentModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("state = ? AND next_attempt_at <= ?", string(domain.StatePending), now).
			Order("priority DESC, created_at ASC").
			First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "select claimable intent")
		}

		err = tx.Model(&intentModel{}).
			Where("id = ?", m.ID).
			UpdateColumns(map[string]interface{}{
				"state":      string(domain.StateProcessing),
				"started_at": gorm.Expr("COALESCE(started_at, ?)", now),
				"updated_at": now,
			}).Error
		if err != nil {
			return errors.Wrap(err, "mark intent processing")
		}

		m.State = string(domain.StateProcessing)
		m.UpdatedAt = now
		claimed = toIntentDomain(&m)
		return nil
	})
	return claimed, err
}

// ClaimByID 条件更新领取指定意向：行仍为 pending 才置 processing，
// 零行生效说明已被并发执行器领走或已取消。
func (r *MysqlIntentRepository) ClaimByID(ctx context.Context, id string, now time.Time) (*domain.PurchaseIntent, error) {
	res := r.db.WithContext(ctx).Model(&intentModel{}).
		Where("id = ? AND state = ?", id, string(domain.StatePending)).
		UpdateColumns(map[string]interface{}{
			"state":      string(domain.StateProcessing),
			"started_at": gorm.Expr("COALESCE(started_at, ?)", now),
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "claim intent by id")
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	var m intentModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, errors.Wrap(err, "load claimed intent")
	}
	return toIntentDomain(&m), nil
}

func (r *MysqlIntentRepository) BumpAttempts(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&intentModel{}).
		Where("id = ?", id).
		UpdateColumn("attempts_made", gorm.Expr("attempts_made + 1")).Error
}

// FinishProcessing 条件更新：行仍处于 processing 才落盘新状态。
func (r *MysqlIntentRepository) FinishProcessing(ctx context.Context, intent *domain.PurchaseIntent) (bool, error) {
	res := r.db.WithContext(ctx).Model(&intentModel{}).
		Where("id = ? AND state = ?", intent.ID, string(domain.StateProcessing)).
		UpdateColumns(map[string]interface{}{
			"state":           string(intent.State),
			"next_attempt_at": intent.NextAttemptAt,
			"failure_reason":  intent.FailureReason,
			"completed_at":    intent.CompletedAt,
			"updated_at":      intent.UpdatedAt,
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "finish processing")
	}
	return res.RowsAffected > 0, nil
}

func (r *MysqlIntentRepository) Cancel(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&intentModel{}).
		Where("id = ? AND state IN ?", id, []string{string(domain.StatePending), string(domain.StateProcessing)}).
		UpdateColumns(map[string]interface{}{
			"state":        string(domain.StateCancelled),
			"completed_at": time.Now(),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "cancel intent")
	}
	return res.RowsAffected > 0, nil
}

func (r *MysqlIntentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&intentModel{}, "id = ?", id).Error
}

func (r *MysqlIntentRepository) CountByState(ctx context.Context, state domain.State) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&intentModel{}).
		Where("state = ?", string(state)).
		Count(&count).Error
	return count, err
}

// MysqlAttemptRepository domain.AttemptRepository 的 gorm 实现。
type MysqlAttemptRepository struct {
	db *gorm.DB
}

func NewMysqlAttemptRepository(db *gorm.DB) (*MysqlAttemptRepository, error) {
	if err := db.AutoMigrate(&attemptModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate purchase_attempts")
	}
	return &MysqlAttemptRepository{db: db}, nil
}

func (r *MysqlAttemptRepository) Append(ctx context.Context, a *domain.PurchaseAttempt) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return errors.Wrap(err, "marshal attempt metadata")
	}
	m := &attemptModel{
		ID: a.ID, IntentID: a.IntentID, AttemptNumber: a.AttemptNumber,
		Outcome: string(a.Outcome), FailureReason: a.FailureReason,
		FinalPrice: a.FinalPrice, Fee: a.Fee, TotalPaid: a.TotalPaid,
		OrderRef: a.OrderRef, Metadata: string(meta),
		StartedAt: a.StartedAt, FinishedAt: a.FinishedAt,
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MysqlAttemptRepository) ListByIntent(ctx context.Context, intentID string) ([]*domain.PurchaseAttempt, error) {
	var models []attemptModel
	err := r.db.WithContext(ctx).
		Where("intent_id = ?", intentID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list attempts")
	}
	attempts := make([]*domain.PurchaseAttempt, 0, len(models))
	for i := range models {
		m := &models[i]
		var meta map[string]string
		if m.Metadata != "" {
			if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil {
				return nil, errors.Wrap(err, "unmarshal attempt metadata")
			}
		}
		attempts = append(attempts, &domain.PurchaseAttempt{
			ID: m.ID, IntentID: m.IntentID, AttemptNumber: m.AttemptNumber,
			Outcome: domain.AttemptOutcome(m.Outcome), FailureReason: m.FailureReason,
			FinalPrice: m.FinalPrice, Fee: m.Fee, TotalPaid: m.TotalPaid,
			OrderRef: m.OrderRef, Metadata: meta,
			StartedAt: m.StartedAt, FinishedAt: m.FinishedAt,
		})
	}
	return attempts, nil
}

func toIntentModel(p *domain.PurchaseIntent) *intentModel {
	return &intentModel{
		ID: p.ID, UserID: p.UserID, AlertID: p.AlertID,
		ListingID: p.ListingID, Platform: p.Platform,
		Quantity: p.Quantity, MaxPrice: p.MaxPrice, Priority: p.Priority,
		Auto: p.Auto, Notes: p.Notes,
		State: string(p.State), AttemptsMade: p.AttemptsMade, MaxAttempts: p.MaxAttempts,
		NextAttemptAt: p.NextAttemptAt, FailureReason: p.FailureReason,
		StartedAt: p.StartedAt, CompletedAt: p.CompletedAt,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func toIntentDomain(m *intentModel) *domain.PurchaseIntent {
	return &domain.PurchaseIntent{
		ID: m.ID, UserID: m.UserID, AlertID: m.AlertID,
		ListingID: m.ListingID, Platform: m.Platform,
		Quantity: m.Quantity, MaxPrice: m.MaxPrice, Priority: m.Priority,
		Auto: m.Auto, Notes: m.Notes,
		State: domain.State(m.State), AttemptsMade: m.AttemptsMade, MaxAttempts: m.MaxAttempts,
		NextAttemptAt: m.NextAttemptAt, FailureReason: m.FailureReason,
		StartedAt: m.StartedAt, CompletedAt: m.CompletedAt,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}
