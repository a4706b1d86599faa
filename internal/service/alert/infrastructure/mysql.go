// internal/service/alert/infrastructure/mysql.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"ticketradar/internal/service/alert/domain"
)

// alertModel 告警表的持久化模型，Filters 以 JSON 列存储。
type alertModel struct {
	ID       string `gorm:"primaryKey;size:36"`
	UserID   string `gorm:"size:36;index:idx_alerts_user"`
	Name     string `gorm:"size:255"`
	Keyword  string `gorm:"size:255"`
	Platform string `gorm:"size:64;index:idx_alerts_platform_status"`
	MaxPrice *float64
	Currency string `gorm:"size:8"`
	Filters  string `gorm:"type:json"`

	NotifyEmail  bool
	NotifySMS    bool `gorm:"column:notify_sms"`
	AutoPurchase bool
	AutoQuantity int
	AutoPriority int

	Status          string `gorm:"size:16;index:idx_alerts_platform_status,priority:2"`
	MatchesFound    int64
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (alertModel) TableName() string { return "ticket_alerts" }

// MysqlAlertRepository domain.AlertRepository 的 gorm 实现。
type MysqlAlertRepository struct {
	db *gorm.DB
}

func NewMysqlAlertRepository(db *gorm.DB) (*MysqlAlertRepository, error) {
	if err := db.AutoMigrate(&alertModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate ticket_alerts")
	}
	return &MysqlAlertRepository{db: db}, nil
}

// Save 落库用户可编辑的告警定义。matches_found / last_triggered_at 由
// 撮合器经 RecordMatch 原子维护，这里跳过，避免覆盖并发自增。
func (r *MysqlAlertRepository) Save(ctx context.Context, alert *domain.Alert) error {
	m, err := toModel(alert)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Omit("matches_found", "last_triggered_at").
		Save(m).Error
}

func (r *MysqlAlertRepository) FindByID(ctx context.Context, id string) (*domain.Alert, error) {
	var m alertModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find alert")
	}
	return toDomain(&m)
}

func (r *MysqlAlertRepository) List(ctx context.Context, userID string, f domain.ListFilter) ([]*domain.Alert, int64, error) {
	q := r.db.WithContext(ctx).Model(&alertModel{}).Where("user_id = ?", userID)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Platform != "" {
		q = q.Where("platform = ?", f.Platform)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("name LIKE ? OR keyword LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count alerts")
	}

	page, perPage := f.Page, f.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var models []alertModel
	err := q.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list alerts")
	}

	alerts := make([]*domain.Alert, 0, len(models))
	for i := range models {
		a, err := toDomain(&models[i])
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, a)
	}
	return alerts, total, nil
}

func (r *MysqlAlertRepository) ActiveCandidates(ctx context.Context, platform string) ([]*domain.Alert, error) {
	var models []alertModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.StatusActive)).
		Where("platform = ? OR platform = ''", platform).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "load candidate alerts")
	}
	alerts := make([]*domain.Alert, 0, len(models))
	for i := range models {
		a, err := toDomain(&models[i])
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// RecordMatch 用 SQL 表达式做原子自增，并发命中不丢计数。
func (r *MysqlAlertRepository) RecordMatch(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&alertModel{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"matches_found":     gorm.Expr("matches_found + 1"),
			"last_triggered_at": at,
		}).Error
}

func (r *MysqlAlertRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&alertModel{}, "id = ?", id).Error
}

func toModel(a *domain.Alert) (*alertModel, error) {
	filters, err := json.Marshal(a.Filters)
	if err != nil {
		return nil, errors.Wrap(err, "marshal filters")
	}
	return &alertModel{
		ID: a.ID, UserID: a.UserID, Name: a.Name, Keyword: a.Keyword,
		Platform: a.Platform, MaxPrice: a.MaxPrice, Currency: a.Currency,
		Filters: string(filters),

		NotifyEmail: a.NotifyEmail, NotifySMS: a.NotifySMS,
		AutoPurchase: a.AutoPurchase, AutoQuantity: a.AutoQuantity, AutoPriority: a.AutoPriority,

		Status: string(a.Status), MatchesFound: a.MatchesFound,
		LastTriggeredAt: a.LastTriggeredAt,
		CreatedAt:       a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}, nil
}

func toDomain(m *alertModel) (*domain.Alert, error) {
	var filters domain.Filters
	if m.Filters != "" {
		if err := json.Unmarshal([]byte(m.Filters), &filters); err != nil {
			return nil, errors.Wrap(err, "unmarshal filters")
		}
	}
	return &domain.Alert{
		ID: m.ID, UserID: m.UserID, Name: m.Name, Keyword: m.Keyword,
		Platform: m.Platform, MaxPrice: m.MaxPrice, Currency: m.Currency,
		Filters: filters,

		NotifyEmail: m.NotifyEmail, NotifySMS: m.NotifySMS,
		AutoPurchase: m.AutoPurchase, AutoQuantity: m.AutoQuantity, AutoPriority: m.AutoPriority,

		Status: domain.Status(m.Status), MatchesFound: m.MatchesFound,
		LastTriggeredAt: m.LastTriggeredAt,
		CreatedAt:       m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}, nil
}
