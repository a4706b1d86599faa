// internal/service/alert/application/service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/service/alert/domain"
)

// AlertApplicationService 负责告警的增删改查编排，撮合流程见 MatchService。
type AlertApplicationService struct {
	repo            domain.AlertRepository
	tracer          trace.Tracer
	defaultCurrency string
}

func NewAlertApplicationService(repo domain.AlertRepository, tracer trace.Tracer, defaultCurrency string) *AlertApplicationService {
	return &AlertApplicationService{repo: repo, tracer: tracer, defaultCurrency: defaultCurrency}
}

// Create 校验并落库一条新告警，初始状态 active。
func (s *AlertApplicationService) Create(ctx context.Context, cmd *CreateAlertCommand) (*AlertView, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateAlert")
	defer span.End()

	notifyEmail, notifySMS := true, true
	if cmd.NotifyEmail != nil {
		notifyEmail = *cmd.NotifyEmail
	}
	if cmd.NotifySMS != nil {
		notifySMS = *cmd.NotifySMS
	}

	now := time.Now()
	alert := &domain.Alert{
		ID:       uuid.NewString(),
		UserID:   cmd.UserID,
		Name:     cmd.Name,
		Keyword:  cmd.Keyword,
		Platform: cmd.Platform,
		MaxPrice: cmd.MaxPrice,
		Currency: cmd.Currency,
		Filters:  cmd.Filters,

		NotifyEmail:  notifyEmail,
		NotifySMS:    notifySMS,
		AutoPurchase: cmd.AutoPurchase,
		AutoQuantity: cmd.AutoQuantity,
		AutoPriority: cmd.AutoPriority,

		Status:    domain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if alert.Name == "" {
		alert.Name = alert.Keyword
	}
	if alert.Currency == "" {
		alert.Currency = s.defaultCurrency
	}
	if err := alert.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "alert validation failed")
		return nil, err
	}
	if err := s.repo.Save(ctx, alert); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("alert_id", alert.ID).Str("user_id", alert.UserID).Msg("alert created")
	return toView(alert), nil
}

// Update 部分更新一条属于调用者的告警，更新后的定义仍需通过全部校验。
func (s *AlertApplicationService) Update(ctx context.Context, cmd *UpdateAlertCommand) (*AlertView, error) {
	ctx, span := s.tracer.Start(ctx, "app.UpdateAlert")
	defer span.End()

	alert, err := s.owned(ctx, cmd.AlertID, cmd.UserID)
	if err != nil {
		return nil, err
	}

	if cmd.Name != nil {
		alert.Name = *cmd.Name
	}
	if cmd.Keyword != nil {
		alert.Keyword = *cmd.Keyword
	}
	if cmd.Platform != nil {
		alert.Platform = *cmd.Platform
	}
	if cmd.MaxPrice != nil {
		alert.MaxPrice = cmd.MaxPrice
	} else if cmd.ClearMax {
		alert.MaxPrice = nil
	}
	if cmd.Filters != nil {
		alert.Filters = *cmd.Filters
	}
	if cmd.NotifyEmail != nil {
		alert.NotifyEmail = *cmd.NotifyEmail
	}
	if cmd.NotifySMS != nil {
		alert.NotifySMS = *cmd.NotifySMS
	}
	if cmd.AutoPurchase != nil {
		alert.AutoPurchase = *cmd.AutoPurchase
	}
	if cmd.AutoQuantity != nil {
		alert.AutoQuantity = *cmd.AutoQuantity
	}
	if cmd.AutoPriority != nil {
		alert.AutoPriority = *cmd.AutoPriority
	}
	alert.UpdatedAt = time.Now()

	if err := alert.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.repo.Save(ctx, alert); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return toView(alert), nil
}

// Toggle 翻转 active / paused。
func (s *AlertApplicationService) Toggle(ctx context.Context, alertID, userID string) (*AlertView, error) {
	ctx, span := s.tracer.Start(ctx, "app.ToggleAlert")
	defer span.End()

	alert, err := s.owned(ctx, alertID, userID)
	if err != nil {
		return nil, err
	}
	alert.Toggle()
	if err := s.repo.Save(ctx, alert); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("alert_id", alert.ID).Str("status", string(alert.Status)).Msg("alert toggled")
	return toView(alert), nil
}

// Delete 删除一条属于调用者的告警。
func (s *AlertApplicationService) Delete(ctx context.Context, alertID, userID string) error {
	ctx, span := s.tracer.Start(ctx, "app.DeleteAlert")
	defer span.End()

	if _, err := s.owned(ctx, alertID, userID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, alertID)
}

// Get 返回一条属于调用者的告警。
func (s *AlertApplicationService) Get(ctx context.Context, alertID, userID string) (*AlertView, error) {
	alert, err := s.owned(ctx, alertID, userID)
	if err != nil {
		return nil, err
	}
	return toView(alert), nil
}

// List 返回调用者的告警列表，按创建时间倒序。
func (s *AlertApplicationService) List(ctx context.Context, userID string, f domain.ListFilter) ([]*AlertView, int64, error) {
	ctx, span := s.tracer.Start(ctx, "app.ListAlerts")
	defer span.End()

	alerts, total, err := s.repo.List(ctx, userID, f)
	if err != nil {
		span.RecordError(err)
		return nil, 0, err
	}
	views := make([]*AlertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, toView(a))
	}
	return views, total, nil
}

// owned 读取告警并校验归属。归属不符按不存在处理，避免泄露他人资源。
func (s *AlertApplicationService) owned(ctx context.Context, alertID, userID string) (*domain.Alert, error) {
	alert, err := s.repo.FindByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return alert, nil
}
