// internal/service/purchase/application/queue_service.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/service/purchase/domain"
	"ticketradar/internal/service/purchase/port"
)

// QueueService 负责购买队列的入队、取消、删除与查询。执行见 Executor。
type QueueService struct {
	intents     domain.IntentRepository
	attempts    domain.AttemptRepository
	listings    port.ListingAvailability
	outcomes    port.OutcomeProducer
	tracer      trace.Tracer
	maxAttempts int
}

func NewQueueService(intents domain.IntentRepository, attempts domain.AttemptRepository,
	listings port.ListingAvailability, outcomes port.OutcomeProducer,
	tracer trace.Tracer, maxAttempts int) *QueueService {
	return &QueueService{
		intents: intents, attempts: attempts, listings: listings,
		outcomes: outcomes, tracer: tracer, maxAttempts: maxAttempts,
	}
}

// Enqueue 校验并入队一条购买意向。同一用户对同一票源已有未完结意向时
// 返回 ErrConflict，冲突检查与落库在同一事务里完成。
func (s *QueueService) Enqueue(ctx context.Context, cmd *EnqueueCommand) (*IntentView, error) {
	ctx, span := s.tracer.Start(ctx, "app.EnqueuePurchase")
	defer span.End()

	intent, err := domain.NewPurchaseIntent(cmd.UserID, cmd.AlertID, cmd.ListingID,
		cmd.Platform, cmd.Quantity, cmd.Priority, s.maxAttempts, cmd.MaxPrice, cmd.Auto, cmd.Notes)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 已知售罄的票源拒绝入队；库存未知时放行，由执行时再校验
	if s.listings != nil {
		available, err := s.listings.Available(ctx, intent.ListingID)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("listing_id", intent.ListingID).Msg("listing availability check failed, proceeding")
		} else if !available {
			span.SetStatus(codes.Error, "listing unavailable")
			return nil, domain.ErrListingUnavailable
		}
	}

	if err := s.intents.CreateUnlessOpen(ctx, intent); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue rejected")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("intent.id", intent.ID),
		attribute.Int("intent.priority", intent.Priority),
	)
	logger.Ctx(ctx).Info().
		Str("intent_id", intent.ID).
		Str("user_id", intent.UserID).
		Str("listing_id", intent.ListingID).
		Int("priority", intent.Priority).
		Msg("purchase intent enqueued")
	return toIntentView(intent), nil
}

// Cancel 取消一条未完结的意向。正在执行的尝试不会被打断：尝试结果照常
// 留痕，但意向终态保持 cancelled。
func (s *QueueService) Cancel(ctx context.Context, intentID, userID string) (*IntentView, error) {
	ctx, span := s.tracer.Start(ctx, "app.CancelPurchase")
	defer span.End()

	intent, err := s.owned(ctx, intentID, userID)
	if err != nil {
		return nil, err
	}

	ok, err := s.intents.Cancel(ctx, intent.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidState
	}

	intent, err = s.intents.FindByID(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	s.publishOutcome(ctx, intent)
	logger.Ctx(ctx).Info().Str("intent_id", intent.ID).Msg("purchase intent cancelled")
	return toIntentView(intent), nil
}

// Remove 物理删除一条尚未开始执行的意向。已进入 processing 或终态的
// 意向保留留痕，不允许删除。
func (s *QueueService) Remove(ctx context.Context, intentID, userID string) error {
	ctx, span := s.tracer.Start(ctx, "app.RemovePurchase")
	defer span.End()

	intent, err := s.owned(ctx, intentID, userID)
	if err != nil {
		return err
	}
	if intent.State != domain.StatePending {
		return domain.ErrInvalidState
	}
	return s.intents.Delete(ctx, intent.ID)
}

// Get 返回一条意向及其全部尝试留痕。
func (s *QueueService) Get(ctx context.Context, intentID, userID string) (*IntentView, []*AttemptView, error) {
	intent, err := s.owned(ctx, intentID, userID)
	if err != nil {
		return nil, nil, err
	}
	attempts, err := s.attempts.ListByIntent(ctx, intent.ID)
	if err != nil {
		return nil, nil, err
	}
	views := make([]*AttemptView, 0, len(attempts))
	for _, a := range attempts {
		views = append(views, toAttemptView(a))
	}
	return toIntentView(intent), views, nil
}

// List 返回调用者的队列。
func (s *QueueService) List(ctx context.Context, userID string, f domain.QueueFilter) ([]*IntentView, int64, error) {
	intents, total, err := s.intents.List(ctx, userID, f)
	if err != nil {
		return nil, 0, err
	}
	views := make([]*IntentView, 0, len(intents))
	for _, p := range intents {
		views = append(views, toIntentView(p))
	}
	return views, total, nil
}

func (s *QueueService) owned(ctx context.Context, intentID, userID string) (*domain.PurchaseIntent, error) {
	intent, err := s.intents.FindByID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return intent, nil
}

func (s *QueueService) publishOutcome(ctx context.Context, intent *domain.PurchaseIntent) {
	if s.outcomes == nil {
		return
	}
	ev := &port.OutcomeEvent{
		IntentID:      intent.ID,
		UserID:        intent.UserID,
		AlertID:       intent.AlertID,
		ListingID:     intent.ListingID,
		State:         string(intent.State),
		AttemptsMade:  intent.AttemptsMade,
		FailureReason: intent.FailureReason,
		OccurredAt:    time.Now(),
	}
	if err := s.outcomes.PublishOutcome(ctx, ev); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("intent_id", intent.ID).Msg("publish outcome event failed")
	}
}
