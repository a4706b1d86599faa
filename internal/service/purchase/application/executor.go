// internal/service/purchase/application/executor.go
package application

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ticketradar/internal/pkg/backoff"
	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/pkg/metrics"
	"ticketradar/internal/service/purchase/domain"
	"ticketradar/internal/service/purchase/port"
)

// Executor 从队列领取购买意向并驱动平台下单。
//
// 每次真实的平台调用产生且仅产生一条尝试留痕；瞬时失败按指数退避回队，
// 永久失败或预算耗尽落入 failed 终态。执行期间被取消的意向保持
// cancelled，本次尝试的结果只留痕不改状态。
type Executor struct {
	intents   domain.IntentRepository
	attempts  domain.AttemptRepository
	platform  port.TicketPlatform
	reserver  port.QuantityReserver
	scheduler port.RetryScheduler
	outcomes  port.OutcomeProducer
	backoff   backoff.Policy
	timeout   time.Duration
	tracer    trace.Tracer
}

func NewExecutor(intents domain.IntentRepository, attempts domain.AttemptRepository,
	platform port.TicketPlatform, reserver port.QuantityReserver,
	scheduler port.RetryScheduler, outcomes port.OutcomeProducer,
	policy backoff.Policy, timeout time.Duration, tracer trace.Tracer) *Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Executor{
		intents: intents, attempts: attempts,
		platform: platform, reserver: reserver,
		scheduler: scheduler, outcomes: outcomes,
		backoff: policy, timeout: timeout, tracer: tracer,
	}
}

// ProcessNext 领取并执行一条意向。返回 false 表示队列当前为空。
func (e *Executor) ProcessNext(ctx context.Context) (bool, error) {
	intent, err := e.intents.ClaimNext(ctx, time.Now())
	if err != nil {
		return false, err
	}
	if intent == nil {
		metrics.ClaimsTotal.WithLabelValues("empty").Inc()
		return false, nil
	}
	metrics.ClaimsTotal.WithLabelValues("claimed").Inc()
	e.Execute(ctx, intent)
	return true, nil
}

// ExecuteByID 按 ID 执行一条 pending 意向，重试消费者的入口。
// 领取走 ClaimNext 同款的条件更新：行不再 pending（已取消或已被并发
// 执行器领走）时零行生效，静默跳过。
func (e *Executor) ExecuteByID(ctx context.Context, intentID string) error {
	intent, err := e.intents.ClaimByID(ctx, intentID, time.Now())
	if err != nil {
		return err
	}
	if intent == nil {
		return nil
	}
	e.Execute(ctx, intent)
	return nil
}

// Execute 驱动一次尝试并收敛状态。intent 必须已处于 processing。
func (e *Executor) Execute(ctx context.Context, intent *domain.PurchaseIntent) {
	ctx, span := e.tracer.Start(ctx, "app.ExecutePurchase")
	defer span.End()
	log := logger.Ctx(ctx)

	attemptNo := intent.RecordAttempt()
	if err := e.intents.BumpAttempts(ctx, intent.ID); err != nil {
		log.Error().Err(err).Str("intent_id", intent.ID).Msg("bump attempts failed")
	}
	span.SetAttributes(
		attribute.String("intent.id", intent.ID),
		attribute.Int("attempt.number", attemptNo),
	)

	startedAt := time.Now()
	result, attemptErr := e.attemptOnce(ctx, intent, attemptNo)

	// 尝试留痕：成功失败都写，且只写这一条
	attempt := e.buildAttempt(intent, attemptNo, result, attemptErr, startedAt)
	if err := e.attempts.Append(ctx, attempt); err != nil {
		log.Error().Err(err).Str("intent_id", intent.ID).Msg("append attempt record failed")
	}

	switch {
	case attemptErr == nil:
		metrics.AttemptsTotal.WithLabelValues("success").Inc()
		e.finalizeSuccess(ctx, intent, result)
	case !domain.IsRetriable(attemptErr):
		metrics.AttemptsTotal.WithLabelValues("permanent").Inc()
		span.SetStatus(codes.Error, "permanent failure")
		e.finalizeFailed(ctx, intent, attemptErr.Error())
	case intent.BudgetExhausted():
		metrics.AttemptsTotal.WithLabelValues("transient").Inc()
		span.SetStatus(codes.Error, "retry budget exhausted")
		e.finalizeFailed(ctx, intent, attemptErr.Error())
	default:
		metrics.AttemptsTotal.WithLabelValues("transient").Inc()
		e.requeue(ctx, intent, attemptNo, attemptErr.Error())
	}
}

// attemptOnce 预留张数并调用平台，整体受单次尝试超时约束。
func (e *Executor) attemptOnce(ctx context.Context, intent *domain.PurchaseIntent, attemptNo int) (*port.PurchaseResult, error) {
	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if e.reserver != nil {
		ok, err := e.reserver.Reserve(actx, intent.ListingID, intent.Quantity)
		if err != nil {
			return nil, errors.Wrap(err, "reserve quantity")
		}
		if !ok {
			return nil, errors.New("quantity held by concurrent attempt")
		}
	}

	result, err := e.platform.AttemptPurchase(actx, intent, attemptNo)
	if err != nil {
		// 失败的尝试必须归还预留，用父 ctx：actx 此刻可能已超时
		if e.reserver != nil {
			if rerr := e.reserver.Release(ctx, intent.ListingID, intent.Quantity); rerr != nil {
				logger.Ctx(ctx).Error().Err(rerr).Str("intent_id", intent.ID).Msg("release reservation failed")
			}
		}
		return nil, err
	}
	return result, nil
}

func (e *Executor) buildAttempt(intent *domain.PurchaseIntent, attemptNo int, result *port.PurchaseResult, attemptErr error, startedAt time.Time) *domain.PurchaseAttempt {
	meta := map[string]string{
		"platform":        intent.Platform,
		"idempotency_key": intent.ID + ":" + strconv.Itoa(attemptNo),
	}
	if attemptErr == nil {
		res := domain.AttemptResult{
			FinalPrice: result.FinalPrice,
			Fee:        result.Fee,
			OrderRef:   result.OrderRef,
			Metadata:   meta,
		}
		if result.FinalPrice != nil {
			total := *result.FinalPrice * float64(intent.Quantity)
			if result.Fee != nil {
				total += *result.Fee
			}
			res.TotalPaid = &total
		}
		return domain.NewPurchaseAttempt(intent.ID, attemptNo, domain.OutcomeSuccess, "", res, startedAt)
	}
	outcome := domain.OutcomePermanent
	if domain.IsRetriable(attemptErr) {
		outcome = domain.OutcomeTransient
	}
	res := domain.AttemptResult{Metadata: meta}
	if result != nil {
		res.FinalPrice = result.FinalPrice
	}
	return domain.NewPurchaseAttempt(intent.ID, attemptNo, outcome, attemptErr.Error(), res, startedAt)
}

func (e *Executor) finalizeSuccess(ctx context.Context, intent *domain.PurchaseIntent, result *port.PurchaseResult) {
	log := logger.Ctx(ctx)
	if err := intent.MarkSuccess(); err != nil {
		log.Error().Err(err).Str("intent_id", intent.ID).Msg("mark success rejected")
		return
	}
	ok, err := e.intents.FinishProcessing(ctx, intent)
	if err != nil {
		log.Error().Err(err).Str("intent_id", intent.ID).Msg("persist success failed")
		return
	}
	if !ok {
		// 执行期间被取消：结果已留痕，终态保持 cancelled
		log.Warn().Str("intent_id", intent.ID).Msg("intent cancelled during attempt, success absorbed")
		return
	}
	log.Info().Str("intent_id", intent.ID).Str("order_ref", result.OrderRef).Msg("purchase succeeded")
	e.publishOutcome(ctx, intent, result.OrderRef)
}

func (e *Executor) finalizeFailed(ctx context.Context, intent *domain.PurchaseIntent, reason string) {
	log := logger.Ctx(ctx)
	if err := intent.MarkFailed(reason); err != nil {
		log.Error().Err(err).Str("intent_id", intent.ID).Msg("mark failed rejected")
		return
	}
	ok, err := e.intents.FinishProcessing(ctx, intent)
	if err != nil {
		log.Error().Err(err).Str("intent_id", intent.ID).Msg("persist failure failed")
		return
	}
	if !ok {
		log.Warn().Str("intent_id", intent.ID).Msg("intent cancelled during attempt, failure absorbed")
		return
	}
	log.Warn().Str("intent_id", intent.ID).Int("attempts", intent.AttemptsMade).Str("reason", reason).Msg("purchase failed terminally")
	e.publishOutcome(ctx, intent, "")
}

// requeue 瞬时失败且预算未耗尽：按退避回队并安排延迟重投。
func (e *Executor) requeue(ctx context.Context, intent *domain.PurchaseIntent, attemptNo int, reason string) {
	log := logger.Ctx(ctx)
	delay := e.backoff.Delay(attemptNo)
	if err := intent.Requeue(time.Now().Add(delay), reason); err != nil {
		log.Error().Err(err).Str("intent_id", intent.ID).Msg("requeue rejected")
		return
	}
	ok, err := e.intents.FinishProcessing(ctx, intent)
	if err != nil {
		log.Error().Err(err).Str("intent_id", intent.ID).Msg("persist requeue failed")
		return
	}
	if !ok {
		log.Warn().Str("intent_id", intent.ID).Msg("intent cancelled during attempt, requeue absorbed")
		return
	}
	if e.scheduler != nil {
		if err := e.scheduler.ScheduleRetry(ctx, intent.ID, delay); err != nil {
			// 调度失败不致命：轮询路径按 next_attempt_at 兜底领取
			log.Error().Err(err).Str("intent_id", intent.ID).Msg("schedule retry failed")
		}
	}
	log.Info().
		Str("intent_id", intent.ID).
		Int("attempt", attemptNo).
		Dur("retry_in", delay).
		Str("reason", reason).
		Msg("purchase attempt failed, requeued")
}

func (e *Executor) publishOutcome(ctx context.Context, intent *domain.PurchaseIntent, orderRef string) {
	if e.outcomes == nil {
		return
	}
	ev := &port.OutcomeEvent{
		IntentID:      intent.ID,
		UserID:        intent.UserID,
		AlertID:       intent.AlertID,
		ListingID:     intent.ListingID,
		State:         string(intent.State),
		AttemptsMade:  intent.AttemptsMade,
		OrderRef:      orderRef,
		FailureReason: intent.FailureReason,
		OccurredAt:    time.Now(),
	}
	if err := e.outcomes.PublishOutcome(ctx, ev); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("intent_id", intent.ID).Msg("publish outcome event failed")
	}
}
