// internal/service/notification/interfaces/event_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/pkg/mq"
	"ticketradar/internal/service/notification/application"
	"ticketradar/internal/service/notification/domain"
)

// matchEvent 撮合服务发布到 alert-matches 的载荷。
type matchEvent struct {
	AlertID      string     `json:"alertId"`
	UserID       string     `json:"userId"`
	ListingID    string     `json:"listingId"`
	Platform     string     `json:"platform"`
	ListingTitle string     `json:"listingTitle"`
	ListingURL   string     `json:"listingUrl"`
	MinPrice     float64    `json:"minPrice"`
	Currency     string     `json:"currency"`
	MatchedAt    time.Time  `json:"matchedAt"`
	EventDate    *time.Time `json:"eventDate"`
}

// outcomeEvent 购买服务发布到 purchase-events 的载荷。
type outcomeEvent struct {
	IntentID      string    `json:"intentId"`
	UserID        string    `json:"userId"`
	AlertID       string    `json:"alertId"`
	ListingID     string    `json:"listingId"`
	State         string    `json:"state"`
	AttemptsMade  int       `json:"attemptsMade"`
	OrderRef      string    `json:"orderRef"`
	FailureReason string    `json:"failureReason"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// EventConsumerAdapter 监听上游事件主题并驱动分发器。
// translate 把消息体转成统一的 domain.Event，返回 nil 表示跳过。
type EventConsumerAdapter struct {
	reader     *kafka.Reader
	dispatcher *application.Dispatcher
	failures   *mq.FailureHandler
	translate  func(value []byte) (*domain.Event, error)
	wg         sync.WaitGroup
	stopped    bool
}

// NewMatchEventConsumer 消费 alert-matches。
func NewMatchEventConsumer(reader *kafka.Reader, dispatcher *application.Dispatcher, failures *mq.FailureHandler) *EventConsumerAdapter {
	return &EventConsumerAdapter{
		reader: reader, dispatcher: dispatcher, failures: failures,
		translate: translateMatch,
	}
}

// NewOutcomeEventConsumer 消费 purchase-events。
func NewOutcomeEventConsumer(reader *kafka.Reader, dispatcher *application.Dispatcher, failures *mq.FailureHandler) *EventConsumerAdapter {
	return &EventConsumerAdapter{
		reader: reader, dispatcher: dispatcher, failures: failures,
		translate: translateOutcome,
	}
}

// Start 开始监听，长期运行。
func (a *EventConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("notification event consumer started")
		for {
			if a.stopped {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("fetch notification event failed")
				time.Sleep(time.Second)
				continue
			}

			a.processMessage(ctx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("commit notification event failed")
			}
		}
	}()
}

// Stop 优雅停止。
func (a *EventConsumerAdapter) Stop() {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
}

func (a *EventConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	log := logger.Ctx(ctx)

	event, err := a.translate(msg.Value)
	if err != nil {
		log.Error().Err(err).Msg("translate notification event failed, routing to failure handler")
		a.failures.Handle(ctx, msg, err)
		return
	}
	if event == nil {
		return
	}

	// Dispatch 内部已做单通道隔离，这里只剩通道加载失败一种错误
	if err := a.dispatcher.Dispatch(ctx, event); err != nil {
		log.Error().Err(err).Str("user_id", event.UserID).Msg("dispatch notification failed")
		a.failures.Handle(ctx, msg, err)
	}
}

func translateMatch(value []byte) (*domain.Event, error) {
	var ev matchEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return nil, err
	}
	return &domain.Event{
		Type:      domain.EventAlertMatched,
		UserID:    ev.UserID,
		AlertID:   ev.AlertID,
		Summary:   fmt.Sprintf("%s — from %.2f %s on %s", ev.ListingTitle, ev.MinPrice, ev.Currency, ev.Platform),
		Link:      ev.ListingURL,
		Timestamp: ev.MatchedAt,
	}, nil
}

func translateOutcome(value []byte) (*domain.Event, error) {
	var ev outcomeEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return nil, err
	}

	var typ domain.EventType
	var summary string
	switch ev.State {
	case "SUCCESS":
		typ = domain.EventPurchaseSucceeded
		summary = fmt.Sprintf("Order %s confirmed after %d attempt(s)", ev.OrderRef, ev.AttemptsMade)
	case "FAILED":
		typ = domain.EventPurchaseFailed
		summary = fmt.Sprintf("Purchase failed after %d attempt(s): %s", ev.AttemptsMade, ev.FailureReason)
	case "CANCELLED":
		typ = domain.EventPurchaseCancelled
		summary = "Purchase cancelled"
	default:
		// 中间态不通知
		return nil, nil
	}

	return &domain.Event{
		Type:      typ,
		UserID:    ev.UserID,
		AlertID:   ev.AlertID,
		IntentID:  ev.IntentID,
		Summary:   summary,
		Timestamp: ev.OccurredAt,
	}, nil
}
