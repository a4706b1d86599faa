// internal/service/purchase/interfaces/request_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/pkg/mq"
	"ticketradar/internal/service/purchase/application"
	"ticketradar/internal/service/purchase/domain"
)

// autoPurchaseRequest 与撮合服务投递到 purchase-requests 的载荷对应。
type autoPurchaseRequest struct {
	AlertID   string   `json:"alertId"`
	UserID    string   `json:"userId"`
	ListingID string   `json:"listingId"`
	Platform  string   `json:"platform"`
	Quantity  int      `json:"quantity"`
	Priority  int      `json:"priority"`
	MaxPrice  *float64 `json:"maxPrice"`
}

// RequestConsumerAdapter 监听 purchase-requests，把告警触发的自动购买
// 请求转化为队列里的购买意向。
type RequestConsumerAdapter struct {
	reader   *kafka.Reader
	queue    *application.QueueService
	failures *mq.FailureHandler
	wg       sync.WaitGroup
	stopped  bool
}

func NewRequestConsumerAdapter(reader *kafka.Reader, queue *application.QueueService, failures *mq.FailureHandler) *RequestConsumerAdapter {
	return &RequestConsumerAdapter{reader: reader, queue: queue, failures: failures}
}

// Start 开始监听，长期运行。
func (a *RequestConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("auto purchase consumer started")
		for {
			if a.stopped {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("fetch purchase request failed")
				time.Sleep(time.Second)
				continue
			}

			a.processMessage(ctx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("commit purchase request failed")
			}
		}
	}()
}

// Stop 优雅停止。
func (a *RequestConsumerAdapter) Stop() {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
}

func (a *RequestConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	log := logger.Ctx(ctx)

	var req autoPurchaseRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		log.Error().Err(err).Msg("unmarshal purchase request failed, routing to failure handler")
		a.failures.Handle(ctx, msg, err)
		return
	}

	_, err := a.queue.Enqueue(ctx, &application.EnqueueCommand{
		UserID:    req.UserID,
		AlertID:   req.AlertID,
		ListingID: req.ListingID,
		Platform:  req.Platform,
		Quantity:  req.Quantity,
		Priority:  req.Priority,
		MaxPrice:  req.MaxPrice,
		Auto:      true,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrConflict):
		// 同一票源的重复命中是常态，静默吸收
		log.Debug().Str("listing_id", req.ListingID).Str("user_id", req.UserID).Msg("duplicate auto purchase request ignored")
	case errors.Is(err, domain.ErrListingUnavailable):
		log.Info().Str("listing_id", req.ListingID).Msg("auto purchase skipped: listing sold out")
	case errors.Is(err, domain.ErrValidation):
		// 载荷本身不合法，重试不会变好
		log.Warn().Err(err).Msg("invalid auto purchase request dropped")
	default:
		log.Error().Err(err).Msg("enqueue auto purchase failed")
		a.failures.Handle(ctx, msg, err)
	}
}
