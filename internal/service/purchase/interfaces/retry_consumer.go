// internal/service/purchase/interfaces/retry_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/pkg/mq"
	"ticketradar/internal/service/purchase/application"
)

// retryTask 与 SchedulerKafkaAdapter 投递的载荷对应。
type retryTask struct {
	IntentID    string    `json:"intentId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// RetryConsumerAdapter 监听 purchase-retry-topic，到期的重试消息
// 驱动执行器再次尝试对应意向。
type RetryConsumerAdapter struct {
	reader   *kafka.Reader
	executor *application.Executor
	failures *mq.FailureHandler
	wg       sync.WaitGroup
	stopped  bool
}

func NewRetryConsumerAdapter(reader *kafka.Reader, executor *application.Executor, failures *mq.FailureHandler) *RetryConsumerAdapter {
	return &RetryConsumerAdapter{reader: reader, executor: executor, failures: failures}
}

// Start 开始监听，长期运行。
func (a *RetryConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("retry consumer started")
		for {
			if a.stopped {
				return
			}
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("fetch retry message failed")
				time.Sleep(time.Second)
				continue
			}

			a.processMessage(ctx, msg)

			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("commit retry message failed")
			}
		}
	}()
}

// Stop 优雅停止。
func (a *RetryConsumerAdapter) Stop() {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
}

func (a *RetryConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)

	var task retryTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("unmarshal retry task failed, routing to failure handler")
		a.failures.Handle(ctx, msg, err)
		return
	}

	if err := a.executor.ExecuteByID(ctx, task.IntentID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("intent_id", task.IntentID).Msg("retry execution failed")
		a.failures.Handle(ctx, msg, err)
	}
}
