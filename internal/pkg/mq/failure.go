// internal/pkg/mq/failure.go
package mq

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"

	"ticketradar/internal/pkg/logger"
)

// 死信消息头，记录消息的来龙去脉，供 DLT 消费端排查。
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderRetryCount        = "x-retry-count"
	HeaderExceptionMessage  = "x-exception-message"
)

// FailureHandler 统一处理消费失败的消息：
// 未超过重试上限时转投重试主题，否则进入死信主题。
type FailureHandler struct {
	retryWriter *kafka.Writer
	dltWriter   *kafka.Writer
	maxRetries  int
}

func NewFailureHandler(brokers []string, retryTopic, dltTopic string, maxRetries int) *FailureHandler {
	return &FailureHandler{
		retryWriter: NewKafkaWriter(brokers, retryTopic),
		dltWriter:   NewKafkaWriter(brokers, dltTopic),
		maxRetries:  maxRetries,
	}
}

// Handle 根据消息已有的重试次数决定去向。该方法自身的失败只记录日志，
// 不能再向上传播，否则会阻塞消费循环。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, cause error) {
	retryCount := h.retryCount(msg)

	forwarded := kafka.Message{Key: msg.Key, Value: msg.Value}
	carrier := KafkaHeaderCarrier(forwarded.Headers)
	carrier.Set(HeaderOriginalTopic, msg.Topic)
	carrier.Set(HeaderOriginalPartition, strconv.Itoa(msg.Partition))
	carrier.Set(HeaderOriginalOffset, strconv.FormatInt(msg.Offset, 10))
	carrier.Set(HeaderRetryCount, strconv.Itoa(retryCount+1))
	carrier.Set(HeaderExceptionMessage, cause.Error())
	forwarded.Headers = carrier
	InjectTraceContext(ctx, &forwarded.Headers)

	if retryCount < h.maxRetries {
		if err := h.retryWriter.WriteMessages(ctx, forwarded); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("topic", msg.Topic).
				Msg("failed to forward message to retry topic")
		}
		return
	}

	if err := h.dltWriter.WriteMessages(ctx, forwarded); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("topic", msg.Topic).
			Msg("CRITICAL: failed to forward message to DLT, message lost")
	}
}

func (h *FailureHandler) Close() {
	h.retryWriter.Close()
	h.dltWriter.Close()
}

func (h *FailureHandler) retryCount(msg kafka.Message) int {
	carrier := KafkaHeaderCarrier(msg.Headers)
	n, err := strconv.Atoi(carrier.Get(HeaderRetryCount))
	if err != nil {
		return 0
	}
	return n
}
