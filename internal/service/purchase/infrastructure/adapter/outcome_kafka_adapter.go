// internal/service/purchase/infrastructure/adapter/outcome_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ticketradar/internal/pkg/mq"
	"ticketradar/internal/service/purchase/port"
)

const outcomeTopic = "purchase-events"

// OutcomeKafkaAdapter 实现 port.OutcomeProducer，购买结果发往通知服务。
// key 用 userID：同一用户的事件有序，推送端不会先收到终态再收到中间态。
type OutcomeKafkaAdapter struct {
	writer *kafka.Writer
}

func NewOutcomeKafkaAdapter(brokers []string) *OutcomeKafkaAdapter {
	return &OutcomeKafkaAdapter{writer: mq.NewKafkaWriter(brokers, outcomeTopic)}
}

func (a *OutcomeKafkaAdapter) PublishOutcome(ctx context.Context, ev *port.OutcomeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(ev.UserID), payload)
}

func (a *OutcomeKafkaAdapter) Close() error { return a.writer.Close() }
