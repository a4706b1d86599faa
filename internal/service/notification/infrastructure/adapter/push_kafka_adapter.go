// internal/service/notification/infrastructure/adapter/push_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ticketradar/internal/pkg/mq"
	"ticketradar/internal/service/notification/domain"
)

const pushTopic = "push-messages"

// PushMessage push-gateway 消费的载荷，按 SessionID 路由到在线连接。
type PushMessage struct {
	SessionID string        `json:"sessionId"`
	Event     *domain.Event `json:"event"`
}

// PushKafkaAdapter App 内推送：把事件写入 push 主题，由 push-gateway
// 下发给该用户的在线 WebSocket 连接。
type PushKafkaAdapter struct {
	writer *kafka.Writer
}

func NewPushKafkaAdapter(brokers []string) *PushKafkaAdapter {
	return &PushKafkaAdapter{writer: mq.NewKafkaWriter(brokers, pushTopic)}
}

func (a *PushKafkaAdapter) Kind() domain.ChannelKind { return domain.KindPush }

func (a *PushKafkaAdapter) Send(ctx context.Context, channel *domain.Channel, event *domain.Event) error {
	payload, err := json.Marshal(PushMessage{SessionID: channel.Target, Event: event})
	if err != nil {
		return err
	}
	// key 用会话标识：同一连接的推送有序
	return mq.ProduceMessage(ctx, a.writer, []byte(channel.Target), payload)
}

func (a *PushKafkaAdapter) Close() error { return a.writer.Close() }
