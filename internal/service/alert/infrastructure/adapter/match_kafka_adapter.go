// internal/service/alert/infrastructure/adapter/match_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ticketradar/internal/pkg/mq"
	"ticketradar/internal/service/alert/domain"
	"ticketradar/internal/service/alert/port"
)

const (
	matchTopic           = "alert-matches"
	purchaseRequestTopic = "purchase-requests"
)

// MatchKafkaAdapter 实现 port.MatchEventProducer。
// 以 alertID 为 key，保证同一告警的命中事件有序。
type MatchKafkaAdapter struct {
	writer *kafka.Writer
}

func NewMatchKafkaAdapter(brokers []string) *MatchKafkaAdapter {
	return &MatchKafkaAdapter{writer: mq.NewKafkaWriter(brokers, matchTopic)}
}

func (a *MatchKafkaAdapter) PublishMatch(ctx context.Context, ev *domain.MatchEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(ev.AlertID), payload)
}

func (a *MatchKafkaAdapter) Close() error { return a.writer.Close() }

// PurchaseRequestKafkaAdapter 实现 port.AutoPurchaseRequester，
// 把自动购买请求投递给购买服务消费。
type PurchaseRequestKafkaAdapter struct {
	writer *kafka.Writer
}

func NewPurchaseRequestKafkaAdapter(brokers []string) *PurchaseRequestKafkaAdapter {
	return &PurchaseRequestKafkaAdapter{writer: mq.NewKafkaWriter(brokers, purchaseRequestTopic)}
}

func (a *PurchaseRequestKafkaAdapter) RequestPurchase(ctx context.Context, req *port.AutoPurchaseRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	// key 用 listingID：同一票源的购买请求落同一分区，便于下游按序去重
	return mq.ProduceMessage(ctx, a.writer, []byte(req.ListingID), payload)
}

func (a *PurchaseRequestKafkaAdapter) Close() error { return a.writer.Close() }
