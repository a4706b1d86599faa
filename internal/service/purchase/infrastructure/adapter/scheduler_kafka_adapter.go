// internal/service/purchase/infrastructure/adapter/scheduler_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"

	"ticketradar/internal/pkg/mq"
)

const retryTopic = "purchase-retry-topic"

// delayLevels 延迟调度器支持的延迟级别，必须与 delay-scheduler 的配置一致。
var delayLevels = map[string]time.Duration{
	"delay_topic_5s":  5 * time.Second,
	"delay_topic_1m":  1 * time.Minute,
	"delay_topic_10m": 10 * time.Minute,
}

// RetryTask 延迟消息的载荷，重试消费者按 intentID 重新执行。
type RetryTask struct {
	IntentID    string    `json:"intentId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// SchedulerKafkaAdapter 实现 port.RetryScheduler：把重试消息写入延迟
// 主题，由 delay-scheduler 到期后转投 purchase-retry-topic。
type SchedulerKafkaAdapter struct {
	writers map[string]*kafka.Writer
	sorted  []string // 按延迟从小到大排序的级别名
}

func NewSchedulerKafkaAdapter(brokers []string) *SchedulerKafkaAdapter {
	writers := make(map[string]*kafka.Writer, len(delayLevels))
	sorted := make([]string, 0, len(delayLevels))
	for level := range delayLevels {
		writers[level] = mq.NewKafkaWriter(brokers, level)
		sorted = append(sorted, level)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return delayLevels[sorted[i]] < delayLevels[sorted[j]]
	})
	return &SchedulerKafkaAdapter{writers: writers, sorted: sorted}
}

// ScheduleRetry 选择不小于 delay 的最小延迟级别投递；超过最大级别时
// 使用最大级别，剩余等待靠执行器轮询 next_attempt_at 兜底。
func (a *SchedulerKafkaAdapter) ScheduleRetry(ctx context.Context, intentID string, delay time.Duration) error {
	level := a.sorted[len(a.sorted)-1]
	for _, name := range a.sorted {
		if delayLevels[name] >= delay {
			level = name
			break
		}
	}

	task := RetryTask{IntentID: intentID, ScheduledAt: time.Now()}
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(delay).UTC().Format(time.RFC3339)
	msg := kafka.Message{
		Key:   []byte(intentID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "real-topic", Value: []byte(retryTopic)},
			{Key: "delay-timestamp", Value: []byte(deadline)},
		},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)

	return a.writers[level].WriteMessages(ctx, msg)
}

// Close 关闭底层全部 Kafka writer。
func (a *SchedulerKafkaAdapter) Close() error {
	var firstErr error
	for _, w := range a.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
