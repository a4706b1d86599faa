// cmd/delay-scheduler/main.go
package main

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ticketradar/internal/pkg/bootstrap"
	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/pkg/mq"
)

const (
	serviceName = "delay-scheduler"
	servicePort = 8093
)

// delayLevels 支持的延迟级别。生产方（购买服务的重试调度）按需挑选级别，
// 新增级别需与 SchedulerKafkaAdapter 的配置同步。
var delayLevels = map[string]time.Duration{
	"delay_topic_5s":  5 * time.Second,
	"delay_topic_1m":  1 * time.Minute,
	"delay_topic_10m": 10 * time.Minute,
}

var tracer = otel.Tracer(serviceName)

// Scheduler 负责一个延迟级别的轮询：队头消息到期就转投真实主题。
type Scheduler struct {
	level       string
	delay       time.Duration
	kafkaReader *kafka.Reader
	// 每个真实主题一个独立的 writer
	kafkaWriters map[string]*kafka.Writer
	writerLock   sync.Mutex
	brokers      []string
}

func NewScheduler(brokers []string, level string, delay time.Duration) *Scheduler {
	return &Scheduler{
		level:        level,
		delay:        delay,
		kafkaReader:  mq.NewKafkaReader(brokers, level, serviceName+"-group-"+level),
		kafkaWriters: make(map[string]*kafka.Writer),
		brokers:      brokers,
	}
}

// StartPolling 启动定时轮询器。
func (s *Scheduler) StartPolling(ctx context.Context, interval time.Duration) {
	logger.Ctx(ctx).Info().Str("level", s.level).Dur("interval", interval).Msg("polling scheduler started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer s.kafkaReader.Close()
	defer s.closeWriters()

	for {
		select {
		case <-ticker.C:
			s.checkAndPublish(ctx)
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Str("level", s.level).Msg("polling scheduler shutting down")
			return
		}
	}
}

// checkAndPublish 消费队头：到期则转投，未到期就等下一个 tick。
// 同一级别内消息按进入时间有序，队头未到期则后续都未到期。
func (s *Scheduler) checkAndPublish(parentCtx context.Context) {
	for {
		// FetchMessage 不自动提交 offset，未到期的消息留在队头
		msg, err := s.kafkaReader.FetchMessage(parentCtx)
		if err != nil {
			return
		}

		ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
		now := time.Now().UTC()
		ctx, span := tracer.Start(ctx, "scheduler.CheckAndPublish", trace.WithAttributes(
			attribute.String("delay.level", s.level),
		))

		deliveryTime := msg.Time.Add(s.delay)
		if now.Before(deliveryTime) {
			span.AddEvent("HeadMessageNotDue")
			span.End()
			return
		}

		realTopic := getHeader(msg.Headers, "real-topic")
		if realTopic == "" {
			logger.Ctx(ctx).Error().Str("level", s.level).Msg("real-topic header missing, skipping message")
			// 坏消息必须提交，否则会被永远重复消费
			if err := s.kafkaReader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("commit skipped message failed")
			}
			span.End()
			continue
		}

		if err := s.publish(ctx, realTopic, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("real_topic", realTopic).Msg("publish to real topic failed")
			// 投递失败不提交 offset，等下次轮询重试
			span.RecordError(err)
			span.SetStatus(codes.Error, "publish to real topic failed")
			span.End()
			return
		}

		if err := s.kafkaReader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("level", s.level).Msg("commit after publish failed")
			span.RecordError(err)
			span.End()
			return
		}
		span.AddEvent("MessagePublishedAndCommitted", trace.WithAttributes(attribute.String("real.topic", realTopic)))
		span.End()
	}
}

// publish 将消息投递到真实业务主题，保留追踪上下文。
func (s *Scheduler) publish(ctx context.Context, realTopic string, msg kafka.Message) error {
	s.writerLock.Lock()
	writer, exists := s.kafkaWriters[realTopic]
	if !exists {
		writer = mq.NewKafkaWriter(s.brokers, realTopic)
		s.kafkaWriters[realTopic] = writer
	}
	s.writerLock.Unlock()

	publishMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
	}
	traceCtx := mq.ExtractTraceContext(ctx, msg.Headers)
	mq.InjectTraceContext(traceCtx, &publishMsg.Headers)

	return writer.WriteMessages(ctx, publishMsg)
}

func (s *Scheduler) closeWriters() {
	s.writerLock.Lock()
	defer s.writerLock.Unlock()
	for topic, writer := range s.kafkaWriters {
		if err := writer.Close(); err != nil {
			logger.Ctx(context.Background()).Error().Err(err).Str("topic", topic).Msg("close writer failed")
		}
	}
}

func getHeader(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	pollCtx, stopPolling := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for level, delay := range delayLevels {
		scheduler := NewScheduler(cfg.Infra.Kafka.Brokers, level, delay)
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.StartPolling(pollCtx, time.Second)
		}()
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		OnShutdown: func(ctx context.Context) {
			stopPolling()
			wg.Wait()
		},
	})
}
