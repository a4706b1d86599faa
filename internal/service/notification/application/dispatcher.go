// internal/service/notification/application/dispatcher.go
package application

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ticketradar/internal/pkg/backoff"
	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/pkg/metrics"
	"ticketradar/internal/service/notification/domain"
	"ticketradar/internal/service/notification/port"
)

// Dispatcher 把一条通知事件扇出到用户的全部启用通道。
//
// 隔离语义：通道之间互不影响，单个通道投递失败（含重试耗尽）只记录
// 日志与指标，其余通道照常投递；Dispatch 对调用方永不返回投递错误。
type Dispatcher struct {
	channels domain.ChannelRepository
	senders  map[domain.ChannelKind]port.ChannelSender
	backoff  backoff.Policy
	tracer   trace.Tracer
}

func NewDispatcher(channels domain.ChannelRepository, senders []port.ChannelSender,
	policy backoff.Policy, tracer trace.Tracer) *Dispatcher {
	byKind := make(map[domain.ChannelKind]port.ChannelSender, len(senders))
	for _, s := range senders {
		byKind[s.Kind()] = s
	}
	return &Dispatcher{channels: channels, senders: byKind, backoff: policy, tracer: tracer}
}

// Dispatch 投递一条事件。只有加载通道列表失败才返回错误。
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.Event) error {
	ctx, span := d.tracer.Start(ctx, "app.DispatchNotification")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", string(event.Type)),
		attribute.String("event.user_id", event.UserID),
	)

	channels, err := d.channels.ListEnabled(ctx, event.UserID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if len(channels) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, ch := range channels {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.deliver(ctx, ch, event)
		}()
	}
	wg.Wait()
	return nil
}

// deliver 对单个通道投递，失败按退避重试至该通道的预算耗尽。
func (d *Dispatcher) deliver(ctx context.Context, channel *domain.Channel, event *domain.Event) {
	log := logger.Ctx(ctx)

	sender, ok := d.senders[channel.Kind]
	if !ok {
		metrics.DeliveriesTotal.WithLabelValues(string(channel.Kind), "skipped").Inc()
		log.Warn().Str("channel_id", channel.ID).Str("kind", string(channel.Kind)).Msg("no sender for channel kind")
		return
	}

	// 通道可用自己的起步间隔覆盖全局退避
	policy := d.backoff
	if channel.RetryDelay > 0 {
		policy.Base = channel.RetryDelay
	}

	var lastErr error
	for attempt := 1; attempt <= channel.MaxRetries+1; attempt++ {
		lastErr = sender.Send(ctx, channel, event)
		if lastErr == nil {
			metrics.DeliveriesTotal.WithLabelValues(string(channel.Kind), "delivered").Inc()
			return
		}
		if attempt <= channel.MaxRetries {
			delay := policy.Delay(attempt)
			log.Warn().Err(lastErr).
				Str("channel_id", channel.ID).
				Int("attempt", attempt).
				Dur("retry_in", delay).
				Msg("notification delivery failed, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				metrics.DeliveriesTotal.WithLabelValues(string(channel.Kind), "failed").Inc()
				return
			}
		}
	}

	metrics.DeliveriesTotal.WithLabelValues(string(channel.Kind), "failed").Inc()
	log.Error().Err(lastErr).
		Str("channel_id", channel.ID).
		Str("kind", string(channel.Kind)).
		Msg("notification delivery failed, retries exhausted")
}
