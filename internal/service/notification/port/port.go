// internal/service/notification/port/port.go
package port

import (
	"context"

	"ticketradar/internal/service/notification/domain"
)

// ChannelSender 某一种通道类型的投递实现。
type ChannelSender interface {
	Kind() domain.ChannelKind
	Send(ctx context.Context, channel *domain.Channel, event *domain.Event) error
}
