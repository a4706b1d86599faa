// internal/service/notification/application/channel_service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/service/notification/domain"
)

// CreateChannelCommand 创建通道的入参。MaxRetries 缺省 3，显式传 0 才
// 关闭重试；RetryDelayMs 为 0 时用全局退避。
type CreateChannelCommand struct {
	UserID       string            `json:"-"`
	Kind         string            `json:"kind"`
	Name         string            `json:"name"`
	Target       string            `json:"target"`
	Secret       string            `json:"secret"`
	Headers      map[string]string `json:"headers"`
	MaxRetries   *int              `json:"maxRetries"`
	RetryDelayMs int               `json:"retryDelayMs"`
}

// ChannelService 通知通道的配置管理。
type ChannelService struct {
	repo   domain.ChannelRepository
	tracer trace.Tracer
}

func NewChannelService(repo domain.ChannelRepository, tracer trace.Tracer) *ChannelService {
	return &ChannelService{repo: repo, tracer: tracer}
}

// Create 校验并落库一条通道，初始启用。
func (s *ChannelService) Create(ctx context.Context, cmd *CreateChannelCommand) (*domain.Channel, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateChannel")
	defer span.End()

	maxRetries := 3
	if cmd.MaxRetries != nil {
		maxRetries = *cmd.MaxRetries
	}
	now := time.Now()
	channel := &domain.Channel{
		ID:         uuid.NewString(),
		UserID:     cmd.UserID,
		Kind:       domain.ChannelKind(cmd.Kind),
		Name:       cmd.Name,
		Target:     cmd.Target,
		Secret:     cmd.Secret,
		Headers:    cmd.Headers,
		Enabled:    true,
		MaxRetries: maxRetries,
		RetryDelay: time.Duration(cmd.RetryDelayMs) * time.Millisecond,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := channel.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.repo.Save(ctx, channel); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("channel_id", channel.ID).Str("kind", string(channel.Kind)).Msg("notification channel created")
	return channel, nil
}

// Toggle 启用 / 停用一条通道。
func (s *ChannelService) Toggle(ctx context.Context, channelID, userID string) (*domain.Channel, error) {
	channel, err := s.owned(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	channel.Enabled = !channel.Enabled
	channel.UpdatedAt = time.Now()
	if err := s.repo.Save(ctx, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

// Delete 删除一条通道。
func (s *ChannelService) Delete(ctx context.Context, channelID, userID string) error {
	if _, err := s.owned(ctx, channelID, userID); err != nil {
		return err
	}
	return s.repo.Delete(ctx, channelID)
}

// List 返回调用者的全部通道。
func (s *ChannelService) List(ctx context.Context, userID string) ([]*domain.Channel, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *ChannelService) owned(ctx context.Context, channelID, userID string) (*domain.Channel, error) {
	channel, err := s.repo.FindByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return channel, nil
}
