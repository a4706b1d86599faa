// internal/service/notification/domain/repository.go
package domain

import "context"

// ChannelRepository 通知通道的持久化端口。
type ChannelRepository interface {
	Save(ctx context.Context, channel *Channel) error
	FindByID(ctx context.Context, id string) (*Channel, error)
	// ListEnabled 返回某用户全部启用中的通道。
	ListEnabled(ctx context.Context, userID string) ([]*Channel, error)
	ListByUser(ctx context.Context, userID string) ([]*Channel, error)
	Delete(ctx context.Context, id string) error
}
