// internal/service/notification/infrastructure/mysql.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"ticketradar/internal/service/notification/domain"
)

// channelModel 同一用户对同一端点同类通道只允许一条。
type channelModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	UserID       string `gorm:"size:36;index:idx_channels_user;uniqueIndex:uq_channels_endpoint,priority:1"`
	Kind         string `gorm:"size:16;uniqueIndex:uq_channels_endpoint,priority:2"`
	Name         string `gorm:"size:255"`
	Target       string `gorm:"size:512;uniqueIndex:uq_channels_endpoint,priority:3"`
	Secret       string `gorm:"size:255"`
	Headers      string `gorm:"type:json"`
	Enabled      bool
	MaxRetries   int
	RetryDelayMs int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (channelModel) TableName() string { return "notification_channels" }

// MysqlChannelRepository domain.ChannelRepository 的 gorm 实现。
type MysqlChannelRepository struct {
	db *gorm.DB
}

func NewMysqlChannelRepository(db *gorm.DB) (*MysqlChannelRepository, error) {
	if err := db.AutoMigrate(&channelModel{}); err != nil {
		return nil, errors.Wrap(err, "migrate notification_channels")
	}
	return &MysqlChannelRepository{db: db}, nil
}

func (r *MysqlChannelRepository) Save(ctx context.Context, c *domain.Channel) error {
	m, err := toChannelModel(c)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *MysqlChannelRepository) FindByID(ctx context.Context, id string) (*domain.Channel, error) {
	var m channelModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find channel")
	}
	return toChannelDomain(&m)
}

func (r *MysqlChannelRepository) ListEnabled(ctx context.Context, userID string) ([]*domain.Channel, error) {
	var models []channelModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND enabled = ?", userID, true).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list enabled channels")
	}
	return toChannelDomains(models)
}

func (r *MysqlChannelRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Channel, error) {
	var models []channelModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list channels")
	}
	return toChannelDomains(models)
}

func (r *MysqlChannelRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&channelModel{}, "id = ?", id).Error
}

func toChannelModel(c *domain.Channel) (*channelModel, error) {
	headers, err := json.Marshal(c.Headers)
	if err != nil {
		return nil, errors.Wrap(err, "marshal channel headers")
	}
	return &channelModel{
		ID: c.ID, UserID: c.UserID, Kind: string(c.Kind), Name: c.Name,
		Target: c.Target, Secret: c.Secret, Headers: string(headers),
		Enabled: c.Enabled, MaxRetries: c.MaxRetries,
		RetryDelayMs: c.RetryDelay.Milliseconds(),
		CreatedAt:    c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}, nil
}

func toChannelDomain(m *channelModel) (*domain.Channel, error) {
	var headers map[string]string
	if m.Headers != "" {
		if err := json.Unmarshal([]byte(m.Headers), &headers); err != nil {
			return nil, errors.Wrap(err, "unmarshal channel headers")
		}
	}
	return &domain.Channel{
		ID: m.ID, UserID: m.UserID, Kind: domain.ChannelKind(m.Kind), Name: m.Name,
		Target: m.Target, Secret: m.Secret, Headers: headers,
		Enabled: m.Enabled, MaxRetries: m.MaxRetries,
		RetryDelay: time.Duration(m.RetryDelayMs) * time.Millisecond,
		CreatedAt:  m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}, nil
}

func toChannelDomains(models []channelModel) ([]*domain.Channel, error) {
	channels := make([]*domain.Channel, 0, len(models))
	for i := range models {
		c, err := toChannelDomain(&models[i])
		if err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, nil
}
