// internal/service/notification/domain/channel.go
package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ChannelKind 投递通道类型。
type ChannelKind string

const (
	KindWebhook ChannelKind = "webhook"
	KindDiscord ChannelKind = "discord"
	KindSlack   ChannelKind = "slack"
	KindPush    ChannelKind = "push" // App 内推送，经 push-gateway 下发
)

var (
	// ErrNotFound 通道不存在或不属于调用者。
	ErrNotFound = errors.New("notification channel not found")

	// ErrValidation 通道配置不合法。
	ErrValidation = errors.New("invalid notification channel")
)

// Channel 一条用户配置的通知投递通道。
type Channel struct {
	ID      string
	UserID  string
	Kind    ChannelKind
	Name    string
	Target  string            // webhook/discord/slack 为回调 URL，push 为设备会话标识
	Secret  string            // 非空时 webhook 投递带 HMAC-SHA256 签名头
	Headers map[string]string // 随投递附带的自定义请求头
	Enabled bool

	// MaxRetries 单次投递失败后的最大重试次数，0 表示不重试
	MaxRetries int
	// RetryDelay 非零时覆盖全局退避策略的起步间隔
	RetryDelay time.Duration

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate 校验通道配置。
func (c *Channel) Validate() error {
	switch c.Kind {
	case KindWebhook, KindDiscord, KindSlack:
		if !strings.HasPrefix(c.Target, "http://") && !strings.HasPrefix(c.Target, "https://") {
			return errors.Wrap(ErrValidation, "target must be an http(s) url")
		}
	case KindPush:
		if c.Target == "" {
			return errors.Wrap(ErrValidation, "push target must not be empty")
		}
	default:
		return errors.Wrapf(ErrValidation, "unknown channel kind %q", c.Kind)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return errors.Wrap(ErrValidation, "max retries must be in [0,10]")
	}
	if c.RetryDelay < 0 {
		return errors.Wrap(ErrValidation, "retry delay must be >= 0")
	}
	return nil
}
