// internal/service/notification/infrastructure/adapter/webhook_adapter.go
package adapter

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"ticketradar/internal/pkg/httpclient"
	"ticketradar/internal/service/notification/domain"
)

// WebhookAdapter 通用 webhook 投递：把事件 POST 到用户配置的 URL。
// 配置了 Secret 时附带请求体的 HMAC-SHA256 签名头，接收方据此验明来源。
type WebhookAdapter struct {
	client *httpclient.Client
}

func NewWebhookAdapter(client *httpclient.Client) *WebhookAdapter {
	return &WebhookAdapter{client: client}
}

func (a *WebhookAdapter) Kind() domain.ChannelKind { return domain.KindWebhook }

func (a *WebhookAdapter) Send(ctx context.Context, channel *domain.Channel, event *domain.Event) error {
	headers := make(map[string]string, len(channel.Headers)+1)
	for k, v := range channel.Headers {
		headers[k] = v
	}
	if channel.Secret != "" {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		mac := hmac.New(sha256.New, []byte(channel.Secret))
		mac.Write(payload)
		headers["X-Signature-256"] = "sha256=" + hex.EncodeToString(mac.Sum(nil))
	}
	return a.client.PostJSON(ctx, channel.Target, event, headers, nil)
}
