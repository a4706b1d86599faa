// internal/service/notification/infrastructure/adapter/discord_adapter.go
package adapter

import (
	"context"
	"fmt"

	"ticketradar/internal/pkg/httpclient"
	"ticketradar/internal/service/notification/domain"
)

// DiscordAdapter 投递到 Discord webhook。
type DiscordAdapter struct {
	client *httpclient.Client
}

func NewDiscordAdapter(client *httpclient.Client) *DiscordAdapter {
	return &DiscordAdapter{client: client}
}

func (a *DiscordAdapter) Kind() domain.ChannelKind { return domain.KindDiscord }

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

func (a *DiscordAdapter) Send(ctx context.Context, channel *domain.Channel, event *domain.Event) error {
	payload := discordPayload{
		Embeds: []discordEmbed{{
			Title:       title(event.Type),
			Description: event.Summary,
			URL:         event.Link,
			Color:       color(event.Type),
		}},
	}
	return a.client.PostJSON(ctx, channel.Target, payload, nil, nil)
}

func title(t domain.EventType) string {
	switch t {
	case domain.EventAlertMatched:
		return "🎟️ Ticket alert matched"
	case domain.EventPurchaseSucceeded:
		return "✅ Purchase succeeded"
	case domain.EventPurchaseFailed:
		return "❌ Purchase failed"
	case domain.EventPurchaseCancelled:
		return "🚫 Purchase cancelled"
	default:
		return fmt.Sprintf("Notification: %s", t)
	}
}

func color(t domain.EventType) int {
	switch t {
	case domain.EventPurchaseSucceeded:
		return 0x2ecc71
	case domain.EventPurchaseFailed:
		return 0xe74c3c
	default:
		return 0x3498db
	}
}
