// internal/service/notification/infrastructure/adapter/slack_adapter.go
package adapter

import (
	"context"
	"fmt"

	"ticketradar/internal/pkg/httpclient"
	"ticketradar/internal/service/notification/domain"
)

// SlackAdapter 投递到 Slack incoming webhook。
type SlackAdapter struct {
	client *httpclient.Client
}

func NewSlackAdapter(client *httpclient.Client) *SlackAdapter {
	return &SlackAdapter{client: client}
}

func (a *SlackAdapter) Kind() domain.ChannelKind { return domain.KindSlack }

type slackPayload struct {
	Text string `json:"text"`
}

func (a *SlackAdapter) Send(ctx context.Context, channel *domain.Channel, event *domain.Event) error {
	text := fmt.Sprintf("*%s*\n%s", title(event.Type), event.Summary)
	if event.Link != "" {
		text += "\n" + event.Link
	}
	return a.client.PostJSON(ctx, channel.Target, slackPayload{Text: text}, nil, nil)
}
