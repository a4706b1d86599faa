package domain

import (
	"testing"

	"github.com/pkg/errors"
)

func TestChannelValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(c *Channel)
		wantOK bool
	}{
		{"webhook https", func(c *Channel) {}, true},
		{"webhook http", func(c *Channel) { c.Target = "http://internal/hook" }, true},
		{"webhook bad scheme", func(c *Channel) { c.Target = "ftp://x" }, false},
		{"discord url", func(c *Channel) {
			c.Kind = KindDiscord
			c.Target = "https://discord.com/api/webhooks/1/abc"
		}, true},
		{"slack url", func(c *Channel) {
			c.Kind = KindSlack
			c.Target = "https://hooks.slack.com/services/T/B/x"
		}, true},
		{"push with session", func(c *Channel) {
			c.Kind = KindPush
			c.Target = "session-42"
		}, true},
		{"push empty target", func(c *Channel) {
			c.Kind = KindPush
			c.Target = ""
		}, false},
		{"unknown kind", func(c *Channel) { c.Kind = "pigeon" }, false},
		{"negative retries", func(c *Channel) { c.MaxRetries = -1 }, false},
		{"retries too high", func(c *Channel) { c.MaxRetries = 11 }, false},
		{"retries upper bound", func(c *Channel) { c.MaxRetries = 10 }, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ch := &Channel{
				ID:      "c1",
				UserID:  "user-1",
				Kind:    KindWebhook,
				Target:  "https://example.com/hook",
				Enabled: true,
			}
			c.modify(ch)
			err := ch.Validate()
			if c.wantOK && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !c.wantOK && !errors.Is(err, ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
		})
	}
}
