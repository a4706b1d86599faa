package application

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func intp(v int) *int { return &v }

func TestCreateChannelDefaultsRetryBudget(t *testing.T) {
	svc := NewChannelService(newFakeChannelRepo(), otel.Tracer("test"))

	// 省略 maxRetries 的请求体：缺省 3 次重试
	ch, err := svc.Create(context.Background(), &CreateChannelCommand{
		UserID: "user-1", Kind: "webhook", Name: "ops", Target: "https://example.com/hook",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ch.MaxRetries != 3 {
		t.Errorf("max retries = %d, want default 3", ch.MaxRetries)
	}
	if !ch.Enabled {
		t.Error("channel should start enabled")
	}

	// 显式传 0 表示不重试，不回落到缺省值
	once, err := svc.Create(context.Background(), &CreateChannelCommand{
		UserID: "user-1", Kind: "webhook", Name: "once", Target: "https://example.com/once",
		MaxRetries: intp(0),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if once.MaxRetries != 0 {
		t.Errorf("max retries = %d, want explicit 0 kept", once.MaxRetries)
	}

	// 显式值原样保留
	custom, err := svc.Create(context.Background(), &CreateChannelCommand{
		UserID: "user-1", Kind: "webhook", Name: "custom", Target: "https://example.com/custom",
		MaxRetries: intp(5), RetryDelayMs: 250,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if custom.MaxRetries != 5 {
		t.Errorf("max retries = %d, want 5", custom.MaxRetries)
	}
	if custom.RetryDelay != 250*time.Millisecond {
		t.Errorf("retry delay = %v, want 250ms", custom.RetryDelay)
	}
}
