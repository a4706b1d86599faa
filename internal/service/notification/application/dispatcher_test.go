package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"ticketradar/internal/pkg/backoff"
	"ticketradar/internal/service/notification/domain"
	"ticketradar/internal/service/notification/port"
)

type fakeChannelRepo struct {
	mu       sync.Mutex
	channels map[string]*domain.Channel
	listErr  error
}

func newFakeChannelRepo(channels ...*domain.Channel) *fakeChannelRepo {
	r := &fakeChannelRepo{channels: make(map[string]*domain.Channel)}
	for _, ch := range channels {
		r.channels[ch.ID] = ch
	}
	return r
}

func (r *fakeChannelRepo) Save(ctx context.Context, ch *domain.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ID] = ch
	return nil
}

func (r *fakeChannelRepo) FindByID(ctx context.Context, id string) (*domain.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return ch, nil
}

func (r *fakeChannelRepo) ListEnabled(ctx context.Context, userID string) ([]*domain.Channel, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Channel
	for _, ch := range r.channels {
		if ch.UserID == userID && ch.Enabled {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (r *fakeChannelRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Channel, error) {
	return nil, nil
}

func (r *fakeChannelRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, id)
	return nil
}

// fakeSender 按通道 ID 脚本化每次 Send 的结果。
type fakeSender struct {
	kind   domain.ChannelKind
	mu     sync.Mutex
	fails  map[string]int // 通道 ID -> 前 N 次调用失败
	calls  map[string]int
	sent   []string // 投递成功的通道 ID
	events []*domain.Event
}

func newFakeSender(kind domain.ChannelKind) *fakeSender {
	return &fakeSender{kind: kind, fails: make(map[string]int), calls: make(map[string]int)}
}

func (s *fakeSender) Kind() domain.ChannelKind { return s.kind }

func (s *fakeSender) Send(ctx context.Context, channel *domain.Channel, event *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[channel.ID]++
	if s.calls[channel.ID] <= s.fails[channel.ID] {
		return errors.New("delivery failed")
	}
	s.sent = append(s.sent, channel.ID)
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSender) callCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func (s *fakeSender) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func webhookChannel(id, userID string, maxRetries int) *domain.Channel {
	return &domain.Channel{
		ID:         id,
		UserID:     userID,
		Kind:       domain.KindWebhook,
		Target:     "https://example.com/hook",
		Enabled:    true,
		MaxRetries: maxRetries,
	}
}

func matchedEvent(userID string) *domain.Event {
	return &domain.Event{
		Type:      domain.EventAlertMatched,
		UserID:    userID,
		AlertID:   "alert-1",
		Summary:   "Oasis Reunion Tour — from 120.00 USD",
		Timestamp: time.Now(),
	}
}

func fastPolicy() backoff.Policy {
	return backoff.Policy{Base: time.Millisecond, Cap: 2 * time.Millisecond}
}

func TestDispatchFansOutToAllEnabledChannels(t *testing.T) {
	repo := newFakeChannelRepo(
		webhookChannel("c1", "user-1", 0),
		webhookChannel("c2", "user-1", 0),
		webhookChannel("other", "user-2", 0),
	)
	disabled := webhookChannel("c3", "user-1", 0)
	disabled.Enabled = false
	repo.Save(context.Background(), disabled)

	sender := newFakeSender(domain.KindWebhook)
	d := NewDispatcher(repo, []port.ChannelSender{sender}, fastPolicy(), otel.Tracer("test"))

	if err := d.Dispatch(context.Background(), matchedEvent("user-1")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	got := sender.delivered()
	if len(got) != 2 {
		t.Fatalf("delivered to %v, want exactly c1 and c2", got)
	}
	for _, id := range got {
		if id != "c1" && id != "c2" {
			t.Errorf("delivered to unexpected channel %s", id)
		}
	}
}

func TestDispatchChannelFailureDoesNotAffectOthers(t *testing.T) {
	repo := newFakeChannelRepo(
		webhookChannel("good-1", "user-1", 0),
		webhookChannel("bad", "user-1", 0),
		webhookChannel("good-2", "user-1", 0),
	)
	sender := newFakeSender(domain.KindWebhook)
	sender.fails["bad"] = 10 // 永远失败
	d := NewDispatcher(repo, []port.ChannelSender{sender}, fastPolicy(), otel.Tracer("test"))

	if err := d.Dispatch(context.Background(), matchedEvent("user-1")); err != nil {
		t.Fatalf("Dispatch must not surface delivery errors, got %v", err)
	}

	got := sender.delivered()
	if len(got) != 2 {
		t.Fatalf("delivered to %v, want the two good channels", got)
	}
}

func TestDispatchRetriesUntilSuccess(t *testing.T) {
	repo := newFakeChannelRepo(webhookChannel("flaky", "user-1", 3))
	sender := newFakeSender(domain.KindWebhook)
	sender.fails["flaky"] = 2 // 前两次失败，第三次成功
	d := NewDispatcher(repo, []port.ChannelSender{sender}, fastPolicy(), otel.Tracer("test"))

	if err := d.Dispatch(context.Background(), matchedEvent("user-1")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got := sender.callCount("flaky"); got != 3 {
		t.Errorf("send calls = %d, want 3", got)
	}
	if len(sender.delivered()) != 1 {
		t.Error("event should eventually be delivered")
	}
}

func TestDispatchStopsAfterRetryBudget(t *testing.T) {
	repo := newFakeChannelRepo(webhookChannel("dead", "user-1", 2))
	sender := newFakeSender(domain.KindWebhook)
	sender.fails["dead"] = 100
	d := NewDispatcher(repo, []port.ChannelSender{sender}, fastPolicy(), otel.Tracer("test"))

	if err := d.Dispatch(context.Background(), matchedEvent("user-1")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// 1 次首投 + 2 次重试
	if got := sender.callCount("dead"); got != 3 {
		t.Errorf("send calls = %d, want 3", got)
	}
}

func TestDispatchSkipsUnknownChannelKind(t *testing.T) {
	pager := webhookChannel("pager", "user-1", 0)
	pager.Kind = domain.ChannelKind("pagerduty")
	repo := newFakeChannelRepo(pager, webhookChannel("hook", "user-1", 0))
	sender := newFakeSender(domain.KindWebhook)
	d := NewDispatcher(repo, []port.ChannelSender{sender}, fastPolicy(), otel.Tracer("test"))

	if err := d.Dispatch(context.Background(), matchedEvent("user-1")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got := sender.delivered(); len(got) != 1 || got[0] != "hook" {
		t.Errorf("delivered = %v, want only the webhook channel", got)
	}
}

func TestDispatchNoEnabledChannelsIsNoop(t *testing.T) {
	repo := newFakeChannelRepo()
	sender := newFakeSender(domain.KindWebhook)
	d := NewDispatcher(repo, []port.ChannelSender{sender}, fastPolicy(), otel.Tracer("test"))

	if err := d.Dispatch(context.Background(), matchedEvent("user-1")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(sender.delivered()) != 0 {
		t.Error("nothing should be sent")
	}
}

func TestDispatchSurfacesRepositoryError(t *testing.T) {
	repo := newFakeChannelRepo()
	repo.listErr = errors.New("mysql down")
	d := NewDispatcher(repo, nil, fastPolicy(), otel.Tracer("test"))

	if err := d.Dispatch(context.Background(), matchedEvent("user-1")); err == nil {
		t.Fatal("want repository error surfaced")
	}
}
