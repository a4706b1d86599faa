package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"ticketradar/internal/service/alert/domain"
	"ticketradar/internal/service/alert/port"
)

func f64(v float64) *float64 { return &v }

// fakeAlertRepo 内存版 AlertRepository，语义与 gorm 实现对齐：Save 只落
// 用户可编辑字段，撮合计数列归 RecordMatch 维护。
type fakeAlertRepo struct {
	mu      sync.Mutex
	alerts  map[string]*domain.Alert
	matches map[string]int
	onFind  func(id string) // FindByID 取到快照后、返回前触发
}

func newFakeAlertRepo(alerts ...*domain.Alert) *fakeAlertRepo {
	r := &fakeAlertRepo{alerts: make(map[string]*domain.Alert), matches: make(map[string]int)}
	for _, a := range alerts {
		r.alerts[a.ID] = a
	}
	return r
}

func (r *fakeAlertRepo) Save(ctx context.Context, a *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	if prev, ok := r.alerts[a.ID]; ok {
		cp.MatchesFound = prev.MatchesFound
		cp.LastTriggeredAt = prev.LastTriggeredAt
	}
	r.alerts[a.ID] = &cp
	return nil
}

func (r *fakeAlertRepo) FindByID(ctx context.Context, id string) (*domain.Alert, error) {
	r.mu.Lock()
	a, ok := r.alerts[id]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	cp := *a
	hook := r.onFind
	r.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return &cp, nil
}

func (r *fakeAlertRepo) List(ctx context.Context, userID string, f domain.ListFilter) ([]*domain.Alert, int64, error) {
	return nil, 0, nil
}

func (r *fakeAlertRepo) ActiveCandidates(ctx context.Context, platform string) ([]*domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Alert
	for _, a := range r.alerts {
		if a.Status == domain.StatusActive && (a.Platform == "" || a.Platform == platform) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAlertRepo) RecordMatch(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches[id]++
	if a, ok := r.alerts[id]; ok {
		a.MatchesFound++
		a.LastTriggeredAt = &at
	}
	return nil
}

func (r *fakeAlertRepo) Delete(ctx context.Context, id string) error { return nil }

type fakeProducer struct {
	mu     sync.Mutex
	events []*domain.MatchEvent
	err    error
}

func (p *fakeProducer) PublishMatch(ctx context.Context, ev *domain.MatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

type fakePurchaser struct {
	mu       sync.Mutex
	requests []*port.AutoPurchaseRequest
}

func (p *fakePurchaser) RequestPurchase(ctx context.Context, req *port.AutoPurchaseRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return nil
}

// fakeDedup 首次放行，重复拦截。
type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeDedup() *fakeDedup { return &fakeDedup{seen: make(map[string]bool)} }

func (d *fakeDedup) FirstMatch(ctx context.Context, alertID, listingID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := alertID + "/" + listingID
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func activeAlert(id, keyword string) *domain.Alert {
	return &domain.Alert{
		ID:      id,
		UserID:  "user-" + id,
		Keyword: keyword,
		Status:  domain.StatusActive,
	}
}

func listingFor(id, title string) *domain.Listing {
	return &domain.Listing{
		ID:        id,
		Platform:  "ticketmaster",
		Title:     title,
		MinPrice:  100,
		Currency:  "USD",
		Quantity:  2,
		Available: true,
	}
}

func newTestMatchService(repo *fakeAlertRepo, dedup port.MatchDeduplicator, producer *fakeProducer, purchaser *fakePurchaser) *MatchService {
	return NewMatchService(repo, nil, dedup, producer, purchaser,
		domain.NewMatcher(nil), otel.Tracer("test"), 2)
}

func TestMatchListingRecordsAndPublishes(t *testing.T) {
	repo := newFakeAlertRepo(activeAlert("a1", "Oasis"), activeAlert("a2", "Coldplay"))
	producer := &fakeProducer{}
	svc := newTestMatchService(repo, nil, producer, nil)

	svc.MatchListing(context.Background(), listingFor("l1", "Oasis Reunion Tour"))

	if repo.matches["a1"] != 1 {
		t.Errorf("alert a1 matches = %d, want 1", repo.matches["a1"])
	}
	if repo.matches["a2"] != 0 {
		t.Errorf("alert a2 matches = %d, want 0", repo.matches["a2"])
	}
	if len(producer.events) != 1 || producer.events[0].AlertID != "a1" {
		t.Fatalf("published events = %+v, want one for a1", producer.events)
	}
}

func TestMatchListingSkipsBrokenAlert(t *testing.T) {
	broken := activeAlert("bad", "") // 空关键词，定义损坏
	good := activeAlert("good", "Oasis")
	repo := newFakeAlertRepo(broken, good)
	producer := &fakeProducer{}
	svc := newTestMatchService(repo, nil, producer, nil)

	svc.MatchListing(context.Background(), listingFor("l1", "Oasis Reunion Tour"))

	if repo.matches["good"] != 1 {
		t.Errorf("good alert matches = %d, want 1 despite broken sibling", repo.matches["good"])
	}
	if repo.matches["bad"] != 0 {
		t.Errorf("broken alert matches = %d, want 0", repo.matches["bad"])
	}
}

func TestMatchListingDedupWindow(t *testing.T) {
	repo := newFakeAlertRepo(activeAlert("a1", "Oasis"))
	producer := &fakeProducer{}
	svc := newTestMatchService(repo, newFakeDedup(), producer, nil)

	listing := listingFor("l1", "Oasis Reunion Tour")
	svc.MatchListing(context.Background(), listing)
	svc.MatchListing(context.Background(), listing) // 窗口内重复扫描

	if repo.matches["a1"] != 1 {
		t.Errorf("matches = %d, want 1 (second scan deduplicated)", repo.matches["a1"])
	}
	if len(producer.events) != 1 {
		t.Errorf("events = %d, want 1", len(producer.events))
	}
}

func TestMatchListingTriggersAutoPurchase(t *testing.T) {
	auto := activeAlert("a1", "Oasis")
	auto.AutoPurchase = true
	auto.AutoQuantity = 2
	auto.AutoPriority = 9
	auto.MaxPrice = f64(200)
	manual := activeAlert("a2", "Oasis")
	repo := newFakeAlertRepo(auto, manual)
	producer := &fakeProducer{}
	purchaser := &fakePurchaser{}
	svc := newTestMatchService(repo, nil, producer, purchaser)

	svc.MatchListing(context.Background(), listingFor("l1", "Oasis Reunion Tour"))

	if len(purchaser.requests) != 1 {
		t.Fatalf("purchase requests = %d, want 1", len(purchaser.requests))
	}
	req := purchaser.requests[0]
	if req.AlertID != "a1" || req.Quantity != 2 || req.Priority != 9 {
		t.Errorf("unexpected request %+v", req)
	}
	if req.MaxPrice == nil || *req.MaxPrice != 200 {
		t.Errorf("max price not propagated: %+v", req.MaxPrice)
	}
}

func TestMatchListingProducerFailureDoesNotStopOthers(t *testing.T) {
	repo := newFakeAlertRepo(activeAlert("a1", "Oasis"), activeAlert("a2", "Oasis"))
	producer := &fakeProducer{err: errors.New("kafka down")}
	svc := newTestMatchService(repo, nil, producer, nil)

	svc.MatchListing(context.Background(), listingFor("l1", "Oasis Reunion Tour"))

	// 发布失败只影响事件，不影响命中计数
	if repo.matches["a1"] != 1 || repo.matches["a2"] != 1 {
		t.Errorf("matches = %v, want both recorded", repo.matches)
	}
}
