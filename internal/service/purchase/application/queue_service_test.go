package application

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"ticketradar/internal/service/purchase/domain"
)

// fakeListings 标记为售罄的票源拒绝入队。
type fakeListings struct {
	soldOut map[string]bool
}

func (l *fakeListings) Available(ctx context.Context, listingID string) (bool, error) {
	return !l.soldOut[listingID], nil
}

func newTestQueueService(repo *fakeIntentRepo, attempts *fakeAttemptRepo, outcomes *fakeOutcomes) *QueueService {
	if attempts == nil {
		attempts = &fakeAttemptRepo{}
	}
	return NewQueueService(repo, attempts, nil, outcomes, otel.Tracer("test"), 3)
}

func enqueueCmd() *EnqueueCommand {
	return &EnqueueCommand{
		UserID:    "user-1",
		ListingID: "listing-1",
		Platform:  "ticketmaster",
		Quantity:  2,
		Priority:  7,
		MaxPrice:  f64(150),
	}
}

func TestEnqueue(t *testing.T) {
	repo := newFakeIntentRepo()
	svc := newTestQueueService(repo, nil, &fakeOutcomes{})

	view, err := svc.Enqueue(context.Background(), enqueueCmd())
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if view.State != domain.StatePending || view.Priority != 7 {
		t.Errorf("view = %+v, want pending with priority 7", view)
	}
	if view.ID == "" {
		t.Error("intent id not assigned")
	}
}

func TestEnqueueRejectsDuplicateOpenIntent(t *testing.T) {
	repo := newFakeIntentRepo()
	svc := newTestQueueService(repo, nil, &fakeOutcomes{})

	if _, err := svc.Enqueue(context.Background(), enqueueCmd()); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if _, err := svc.Enqueue(context.Background(), enqueueCmd()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate enqueue: want ErrConflict, got %v", err)
	}

	// 别的票源不冲突
	other := enqueueCmd()
	other.ListingID = "listing-2"
	if _, err := svc.Enqueue(context.Background(), other); err != nil {
		t.Fatalf("different listing: %v", err)
	}
}

func TestEnqueueAllowedAfterTerminalState(t *testing.T) {
	repo := newFakeIntentRepo()
	svc := newTestQueueService(repo, nil, &fakeOutcomes{})

	view, err := svc.Enqueue(context.Background(), enqueueCmd())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), view.ID, "user-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// 旧意向已完结，同一票源可以重新排队
	if _, err := svc.Enqueue(context.Background(), enqueueCmd()); err != nil {
		t.Fatalf("re-enqueue after cancel: %v", err)
	}
}

func TestEnqueueRejectsSoldOutListing(t *testing.T) {
	listings := &fakeListings{soldOut: map[string]bool{"listing-1": true}}
	svc := NewQueueService(newFakeIntentRepo(), &fakeAttemptRepo{}, listings, &fakeOutcomes{}, otel.Tracer("test"), 3)

	if _, err := svc.Enqueue(context.Background(), enqueueCmd()); !errors.Is(err, domain.ErrListingUnavailable) {
		t.Fatalf("want ErrListingUnavailable, got %v", err)
	}

	other := enqueueCmd()
	other.ListingID = "listing-2"
	if _, err := svc.Enqueue(context.Background(), other); err != nil {
		t.Fatalf("available listing: %v", err)
	}
}

func TestEnqueueValidation(t *testing.T) {
	svc := newTestQueueService(newFakeIntentRepo(), nil, &fakeOutcomes{})

	cmd := enqueueCmd()
	cmd.Quantity = 0
	if _, err := svc.Enqueue(context.Background(), cmd); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestCancelPublishesOutcome(t *testing.T) {
	repo := newFakeIntentRepo()
	outcomes := &fakeOutcomes{}
	svc := newTestQueueService(repo, nil, outcomes)

	view, _ := svc.Enqueue(context.Background(), enqueueCmd())
	cancelled, err := svc.Cancel(context.Background(), view.ID, "user-1")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.State != domain.StateCancelled {
		t.Errorf("state = %s, want %s", cancelled.State, domain.StateCancelled)
	}
	if len(outcomes.events) != 1 || outcomes.events[0].State != string(domain.StateCancelled) {
		t.Fatalf("outcome events = %+v, want one cancelled", outcomes.events)
	}
}

func TestCancelTerminalIntentRejected(t *testing.T) {
	intent := mustIntent(t, 5)
	intent.StartProcessing()
	intent.MarkFailed("gone")
	repo := newFakeIntentRepo(intent)
	svc := newTestQueueService(repo, nil, &fakeOutcomes{})

	if _, err := svc.Cancel(context.Background(), intent.ID, "user-1"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}
}

func TestOwnershipHidesForeignIntents(t *testing.T) {
	intent := mustIntent(t, 5)
	repo := newFakeIntentRepo(intent)
	svc := newTestQueueService(repo, nil, &fakeOutcomes{})

	if _, err := svc.Cancel(context.Background(), intent.ID, "someone-else"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("cancel by stranger: want ErrNotFound, got %v", err)
	}
	if _, _, err := svc.Get(context.Background(), intent.ID, "someone-else"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get by stranger: want ErrNotFound, got %v", err)
	}
}

func TestRemoveOnlyWhilePending(t *testing.T) {
	pending := mustIntent(t, 5)
	processing := mustIntent(t, 5)
	processing.UserID = "user-2"
	processing.StartProcessing()
	cancelled := mustIntent(t, 5)
	cancelled.UserID = "user-3"
	cancelled.Cancel()
	repo := newFakeIntentRepo(pending, processing, cancelled)
	svc := newTestQueueService(repo, nil, &fakeOutcomes{})

	if err := svc.Remove(context.Background(), pending.ID, "user-1"); err != nil {
		t.Fatalf("remove pending: %v", err)
	}
	if _, err := repo.FindByID(context.Background(), pending.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("pending intent should be gone after remove")
	}

	// 执行中与已完结的意向都保留留痕，不允许删除
	if err := svc.Remove(context.Background(), processing.ID, "user-2"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("remove processing: want ErrInvalidState, got %v", err)
	}
	if err := svc.Remove(context.Background(), cancelled.ID, "user-3"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("remove cancelled: want ErrInvalidState, got %v", err)
	}
}

func TestGetReturnsAttemptHistory(t *testing.T) {
	intent := mustIntent(t, 5)
	repo := newFakeIntentRepo(intent)
	attempts := &fakeAttemptRepo{}
	now := time.Now()
	attempts.Append(context.Background(),
		domain.NewPurchaseAttempt(intent.ID, 1, domain.OutcomeTransient, "timeout", domain.AttemptResult{}, now.Add(-time.Minute)))
	attempts.Append(context.Background(),
		domain.NewPurchaseAttempt(intent.ID, 2, domain.OutcomeSuccess, "",
			domain.AttemptResult{FinalPrice: f64(99), OrderRef: "ORD-1"}, now))
	svc := newTestQueueService(repo, attempts, &fakeOutcomes{})

	_, history, err := svc.Get(context.Background(), intent.ID, "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d entries, want 2", len(history))
	}
	if history[0].AttemptNumber != 1 || history[1].AttemptNumber != 2 {
		t.Errorf("history out of order: %+v", history)
	}
	if history[1].OrderRef != "ORD-1" {
		t.Errorf("order ref = %q, want ORD-1", history[1].OrderRef)
	}
}
