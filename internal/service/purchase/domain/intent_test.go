package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

func f64(v float64) *float64 { return &v }

func newIntent(t *testing.T) *PurchaseIntent {
	t.Helper()
	intent, err := NewPurchaseIntent("user-1", "alert-1", "listing-1", "ticketmaster", 2, 5, 3, f64(150), true, "")
	if err != nil {
		t.Fatalf("NewPurchaseIntent: %v", err)
	}
	return intent
}

func TestNewPurchaseIntentValidation(t *testing.T) {
	cases := []struct {
		name     string
		userID   string
		quantity int
		priority int
		maxPrice *float64
		wantOK   bool
	}{
		{"valid", "u", 1, 1, nil, true},
		{"quantity upper bound", "u", 10, 10, nil, true},
		{"zero quantity", "u", 0, 5, nil, false},
		{"quantity too high", "u", 11, 5, nil, false},
		{"priority too high", "u", 1, 11, nil, false},
		{"missing user", "", 1, 5, nil, false},
		{"negative max price", "u", 1, 5, f64(-10), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewPurchaseIntent(c.userID, "", "listing-1", "p", c.quantity, c.priority, 3, c.maxPrice, false, "")
			if c.wantOK && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !c.wantOK && !errors.Is(err, ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestNewPurchaseIntentDefaults(t *testing.T) {
	intent, err := NewPurchaseIntent("u", "", "l", "p", 1, 0, 0, nil, false, "front row if possible")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intent.Priority != 5 {
		t.Errorf("default priority = %d, want 5", intent.Priority)
	}
	if intent.MaxAttempts != 3 {
		t.Errorf("default max attempts = %d, want 3", intent.MaxAttempts)
	}
	if intent.State != StatePending {
		t.Errorf("initial state = %s, want %s", intent.State, StatePending)
	}
}

func TestStateMachineHappyPath(t *testing.T) {
	intent := newIntent(t)

	if err := intent.StartProcessing(); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	if intent.StartedAt == nil {
		t.Error("StartedAt should be stamped on first processing")
	}
	if err := intent.MarkSuccess(); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}
	if !intent.State.IsTerminal() {
		t.Error("success should be terminal")
	}
	if intent.CompletedAt == nil {
		t.Error("CompletedAt should be stamped on terminal state")
	}
}

func TestStateMachineRejectsInvalidTransitions(t *testing.T) {
	t.Run("cannot succeed from pending", func(t *testing.T) {
		intent := newIntent(t)
		if err := intent.MarkSuccess(); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("want ErrInvalidState, got %v", err)
		}
	})

	t.Run("cannot process twice", func(t *testing.T) {
		intent := newIntent(t)
		intent.StartProcessing()
		if err := intent.StartProcessing(); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("want ErrInvalidState, got %v", err)
		}
	})

	t.Run("terminal states are frozen", func(t *testing.T) {
		intent := newIntent(t)
		intent.StartProcessing()
		intent.MarkFailed("boom")
		if err := intent.Cancel(); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("cancel after failed: want ErrInvalidState, got %v", err)
		}
		if err := intent.MarkSuccess(); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("success after failed: want ErrInvalidState, got %v", err)
		}
	})
}

func TestCancelFromPendingAndProcessing(t *testing.T) {
	pending := newIntent(t)
	if err := pending.Cancel(); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}

	processing := newIntent(t)
	processing.StartProcessing()
	if err := processing.Cancel(); err != nil {
		t.Fatalf("cancel processing: %v", err)
	}
	if processing.State != StateCancelled {
		t.Errorf("state = %s, want %s", processing.State, StateCancelled)
	}
}

func TestRequeueRespectsBudget(t *testing.T) {
	intent := newIntent(t)
	intent.StartProcessing()
	intent.RecordAttempt()

	nextAt := time.Now().Add(4 * time.Second)
	if err := intent.Requeue(nextAt, "platform timeout"); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if intent.State != StatePending {
		t.Errorf("state = %s, want %s", intent.State, StatePending)
	}
	if !intent.NextAttemptAt.Equal(nextAt) {
		t.Errorf("next attempt at = %v, want %v", intent.NextAttemptAt, nextAt)
	}
}

func TestRequeueDeniedWhenBudgetExhausted(t *testing.T) {
	intent := newIntent(t)
	for i := 0; i < intent.MaxAttempts; i++ {
		intent.RecordAttempt()
	}
	intent.StartProcessing()
	if err := intent.Requeue(time.Now(), "again"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("want ErrInvalidState, got %v", err)
	}
}

func TestRecordAttemptNumbersIncrease(t *testing.T) {
	intent := newIntent(t)
	for want := 1; want <= 3; want++ {
		if got := intent.RecordAttempt(); got != want {
			t.Errorf("attempt number = %d, want %d", got, want)
		}
	}
	if !intent.BudgetExhausted() {
		t.Error("budget should be exhausted after MaxAttempts")
	}
}
