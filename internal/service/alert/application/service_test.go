package application

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"ticketradar/internal/service/alert/domain"
)

func boolp(v bool) *bool { return &v }

func newTestAlertService(repo *fakeAlertRepo) *AlertApplicationService {
	return NewAlertApplicationService(repo, otel.Tracer("test"), "USD")
}

func TestCreateDefaultsNotificationsOn(t *testing.T) {
	svc := newTestAlertService(newFakeAlertRepo())

	// 省略通知开关的请求体：两路通知缺省打开
	view, err := svc.Create(context.Background(), &CreateAlertCommand{UserID: "user-1", Keyword: "Oasis"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !view.NotifyEmail || !view.NotifySMS {
		t.Errorf("notify flags = %v/%v, want both on by default", view.NotifyEmail, view.NotifySMS)
	}
	if view.Currency != "USD" {
		t.Errorf("currency = %q, want default USD", view.Currency)
	}

	// 显式传 false 才关闭
	off, err := svc.Create(context.Background(), &CreateAlertCommand{
		UserID: "user-1", Keyword: "Coldplay",
		NotifyEmail: boolp(false), NotifySMS: boolp(false),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if off.NotifyEmail || off.NotifySMS {
		t.Errorf("notify flags = %v/%v, want both off when explicitly disabled", off.NotifyEmail, off.NotifySMS)
	}
}

func TestUpdatePreservesConcurrentMatchCounters(t *testing.T) {
	repo := newFakeAlertRepo()
	svc := newTestAlertService(repo)

	view, err := svc.Create(context.Background(), &CreateAlertCommand{UserID: "user-1", Keyword: "Oasis"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 用户编辑读到快照之后、落盘之前，撮合器并发命中一次
	recorded := false
	repo.onFind = func(id string) {
		if !recorded {
			recorded = true
			repo.RecordMatch(context.Background(), id, time.Now())
		}
	}
	name := "renamed"
	if _, err := svc.Update(context.Background(), &UpdateAlertCommand{
		AlertID: view.ID, UserID: "user-1", Name: &name,
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	repo.onFind = nil

	got, err := repo.FindByID(context.Background(), view.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "renamed" {
		t.Errorf("name = %q, want renamed", got.Name)
	}
	if got.MatchesFound != 1 {
		t.Errorf("matches found = %d, want 1 (user edit must not reset match counters)", got.MatchesFound)
	}
	if got.LastTriggeredAt == nil {
		t.Error("last triggered at lost across user edit")
	}

	// Toggle 走同一条 Save 路径，计数同样保留
	if _, err := svc.Toggle(context.Background(), view.ID, "user-1"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	got, _ = repo.FindByID(context.Background(), view.ID)
	if got.Status != domain.StatusPaused {
		t.Errorf("status = %s, want %s", got.Status, domain.StatusPaused)
	}
	if got.MatchesFound != 1 {
		t.Errorf("matches found = %d after toggle, want 1", got.MatchesFound)
	}
}
