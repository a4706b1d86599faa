package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestAlertValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(a *Alert)
		wantOK bool
	}{
		{"valid minimal", func(a *Alert) {}, true},
		{"empty keyword", func(a *Alert) { a.Keyword = "" }, false},
		{"whitespace keyword", func(a *Alert) { a.Keyword = "   " }, false},
		{"negative max price", func(a *Alert) { a.MaxPrice = f64(-1) }, false},
		{"zero max price ok", func(a *Alert) { a.MaxPrice = f64(0) }, true},
		{"inverted date window", func(a *Alert) {
			a.Filters.EventDateFrom = date(2026, time.May, 2)
			a.Filters.EventDateTo = date(2026, time.May, 1)
		}, false},
		{"negative min quantity", func(a *Alert) { a.Filters.MinQuantity = -1 }, false},
		{"auto purchase without quantity", func(a *Alert) { a.AutoPurchase = true }, false},
		{"auto purchase quantity too high", func(a *Alert) {
			a.AutoPurchase = true
			a.AutoQuantity = 11
			a.AutoPriority = 5
		}, false},
		{"auto purchase valid", func(a *Alert) {
			a.AutoPurchase = true
			a.AutoQuantity = 2
			a.AutoPriority = 8
		}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			alert := baseAlert()
			c.modify(alert)
			err := alert.Validate()
			if c.wantOK && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !c.wantOK && !errors.Is(err, ErrValidation) {
				t.Fatalf("want ErrValidation, got %v", err)
			}
		})
	}
}

func TestAlertToggle(t *testing.T) {
	alert := baseAlert()
	if !alert.IsActive() {
		t.Fatal("new alert should be active")
	}
	alert.Toggle()
	if alert.Status != StatusPaused {
		t.Errorf("after toggle: %s, want %s", alert.Status, StatusPaused)
	}
	alert.Toggle()
	if alert.Status != StatusActive {
		t.Errorf("after second toggle: %s, want %s", alert.Status, StatusActive)
	}
}
