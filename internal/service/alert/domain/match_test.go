package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

func f64(v float64) *float64 { return &v }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func baseAlert() *Alert {
	return &Alert{
		ID:      "alert-1",
		UserID:  "user-1",
		Keyword: "Arctic Monkeys",
		Status:  StatusActive,
	}
}

func baseListing() *Listing {
	return &Listing{
		ID:        "listing-1",
		Platform:  "ticketmaster",
		Title:     "Arctic Monkeys - World Tour",
		Venue:     "Madison Square Garden",
		Location:  "New York, NY",
		Section:   "Floor B",
		MinPrice:  120,
		MaxPrice:  480,
		Currency:  "USD",
		Quantity:  4,
		EventDate: date(2026, time.October, 12),
		Available: true,
	}
}

func TestMatcherKeyword(t *testing.T) {
	m := NewMatcher(nil)

	cases := []struct {
		name    string
		keyword string
		title   string
		want    bool
	}{
		{"exact substring", "Arctic Monkeys", "Arctic Monkeys - World Tour", true},
		{"case insensitive", "arctic monkeys", "ARCTIC MONKEYS live", true},
		{"not contained", "Radiohead", "Arctic Monkeys - World Tour", false},
		{"words split across title", "Monkeys Arctic", "Arctic Monkeys - World Tour", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			alert := baseAlert()
			alert.Keyword = c.keyword
			listing := baseListing()
			listing.Title = c.title

			got, err := m.Matches(alert, listing)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Errorf("Matches = %v, want %v", got, c.want)
			}
		})
	}
}

func TestMatcherGates(t *testing.T) {
	m := NewMatcher(nil)

	cases := []struct {
		name   string
		modify func(a *Alert, l *Listing)
		want   bool
	}{
		{"all defaults match", func(a *Alert, l *Listing) {}, true},
		{"unavailable listing", func(a *Alert, l *Listing) { l.Available = false }, false},
		{"paused alert", func(a *Alert, l *Listing) { a.Status = StatusPaused }, false},
		{"platform mismatch", func(a *Alert, l *Listing) { a.Platform = "stubhub" }, false},
		{"platform match", func(a *Alert, l *Listing) { a.Platform = "ticketmaster" }, true},
		{"platform unset matches any", func(a *Alert, l *Listing) { a.Platform = "" }, true},
		{"cheapest tier within ceiling", func(a *Alert, l *Listing) { a.MaxPrice = f64(150) }, true},
		{"cheapest tier above ceiling", func(a *Alert, l *Listing) { a.MaxPrice = f64(100) }, false},
		{"ceiling equal to floor", func(a *Alert, l *Listing) { a.MaxPrice = f64(120) }, true},
		{"venue substring", func(a *Alert, l *Listing) { a.Filters.VenueContains = "square garden" }, true},
		{"venue mismatch", func(a *Alert, l *Listing) { a.Filters.VenueContains = "Wembley" }, false},
		{"location substring", func(a *Alert, l *Listing) { a.Filters.LocationContains = "new york" }, true},
		{"section mismatch", func(a *Alert, l *Listing) { a.Filters.SectionContains = "Balcony" }, false},
		{"quantity sufficient", func(a *Alert, l *Listing) { a.Filters.MinQuantity = 4 }, true},
		{"quantity insufficient", func(a *Alert, l *Listing) { a.Filters.MinQuantity = 5 }, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			alert := baseAlert()
			listing := baseListing()
			c.modify(alert, listing)

			got, err := m.Matches(alert, listing)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Errorf("Matches = %v, want %v", got, c.want)
			}
		})
	}
}

func TestMatcherDateWindow(t *testing.T) {
	m := NewMatcher(nil)

	cases := []struct {
		name      string
		from, to  *time.Time
		eventDate *time.Time
		want      bool
	}{
		{"inside window", date(2026, time.October, 1), date(2026, time.October, 31), date(2026, time.October, 12), true},
		{"on from endpoint", date(2026, time.October, 12), date(2026, time.October, 31), date(2026, time.October, 12), true},
		{"on to endpoint", date(2026, time.October, 1), date(2026, time.October, 12), date(2026, time.October, 12), true},
		{"before window", date(2026, time.October, 13), nil, date(2026, time.October, 12), false},
		{"after window", nil, date(2026, time.October, 11), date(2026, time.October, 12), false},
		{"window set but listing has no date", date(2026, time.October, 1), nil, nil, false},
		{"no window ignores date", nil, nil, nil, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			alert := baseAlert()
			alert.Filters.EventDateFrom = c.from
			alert.Filters.EventDateTo = c.to
			listing := baseListing()
			listing.EventDate = c.eventDate

			got, err := m.Matches(alert, listing)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Errorf("Matches = %v, want %v", got, c.want)
			}
		})
	}
}

func TestMatcherBrokenAlertReturnsValidationError(t *testing.T) {
	m := NewMatcher(nil)
	alert := baseAlert()
	alert.Filters.EventDateFrom = date(2026, time.November, 1)
	alert.Filters.EventDateTo = date(2026, time.October, 1)

	_, err := m.Matches(alert, baseListing())
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

type stubRules struct {
	result bool
	err    error
	rule   string
}

func (s *stubRules) Evaluate(rule string, listing *Listing) (bool, error) {
	s.rule = rule
	return s.result, s.err
}

func TestMatcherCustomRule(t *testing.T) {
	t.Run("rule rejects", func(t *testing.T) {
		m := NewMatcher(&stubRules{result: false})
		alert := baseAlert()
		alert.Filters.Rule = `min_price < 100.0`

		got, err := m.Matches(alert, baseListing())
		if err != nil || got {
			t.Fatalf("Matches = (%v, %v), want (false, nil)", got, err)
		}
	})

	t.Run("rule accepts", func(t *testing.T) {
		rules := &stubRules{result: true}
		m := NewMatcher(rules)
		alert := baseAlert()
		alert.Filters.Rule = `quantity >= 2`

		got, err := m.Matches(alert, baseListing())
		if err != nil || !got {
			t.Fatalf("Matches = (%v, %v), want (true, nil)", got, err)
		}
		if rules.rule != `quantity >= 2` {
			t.Errorf("rule engine saw %q", rules.rule)
		}
	})

	t.Run("rule evaluation failure is a validation error", func(t *testing.T) {
		m := NewMatcher(&stubRules{err: errors.New("boom")})
		alert := baseAlert()
		alert.Filters.Rule = `bad(`

		_, err := m.Matches(alert, baseListing())
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("want ErrValidation, got %v", err)
		}
	})
}
