package backoff

import (
	"testing"
	"time"
)

func TestDelayGrowsExponentially(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Cap: 60 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second}, // 封顶
		{7, 60 * time.Second},
	}
	for _, c := range cases {
		if got := p.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestDelayJitterStaysWithinBounds(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Cap: 60 * time.Second, Jitter: 0.1}

	for i := 0; i < 100; i++ {
		d := p.Delay(3)
		base := 8 * time.Second
		if d < base || d > base+time.Duration(0.1*float64(base)) {
			t.Fatalf("Delay(3) = %v, want within [%v, %v]", d, base, base+base/10)
		}
	}
}

func TestDelayNeverExceedsCap(t *testing.T) {
	p := Policy{Base: 2 * time.Second, Cap: 60 * time.Second, Jitter: 0.5}
	for attempt := 1; attempt <= 20; attempt++ {
		if d := p.Delay(attempt); d > p.Cap {
			t.Fatalf("Delay(%d) = %v exceeds cap %v", attempt, d, p.Cap)
		}
	}
}

func TestDelayClampsInvalidAttempt(t *testing.T) {
	p := Policy{Base: time.Second, Cap: 10 * time.Second}
	if got := p.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want %v", got, time.Second)
	}
	if got := p.Delay(-3); got != time.Second {
		t.Errorf("Delay(-3) = %v, want %v", got, time.Second)
	}
}
