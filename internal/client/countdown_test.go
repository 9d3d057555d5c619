package client

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestRemainingRoundsUp(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		delta time.Duration
		want  int
	}{
		{name: "fractional", delta: 14200 * time.Millisecond, want: 15},
		{name: "exact", delta: 15 * time.Second, want: 15},
		{name: "one nanosecond", delta: time.Nanosecond, want: 1},
		{name: "reached", delta: 0, want: 0},
		{name: "passed", delta: -3 * time.Second, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Remaining(now.Add(tc.delta), now); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestCountdownTicksTowardsDeadline(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	cd := NewCountdown(clock, 0)

	if cd.C() != nil || cd.Remaining() != 0 {
		t.Fatalf("stopped countdown must have no channel and no time left")
	}

	cd.Reset(clock.Now().Add(2 * time.Second))
	if got := cd.Remaining(); got != 2 {
		t.Fatalf("expected 2s left, got %d", got)
	}

	clock.Advance(DefaultRefresh)
	select {
	case <-cd.C():
	case <-time.After(time.Second):
		t.Fatalf("expected a tick after one refresh interval")
	}
	if got := cd.Remaining(); got != 2 {
		t.Fatalf("expected 1.75s to display as 2, got %d", got)
	}

	clock.Advance(2 * time.Second)
	if got := cd.Remaining(); got != 0 {
		t.Fatalf("expected 0 after deadline, got %d", got)
	}

	cd.Stop()
	if cd.Active() || cd.C() != nil {
		t.Fatalf("expected countdown to be stopped")
	}
}

func TestCountdownResetReplacesDeadline(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	cd := NewCountdown(clock, time.Second)

	cd.Reset(clock.Now().Add(5 * time.Second))
	cd.Reset(clock.Now().Add(20 * time.Second))
	if got := cd.Remaining(); got != 20 {
		t.Fatalf("expected latest deadline to win, got %d", got)
	}
}
