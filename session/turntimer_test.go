package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTurnTimerFires(t *testing.T) {
	var fired atomic.Int32
	tt := &TurnTimer{}
	tt.Start(20*time.Millisecond, func() { fired.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("want 1 fire, got %d", got)
	}
}

func TestTurnTimerStopCancels(t *testing.T) {
	var fired atomic.Int32
	tt := &TurnTimer{}
	tt.Start(30*time.Millisecond, func() { fired.Add(1) })
	tt.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("stopped timer fired %d times", got)
	}
}

func TestTurnTimerRestartSupersedes(t *testing.T) {
	var first, second atomic.Int32
	tt := &TurnTimer{}
	tt.Start(30*time.Millisecond, func() { first.Add(1) })
	tt.Start(30*time.Millisecond, func() { second.Add(1) })

	time.Sleep(120 * time.Millisecond)
	if got := first.Load(); got != 0 {
		t.Fatalf("superseded countdown fired %d times", got)
	}
	if got := second.Load(); got != 1 {
		t.Fatalf("want 1 fire from the live countdown, got %d", got)
	}
}

func TestTurnTimerStopIdempotent(t *testing.T) {
	tt := &TurnTimer{}
	tt.Stop()
	tt.Start(10*time.Millisecond, func() {})
	tt.Stop()
	tt.Stop()
}
