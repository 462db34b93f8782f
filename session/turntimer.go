package session

import (
	"sync"
	"time"
)

// TurnTimer is the owned, cancellable countdown for the local side's turn.
// A generation counter settles the race between Stop and an already-scheduled
// fire: a fire from a superseded generation is discarded.
type TurnTimer struct {
	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// Start arms the countdown, replacing any previous one. fire runs on the
// timer goroutine when the countdown elapses without a Stop or a newer Start.
func (t *TurnTimer) Start(d time.Duration, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		live := t.gen == gen
		t.mu.Unlock()
		if live {
			fire()
		}
	})
}

// Stop cancels the pending countdown, if any.
func (t *TurnTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
