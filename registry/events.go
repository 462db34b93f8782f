package registry

import (
	"context"
	"sync"

	"github.com/decred/slog"
)

type EventKind int

const (
	EventJoined EventKind = iota
	EventMoveResolved
	EventStatusChanged
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "joined"
	case EventMoveResolved:
		return "move_resolved"
	case EventStatusChanged:
		return "status_changed"
	}
	return "unknown"
}

// Event is one row-mutation notification. Delivery is at-most-once per
// subscriber with no replay: subscribers reconcile idempotently against the
// attached row snapshot, so duplicate or missed events are tolerated.
type Event struct {
	Kind EventKind
	Code string

	// Kind-specific payload.
	GuestID  string     // EventJoined
	Move     *LastMove  // EventMoveResolved
	Status   RoomStatus // EventStatusChanged
	WinnerID string     // EventStatusChanged, when terminal

	// Room is a fresh snapshot of the row after the mutation, when one could
	// be read. Reconciliation should prefer it over the payload fields.
	Room *Room
}

// hub fans row mutations out to per-room subscribers. Sends are non-blocking;
// a slow subscriber drops events and catches up from the next snapshot.
type hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
	log  slog.Logger
}

func newHub(log slog.Logger) *hub {
	return &hub{
		subs: make(map[string]map[chan Event]struct{}),
		log:  log,
	}
}

// Subscribe registers a listener for one room's mutations and returns the
// channel plus an unsubscribe func. No initial snapshot is sent.
func (r *Registry) Subscribe(code string) (<-chan Event, func()) {
	h := r.hub
	ch := make(chan Event, 16)

	h.mu.Lock()
	if _, ok := h.subs[code]; !ok {
		h.subs[code] = make(map[chan Event]struct{})
	}
	h.subs[code][ch] = struct{}{}
	n := len(h.subs[code])
	h.mu.Unlock()
	h.log.Debugf("registry: subscribed room=%s (subs=%d)", code, n)

	unsub := func() {
		h.mu.Lock()
		if set, ok := h.subs[code]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, code)
			}
		}
		h.mu.Unlock()
		h.log.Debugf("registry: unsubscribed room=%s", code)
		// Do not close(ch): the hub may still try to send; receivers stop by
		// context instead.
	}
	return ch, unsub
}

func (r *Registry) publish(ctx context.Context, code string, ev Event) {
	// Attach a fresh snapshot (best effort).
	if room, err := r.GetRoom(ctx, code); err == nil {
		ev.Room = room
	}

	h := r.hub
	h.mu.RLock()
	set := h.subs[code]
	chs := make([]chan Event, 0, len(set))
	for ch := range set {
		chs = append(chs, ch)
	}
	h.mu.RUnlock()

	h.log.Debugf("registry: publish room=%s kind=%s to %d listeners", code, ev.Kind, len(chs))
	for _, ch := range chs {
		select {
		case ch <- ev:
		default:
			// Drop if the receiver is slow; it reconciles from the next
			// snapshot.
		}
	}
}
