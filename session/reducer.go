package session

import (
	"critterclash/registry"
)

// Phase is the controller's local view of the session lifecycle. It follows
// the row status but adds PhaseForfeit: a cancellation observed while this
// side still believed the battle was live.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseBattling
	PhaseFinished
	PhaseForfeit
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseBattling:
		return "battling"
	case PhaseFinished:
		return "finished"
	case PhaseForfeit:
		return "forfeit"
	case PhaseCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether no further row transitions are expected.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseForfeit || p == PhaseCancelled
}

// State is the session context threaded through every controller operation.
// No module-level session flags exist; everything the controller knows about
// the current room lives here.
type State struct {
	Code     string
	ActorID  string
	Phase    Phase
	Room     *registry.Room
	MyTurn   bool
	WinnerID string
}

type EffectKind int

const (
	// EffectStageBattle tells the host to stage its roster and flip the row
	// to battling.
	EffectStageBattle EffectKind = iota
	// EffectStartTimer arms the turn countdown: this side just gained the turn.
	EffectStartTimer
	// EffectStopTimer cancels the countdown.
	EffectStopTimer
	// EffectReplayMove surfaces the opponent's resolved move for display. The
	// passive side replays it; it never recomputes damage.
	EffectReplayMove
	// EffectRecordForfeit persists a forfeit claim intent: the opponent
	// vanished mid-battle.
	EffectRecordForfeit
)

// Effect is one side effect a reduction asks the controller to perform.
type Effect struct {
	Kind EffectKind
	Move *registry.LastMove // EffectReplayMove
}

// Reduce applies one registry event to the session state and returns the next
// state plus the side effects to run. Pure: no I/O, no channel sends, which
// is what keeps the transition logic testable apart from the loop.
//
// Delivery is at-most-once with no replay, so the phase is reconciled from
// the row snapshot carried by every event, not just from the StatusChanged
// that announced the transition. A side that missed the announcement catches
// up on whatever event arrives next.
func Reduce(s State, ev registry.Event) (State, []Effect) {
	var effects []Effect
	if ev.Room != nil {
		s.Room = ev.Room
	}
	room := s.Room

	switch ev.Kind {
	case registry.EventJoined:
		// Only the host reacts: a guest arriving while waiting means it is
		// time to stage rosters and start.
		if room != nil && s.ActorID == room.HostID && s.Phase == PhaseWaiting {
			effects = append(effects, Effect{Kind: EffectStageBattle})
		}

	case registry.EventMoveResolved:
		if ev.Move != nil && ev.Move.By != s.ActorID {
			effects = append(effects, Effect{Kind: EffectReplayMove, Move: ev.Move})
		}
	}

	// The snapshot is authoritative over the payload fields; the payload only
	// fills in when no snapshot could be attached.
	status := ev.Status
	winner := ev.WinnerID
	if room != nil {
		status = room.Status
		if room.WinnerID != "" {
			winner = room.WinnerID
		}
	}

	switch status {
	case registry.StatusBattling:
		if !s.Phase.Terminal() {
			s.Phase = PhaseBattling
		}
	case registry.StatusFinished:
		if !s.Phase.Terminal() {
			s.Phase = PhaseFinished
			s.WinnerID = winner
			s.MyTurn = false
			effects = append(effects, Effect{Kind: EffectStopTimer})
		}
		return s, effects
	case registry.StatusCancelled:
		if !s.Phase.Terminal() {
			if s.Phase == PhaseBattling {
				// The battle was live from this side's point of view: the
				// other side vanished, which is a forfeit in our favor.
				s.Phase = PhaseForfeit
				effects = append(effects, Effect{Kind: EffectRecordForfeit})
			} else {
				s.Phase = PhaseCancelled
			}
			s.MyTurn = false
			effects = append(effects, Effect{Kind: EffectStopTimer})
		}
		return s, effects
	}

	// Recompute turn ownership from the snapshot and drive the countdown on
	// the edges: arm it when the turn arrives, clear it when it leaves.
	if s.Phase == PhaseBattling && room != nil {
		myTurn := room.CurrentTurn == s.ActorID
		if myTurn && !s.MyTurn {
			effects = append(effects, Effect{Kind: EffectStartTimer})
		} else if !myTurn && s.MyTurn {
			effects = append(effects, Effect{Kind: EffectStopTimer})
		}
		s.MyTurn = myTurn
	}
	return s, effects
}
