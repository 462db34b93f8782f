package escrow

import (
	"context"
	"sync"
	"time"

	"github.com/decred/slog"
)

// Payout is one ledger entry of funds leaving escrow.
type Payout struct {
	Code  string
	To    string
	Atoms int64
	At    time.Time
}

// MemContract is an in-process escrow contract enforcing the full contract
// rules: deposit-before-exist, single join, host-only cancel, redundancy-safe
// confirm, winner-only claim with auto-confirm, and exactly one transfer per
// room. It stands in for the chain gateway in tests and local play; the room
// state it holds is the authoritative escrow mirror.
type MemContract struct {
	mu      sync.RWMutex
	rooms   map[string]*Room // keyed by RoomKeyHex(code)
	payouts []Payout
	log     slog.Logger

	// SubmitHook, when set, runs before every state-mutating call and may
	// reject it. Tests use it to simulate declined wallet signatures and
	// transport failures.
	SubmitHook func(op, code, caller string) error
}

func NewMemContract(log slog.Logger) *MemContract {
	return &MemContract{
		rooms: make(map[string]*Room),
		log:   log,
	}
}

// Bind returns an Adapter that signs every call with the given wallet address.
func (m *MemContract) Bind(caller string) Adapter {
	return &boundAdapter{contract: m, caller: caller}
}

// Payouts returns a copy of the transfer ledger.
func (m *MemContract) Payouts() []Payout {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Payout(nil), m.payouts...)
}

func (m *MemContract) room(code string) *Room {
	return m.rooms[RoomKeyHex(code)]
}

func (m *MemContract) submit(op, code, caller string) error {
	if m.SubmitHook != nil {
		return m.SubmitHook(op, code, caller)
	}
	return nil
}

func (m *MemContract) getRoom(code string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := m.room(code)
	if r == nil {
		return nil, ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemContract) deposit(code, caller string, betAtoms int64) error {
	if err := m.submit("deposit", code, caller); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if betAtoms <= 0 {
		return revert("deposit", "bet must be positive")
	}
	if m.room(code) != nil {
		return ErrRoomExists
	}
	m.rooms[RoomKeyHex(code)] = &Room{
		Player1:   caller,
		BetAtoms:  betAtoms,
		CreatedAt: time.Now(),
		Status:    StatusWaitingForOpponent,
	}
	m.log.Debugf("contract: room %s created by %s bet=%s", code, caller, FormatAtoms(betAtoms))
	return nil
}

func (m *MemContract) join(code, caller string) error {
	if err := m.submit("join", code, caller); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.room(code)
	if r == nil {
		return ErrRoomNotFound
	}
	if r.Status != StatusWaitingForOpponent {
		return revert("join", "room is %s", r.Status)
	}
	if caller == r.Player1 {
		return revert("join", "cannot join own room")
	}
	r.Player2 = caller
	r.Status = StatusBattleInProgress
	r.BattleStartedAt = time.Now()
	m.log.Debugf("contract: room %s joined by %s", code, caller)
	return nil
}

func (m *MemContract) cancel(code, caller string) error {
	if err := m.submit("cancel", code, caller); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.room(code)
	if r == nil {
		return ErrRoomNotFound
	}
	if caller != r.Player1 {
		return revert("cancel", "only the host can cancel")
	}
	if r.Status != StatusWaitingForOpponent {
		return revert("cancel", "room is %s", r.Status)
	}
	r.Status = StatusCancelled
	m.payouts = append(m.payouts, Payout{Code: code, To: r.Player1, Atoms: r.BetAtoms, At: time.Now()})
	m.log.Debugf("contract: room %s cancelled, %s refunded to %s", code, FormatAtoms(r.BetAtoms), r.Player1)
	return nil
}

func (m *MemContract) confirmWinner(code, caller, winner string) error {
	if err := m.submit("confirm_winner", code, caller); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.room(code)
	if r == nil {
		return ErrRoomNotFound
	}
	switch r.Status {
	case StatusBattleComplete, StatusClaimed:
		// Redundant confirmation is a no-op.
		return nil
	case StatusWaitingForOpponent:
		return revert("confirm_winner", "nothing to confirm")
	case StatusCancelled:
		return revert("confirm_winner", "room is cancelled")
	}
	if !r.IsParticipant(caller) {
		return revert("confirm_winner", "caller is not a participant")
	}
	if !r.IsParticipant(winner) {
		return revert("confirm_winner", "winner is not a participant")
	}
	r.Winner = winner
	r.Status = StatusBattleComplete
	m.log.Debugf("contract: room %s winner confirmed: %s", code, winner)
	return nil
}

func (m *MemContract) claimPrize(code, caller string) (int64, error) {
	if err := m.submit("claim_prize", code, caller); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.room(code)
	if r == nil {
		return 0, ErrRoomNotFound
	}
	switch r.Status {
	case StatusWaitingForOpponent:
		return 0, revert("claim_prize", "opponent never deposited")
	case StatusCancelled:
		return 0, revert("claim_prize", "room is cancelled")
	case StatusClaimed:
		return 0, revert("claim_prize", "prize already paid")
	case StatusBattleInProgress:
		// Auto-confirm the caller as winner before paying out.
		if !r.IsParticipant(caller) {
			return 0, revert("claim_prize", "caller is not a participant")
		}
		r.Winner = caller
		r.Status = StatusBattleComplete
	}
	if caller != r.Winner {
		return 0, revert("claim_prize", "caller is not the winner")
	}
	prize := r.BetAtoms * 2
	r.Status = StatusClaimed
	m.payouts = append(m.payouts, Payout{Code: code, To: caller, Atoms: prize, At: time.Now()})
	m.log.Infof("contract: room %s claimed, %s paid to %s", code, FormatAtoms(prize), caller)
	return prize, nil
}

type boundAdapter struct {
	contract *MemContract
	caller   string
}

func (a *boundAdapter) Caller() string { return a.caller }

func (a *boundAdapter) RoomStatus(_ context.Context, code string) (Status, error) {
	r, err := a.contract.getRoom(code)
	if err != nil {
		return 0, err
	}
	return r.Status, nil
}

func (a *boundAdapter) GetRoom(_ context.Context, code string) (*Room, error) {
	return a.contract.getRoom(code)
}

func (a *boundAdapter) PrizeAmount(_ context.Context, code string) (int64, error) {
	r, err := a.contract.getRoom(code)
	if err != nil {
		return 0, err
	}
	return r.BetAtoms * 2, nil
}

func (a *boundAdapter) Deposit(_ context.Context, code string, betAtoms int64) error {
	return a.contract.deposit(code, a.caller, betAtoms)
}

func (a *boundAdapter) Join(_ context.Context, code string) error {
	return a.contract.join(code, a.caller)
}

func (a *boundAdapter) Cancel(_ context.Context, code string) error {
	return a.contract.cancel(code, a.caller)
}

func (a *boundAdapter) ConfirmWinner(_ context.Context, code string, winner string) error {
	return a.contract.confirmWinner(code, a.caller, winner)
}

func (a *boundAdapter) ClaimPrize(_ context.Context, code string) (int64, error) {
	return a.contract.claimPrize(code, a.caller)
}
