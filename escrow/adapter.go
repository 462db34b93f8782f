package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrutil/v4"
)

// Status mirrors the contract's room status enum. The on-chain value is never
// locally authoritative for anything except itself: it is re-queried
// immediately before any claim decision.
type Status int

const (
	StatusWaitingForOpponent Status = iota
	StatusBattleInProgress
	StatusBattleComplete
	StatusCancelled
	StatusClaimed
)

func (s Status) String() string {
	switch s {
	case StatusWaitingForOpponent:
		return "waiting_for_opponent"
	case StatusBattleInProgress:
		return "battle_in_progress"
	case StatusBattleComplete:
		return "battle_complete"
	case StatusCancelled:
		return "cancelled"
	case StatusClaimed:
		return "claimed"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Room is the escrow mirror read from chain.
type Room struct {
	Player1         string
	Player2         string
	BetAtoms        int64
	CreatedAt       time.Time
	BattleStartedAt time.Time
	Winner          string
	Status          Status
}

func (r *Room) IsParticipant(addr string) bool {
	return addr != "" && (addr == r.Player1 || addr == r.Player2)
}

var (
	// ErrDeclined means the wallet owner rejected the signature prompt.
	// Recoverable: the same action may simply be offered again.
	ErrDeclined = errors.New("escrow: signature declined")

	ErrRoomNotFound = errors.New("escrow: room not found")
	ErrRoomExists   = errors.New("escrow: room already exists")
)

// RevertError is an on-chain revert or state mismatch. The action is blocked;
// the reason comes from a fresh status classification, and a fund-moving call
// is never blindly retried against it.
type RevertError struct {
	Op     string
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("escrow: %s reverted: %s", e.Op, e.Reason)
}

func revert(op, format string, args ...interface{}) error {
	return &RevertError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsRevert reports whether err is a contract revert rather than a transport or
// wallet failure.
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}

// Adapter is the thin query/command surface over the escrow contract, bound to
// one caller wallet. Command calls carry no client-enforced timeout: they wait
// on user interaction and network confirmation, and may block the initiating
// action indefinitely.
type Adapter interface {
	// Caller returns the wallet address this adapter signs with.
	Caller() string

	RoomStatus(ctx context.Context, code string) (Status, error)
	GetRoom(ctx context.Context, code string) (*Room, error)
	PrizeAmount(ctx context.Context, code string) (int64, error)

	// Deposit creates the room on chain and locks the caller's bet. The host
	// calls this before the session row exists.
	Deposit(ctx context.Context, code string, betAtoms int64) error
	// Join locks a matching bet and fills the second slot.
	Join(ctx context.Context, code string) error
	// Cancel refunds the host while the room is still waiting for an opponent.
	Cancel(ctx context.Context, code string) error
	// ConfirmWinner records the winner. Safe to call redundantly: a no-op once
	// the room is BattleComplete or Claimed.
	ConfirmWinner(ctx context.Context, code string, winner string) error
	// ClaimPrize pays out to the caller. If the room is still
	// BattleInProgress it confirms the caller as winner first. The contract,
	// not the client, is the sole authority preventing a non-winner from
	// draining funds.
	ClaimPrize(ctx context.Context, code string) (int64, error)
}

// FormatAtoms renders an atom amount for logs and UIs.
func FormatAtoms(atoms int64) string {
	return dcrutil.Amount(atoms).String()
}
