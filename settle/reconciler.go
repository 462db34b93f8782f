// Package settle converts a detected win or forfeit into a durable claim
// intent and, on trigger, runs the ordered settlement sequence against the
// escrow contract and the room registry.
package settle

import (
	"context"
	"errors"
	"fmt"

	"github.com/decred/slog"

	"critterclash/battle"
	"critterclash/escrow"
	"critterclash/registry"
)

// BlockedError means a fresh status classification rejected the claim. The
// action is not retried; the reason is surfaced to the user.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("settle: claim blocked: %s", e.Reason)
}

// Result reports a completed claim. Once the on-chain transfer succeeded,
// bookkeeping failures are logged, never surfaced: the funds already moved.
type Result struct {
	PrizeAtoms int64
	Kind       registry.ClaimKind
}

// Reconciler drives settlement for one local participant.
type Reconciler struct {
	actorID string
	reg     *registry.Registry
	esc     escrow.Adapter
	log     slog.Logger
}

func NewReconciler(actorID string, reg *registry.Registry, esc escrow.Adapter, log slog.Logger) *Reconciler {
	return &Reconciler{actorID: actorID, reg: reg, esc: esc, log: log}
}

// prize prefers the authoritative on-chain lookup and falls back to bet*2.
func (r *Reconciler) prize(ctx context.Context, room *registry.Room) int64 {
	if p, err := r.esc.PrizeAmount(ctx, room.Code); err == nil && p > 0 {
		return p
	}
	return room.BetAtoms * 2
}

// OnWin records a locally detected win: finish the session row, best-effort
// confirm on chain, and persist the claim intent so it outlives this process.
func (r *Reconciler) OnWin(ctx context.Context, room *registry.Room, winnerID string) error {
	loserID := room.Opponent(winnerID)
	if loserID == "" {
		return fmt.Errorf("settle: winner %s is not in room %s", winnerID, room.Code)
	}

	// Both sides detect the same terminal exchange; whoever writes second
	// just loses the conditional update, which is fine.
	if err := r.reg.FinishRoom(ctx, room.Code, winnerID, loserID); err != nil &&
		!errors.Is(err, registry.ErrStaleWrite) {
		return fmt.Errorf("settle: finish room: %w", err)
	}

	// Confirmation is best-effort here: it can still happen later from the
	// claim path or from a revisited notification.
	if winnerID == r.actorID {
		if err := r.esc.ConfirmWinner(ctx, room.Code, r.esc.Caller()); err != nil {
			r.log.Warnf("settle: confirm winner for %s failed (claim path will retry): %v", room.Code, err)
		}
		return r.createIntent(ctx, room, registry.ClaimWin)
	}
	return nil
}

// OnForfeit records a win by opponent disappearance: the session row went
// cancelled while this side still believed the battle was live.
func (r *Reconciler) OnForfeit(ctx context.Context, room *registry.Room) error {
	return r.createIntent(ctx, room, registry.ClaimForfeit)
}

func (r *Reconciler) createIntent(ctx context.Context, room *registry.Room, kind registry.ClaimKind) error {
	n := &registry.ClaimNotification{
		Kind:              kind,
		RoomCode:          room.Code,
		OwnerID:           r.actorID,
		CounterpartWallet: room.WalletOf(room.Opponent(r.actorID)),
		PrizeAtoms:        r.prize(ctx, room),
	}
	if err := r.reg.CreateClaimNotification(ctx, n); err != nil {
		return fmt.Errorf("settle: persist claim intent: %w", err)
	}
	return nil
}

// Claim collects the prize for a decided battle. The escrow mirror is
// re-queried immediately before the decision; the local session status is
// never trusted over it.
func (r *Reconciler) Claim(ctx context.Context, code string) (*Result, error) {
	return r.claim(ctx, code, registry.ClaimWin)
}

// ClaimForfeit collects the prize after the opponent vanished mid-battle. It
// attempts confirm-then-claim with no prior explicit confirmation step.
func (r *Reconciler) ClaimForfeit(ctx context.Context, code string) (*Result, error) {
	return r.claim(ctx, code, registry.ClaimForfeit)
}

func (r *Reconciler) claim(ctx context.Context, code string, kind registry.ClaimKind) (*Result, error) {
	mirror, err := r.esc.GetRoom(ctx, code)
	if err != nil && !errors.Is(err, escrow.ErrRoomNotFound) {
		return nil, fmt.Errorf("settle: read escrow mirror: %w", err)
	}

	verdict := escrow.ClassifyClaim(mirror, r.esc.Caller())
	if !verdict.Allowed {
		return nil, &BlockedError{Reason: verdict.Reason}
	}
	if verdict.NeedsConfirm {
		if err := r.esc.ConfirmWinner(ctx, code, r.esc.Caller()); err != nil {
			// Funds have not moved; surface and let the user re-trigger.
			return nil, fmt.Errorf("settle: confirm winner: %w", err)
		}
	}

	prize, err := r.esc.ClaimPrize(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("settle: claim prize: %w", err)
	}
	r.log.Infof("settle: room %s claimed, prize %s", code, escrow.FormatAtoms(prize))

	// The transfer is done. Everything below is bookkeeping: log failures,
	// never report them as a failed claim.
	r.bookkeep(ctx, code, kind, prize)

	return &Result{PrizeAtoms: prize, Kind: kind}, nil
}

func (r *Reconciler) bookkeep(ctx context.Context, code string, kind registry.ClaimKind, prize int64) {
	room, err := r.reg.GetRoom(ctx, code)
	if err != nil {
		r.log.Errorf("settle: bookkeeping: load room %s: %v", code, err)
	} else {
		r.settleTeams(ctx, room, prize)
	}

	if err := r.reg.RecordSettlement(ctx, &registry.Settlement{
		RoomCode:   code,
		WinnerID:   r.actorID,
		Kind:       kind,
		PrizeAtoms: prize,
	}); err != nil {
		r.log.Errorf("settle: bookkeeping: record settlement for %s: %v", code, err)
	}

	n, err := r.reg.NotificationFor(ctx, code, r.actorID)
	switch {
	case errors.Is(err, registry.ErrNotificationNotFound):
		// Immediate claim without a prior intent; nothing to consume.
	case err != nil:
		r.log.Errorf("settle: bookkeeping: load notification for %s: %v", code, err)
	default:
		if err := r.reg.ConsumeNotification(ctx, n.ID); err != nil &&
			!errors.Is(err, registry.ErrAlreadyConsumed) {
			r.log.Errorf("settle: bookkeeping: consume notification %s: %v", n.ID, err)
		}
	}
}

// atomsPerExpPoint converts the prize into an experience reward: one point
// per 0.01 in full currency units. The default one-coin stake is worth 200
// points, a meaningful fraction of a level, instead of raw atom counts
// jumping a winner thousands of levels on the cumulative curve.
const atomsPerExpPoint = 1_000_000

// settleTeams deletes the losing side's combatants and awards experience to
// the winner's, splitting the prize-derived reward evenly.
func (r *Reconciler) settleTeams(ctx context.Context, room *registry.Room, prize int64) {
	winnerTeam := room.TeamOf(r.actorID)
	if len(winnerTeam) > 0 {
		per := prize / atomsPerExpPoint / int64(len(winnerTeam))
		if per < 1 {
			// Even a token stake teaches something.
			per = 1
		}
		for _, c := range winnerTeam {
			gained := battle.AwardExperience(c, per)
			if gained > 0 {
				r.log.Debugf("settle: %s gained %d level(s), now %d", c.Species, gained, c.Level)
			}
		}
	}

	var hostTeam, guestTeam battle.Team
	if r.actorID == room.HostID {
		hostTeam, guestTeam = winnerTeam, battle.Team{}
	} else {
		hostTeam, guestTeam = battle.Team{}, winnerTeam
	}
	if err := r.reg.UpdateTeams(ctx, room.Code, hostTeam, guestTeam); err != nil {
		r.log.Errorf("settle: bookkeeping: update teams for %s: %v", room.Code, err)
	}
}
