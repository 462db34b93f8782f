package settle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"

	"critterclash/battle"
	"critterclash/escrow"
	"critterclash/registry"
)

type fixture struct {
	reg      *registry.Registry
	contract *escrow.MemContract
	host     escrow.Adapter
	guest    escrow.Adapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.Open(filepath.Join(t.TempDir(), "reg.db"), slog.Disabled)
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	contract := escrow.NewMemContract(slog.Disabled)
	return &fixture{
		reg:      reg,
		contract: contract,
		host:     contract.Bind("host-wallet"),
		guest:    contract.Bind("guest-wallet"),
	}
}

func testTeam(species string, hp int) battle.Team {
	return battle.Team{{
		Species:   species,
		Level:     5,
		Stats:     battle.Stats{HP: hp, Attack: 60, Defense: 50, Speed: 40},
		CurrentHP: hp,
		Moves:     []battle.Move{{Name: "tackle", Power: 50}},
	}}
}

// stageBattle gets a room to battling on both the registry and the contract.
func (f *fixture) stageBattle(t *testing.T, code string, bet int64) {
	t.Helper()
	ctx := context.Background()
	if err := f.host.Deposit(ctx, code, bet); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.reg.CreateRoom(ctx, &registry.Room{
		Code: code, HostID: "host", HostWallet: "host-wallet",
		BetAtoms: bet, Mode: battle.ModeSingle,
	}); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := f.guest.Join(ctx, code); err != nil {
		t.Fatalf("escrow join: %v", err)
	}
	if err := f.reg.JoinRoom(ctx, code, "guest", "guest-wallet", testTeam("aquatail", 110)); err != nil {
		t.Fatalf("registry join: %v", err)
	}
	if err := f.reg.StartBattle(ctx, code, testTeam("emberling", 120)); err != nil {
		t.Fatalf("start battle: %v", err)
	}
}

func TestWinThenClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stageBattle(t, "r1", 100)
	rec := NewReconciler("host", f.reg, f.host, slog.Disabled)

	room, _ := f.reg.GetRoom(ctx, "r1")
	if err := rec.OnWin(ctx, room, "host"); err != nil {
		t.Fatalf("on win: %v", err)
	}

	// Session row finished, winner recorded.
	room, _ = f.reg.GetRoom(ctx, "r1")
	assert.Equal(t, registry.StatusFinished, room.Status)
	assert.Equal(t, "host", room.WinnerID)
	assert.Equal(t, "guest", room.LoserID)

	// On-chain winner confirmed (best-effort path succeeded here).
	mirror, _ := f.host.GetRoom(ctx, "r1")
	assert.Equal(t, escrow.StatusBattleComplete, mirror.Status)
	assert.Equal(t, "host-wallet", mirror.Winner)

	// Durable claim intent exists with the on-chain prize.
	backlog, _ := f.reg.UnclaimedNotifications(ctx, "host")
	assert.Len(t, backlog, 1)
	assert.Equal(t, int64(200), backlog[0].PrizeAtoms)

	res, err := rec.Claim(ctx, "r1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	assert.Equal(t, int64(200), res.PrizeAtoms)
	assert.Len(t, f.contract.Payouts(), 1)

	// Bookkeeping: loser's combatants deleted, settlement recorded,
	// notification consumed.
	room, _ = f.reg.GetRoom(ctx, "r1")
	assert.Empty(t, room.GuestTeam)
	assert.NotEmpty(t, room.HostTeam)
	hist, _ := f.reg.SettlementsFor(ctx, "host")
	assert.Len(t, hist, 1)
	backlog, _ = f.reg.UnclaimedNotifications(ctx, "host")
	assert.Empty(t, backlog)
}

func TestClaimTwiceSingleTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stageBattle(t, "r1", 100)
	rec := NewReconciler("host", f.reg, f.host, slog.Disabled)

	room, _ := f.reg.GetRoom(ctx, "r1")
	_ = rec.OnWin(ctx, room, "host")
	if _, err := rec.Claim(ctx, "r1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	_, err := rec.Claim(ctx, "r1")
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("second claim: want BlockedError, got %v", err)
	}
	assert.Contains(t, blocked.Reason, "already paid")
	assert.Len(t, f.contract.Payouts(), 1, "exactly one on-chain transfer")
}

func TestLoserClaimBlocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stageBattle(t, "r1", 100)

	hostRec := NewReconciler("host", f.reg, f.host, slog.Disabled)
	room, _ := f.reg.GetRoom(ctx, "r1")
	_ = hostRec.OnWin(ctx, room, "host")

	guestRec := NewReconciler("guest", f.reg, f.guest, slog.Disabled)
	_, err := guestRec.Claim(ctx, "r1")
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("want BlockedError, got %v", err)
	}
	assert.Contains(t, blocked.Reason, "not the winner")
	assert.Empty(t, f.contract.Payouts())
}

func TestForfeitClaimAutoConfirms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stageBattle(t, "r1", 100)
	rec := NewReconciler("host", f.reg, f.host, slog.Disabled)

	// Guest vanishes mid-battle: row goes cancelled, chain still in progress.
	if err := f.reg.AbandonRoom(ctx, "r1", "guest"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	room, _ := f.reg.GetRoom(ctx, "r1")
	if err := rec.OnForfeit(ctx, room); err != nil {
		t.Fatalf("on forfeit: %v", err)
	}
	backlog, _ := f.reg.UnclaimedNotifications(ctx, "host")
	assert.Len(t, backlog, 1)
	assert.Equal(t, registry.ClaimForfeit, backlog[0].Kind)

	mirror, _ := f.host.GetRoom(ctx, "r1")
	assert.Equal(t, escrow.StatusBattleInProgress, mirror.Status)

	// Claim-forfeit confirms then claims, with no prior confirmation step.
	res, err := rec.ClaimForfeit(ctx, "r1")
	if err != nil {
		t.Fatalf("claim forfeit: %v", err)
	}
	assert.Equal(t, int64(200), res.PrizeAtoms)
	assert.Equal(t, registry.ClaimForfeit, res.Kind)

	mirror, _ = f.host.GetRoom(ctx, "r1")
	assert.Equal(t, escrow.StatusClaimed, mirror.Status)
	assert.Equal(t, "host-wallet", mirror.Winner)
}

func TestConfirmFailureIsNonFatalOnWin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stageBattle(t, "r1", 100)

	f.contract.SubmitHook = func(op, code, caller string) error {
		if op == "confirm_winner" {
			return escrow.ErrDeclined
		}
		return nil
	}
	rec := NewReconciler("host", f.reg, f.host, slog.Disabled)
	room, _ := f.reg.GetRoom(ctx, "r1")
	if err := rec.OnWin(ctx, room, "host"); err != nil {
		t.Fatalf("on win must tolerate confirm failure: %v", err)
	}

	// The intent still exists and the claim path auto-confirms later.
	backlog, _ := f.reg.UnclaimedNotifications(ctx, "host")
	assert.Len(t, backlog, 1)

	f.contract.SubmitHook = nil
	res, err := rec.Claim(ctx, "r1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	assert.Equal(t, int64(200), res.PrizeAtoms)
}

func TestWinnerExperienceAward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stageBattle(t, "r1", 100_000_000)
	rec := NewReconciler("host", f.reg, f.host, slog.Disabled)

	room, _ := f.reg.GetRoom(ctx, "r1")
	before := room.HostTeam.Active().TotalExp()
	_ = rec.OnWin(ctx, room, "host")
	if _, err := rec.Claim(ctx, "r1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	room, _ = f.reg.GetRoom(ctx, "r1")
	winner := room.HostTeam.Active()
	assert.Equal(t, before+200, winner.TotalExp())
	assert.GreaterOrEqual(t, winner.Level, 5)
}

func TestTokenStakeStillAwardsExperience(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stageBattle(t, "r1", 100)
	rec := NewReconciler("host", f.reg, f.host, slog.Disabled)

	room, _ := f.reg.GetRoom(ctx, "r1")
	before := room.HostTeam.Active().TotalExp()
	_ = rec.OnWin(ctx, room, "host")
	if _, err := rec.Claim(ctx, "r1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	room, _ = f.reg.GetRoom(ctx, "r1")
	assert.Equal(t, before+1, room.HostTeam.Active().TotalExp())
}
