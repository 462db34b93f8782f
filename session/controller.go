// Package session runs the per-client battle controller: a single-threaded
// event loop that applies local moves, reacts to pushed row mutations, and
// detects terminal conditions. Two controllers never share memory; they meet
// only in the session row and the escrow contract.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/decred/slog"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"critterclash/battle"
	"critterclash/escrow"
	"critterclash/registry"
	"critterclash/settle"
	"critterclash/statsource"
)

const (
	roomCodeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	roomCodeLen      = 8
)

var (
	ErrBusy        = errors.New("session: another room is already active")
	ErrNoBattle    = errors.New("session: no battle in progress")
	ErrNotYourTurn = errors.New("session: not this side's turn")
)

// Messages delivered on UpdatesCh for the TUI.
type (
	// UpdatedMsg signals any state change worth a redraw.
	UpdatedMsg struct{}
	// MoveMsg replays the opponent's resolved move for display.
	MoveMsg struct {
		Move *registry.LastMove
		Room *registry.Room
	}
	// ForfeitMsg reports that the opponent vanished mid-battle and a claim
	// intent was persisted.
	ForfeitMsg struct{ Code string }
	// FinishedMsg reports the terminal win state.
	FinishedMsg struct{ WinnerID string }
)

// RosterPick names one combatant to stage.
type RosterPick struct {
	Species string
	Level   int
}

type command struct {
	fn   func(ctx context.Context) error
	errc chan error
}

// Controller drives one participant's session. All mutation runs on the Run
// loop; public methods post commands into it and wait, so the controller
// never issues two mutating operations concurrently.
type Controller struct {
	id     string
	wallet string
	cfg    *AppConfig
	reg    *registry.Registry
	esc    escrow.Adapter
	src    statsource.Source
	rec    *settle.Reconciler
	res    *battle.Resolver
	timer  *TurnTimer
	log    slog.Logger

	cmds chan command

	mu      sync.RWMutex
	state   State
	myTeam  battle.Team
	leaving bool

	// Owned by the Run goroutine only.
	events <-chan registry.Event
	unsub  func()

	UpdatesCh chan tea.Msg
	ErrorsCh  chan error
}

func New(cfg *AppConfig, reg *registry.Registry, esc escrow.Adapter, src statsource.Source, log slog.Logger) *Controller {
	return &Controller{
		id:        cfg.PlayerID,
		wallet:    esc.Caller(),
		cfg:       cfg,
		reg:       reg,
		esc:       esc,
		src:       src,
		rec:       settle.NewReconciler(cfg.PlayerID, reg, esc, log),
		res:       battle.NewResolver(),
		timer:     &TurnTimer{},
		log:       log,
		cmds:      make(chan command, 16),
		state:     State{ActorID: cfg.PlayerID},
		UpdatesCh: make(chan tea.Msg, 64),
		ErrorsCh:  make(chan error, 8),
	}
}

// State returns a copy of the current session state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Team returns the locally staged roster.
func (c *Controller) Team() battle.Team {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.myTeam
}

// Run is the controller event loop. It owns the registry subscription and the
// turn countdown and exits when ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Infof("session: controller running for %s", c.id)
	defer func() {
		c.timer.Stop()
		c.unwatch()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.cmds:
			err := cmd.fn(ctx)
			if cmd.errc != nil {
				cmd.errc <- err
			} else if err != nil {
				c.report(err)
			}
		case ev := <-c.events:
			c.handleEvent(ctx, ev)
		}
	}
}

// do runs fn on the loop and waits for its result.
func (c *Controller) do(ctx context.Context, fn func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	select {
	case c.cmds <- command{fn: fn, errc: errc}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateRoom deposits the bet and inserts the session row as waiting. The
// deposit goes first: a row must never exist without backing funds. Returns
// the shareable room code.
func (c *Controller) CreateRoom(ctx context.Context, mode battle.Mode, picks []RosterPick) (string, error) {
	var code string
	err := c.do(ctx, func(ctx context.Context) error {
		c.mu.RLock()
		busy := c.state.Phase != PhaseIdle && !c.state.Phase.Terminal()
		c.mu.RUnlock()
		if busy {
			return ErrBusy
		}
		if mode == battle.ModeSingle && len(picks) != 1 {
			return fmt.Errorf("session: single mode takes exactly one combatant, got %d", len(picks))
		}
		team, err := c.buildTeam(ctx, picks)
		if err != nil {
			return err
		}
		code, err = gonanoid.Generate(roomCodeAlphabet, roomCodeLen)
		if err != nil {
			return fmt.Errorf("generate room code: %w", err)
		}
		if err := c.esc.Deposit(ctx, code, c.cfg.BetAtoms); err != nil {
			return fmt.Errorf("deposit: %w", err)
		}
		if err := c.reg.CreateRoom(ctx, &registry.Room{
			Code:       code,
			HostID:     c.id,
			HostWallet: c.wallet,
			BetAtoms:   c.cfg.BetAtoms,
			Mode:       mode,
		}); err != nil {
			// Funds are locked with no row; pull them back.
			if cerr := c.esc.Cancel(ctx, code); cerr != nil {
				c.log.Errorf("session: refund after failed room insert for %s: %v", code, cerr)
			}
			return fmt.Errorf("create room: %w", err)
		}
		c.watch(code)
		c.setState(State{Code: code, ActorID: c.id, Phase: PhaseWaiting}, team)
		c.log.Infof("session: room %s created, bet %s", code, escrow.FormatAtoms(c.cfg.BetAtoms))
		c.notify(UpdatedMsg{})
		return nil
	})
	return code, err
}

// JoinRoom deposits a matching bet and fills the guest slot, staging this
// side's roster on the row.
func (c *Controller) JoinRoom(ctx context.Context, code string, picks []RosterPick) error {
	return c.do(ctx, func(ctx context.Context) error {
		c.mu.RLock()
		busy := c.state.Phase != PhaseIdle && !c.state.Phase.Terminal()
		c.mu.RUnlock()
		if busy {
			return ErrBusy
		}
		room, err := c.reg.GetRoom(ctx, code)
		if err != nil {
			return err
		}
		if room.Mode == battle.ModeSingle && len(picks) != 1 {
			return fmt.Errorf("session: single mode takes exactly one combatant, got %d", len(picks))
		}
		team, err := c.buildTeam(ctx, picks)
		if err != nil {
			return err
		}
		// Subscribe before the mutating join: the host reacts to the join by
		// starting the battle, and that publish must not race past us.
		c.watch(code)
		if err := c.esc.Join(ctx, code); err != nil {
			c.unwatch()
			return fmt.Errorf("escrow join: %w", err)
		}
		if err := c.reg.JoinRoom(ctx, code, c.id, c.wallet, team); err != nil {
			// The bet is already locked on chain with no seat to show for it.
			// Leave recovery to the contract's cancel/forfeit paths.
			c.unwatch()
			c.log.Warnf("session: row join for %s failed after escrow join: %v", code, err)
			return fmt.Errorf("join room: %w", err)
		}
		c.setState(State{Code: code, ActorID: c.id, Phase: PhaseWaiting}, team)
		c.log.Infof("session: joined room %s", code)
		c.notify(UpdatedMsg{})
		return nil
	})
}

// SubmitMove resolves a manual move and writes it. Only valid while battling
// and holding the turn.
func (c *Controller) SubmitMove(ctx context.Context, move battle.Move) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.resolveAndWrite(ctx, move)
	})
}

// Cancel refunds and cancels a still-waiting room. Host only.
func (c *Controller) Cancel(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		c.mu.RLock()
		st := c.state
		c.mu.RUnlock()
		if st.Phase != PhaseWaiting {
			return ErrNoBattle
		}
		// Refund first: the row must not read cancelled while funds are still
		// locked.
		if err := c.esc.Cancel(ctx, st.Code); err != nil {
			return fmt.Errorf("escrow cancel: %w", err)
		}
		if err := c.reg.CancelRoom(ctx, st.Code, c.id); err != nil {
			return fmt.Errorf("cancel room: %w", err)
		}
		c.log.Infof("session: room %s cancelled, bet refunded", st.Code)
		return nil
	})
}

// Leave abandons a live battle, forfeiting it to the opponent.
func (c *Controller) Leave(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		c.mu.Lock()
		st := c.state
		if st.Phase == PhaseBattling {
			c.leaving = true
		}
		c.mu.Unlock()
		if st.Phase != PhaseBattling {
			return ErrNoBattle
		}
		if err := c.reg.AbandonRoom(ctx, st.Code, c.id); err != nil {
			c.mu.Lock()
			c.leaving = false
			c.mu.Unlock()
			return fmt.Errorf("abandon room: %w", err)
		}
		c.timer.Stop()
		c.log.Infof("session: left room %s mid-battle", st.Code)
		return nil
	})
}

// Claim collects the prize for a decided battle.
func (c *Controller) Claim(ctx context.Context, code string) (*settle.Result, error) {
	var res *settle.Result
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		res, err = c.rec.Claim(ctx, code)
		return err
	})
	return res, err
}

// ClaimForfeit collects the prize after the opponent vanished mid-battle.
func (c *Controller) ClaimForfeit(ctx context.Context, code string) (*settle.Result, error) {
	var res *settle.Result
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		res, err = c.rec.ClaimForfeit(ctx, code)
		return err
	})
	return res, err
}

// Backlog lists this participant's unclaimed notifications. A claim survives
// the process that detected the win.
func (c *Controller) Backlog(ctx context.Context) ([]registry.ClaimNotification, error) {
	return c.reg.UnclaimedNotifications(ctx, c.id)
}

func (c *Controller) setState(st State, team battle.Team) {
	c.mu.Lock()
	c.state = st
	c.myTeam = team
	c.leaving = false
	c.mu.Unlock()
}

// watch swaps the registry subscription to one room. Loop goroutine only.
func (c *Controller) watch(code string) {
	c.unwatch()
	ch, unsub := c.reg.Subscribe(code)
	c.events = ch
	c.unsub = unsub
}

func (c *Controller) unwatch() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	c.events = nil
}

func (c *Controller) handleEvent(ctx context.Context, ev registry.Event) {
	c.mu.Lock()
	prev := c.state.Phase
	next, effects := Reduce(c.state, ev)
	c.state = next
	leaving := c.leaving
	myTeam := c.myTeam
	c.mu.Unlock()

	for _, eff := range effects {
		switch eff.Kind {
		case EffectStageBattle:
			if err := c.reg.StartBattle(ctx, next.Code, myTeam); err != nil &&
				!errors.Is(err, registry.ErrStaleWrite) {
				c.report(fmt.Errorf("start battle: %w", err))
			}
		case EffectStartTimer:
			c.timer.Start(c.cfg.TurnTimeout, c.fireAutoMove)
		case EffectStopTimer:
			c.timer.Stop()
		case EffectReplayMove:
			c.notify(MoveMsg{Move: eff.Move, Room: next.Room})
		case EffectRecordForfeit:
			if leaving {
				continue
			}
			if next.Room == nil {
				continue
			}
			if err := c.rec.OnForfeit(ctx, next.Room); err != nil {
				c.report(fmt.Errorf("record forfeit: %w", err))
				continue
			}
			c.log.Infof("session: opponent vanished from %s, forfeit claim recorded", next.Code)
			c.notify(ForfeitMsg{Code: next.Code})
		}
	}

	// Keyed off the phase edge, not the event kind: the win may have been
	// learned from a later snapshot after the announcement was dropped.
	if next.Phase == PhaseFinished && prev != PhaseFinished {
		c.notify(FinishedMsg{WinnerID: next.WinnerID})
		return
	}
	c.notify(UpdatedMsg{})
}

// fireAutoMove runs on the timer goroutine; it posts the auto-move onto the
// loop instead of touching state directly.
func (c *Controller) fireAutoMove() {
	select {
	case c.cmds <- command{fn: c.autoMove}:
	default:
		// Loop saturated; the next turn event re-arms the countdown.
	}
}

// autoMove plays a uniformly random available move through the same resolve
// path as a manual one. A stale fire (turn already played or battle over) is
// a no-op.
func (c *Controller) autoMove(ctx context.Context) error {
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if st.Phase != PhaseBattling || !st.MyTurn {
		return nil
	}
	room, err := c.reg.GetRoom(ctx, st.Code)
	if err != nil {
		return fmt.Errorf("auto move: %w", err)
	}
	active := room.TeamOf(c.id).Active()
	if active == nil {
		return nil
	}
	move, err := c.res.PickRandomMove(active)
	if err != nil {
		return fmt.Errorf("auto move: %w", err)
	}
	c.log.Infof("session: turn countdown elapsed in %s, auto-playing %s", st.Code, move.Name)
	if err := c.resolveAndWrite(ctx, move); err != nil && !errors.Is(err, registry.ErrStaleWrite) {
		return err
	}
	return nil
}

// resolveAndWrite computes damage locally and writes the resolved move. The
// acting side is trusted for the damage value; the conditional write on
// current_turn is what keeps the two sides from mutating HP concurrently.
func (c *Controller) resolveAndWrite(ctx context.Context, move battle.Move) error {
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if st.Phase != PhaseBattling {
		return ErrNoBattle
	}

	room, err := c.reg.GetRoom(ctx, st.Code)
	if err != nil {
		return err
	}
	if room.CurrentTurn != c.id {
		return ErrNotYourTurn
	}
	attacker := room.TeamOf(c.id).Active()
	if attacker == nil {
		return ErrNoBattle
	}
	opponent := room.Opponent(c.id)
	defending := room.TeamOf(opponent)

	out, err := c.res.Resolve(attacker, &defending, move, room.Mode)
	if err != nil {
		return err
	}
	lm := &registry.LastMove{
		By:        c.id,
		Move:      out.Move,
		Damage:    out.Damage,
		Timestamp: time.Now().UTC(),
	}
	if err := c.reg.WriteMove(ctx, st.Code, c.id, lm, defending, opponent); err != nil {
		return err
	}
	c.timer.Stop()
	c.log.Debugf("session: %s dealt %d with %s in %s", c.id, out.Damage, out.Move.Name, st.Code)

	if out.Defeated {
		// Local win detection hands off to the reconciler: finish the row,
		// best-effort confirm on chain, persist the claim intent.
		if err := c.rec.OnWin(ctx, room, c.id); err != nil {
			c.report(fmt.Errorf("record win: %w", err))
		}
	}
	return nil
}

func (c *Controller) buildTeam(ctx context.Context, picks []RosterPick) (battle.Team, error) {
	if len(picks) == 0 {
		return nil, errors.New("session: empty roster")
	}
	team := make(battle.Team, 0, len(picks))
	for _, p := range picks {
		sp, err := c.src.Species(ctx, p.Species)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", p.Species, err)
		}
		team = append(team, sp.Combatant(p.Level))
	}
	return team, nil
}

// notify forwards a message to the TUI without ever blocking the loop.
func (c *Controller) notify(msg tea.Msg) {
	select {
	case c.UpdatesCh <- msg:
	default:
	}
}

func (c *Controller) report(err error) {
	c.log.Errorf("session: %v", err)
	select {
	case c.ErrorsCh <- err:
	default:
	}
}
