package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/decred/slog"

	"critterclash/battle"
	"critterclash/escrow"
	"critterclash/registry"
	"critterclash/session"
)

type appMode int

const (
	modeMenu appMode = iota
	modeRoster
	modeEnterCode
	modeBattle
	modeBacklog
)

type appstate struct {
	sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ctrl   *session.Controller
	cfg    *session.AppConfig
	log    slog.Logger

	mode    appMode
	joining bool
	input   textinput.Model

	pendingCode  string
	notification string
	lastMove     *registry.LastMove
	backlog      []registry.ClaimNotification

	msgCh chan tea.Msg
}

func newAppstate(ctx context.Context, cancel context.CancelFunc, ctrl *session.Controller, cfg *session.AppConfig, log slog.Logger) *appstate {
	in := textinput.New()
	in.CharLimit = 64
	return &appstate{
		ctx:    ctx,
		cancel: cancel,
		ctrl:   ctrl,
		cfg:    cfg,
		log:    log,
		input:  in,
		msgCh:  make(chan tea.Msg),
	}
}

func (m *appstate) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		go func() {
			for msg := range m.ctrl.UpdatesCh {
				select {
				case m.msgCh <- msg:
				case <-m.ctx.Done():
					return
				}
			}
		}()
		return nil
	}
}

func (m *appstate) listenForErrors() tea.Cmd {
	return func() tea.Msg {
		go func() {
			for err := range m.ctrl.ErrorsCh {
				select {
				case m.msgCh <- fmt.Sprintf("Error: %v", err):
				case <-m.ctx.Done():
					return
				}
			}
		}()
		return nil
	}
}

func (m *appstate) Init() tea.Cmd {
	return tea.Batch(
		m.listenForUpdates(),
		m.listenForErrors(),
		tea.EnterAltScreen,
	)
}

func (m *appstate) waitForMsg() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.msgCh:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

// background runs a controller call off the UI goroutine and reports the
// outcome as a notification.
func (m *appstate) background(what string, fn func(ctx context.Context) error) {
	go func() {
		var note string
		if err := fn(m.ctx); err != nil {
			note = fmt.Sprintf("%s failed: %v", what, err)
		} else {
			note = what + " ok"
		}
		m.Lock()
		m.notification = note
		m.Unlock()
		select {
		case m.msgCh <- session.UpdatedMsg{}:
		case <-m.ctx.Done():
		}
	}()
}

func (m *appstate) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case session.UpdatedMsg:
		if st := m.ctrl.State(); st.Phase == session.PhaseBattling {
			m.mode = modeBattle
		}
		return m, m.waitForMsg()

	case session.MoveMsg:
		m.Lock()
		m.lastMove = msg.Move
		m.Unlock()
		return m, m.waitForMsg()

	case session.ForfeitMsg:
		m.notification = fmt.Sprintf("Opponent vanished from %s. Press [f] to claim the forfeit", msg.Code)
		return m, m.waitForMsg()

	case session.FinishedMsg:
		if msg.WinnerID == m.cfg.PlayerID {
			m.notification = "You won! Press [p] to claim the prize"
		} else {
			m.notification = "You lost."
		}
		m.mode = modeMenu
		return m, m.waitForMsg()

	case string:
		if strings.HasPrefix(msg, "Error:") {
			m.notification = msg
		}
		return m, m.waitForMsg()

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancel()
			return m, tea.Quit
		}
		return m.handleKey(msg)
	}
	return m, m.waitForMsg()
}

func (m *appstate) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Text-entry modes swallow everything except enter and esc.
	if m.mode == modeRoster || m.mode == modeEnterCode {
		switch msg.String() {
		case "enter":
			return m.submitInput()
		case "esc":
			m.mode = modeMenu
			m.input.Blur()
			return m, nil
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
	}

	switch msg.String() {
	case "c":
		if m.mode == modeMenu {
			m.joining = false
			m.startInput("species (e.g. emberling)")
			m.mode = modeRoster
		}
	case "j":
		if m.mode == modeMenu {
			m.startInput("room code")
			m.mode = modeEnterCode
		}
	case "b":
		if m.mode == modeMenu {
			m.refreshBacklog()
			m.mode = modeBacklog
		}
	case "x":
		if m.mode == modeMenu {
			m.background("cancel", m.ctrl.Cancel)
		}
	case "q":
		switch m.mode {
		case modeBattle:
			m.background("leave", m.ctrl.Leave)
			m.mode = modeMenu
		case modeBacklog:
			m.mode = modeMenu
		}
	case "p":
		if code := m.ctrl.State().Code; code != "" {
			m.background("claim", func(ctx context.Context) error {
				res, err := m.ctrl.Claim(ctx, code)
				if err == nil {
					m.log.Infof("claimed %s for %s", escrow.FormatAtoms(res.PrizeAtoms), code)
				}
				return err
			})
		}
	case "f":
		if code := m.ctrl.State().Code; code != "" {
			m.background("claim forfeit", func(ctx context.Context) error {
				_, err := m.ctrl.ClaimForfeit(ctx, code)
				return err
			})
		}
	case "enter":
		if m.mode == modeBacklog {
			m.claimFromBacklog()
		}
	case "1", "2", "3", "4":
		if m.mode == modeBattle {
			m.playMove(int(msg.String()[0] - '1'))
		}
	}
	return m, nil
}

func (m *appstate) startInput(placeholder string) {
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	m.input.Focus()
}

func (m *appstate) submitInput() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	m.input.Blur()

	switch m.mode {
	case modeEnterCode:
		m.pendingCode = value
		m.joining = true
		m.startInput("species (e.g. aquatail)")
		m.mode = modeRoster
		return m, nil

	case modeRoster:
		picks := []session.RosterPick{{Species: value, Level: 5}}
		if m.joining {
			code := m.pendingCode
			m.background("join "+code, func(ctx context.Context) error {
				return m.ctrl.JoinRoom(ctx, code, picks)
			})
		} else {
			m.background("create room", func(ctx context.Context) error {
				code, err := m.ctrl.CreateRoom(ctx, battle.ModeSingle, picks)
				if err != nil {
					return err
				}
				m.Lock()
				m.notification = "Room created. Share code " + code
				m.Unlock()
				return nil
			})
		}
		m.mode = modeMenu
	}
	return m, nil
}

func (m *appstate) playMove(idx int) {
	st := m.ctrl.State()
	if st.Room == nil || !st.MyTurn {
		m.notification = "Not your turn"
		return
	}
	active := st.Room.TeamOf(m.cfg.PlayerID).Active()
	if active == nil || idx >= len(active.Moves) {
		return
	}
	move := active.Moves[idx]
	m.background("move "+move.Name, func(ctx context.Context) error {
		return m.ctrl.SubmitMove(ctx, move)
	})
}

// claimFromBacklog claims the oldest pending notification through the path
// its kind demands.
func (m *appstate) claimFromBacklog() {
	m.Lock()
	if len(m.backlog) == 0 {
		m.Unlock()
		return
	}
	n := m.backlog[0]
	m.Unlock()

	m.background("claim "+n.RoomCode, func(ctx context.Context) error {
		var err error
		if n.Kind == registry.ClaimForfeit {
			_, err = m.ctrl.ClaimForfeit(ctx, n.RoomCode)
		} else {
			_, err = m.ctrl.Claim(ctx, n.RoomCode)
		}
		if err == nil {
			m.refreshBacklog()
		}
		return err
	})
}

func (m *appstate) refreshBacklog() {
	backlog, err := m.ctrl.Backlog(m.ctx)
	if err != nil {
		m.notification = fmt.Sprintf("backlog: %v", err)
		return
	}
	m.Lock()
	m.backlog = backlog
	m.Unlock()
}

func (m *appstate) View() string {
	var b strings.Builder
	st := m.ctrl.State()

	b.WriteString("========== Critter Clash ==========\n\n")
	if m.notification != "" {
		b.WriteString("Notification: " + m.notification + "\n\n")
	}
	b.WriteString(fmt.Sprintf("Player: %s\n", m.cfg.PlayerID))
	b.WriteString(fmt.Sprintf("Bet: %s\n", escrow.FormatAtoms(m.cfg.BetAtoms)))
	if st.Code != "" {
		b.WriteString(fmt.Sprintf("Room: %s (%s)\n", st.Code, st.Phase))
	} else {
		b.WriteString("Room: none\n")
	}
	b.WriteString("\n")

	switch m.mode {
	case modeMenu:
		b.WriteString("===== Controls =====\n")
		b.WriteString("[C] - Create room\n")
		b.WriteString("[J] - Join room\n")
		b.WriteString("[B] - Claim backlog\n")
		b.WriteString("[X] - Cancel waiting room\n")
		b.WriteString("[P] - Claim prize\n")
		b.WriteString("[F] - Claim forfeit\n")
		b.WriteString("[Ctrl+C] - Exit\n")

	case modeRoster:
		b.WriteString("Pick your combatant:\n")
		b.WriteString(m.input.View() + "\n")
		b.WriteString("[Enter] confirm, [Esc] back\n")

	case modeEnterCode:
		b.WriteString("Enter the room code to join:\n")
		b.WriteString(m.input.View() + "\n")
		b.WriteString("[Enter] confirm, [Esc] back\n")

	case modeBattle:
		m.viewBattle(&b, st)

	case modeBacklog:
		m.Lock()
		backlog := m.backlog
		m.Unlock()
		b.WriteString("===== Unclaimed prizes =====\n")
		if len(backlog) == 0 {
			b.WriteString("Nothing to claim.\n")
		}
		for _, n := range backlog {
			b.WriteString(fmt.Sprintf("room %s: %s (%s)\n",
				n.RoomCode, escrow.FormatAtoms(n.PrizeAtoms), n.Kind))
		}
		b.WriteString("\n[Enter] claim oldest, [Q] back\n")
	}
	return b.String()
}

func (m *appstate) viewBattle(b *strings.Builder, st session.State) {
	room := st.Room
	if room == nil {
		b.WriteString("Waiting for the first update...\n")
		return
	}
	mine := room.TeamOf(m.cfg.PlayerID)
	theirs := room.TeamOf(room.Opponent(m.cfg.PlayerID))

	writeSide := func(label string, t battle.Team, hp int) {
		if c := t.Active(); c != nil {
			b.WriteString(fmt.Sprintf("%s: %s lv%d  HP %d/%d\n",
				label, c.Species, c.Level, hp, c.MaxHP()))
		}
	}
	writeSide("You", mine, myHP(room, m.cfg.PlayerID))
	writeSide("Foe", theirs, myHP(room, room.Opponent(m.cfg.PlayerID)))

	m.Lock()
	lm := m.lastMove
	m.Unlock()
	if lm != nil {
		b.WriteString(fmt.Sprintf("\nLast move: %s by %s for %d damage\n", lm.Move.Name, lm.By, lm.Damage))
	}

	if st.MyTurn {
		b.WriteString("\nYour turn, pick a move:\n")
		if active := mine.Active(); active != nil {
			for i, mv := range active.Moves {
				b.WriteString(fmt.Sprintf("[%d] %s (power %d)\n", i+1, mv.Name, mv.Power))
			}
		}
	} else {
		b.WriteString("\nWaiting for the opponent...\n")
	}
	b.WriteString("[Q] forfeit and leave\n")
}

func myHP(room *registry.Room, id string) int {
	if id == room.HostID {
		return room.HostHP
	}
	return room.GuestHP
}
