package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"critterclash/battle"
)

// RoomStatus transitions are monotonic: waiting -> battling -> finished|cancelled.
type RoomStatus string

const (
	StatusWaiting   RoomStatus = "waiting"
	StatusBattling  RoomStatus = "battling"
	StatusFinished  RoomStatus = "finished"
	StatusCancelled RoomStatus = "cancelled"
)

var (
	ErrRoomNotFound = errors.New("registry: room not found")
	// ErrSlotTaken means a conditional write lost its race: the guest slot
	// was already filled by a concurrent joiner.
	ErrSlotTaken = errors.New("registry: guest slot already taken")
	// ErrStaleWrite means a conditional write matched zero rows: the row is
	// no longer in the state the writer observed.
	ErrStaleWrite = errors.New("registry: conditional write matched no rows")
)

// LastMove is the last-resolved-move payload. The acting side writes it; the
// passive side replays it for display only.
type LastMove struct {
	By        string      `json:"by"`
	Move      battle.Move `json:"move"`
	Damage    int         `json:"damage"`
	Timestamp time.Time   `json:"timestamp"`
}

// Room is the persisted session record, one row per match, co-owned by both
// participants' controllers with no locking beyond conditional writes.
type Room struct {
	Code        string
	HostID      string
	HostWallet  string
	GuestID     string
	GuestWallet string
	BetAtoms    int64
	Mode        battle.Mode
	HostTeam    battle.Team
	GuestTeam   battle.Team
	HostHP      int
	GuestHP     int
	CurrentTurn string
	TurnCount   int
	LastMove    *LastMove
	Status      RoomStatus
	WinnerID    string
	LoserID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Opponent returns the other participant's id, or "" for a stranger.
func (r *Room) Opponent(id string) string {
	switch id {
	case r.HostID:
		return r.GuestID
	case r.GuestID:
		return r.HostID
	}
	return ""
}

// WalletOf returns the wallet bound to a participant id.
func (r *Room) WalletOf(id string) string {
	switch id {
	case r.HostID:
		return r.HostWallet
	case r.GuestID:
		return r.GuestWallet
	}
	return ""
}

// TeamOf returns the team belonging to a participant id.
func (r *Room) TeamOf(id string) battle.Team {
	if id == r.HostID {
		return r.HostTeam
	}
	return r.GuestTeam
}

func marshalTeam(t battle.Team) (string, error) {
	if t == nil {
		t = battle.Team{}
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal team: %w", err)
	}
	return string(b), nil
}

func unmarshalTeam(s string) (battle.Team, error) {
	if s == "" {
		return battle.Team{}, nil
	}
	var t battle.Team
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, fmt.Errorf("unmarshal team: %w", err)
	}
	return t, nil
}

const roomColumns = `code, host_id, host_wallet, guest_id, guest_wallet, bet_atoms,
	mode, host_team, guest_team, host_hp, guest_hp, current_turn, turn_count,
	last_move, status, winner_id, loser_id, created_at, updated_at`

func scanRoom(row *sql.Row) (*Room, error) {
	var (
		r                   Room
		guestID, guestWal   sql.NullString
		hostTeam, guestTeam string
		lastMove            sql.NullString
		mode, status        string
	)
	err := row.Scan(&r.Code, &r.HostID, &r.HostWallet, &guestID, &guestWal,
		&r.BetAtoms, &mode, &hostTeam, &guestTeam, &r.HostHP, &r.GuestHP,
		&r.CurrentTurn, &r.TurnCount, &lastMove, &status, &r.WinnerID,
		&r.LoserID, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	r.GuestID = guestID.String
	r.GuestWallet = guestWal.String
	r.Mode = battle.Mode(mode)
	r.Status = RoomStatus(status)
	if r.HostTeam, err = unmarshalTeam(hostTeam); err != nil {
		return nil, err
	}
	if r.GuestTeam, err = unmarshalTeam(guestTeam); err != nil {
		return nil, err
	}
	if lastMove.Valid && lastMove.String != "" {
		var lm LastMove
		if err := json.Unmarshal([]byte(lastMove.String), &lm); err != nil {
			return nil, fmt.Errorf("unmarshal last move: %w", err)
		}
		r.LastMove = &lm
	}
	return &r, nil
}

// GetRoom reads one session row.
func (r *Registry) GetRoom(ctx context.Context, code string) (*Room, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE code = ?`, code)
	return scanRoom(row)
}

// CreateRoom inserts the session row as waiting. The caller must already hold
// the on-chain deposit: a row must never exist without backing funds.
func (r *Registry) CreateRoom(ctx context.Context, room *Room) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rooms (code, host_id, host_wallet, bet_atoms, mode, status,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		room.Code, room.HostID, room.HostWallet, room.BetAtoms,
		string(room.Mode), string(StatusWaiting), now, now)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	r.log.Debugf("registry: room %s created by %s", room.Code, room.HostID)
	return nil
}

// JoinRoom fills the guest slot and stages the guest's roster. The
// conditional filter requires the slot to still be empty; a losing concurrent
// joiner gets ErrSlotTaken and must restart matchmaking.
func (r *Registry) JoinRoom(ctx context.Context, code, guestID, guestWallet string, guestTeam battle.Team) error {
	gt, err := marshalTeam(guestTeam)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE rooms SET guest_id = ?, guest_wallet = ?, guest_team = ?, updated_at = ?
		WHERE code = ? AND status = ? AND guest_id IS NULL`,
		guestID, guestWallet, gt, time.Now().UTC(), code, string(StatusWaiting))
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, gerr := r.GetRoom(ctx, code); gerr != nil {
			return gerr
		}
		return ErrSlotTaken
	}
	r.publish(ctx, code, Event{Kind: EventJoined, Code: code, GuestID: guestID})
	return nil
}

// StartBattle stages the host roster alongside the guest's (written at join
// time) and flips the row to battling with the host taking the first turn.
// Only valid from waiting with a guest present.
func (r *Registry) StartBattle(ctx context.Context, code string, hostTeam battle.Team) error {
	room, err := r.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	ht, err := marshalTeam(hostTeam)
	if err != nil {
		return err
	}
	hostHP, guestHP := 0, 0
	if c := hostTeam.Active(); c != nil {
		hostHP = c.CurrentHP
	}
	if c := room.GuestTeam.Active(); c != nil {
		guestHP = c.CurrentHP
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE rooms SET status = ?, host_team = ?,
			host_hp = ?, guest_hp = ?, current_turn = host_id, turn_count = 0,
			updated_at = ?
		WHERE code = ? AND status = ? AND guest_id IS NOT NULL`,
		string(StatusBattling), ht, hostHP, guestHP,
		time.Now().UTC(), code, string(StatusWaiting))
	if err != nil {
		return fmt.Errorf("start battle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleWrite
	}
	r.publish(ctx, code, Event{Kind: EventStatusChanged, Code: code, Status: StatusBattling})
	return nil
}

// WriteMove records one resolved move: the defender's new team/HP, the move
// payload, and the unconditional turn flip. Only the controller currently
// holding current_turn may write, which is what keeps the two sides from
// mutating HP/turn concurrently.
func (r *Registry) WriteMove(ctx context.Context, code, actorID string, move *LastMove, defenderTeam battle.Team, nextTurn string) error {
	room, err := r.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	defenderIsHost := actorID != room.HostID

	dt, err := marshalTeam(defenderTeam)
	if err != nil {
		return err
	}
	defHP := 0
	if c := defenderTeam.Active(); c != nil {
		defHP = c.CurrentHP
	}
	lm, err := json.Marshal(move)
	if err != nil {
		return fmt.Errorf("marshal last move: %w", err)
	}

	var q string
	if defenderIsHost {
		q = `UPDATE rooms SET host_team = ?, host_hp = ?, last_move = ?,
			current_turn = ?, turn_count = turn_count + 1, updated_at = ?
			WHERE code = ? AND status = ? AND current_turn = ?`
	} else {
		q = `UPDATE rooms SET guest_team = ?, guest_hp = ?, last_move = ?,
			current_turn = ?, turn_count = turn_count + 1, updated_at = ?
			WHERE code = ? AND status = ? AND current_turn = ?`
	}
	res, err := r.db.ExecContext(ctx, q, dt, defHP, string(lm), nextTurn,
		time.Now().UTC(), code, string(StatusBattling), actorID)
	if err != nil {
		return fmt.Errorf("write move: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleWrite
	}
	r.publish(ctx, code, Event{Kind: EventMoveResolved, Code: code, Move: move})
	return nil
}

// FinishRoom records the terminal win state. Monotonic: only valid from
// battling.
func (r *Registry) FinishRoom(ctx context.Context, code, winnerID, loserID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rooms SET status = ?, winner_id = ?, loser_id = ?, updated_at = ?
		WHERE code = ? AND status = ?`,
		string(StatusFinished), winnerID, loserID, time.Now().UTC(),
		code, string(StatusBattling))
	if err != nil {
		return fmt.Errorf("finish room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleWrite
	}
	r.publish(ctx, code, Event{Kind: EventStatusChanged, Code: code, Status: StatusFinished, WinnerID: winnerID})
	return nil
}

// CancelRoom cancels a waiting room. Host-only; the on-chain refund must
// already have gone through.
func (r *Registry) CancelRoom(ctx context.Context, code, hostID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rooms SET status = ?, updated_at = ?
		WHERE code = ? AND status = ? AND host_id = ?`,
		string(StatusCancelled), time.Now().UTC(), code, string(StatusWaiting), hostID)
	if err != nil {
		return fmt.Errorf("cancel room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleWrite
	}
	r.publish(ctx, code, Event{Kind: EventStatusChanged, Code: code, Status: StatusCancelled})
	return nil
}

// AbandonRoom marks a battling room cancelled on behalf of a departing
// participant. The remaining side observes the transition while it still
// believes the battle is live and surfaces it as a forfeit in its favor.
func (r *Registry) AbandonRoom(ctx context.Context, code, participantID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rooms SET status = ?, updated_at = ?
		WHERE code = ? AND status = ? AND (host_id = ? OR guest_id = ?)`,
		string(StatusCancelled), time.Now().UTC(), code, string(StatusBattling),
		participantID, participantID)
	if err != nil {
		return fmt.Errorf("abandon room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleWrite
	}
	r.publish(ctx, code, Event{Kind: EventStatusChanged, Code: code, Status: StatusCancelled})
	return nil
}

// UpdateTeams rewrites both stored rosters. Settlement bookkeeping uses it to
// delete the losing side's combatants and persist the winner's experience.
func (r *Registry) UpdateTeams(ctx context.Context, code string, hostTeam, guestTeam battle.Team) error {
	ht, err := marshalTeam(hostTeam)
	if err != nil {
		return err
	}
	gt, err := marshalTeam(guestTeam)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE rooms SET host_team = ?, guest_team = ?, updated_at = ?
		WHERE code = ?`, ht, gt, time.Now().UTC(), code)
	if err != nil {
		return fmt.Errorf("update teams: %w", err)
	}
	return nil
}
