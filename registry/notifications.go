package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ClaimKind distinguishes how the win was determined.
type ClaimKind string

const (
	ClaimWin     ClaimKind = "win"
	ClaimForfeit ClaimKind = "forfeit"
)

var (
	ErrNotificationNotFound = errors.New("registry: claim notification not found")
	// ErrAlreadyConsumed means the notification was already marked claimed;
	// consuming is a once-only transition.
	ErrAlreadyConsumed = errors.New("registry: claim notification already consumed")
)

// ClaimNotification is the durable record that "owner may claim prize_atoms
// for room_code". It outlives the tab/process that detected the win, and is
// consumed exactly once a claim succeeds.
type ClaimNotification struct {
	ID                string
	Kind              ClaimKind
	RoomCode          string
	OwnerID           string
	CounterpartWallet string
	PrizeAtoms        int64
	Claimed           bool
	CreatedAt         time.Time
	ClaimedAt         time.Time
}

// CreateClaimNotification stores a claim intent. Idempotent per (room, owner):
// duplicate win detections collapse into the existing row.
func (r *Registry) CreateClaimNotification(ctx context.Context, n *ClaimNotification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO claim_notifications
			(id, kind, room_code, owner_id, counterpart_wallet, prize_atoms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (room_code, owner_id) DO NOTHING`,
		n.ID, string(n.Kind), n.RoomCode, n.OwnerID, n.CounterpartWallet,
		n.PrizeAtoms, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("create claim notification: %w", err)
	}
	r.log.Debugf("registry: claim notification for %s on room %s (%d atoms)",
		n.OwnerID, n.RoomCode, n.PrizeAtoms)
	return nil
}

// UnclaimedNotifications lists the owner's claim backlog, oldest first.
func (r *Registry) UnclaimedNotifications(ctx context.Context, ownerID string) ([]ClaimNotification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, room_code, owner_id, counterpart_wallet, prize_atoms,
			claimed, created_at
		FROM claim_notifications
		WHERE owner_id = ? AND claimed = 0
		ORDER BY created_at ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list claim notifications: %w", err)
	}
	defer rows.Close()

	var out []ClaimNotification
	for rows.Next() {
		var n ClaimNotification
		var kind string
		if err := rows.Scan(&n.ID, &kind, &n.RoomCode, &n.OwnerID,
			&n.CounterpartWallet, &n.PrizeAtoms, &n.Claimed, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Kind = ClaimKind(kind)
		out = append(out, n)
	}
	return out, rows.Err()
}

// NotificationFor returns the (claimed or not) notification for one room and
// owner.
func (r *Registry) NotificationFor(ctx context.Context, roomCode, ownerID string) (*ClaimNotification, error) {
	var n ClaimNotification
	var kind string
	var claimedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, kind, room_code, owner_id, counterpart_wallet, prize_atoms,
			claimed, created_at, claimed_at
		FROM claim_notifications
		WHERE room_code = ? AND owner_id = ?`, roomCode, ownerID).
		Scan(&n.ID, &kind, &n.RoomCode, &n.OwnerID, &n.CounterpartWallet,
			&n.PrizeAtoms, &n.Claimed, &n.CreatedAt, &claimedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	n.Kind = ClaimKind(kind)
	n.ClaimedAt = claimedAt.Time
	return &n, nil
}

// ConsumeNotification marks a notification claimed. The conditional filter
// makes consumption once-only.
func (r *Registry) ConsumeNotification(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE claim_notifications SET claimed = 1, claimed_at = ?
		WHERE id = ? AND claimed = 0`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("consume claim notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if qerr := r.db.QueryRowContext(ctx,
			`SELECT 1 FROM claim_notifications WHERE id = ?`, id).Scan(&exists); qerr == sql.ErrNoRows {
			return ErrNotificationNotFound
		}
		return ErrAlreadyConsumed
	}
	return nil
}

// Settlement is the durable record of a completed payout.
type Settlement struct {
	ID         string
	RoomCode   string
	WinnerID   string
	Kind       ClaimKind
	PrizeAtoms int64
	CreatedAt  time.Time
}

// RecordSettlement appends one settlement history row.
func (r *Registry) RecordSettlement(ctx context.Context, s *Settlement) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settlements (id, room_code, winner_id, kind, prize_atoms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.RoomCode, s.WinnerID, string(s.Kind), s.PrizeAtoms, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record settlement: %w", err)
	}
	return nil
}

// SettlementsFor lists a user's settlement history, newest first.
func (r *Registry) SettlementsFor(ctx context.Context, winnerID string) ([]Settlement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, room_code, winner_id, kind, prize_atoms, created_at
		FROM settlements WHERE winner_id = ?
		ORDER BY created_at DESC`, winnerID)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		var s Settlement
		var kind string
		if err := rows.Scan(&s.ID, &s.RoomCode, &s.WinnerID, &kind, &s.PrizeAtoms, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Kind = ClaimKind(kind)
		out = append(out, s)
	}
	return out, rows.Err()
}
