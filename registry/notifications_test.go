package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaimNotificationLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	n := &ClaimNotification{
		Kind:              ClaimWin,
		RoomCode:          "r1",
		OwnerID:           "host",
		CounterpartWallet: "guest-wallet",
		PrizeAtoms:        200,
	}
	if err := reg.CreateClaimNotification(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}
	assert.NotEmpty(t, n.ID)

	// Duplicate win detection collapses into the existing row.
	dup := &ClaimNotification{Kind: ClaimWin, RoomCode: "r1", OwnerID: "host", PrizeAtoms: 200}
	assert.NoError(t, reg.CreateClaimNotification(ctx, dup))

	backlog, err := reg.UnclaimedNotifications(ctx, "host")
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	assert.Len(t, backlog, 1)
	assert.Equal(t, int64(200), backlog[0].PrizeAtoms)
	assert.Equal(t, ClaimWin, backlog[0].Kind)

	// Consume exactly once.
	if err := reg.ConsumeNotification(ctx, backlog[0].ID); err != nil {
		t.Fatalf("consume: %v", err)
	}
	assert.ErrorIs(t, reg.ConsumeNotification(ctx, backlog[0].ID), ErrAlreadyConsumed)
	assert.ErrorIs(t, reg.ConsumeNotification(ctx, "missing"), ErrNotificationNotFound)

	backlog, _ = reg.UnclaimedNotifications(ctx, "host")
	assert.Empty(t, backlog)

	got, err := reg.NotificationFor(ctx, "r1", "host")
	if err != nil {
		t.Fatalf("notification for: %v", err)
	}
	assert.True(t, got.Claimed)
	assert.False(t, got.ClaimedAt.IsZero())
}

func TestSettlementHistory(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	for _, s := range []*Settlement{
		{RoomCode: "r1", WinnerID: "host", Kind: ClaimWin, PrizeAtoms: 200},
		{RoomCode: "r2", WinnerID: "host", Kind: ClaimForfeit, PrizeAtoms: 400},
		{RoomCode: "r3", WinnerID: "guest", Kind: ClaimWin, PrizeAtoms: 100},
	} {
		if err := reg.RecordSettlement(ctx, s); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	hist, err := reg.SettlementsFor(ctx, "host")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	assert.Len(t, hist, 2)
	for _, s := range hist {
		assert.Equal(t, "host", s.WinnerID)
	}
}
