package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}

func TestSubscribeReceivesMutations(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	createWaitingRoom(t, reg, "r1")

	ch, unsub := reg.Subscribe("r1")
	defer unsub()

	_ = reg.JoinRoom(ctx, "r1", "guest", "wallet", testTeam("aquatail", 110))
	ev := recvEvent(t, ch)
	assert.Equal(t, EventJoined, ev.Kind)
	assert.Equal(t, "guest", ev.GuestID)
	if ev.Room == nil {
		t.Fatalf("event must carry a row snapshot")
	}
	assert.Equal(t, "guest", ev.Room.GuestID)

	_ = reg.StartBattle(ctx, "r1", testTeam("emberling", 120))
	ev = recvEvent(t, ch)
	assert.Equal(t, EventStatusChanged, ev.Kind)
	assert.Equal(t, StatusBattling, ev.Status)

	move := &LastMove{By: "host", Damage: 12, Timestamp: time.Now()}
	def := testTeam("aquatail", 110)
	def.Active().CurrentHP = 98
	_ = reg.WriteMove(ctx, "r1", "host", move, def, "guest")
	ev = recvEvent(t, ch)
	assert.Equal(t, EventMoveResolved, ev.Kind)
	assert.Equal(t, 12, ev.Move.Damage)
	assert.Equal(t, 98, ev.Room.GuestHP)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	createWaitingRoom(t, reg, "r1")

	ch, unsub := reg.Subscribe("r1")
	unsub()

	_ = reg.JoinRoom(ctx, "r1", "guest", "wallet", nil)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event after unsubscribe: %v", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventsScopedPerRoom(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	createWaitingRoom(t, reg, "r1")
	createWaitingRoom(t, reg, "r2")

	ch1, unsub1 := reg.Subscribe("r1")
	defer unsub1()
	ch2, unsub2 := reg.Subscribe("r2")
	defer unsub2()

	_ = reg.JoinRoom(ctx, "r2", "guest", "wallet", nil)
	ev := recvEvent(t, ch2)
	assert.Equal(t, "r2", ev.Code)

	select {
	case ev := <-ch1:
		t.Fatalf("room r1 subscriber got foreign event: %v", ev.Code)
	case <-time.After(100 * time.Millisecond):
	}
}
