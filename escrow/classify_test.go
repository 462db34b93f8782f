package escrow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyClaimTable(t *testing.T) {
	room := func(s Status, winner string) *Room {
		return &Room{Player1: "host", Player2: "guest", BetAtoms: 100, Status: s, Winner: winner}
	}

	tests := []struct {
		name    string
		room    *Room
		caller  string
		allowed bool
		confirm bool
	}{
		{"waiting blocks", room(StatusWaitingForOpponent, ""), "host", false, false},
		{"cancelled blocks", room(StatusCancelled, ""), "host", false, false},
		{"claimed blocks", room(StatusClaimed, "host"), "host", false, false},
		{"in progress, participant", room(StatusBattleInProgress, ""), "guest", true, true},
		{"in progress, stranger", room(StatusBattleInProgress, ""), "mallory", false, false},
		{"complete, winner", room(StatusBattleComplete, "guest"), "guest", true, false},
		{"complete, loser", room(StatusBattleComplete, "guest"), "host", false, false},
		{"nil room", nil, "host", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := ClassifyClaim(tc.room, tc.caller)
			assert.Equal(t, tc.allowed, v.Allowed)
			assert.Equal(t, tc.confirm, v.NeedsConfirm)
			if !tc.allowed && v.Reason == "" {
				t.Fatalf("blocked verdict must carry a reason")
			}
		})
	}
}
