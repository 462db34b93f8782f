package escrow

// ClaimVerdict is the result of classifying a fresh escrow mirror against a
// caller before offering a claim action.
type ClaimVerdict struct {
	Allowed bool
	// NeedsConfirm means the winner is not yet recorded on chain and the
	// claim path must confirm it first.
	NeedsConfirm bool
	Reason       string
}

// ClassifyClaim maps on-chain status to a claim outcome for the caller:
//
//	WaitingForOpponent                      blocked: opponent never deposited
//	Cancelled                               blocked: battle cancelled
//	Claimed                                 blocked: already paid
//	BattleInProgress, caller participant    allowed, confirmation step first
//	BattleComplete, caller == winner        allowed
//	BattleComplete, caller != winner        blocked: not the winner
func ClassifyClaim(room *Room, caller string) ClaimVerdict {
	if room == nil {
		return ClaimVerdict{Reason: "room not found on chain"}
	}
	switch room.Status {
	case StatusWaitingForOpponent:
		return ClaimVerdict{Reason: "opponent never deposited"}
	case StatusCancelled:
		return ClaimVerdict{Reason: "battle cancelled"}
	case StatusClaimed:
		return ClaimVerdict{Reason: "prize already paid"}
	case StatusBattleInProgress:
		if !room.IsParticipant(caller) {
			return ClaimVerdict{Reason: "not a participant"}
		}
		return ClaimVerdict{Allowed: true, NeedsConfirm: true}
	case StatusBattleComplete:
		if caller != room.Winner {
			return ClaimVerdict{Reason: "not the winner"}
		}
		return ClaimVerdict{Allowed: true}
	}
	return ClaimVerdict{Reason: "unknown escrow status"}
}
