package battle

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

const (
	// MinDamage is the floor applied to every resolved move. A strictly
	// positive floor keeps long defensive stalls from lasting forever.
	MinDamage = 1

	randFactorFloor = 0.85
	randFactorSpan  = 0.30
)

// Outcome is the result of resolving one move. The acting side computes it and
// writes it to the session record; the passive side replays it for display.
type Outcome struct {
	Move     Move
	Damage   int
	Fainted  bool
	Defeated bool // defender's whole team is out
}

// Resolver computes damage and fainting. It carries its own RNG so tests can
// pin the random factor.
type Resolver struct {
	rng *rand.Rand
}

func NewResolver() *Resolver {
	return &Resolver{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeededResolver returns a resolver with a deterministic random factor
// stream.
func NewSeededResolver(seed int64) *Resolver {
	return &Resolver{rng: rand.New(rand.NewSource(seed))}
}

// RandomFactor returns a value in [0.85, 1.15).
func (r *Resolver) RandomFactor() float64 {
	return randFactorFloor + r.rng.Float64()*randFactorSpan
}

// Damage computes floor((power * attack / defense / 2) * rf), clamped below at
// MinDamage. Deterministic given its inputs.
func Damage(power, attack, defense int, rf float64) int {
	if defense <= 0 {
		defense = 1
	}
	base := float64(power) * float64(attack) / float64(defense) / 2
	dmg := int(math.Floor(base * rf))
	if dmg < MinDamage {
		dmg = MinDamage
	}
	return dmg
}

// DamageRange returns the inclusive [min, max] damage for the given stats
// across the whole random factor span.
func DamageRange(power, attack, defense int) (int, int) {
	lo := Damage(power, attack, defense, randFactorFloor)
	hi := Damage(power, attack, defense, math.Nextafter(randFactorFloor+randFactorSpan, 0))
	return lo, hi
}

// Resolve applies one move from attacker against the defending team in the
// given mode. The defending team is mutated: damage lands on its active
// combatant and, in team mode, a fainted active combatant is dropped so the
// next one becomes active with its own stored HP.
func (r *Resolver) Resolve(attacker *Combatant, defending *Team, move Move, mode Mode) (Outcome, error) {
	if attacker == nil || defending == nil || defending.Active() == nil {
		return Outcome{}, fmt.Errorf("resolve: missing combatant")
	}
	target := defending.Active()
	dmg := Damage(move.Power, attacker.Stats.Attack, target.Stats.Defense, r.RandomFactor())
	target.ApplyDamage(dmg)

	out := Outcome{Move: move, Damage: dmg}
	if !target.Fainted() {
		return out, nil
	}
	out.Fainted = true
	switch mode {
	case ModeTeam:
		*defending = defending.DropActive()
		out.Defeated = defending.Defeated()
	default:
		// Single mode: one faint ends the match.
		out.Defeated = true
	}
	return out, nil
}

// PickRandomMove selects uniformly among the combatant's available moves. Used
// by the turn scheduler when the countdown elapses.
func (r *Resolver) PickRandomMove(c *Combatant) (Move, error) {
	if c == nil || len(c.Moves) == 0 {
		return Move{}, fmt.Errorf("no moves available")
	}
	return c.Moves[r.rng.Intn(len(c.Moves))], nil
}
