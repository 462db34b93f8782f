package battle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCombatant(species string, level, hp, atk, def, spd int, moves ...Move) *Combatant {
	return &Combatant{
		Species:   species,
		Level:     level,
		Stats:     Stats{HP: hp, Attack: atk, Defense: def, Speed: spd},
		CurrentHP: hp,
		Moves:     moves,
	}
}

func TestDamageFormula(t *testing.T) {
	// power 50, attack 120, defense 50 -> base 60; range across rf is [51, 68].
	lo, hi := DamageRange(50, 120, 50)
	if lo != 51 || hi != 68 {
		t.Fatalf("damage range: got [%d, %d], want [51, 68]", lo, hi)
	}
	for _, rf := range []float64{0.85, 0.9999, 1.0, 1.1499} {
		d := Damage(50, 120, 50, rf)
		if d < lo || d > hi {
			t.Fatalf("damage %d with rf=%v outside [%d, %d]", d, rf, lo, hi)
		}
	}
}

func TestDamageNeverBelowFloor(t *testing.T) {
	// A weak attacker against a tank still lands MinDamage.
	d := Damage(10, 5, 200, 0.85)
	assert.Equal(t, MinDamage, d)
	// Degenerate defense does not divide by zero.
	d = Damage(50, 60, 0, 1.0)
	assert.GreaterOrEqual(t, d, MinDamage)
}

func TestRandomFactorBounds(t *testing.T) {
	r := NewSeededResolver(42)
	for i := 0; i < 10000; i++ {
		rf := r.RandomFactor()
		if rf < 0.85 || rf >= 1.15 {
			t.Fatalf("random factor %v out of [0.85, 1.15)", rf)
		}
	}
}

func TestApplyDamageClamps(t *testing.T) {
	c := testCombatant("emberling", 5, 120, 60, 50, 40)
	c.ApplyDamage(30)
	assert.Equal(t, 90, c.CurrentHP)
	c.ApplyDamage(500)
	assert.Equal(t, 0, c.CurrentHP)
	assert.True(t, c.Fainted())
	// Negative damage never heals.
	c.CurrentHP = 50
	c.ApplyDamage(-20)
	assert.Equal(t, 50, c.CurrentHP)
}

func TestResolveSingleModeEndsOnFaint(t *testing.T) {
	r := NewSeededResolver(1)
	tackle := Move{Name: "tackle", Power: 50, Type: "normal"}
	attacker := testCombatant("emberling", 5, 120, 120, 50, 40, tackle)
	defender := Team{testCombatant("aquatail", 5, 120, 60, 50, 35, tackle)}

	// Cumulative damage of 51..68 per hit exhausts 120 HP in at most three moves.
	var out Outcome
	var err error
	for i := 0; i < 3 && !out.Defeated; i++ {
		out, err = r.Resolve(attacker, &defender, tackle, ModeSingle)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if out.Damage < 51 || out.Damage > 68 {
			t.Fatalf("damage %d outside expected [51, 68]", out.Damage)
		}
	}
	assert.True(t, out.Fainted)
	assert.True(t, out.Defeated)
	// Single mode leaves the fainted combatant in place for settlement.
	assert.Equal(t, 1, len(defender))
	assert.Equal(t, 0, defender.Active().CurrentHP)
}

func TestResolveTeamModeRotates(t *testing.T) {
	r := NewSeededResolver(7)
	blast := Move{Name: "blast", Power: 200, Type: "fire"}
	attacker := testCombatant("emberling", 9, 150, 200, 60, 50, blast)
	second := testCombatant("thornpup", 6, 90, 55, 45, 30, blast)
	second.CurrentHP = 77 // carries its own stored HP
	defending := Team{
		testCombatant("aquatail", 5, 40, 60, 50, 35, blast),
		second,
	}

	out, err := r.Resolve(attacker, &defending, blast, ModeTeam)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assert.True(t, out.Fainted)
	assert.False(t, out.Defeated)
	assert.Equal(t, 1, len(defending))
	assert.Equal(t, "thornpup", defending.Active().Species)
	assert.Equal(t, 77, defending.Active().CurrentHP)

	out, err = r.Resolve(attacker, &defending, blast, ModeTeam)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	assert.True(t, out.Defeated)
	assert.True(t, defending.Defeated())
}

func TestPickRandomMove(t *testing.T) {
	r := NewSeededResolver(3)
	moves := []Move{
		{Name: "tackle", Power: 40},
		{Name: "ember", Power: 50},
		{Name: "bite", Power: 60},
		{Name: "slam", Power: 80},
	}
	c := testCombatant("emberling", 5, 100, 60, 50, 40, moves...)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		m, err := r.PickRandomMove(c)
		if err != nil {
			t.Fatalf("pick: %v", err)
		}
		seen[m.Name] = true
	}
	assert.Equal(t, 4, len(seen), "all moves should be reachable")

	_, err := r.PickRandomMove(&Combatant{})
	assert.Error(t, err)
}
