package battle

// Leveling curve shared by both sides at settlement time: advancing from level
// L to L+1 costs L*100 experience, cumulatively from level 1.

// LevelUpStatGain is the flat increment applied to hp/attack/defense/speed on
// every level gained.
const LevelUpStatGain = 3

// TotalExpForLevel returns the cumulative experience required to reach the
// given level from level 1.
func TotalExpForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	l := int64(level)
	// sum_{i=1}^{level-1} i*100
	return 100 * l * (l - 1) / 2
}

// LevelForExp returns the highest level reachable with the given cumulative
// experience.
func LevelForExp(total int64) int {
	if total <= 0 {
		return 1
	}
	level := 1
	for TotalExpForLevel(level+1) <= total {
		level++
	}
	return level
}

// TotalExp is the combatant's cumulative experience: the cost of its current
// level plus the stored remainder.
func (c *Combatant) TotalExp() int64 {
	return TotalExpForLevel(c.Level) + c.Exp
}

// AwardExperience adds the reward to the combatant's stored experience and
// applies any level-ups: a flat stat gain per level to all four stats. Current
// HP is raised by the HP gain so a victory never leaves the combatant worse
// off. Returns the number of levels gained (always >= 0).
func AwardExperience(c *Combatant, reward int64) int {
	if c == nil || reward <= 0 {
		return 0
	}
	before := c.Level
	total := c.TotalExp() + reward
	after := LevelForExp(total)
	if after < before {
		// Monotonic by construction; never demote.
		after = before
	}
	gained := after - before
	c.Level = after
	c.Exp = total - TotalExpForLevel(after)
	if gained > 0 {
		inc := gained * LevelUpStatGain
		c.Stats.HP += inc
		c.Stats.Attack += inc
		c.Stats.Defense += inc
		c.Stats.Speed += inc
		c.CurrentHP += inc
		if c.CurrentHP > c.MaxHP() {
			c.CurrentHP = c.MaxHP()
		}
	}
	return gained
}
