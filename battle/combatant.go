package battle

// Mode selects how many combatants each side fields.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeTeam   Mode = "team"
)

// Stats holds the base stats of a combatant at its current level.
type Stats struct {
	HP      int `json:"hp"`
	Attack  int `json:"attack"`
	Defense int `json:"defense"`
	Speed   int `json:"speed"`
}

type Move struct {
	Name  string `json:"name"`
	Power int    `json:"power"`
	Type  string `json:"type"`
}

// Combatant is a single staged creature. It is mutated in place on damage and
// level-up and removed from its team when it faints on the losing side.
type Combatant struct {
	Species   string `json:"species"`
	Level     int    `json:"level"`
	Exp       int64  `json:"exp"` // stored experience above the current level
	Stats     Stats  `json:"stats"`
	CurrentHP int    `json:"current_hp"`
	Sprite    string `json:"sprite"`
	Moves     []Move `json:"moves"`
}

func (c *Combatant) MaxHP() int { return c.Stats.HP }

func (c *Combatant) Fainted() bool { return c.CurrentHP <= 0 }

// ApplyDamage reduces current HP, clamped to [0, maxHP].
func (c *Combatant) ApplyDamage(dmg int) {
	if dmg < 0 {
		dmg = 0
	}
	c.CurrentHP -= dmg
	if c.CurrentHP < 0 {
		c.CurrentHP = 0
	}
	if c.CurrentHP > c.MaxHP() {
		c.CurrentHP = c.MaxHP()
	}
}

// Team is an ordered roster; the front combatant is the active one.
type Team []*Combatant

// Active returns the front combatant, or nil for an empty team.
func (t Team) Active() *Combatant {
	if len(t) == 0 {
		return nil
	}
	return t[0]
}

// DropActive removes the front combatant. Team length only shrinks; a fainted
// combatant is never revived.
func (t Team) DropActive() Team {
	if len(t) == 0 {
		return t
	}
	return t[1:]
}

func (t Team) Defeated() bool { return len(t) == 0 }
