package statsource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"critterclash/battle"
)

func TestStaticSource(t *testing.T) {
	src := DefaultCatalog()
	sp, err := src.Species(context.Background(), "Emberling")
	if err != nil {
		t.Fatalf("species: %v", err)
	}
	assert.Equal(t, "emberling", sp.Name)
	assert.NotEmpty(t, sp.Moves)

	_, err = src.Species(context.Background(), "missingno")
	assert.ErrorIs(t, err, ErrUnknownSpecies)
}

func TestSpeciesCombatantStaging(t *testing.T) {
	sp := &Species{
		Name:  "emberling",
		Stats: battle.Stats{HP: 100, Attack: 50, Defense: 40, Speed: 30},
		Moves: []battle.Move{
			{Name: "a", Power: 10}, {Name: "b", Power: 20}, {Name: "c", Power: 30},
			{Name: "d", Power: 40}, {Name: "e", Power: 50},
		},
	}
	c := sp.Combatant(5)
	inc := 4 * battle.LevelUpStatGain
	assert.Equal(t, 5, c.Level)
	assert.Equal(t, 100+inc, c.Stats.HP)
	assert.Equal(t, 50+inc, c.Stats.Attack)
	assert.Equal(t, c.MaxHP(), c.CurrentHP)
	// Up to four moves are staged.
	assert.Len(t, c.Moves, 4)

	c = sp.Combatant(0)
	assert.Equal(t, 1, c.Level)
	assert.Equal(t, 100, c.Stats.HP)
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/species/emberling":
			json.NewEncoder(w).Encode(&Species{
				Name:  "emberling",
				Stats: battle.Stats{HP: 120, Attack: 60, Defense: 50, Speed: 45},
				Moves: []battle.Move{{Name: "ember", Power: 50, Type: "fire"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL)
	sp, err := src.Species(context.Background(), "Emberling")
	if err != nil {
		t.Fatalf("species: %v", err)
	}
	assert.Equal(t, 120, sp.Stats.HP)
	assert.Len(t, sp.Moves, 1)

	_, err = src.Species(context.Background(), "missingno")
	assert.ErrorIs(t, err, ErrUnknownSpecies)
}
