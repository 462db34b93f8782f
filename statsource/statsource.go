// Package statsource looks up base stats and move lists by species name from
// a read-only third-party service. It is consumed, never owned: nothing here
// writes back.
package statsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"critterclash/battle"
)

var ErrUnknownSpecies = errors.New("statsource: unknown species")

// Species is the static profile of one species: base stats at level 1 and the
// move pool a combatant picks up to four moves from.
type Species struct {
	Name   string        `json:"name"`
	Stats  battle.Stats  `json:"stats"`
	Moves  []battle.Move `json:"moves"`
	Sprite string        `json:"sprite"`
}

// Combatant stages a fresh combatant of this species at the given level, with
// stats grown along the shared leveling curve and full HP.
func (s *Species) Combatant(level int) *battle.Combatant {
	if level < 1 {
		level = 1
	}
	stats := s.Stats
	inc := (level - 1) * battle.LevelUpStatGain
	stats.HP += inc
	stats.Attack += inc
	stats.Defense += inc
	stats.Speed += inc

	moves := s.Moves
	if len(moves) > 4 {
		moves = moves[:4]
	}
	return &battle.Combatant{
		Species:   s.Name,
		Level:     level,
		Stats:     stats,
		CurrentHP: stats.HP,
		Sprite:    s.Sprite,
		Moves:     append([]battle.Move(nil), moves...),
	}
}

type Source interface {
	Species(ctx context.Context, name string) (*Species, error)
}

// HTTPSource fetches species profiles from GET {base}/species/{name}.
type HTTPSource struct {
	baseURL string
	client  *fasthttp.Client
	timeout time.Duration
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &fasthttp.Client{
			MaxConnsPerHost: 16,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
		},
		timeout: 10 * time.Second,
	}
}

func (h *HTTPSource) Species(_ context.Context, name string) (*Species, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/species/%s", h.baseURL, strings.ToLower(name)))
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := h.client.DoTimeout(req, resp, h.timeout); err != nil {
		return nil, fmt.Errorf("statsource: fetch %s: %w", name, err)
	}
	switch resp.StatusCode() {
	case fasthttp.StatusOK:
	case fasthttp.StatusNotFound:
		return nil, ErrUnknownSpecies
	default:
		return nil, fmt.Errorf("statsource: fetch %s: status %d", name, resp.StatusCode())
	}

	var sp Species
	if err := json.Unmarshal(resp.Body(), &sp); err != nil {
		return nil, fmt.Errorf("statsource: decode %s: %w", name, err)
	}
	if sp.Name == "" {
		sp.Name = strings.ToLower(name)
	}
	return &sp, nil
}

// StaticSource serves species from memory. Used offline and in tests.
type StaticSource map[string]*Species

func (s StaticSource) Species(_ context.Context, name string) (*Species, error) {
	sp, ok := s[strings.ToLower(name)]
	if !ok {
		return nil, ErrUnknownSpecies
	}
	return sp, nil
}

// DefaultCatalog is a small built-in roster for offline play.
func DefaultCatalog() StaticSource {
	return StaticSource{
		"emberling": {
			Name:   "emberling",
			Stats:  battle.Stats{HP: 120, Attack: 60, Defense: 50, Speed: 45},
			Sprite: "sprites/emberling.png",
			Moves: []battle.Move{
				{Name: "ember", Power: 50, Type: "fire"},
				{Name: "tackle", Power: 40, Type: "normal"},
				{Name: "flame-burst", Power: 70, Type: "fire"},
				{Name: "bite", Power: 60, Type: "dark"},
			},
		},
		"aquatail": {
			Name:   "aquatail",
			Stats:  battle.Stats{HP: 130, Attack: 55, Defense: 55, Speed: 40},
			Sprite: "sprites/aquatail.png",
			Moves: []battle.Move{
				{Name: "water-gun", Power: 50, Type: "water"},
				{Name: "tackle", Power: 40, Type: "normal"},
				{Name: "aqua-jet", Power: 40, Type: "water"},
				{Name: "surf", Power: 90, Type: "water"},
			},
		},
		"thornpup": {
			Name:   "thornpup",
			Stats:  battle.Stats{HP: 110, Attack: 65, Defense: 45, Speed: 50},
			Sprite: "sprites/thornpup.png",
			Moves: []battle.Move{
				{Name: "vine-whip", Power: 45, Type: "grass"},
				{Name: "tackle", Power: 40, Type: "normal"},
				{Name: "razor-leaf", Power: 55, Type: "grass"},
			},
		},
		"voltkit": {
			Name:   "voltkit",
			Stats:  battle.Stats{HP: 100, Attack: 70, Defense: 40, Speed: 60},
			Sprite: "sprites/voltkit.png",
			Moves: []battle.Move{
				{Name: "spark", Power: 65, Type: "electric"},
				{Name: "quick-attack", Power: 40, Type: "normal"},
				{Name: "thunder-shock", Power: 40, Type: "electric"},
				{Name: "discharge", Power: 80, Type: "electric"},
			},
		},
	}
}
