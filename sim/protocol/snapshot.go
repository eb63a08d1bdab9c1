package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crust-sim/crust-gym/sim"
)

// Tower is one crown or king tower as seen by the ally player.
type Tower struct {
	Owner  string  `json:"owner,omitempty"` // "ALLY" or "ENEMY"
	X      float64 `json:"x"`
	Y      float64 `json:"y,omitempty"`
	HPFrac float64 `json:"hp_frac"` // 0.0 destroyed, 1.0 full
}

// Unit is a live troop on the arena.
type Unit struct {
	Owner string  `json:"owner"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
}

// LegalMasks flags which hand slots and placement tiles are playable.
type LegalMasks struct {
	Cards     []bool `json:"cards"`
	TilesFlat []bool `json:"tiles_flat"`
}

// Snapshot is one decoded simulator state, from the ally player's point of
// view. HP drops are per-tick deltas, not running totals.
type Snapshot struct {
	TimeMs     uint64  `json:"t_ms,omitempty"`
	AllyElixir float64 `json:"ally_elixir"`
	TimeLeft   float64 `json:"time_left"`
	Overtime   bool    `json:"overtime,omitempty"`

	AllyTowers  []Tower `json:"ally_towers"`
	EnemyTowers []Tower `json:"enemy_towers"`
	AllyUnits   []Unit  `json:"ally_units,omitempty"`
	EnemyUnits  []Unit  `json:"enemy_units,omitempty"`

	Legal *LegalMasks `json:"legal,omitempty"`

	Win  bool `json:"win"`
	Lose bool `json:"lose"`

	EnemyTowerHPDrop float64 `json:"enemy_tower_hp_drop"`
	AllyTowerHPDrop  float64 `json:"ally_tower_hp_drop"`
}

// requiredKeys must be present in every snapshot line.
var requiredKeys = []string{
	"ally_elixir",
	"time_left",
	"ally_towers",
	"enemy_towers",
	"ally_tower_hp_drop",
	"enemy_tower_hp_drop",
	"win",
	"lose",
}

// DecodeSnapshot parses a record line. Any failure is sim.ErrProtocolDecode:
// a '{' line that does not decode is never treated as a diagnostic.
func DecodeSnapshot(text string) (*Snapshot, error) {
	text = strings.TrimSpace(text)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, fmt.Errorf("%w: %w (line %q)", sim.ErrProtocolDecode, err, abbreviate(text))
	}
	var missing []string
	for _, k := range requiredKeys {
		if _, ok := fields[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s (line %q)", sim.ErrProtocolDecode, strings.Join(missing, ", "), abbreviate(text))
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(text), &snap); err != nil {
		return nil, fmt.Errorf("%w: %w (line %q)", sim.ErrProtocolDecode, err, abbreviate(text))
	}
	return &snap, nil
}

// EncodeSnapshot renders a snapshot as one protocol line.
func EncodeSnapshot(s *Snapshot) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), nil
}

func abbreviate(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
