package env

import (
	"fmt"
	"math/rand"
)

const (
	// HandSlots is the number of playable card slots.
	HandSlots = 8
	// GridRows and GridCols size the placement grid. Tiles are flattened
	// row-major.
	GridRows = 16
	GridCols = 9
	// NumTiles is the size of the flattened placement grid.
	NumTiles = GridRows * GridCols
)

// Action is one card placement. Values are sent to the simulator as-is;
// legality is decided there.
type Action struct {
	CardIdx int
	TileIdx int
}

func (a Action) String() string {
	return fmt.Sprintf("card=%d tile=%d", a.CardIdx, a.TileIdx)
}

// TileIndex flattens a grid coordinate.
func TileIndex(row, col int) int {
	return row*GridCols + col
}

// TileCoords is the inverse of TileIndex.
func TileCoords(tile int) (row, col int) {
	return tile / GridCols, tile % GridCols
}

// ActionSpace is a multi-discrete space of (card, tile) pairs.
type ActionSpace struct {
	Cards int
	Tiles int
}

// DefaultActionSpace returns the 8 x 144 action space.
func DefaultActionSpace() ActionSpace {
	return ActionSpace{Cards: HandSlots, Tiles: NumTiles}
}

// Shape returns the per-dimension cardinalities.
func (s ActionSpace) Shape() []int {
	return []int{s.Cards, s.Tiles}
}

// Contains reports whether a lies inside the space. The environment never
// calls it; it is for policies that want to check their own output.
func (s ActionSpace) Contains(a Action) bool {
	return a.CardIdx >= 0 && a.CardIdx < s.Cards && a.TileIdx >= 0 && a.TileIdx < s.Tiles
}

// Sample draws a uniform action.
func (s ActionSpace) Sample(rng *rand.Rand) Action {
	return Action{CardIdx: rng.Intn(s.Cards), TileIdx: rng.Intn(s.Tiles)}
}

// ObservationSpace declares the observation bounds. Observations are not
// clamped to them.
type ObservationSpace struct {
	Size int
	Low  float64
	High float64
}

// DefaultObservationSpace returns the 8-float box [0, 1e4].
func DefaultObservationSpace() ObservationSpace {
	return ObservationSpace{Size: ObservationSize, Low: 0, High: 1e4}
}
