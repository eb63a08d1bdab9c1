package rollout

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/crust-sim/crust-gym/sim/env"
	"github.com/crust-sim/crust-gym/sim/protocol"
)

func TestNewPolicy_UnknownName_ReturnsError(t *testing.T) {
	_, err := NewPolicy("greedy", env.DefaultActionSpace(), rand.New(rand.NewSource(1)))
	assert.Error(t, err)
	assert.False(t, IsValidPolicy("greedy"))
	assert.True(t, IsValidPolicy(""))
}

func TestRandomPolicy_StaysInsideActionSpace(t *testing.T) {
	space := env.DefaultActionSpace()
	p, err := NewPolicy(PolicyRandom, space, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		a := p.Act(env.Observation{}, env.Info{})
		require.True(t, space.Contains(a), "action %s outside space", a)
	}
}

func TestLegalPolicy_RespectsMasks(t *testing.T) {
	// GIVEN masks allowing only card 2 and tiles 0 and 143
	legal := &protocol.LegalMasks{Cards: make([]bool, env.HandSlots), TilesFlat: make([]bool, env.NumTiles)}
	legal.Cards[2] = true
	legal.TilesFlat[0] = true
	legal.TilesFlat[env.NumTiles-1] = true
	p, err := NewPolicy(PolicyLegal, env.DefaultActionSpace(), rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	// WHEN sampled many times
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		a := p.Act(env.Observation{}, env.Info{Legal: legal})
		// THEN only legal actions come out
		require.Equal(t, 2, a.CardIdx)
		require.Contains(t, []int{0, env.NumTiles - 1}, a.TileIdx)
		seen[a.TileIdx] = true
	}
	assert.Len(t, seen, 2, "both legal tiles should be drawn")
}

func TestLegalPolicy_NoMasks_FallsBackToFullRange(t *testing.T) {
	// GIVEN no masks, then an all-false card mask
	space := env.DefaultActionSpace()
	p, err := NewPolicy(PolicyLegal, space, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	empty := &protocol.LegalMasks{Cards: make([]bool, env.HandSlots)}

	// WHEN sampled
	// THEN actions still cover the space
	for i := 0; i < 200; i++ {
		require.True(t, space.Contains(p.Act(env.Observation{}, env.Info{})))
		require.True(t, space.Contains(p.Act(env.Observation{}, env.Info{Legal: empty})))
	}
}

// elixirWeights scores row `favorite` by ally elixir and every other row 0.
func elixirWeights(rows, favorite int) *mat.Dense {
	w := mat.NewDense(rows, env.ObservationSize, nil)
	w.Set(favorite, env.ObsAllyElixir, 1)
	return w
}

func TestLinearPolicy_PlaysHighestScoringAction(t *testing.T) {
	// GIVEN weights favoring card 3 and tile 40 whenever elixir is positive
	p, err := NewLinearPolicy(elixirWeights(env.HandSlots, 3), elixirWeights(env.NumTiles, 40))
	require.NoError(t, err)
	obs := env.Observation{}
	obs[env.ObsAllyElixir] = 5

	// WHEN asked without masks
	a := p.Act(obs, env.Info{})

	// THEN the favored action wins
	assert.Equal(t, env.Action{CardIdx: 3, TileIdx: 40}, a)
}

func TestLinearPolicy_SkipsIllegalBest(t *testing.T) {
	// GIVEN card 3 scores best but is illegal, and only card 6 is legal
	p, err := NewLinearPolicy(elixirWeights(env.HandSlots, 3), elixirWeights(env.NumTiles, 40))
	require.NoError(t, err)
	legal := &protocol.LegalMasks{Cards: make([]bool, env.HandSlots)}
	legal.Cards[6] = true
	obs := env.Observation{}
	obs[env.ObsAllyElixir] = 5

	// WHEN asked
	a := p.Act(obs, env.Info{Legal: legal})

	// THEN the legal card is played and the unmasked tile keeps its best
	assert.Equal(t, 6, a.CardIdx)
	assert.Equal(t, 40, a.TileIdx)
}

func TestNewLinearPolicy_WrongWidth_ReturnsError(t *testing.T) {
	_, err := NewLinearPolicy(mat.NewDense(env.HandSlots, 3, nil), elixirWeights(env.NumTiles, 0))
	assert.Error(t, err)
}

func TestNewPolicy_Linear_SeededWeightsAreReproducible(t *testing.T) {
	a, err := NewPolicy(PolicyLinear, env.DefaultActionSpace(), rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	b, err := NewPolicy(PolicyLinear, env.DefaultActionSpace(), rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	obs := env.Observation{5, 170, 1, 0.8, 1, 0.9, 1, 0.4}
	assert.Equal(t, a.Act(obs, env.Info{}), b.Act(obs, env.Info{}))
	assert.True(t, env.DefaultActionSpace().Contains(a.Act(obs, env.Info{})))
}
