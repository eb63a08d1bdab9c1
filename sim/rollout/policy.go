package rollout

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/crust-sim/crust-gym/sim/env"
)

// Policy chooses the next action from the latest observation.
type Policy interface {
	Act(obs env.Observation, info env.Info) env.Action
}

// Policy names accepted by NewPolicy.
const (
	PolicyRandom = "random" // uniform over the whole action space
	PolicyLegal  = "legal"  // uniform over actions the legal masks allow
	PolicyLinear = "linear" // best legal action under a random linear scoring
)

var validPolicies = map[string]bool{
	PolicyRandom: true,
	PolicyLegal:  true,
	PolicyLinear: true,
	"":           true, // empty defaults to random
}

// IsValidPolicy returns true if name is a recognized policy.
func IsValidPolicy(name string) bool {
	return validPolicies[name]
}

// NewPolicy returns the named policy drawing from rng.
func NewPolicy(name string, space env.ActionSpace, rng *rand.Rand) (Policy, error) {
	switch name {
	case PolicyRandom, "":
		return &RandomPolicy{space: space, rng: rng}, nil
	case PolicyLegal:
		return &LegalPolicy{space: space, rng: rng}, nil
	case PolicyLinear:
		return NewLinearPolicy(randomWeights(space.Cards, rng), randomWeights(space.Tiles, rng))
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

// RandomPolicy samples uniformly from the action space and ignores the
// observation.
type RandomPolicy struct {
	space env.ActionSpace
	rng   *rand.Rand
}

func (p *RandomPolicy) Act(_ env.Observation, _ env.Info) env.Action {
	return p.space.Sample(p.rng)
}

// LegalPolicy samples uniformly among the cards and tiles the simulator marks
// legal. A dimension with no mask, or with nothing legal, falls back to the
// full range.
type LegalPolicy struct {
	space env.ActionSpace
	rng   *rand.Rand
}

func (p *LegalPolicy) Act(_ env.Observation, info env.Info) env.Action {
	var cards, tiles []bool
	if info.Legal != nil {
		cards, tiles = info.Legal.Cards, info.Legal.TilesFlat
	}
	return env.Action{
		CardIdx: pickLegal(p.rng, cards, p.space.Cards),
		TileIdx: pickLegal(p.rng, tiles, p.space.Tiles),
	}
}

func pickLegal(rng *rand.Rand, mask []bool, n int) int {
	legal := make([]int, 0, n)
	for i := 0; i < n && i < len(mask); i++ {
		if mask[i] {
			legal = append(legal, i)
		}
	}
	if len(legal) == 0 {
		return rng.Intn(n)
	}
	return legal[rng.Intn(len(legal))]
}

// LinearPolicy scores cards and tiles as weight matrices times the
// observation and plays the best legal card and the best legal tile.
type LinearPolicy struct {
	cards *mat.Dense // one row per hand slot
	tiles *mat.Dense // one row per tile
}

// NewLinearPolicy returns a LinearPolicy. Both matrices need one column per
// observation entry.
func NewLinearPolicy(cards, tiles *mat.Dense) (*LinearPolicy, error) {
	for name, m := range map[string]*mat.Dense{"card": cards, "tile": tiles} {
		if _, c := m.Dims(); c != env.ObservationSize {
			return nil, fmt.Errorf("%s weights have %d columns, want %d", name, c, env.ObservationSize)
		}
	}
	return &LinearPolicy{cards: cards, tiles: tiles}, nil
}

func randomWeights(rows int, rng *rand.Rand) *mat.Dense {
	data := make([]float64, rows*env.ObservationSize)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(rows, env.ObservationSize, data)
}

func (p *LinearPolicy) Act(obs env.Observation, info env.Info) env.Action {
	x := obs.Vec()
	var cardScores, tileScores mat.VecDense
	cardScores.MulVec(p.cards, x)
	tileScores.MulVec(p.tiles, x)

	var cards, tiles []bool
	if info.Legal != nil {
		cards, tiles = info.Legal.Cards, info.Legal.TilesFlat
	}
	return env.Action{
		CardIdx: argmaxLegal(&cardScores, cards),
		TileIdx: argmaxLegal(&tileScores, tiles),
	}
}

// argmaxLegal returns the highest-scoring index the mask allows, or the
// highest overall when nothing is allowed.
func argmaxLegal(scores *mat.VecDense, mask []bool) int {
	best, bestAll := -1, 0
	for i := 0; i < scores.Len(); i++ {
		v := scores.AtVec(i)
		if v > scores.AtVec(bestAll) {
			bestAll = i
		}
		if i < len(mask) && mask[i] && (best < 0 || v > scores.AtVec(best)) {
			best = i
		}
	}
	if best < 0 {
		return bestAll
	}
	return best
}
