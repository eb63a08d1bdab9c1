package env

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/crust-sim/crust-gym/sim/protocol"
)

// TowersPerSide is the number of towers each player owns.
const TowersPerSide = 3

// ObservationSize is the length of an Observation.
const ObservationSize = 2 + 2*TowersPerSide

// Observation layout:
//
//	[0]    ally elixir
//	[1]    time left
//	[2:5]  ally tower hp fractions, ascending x
//	[5:8]  enemy tower hp fractions, ascending x
type Observation [ObservationSize]float64

const (
	ObsAllyElixir = 0
	ObsTimeLeft   = 1
	ObsAllyTowers = 2
	ObsEnemyTower = ObsAllyTowers + TowersPerSide
)

// ObservationFromSnapshot maps a snapshot to an Observation. Values pass
// through unclamped. Towers are ordered by x so a given tower keeps its slot
// across ticks; missing towers read as destroyed (0) and extras are dropped.
func ObservationFromSnapshot(s *protocol.Snapshot) Observation {
	var obs Observation
	obs[ObsAllyElixir] = s.AllyElixir
	obs[ObsTimeLeft] = s.TimeLeft
	copy(obs[ObsAllyTowers:ObsEnemyTower], towerHP(s.AllyTowers))
	copy(obs[ObsEnemyTower:], towerHP(s.EnemyTowers))
	return obs
}

func towerHP(towers []protocol.Tower) []float64 {
	sorted := make([]protocol.Tower, len(towers))
	copy(sorted, towers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	hp := make([]float64, TowersPerSide)
	for i := 0; i < TowersPerSide && i < len(sorted); i++ {
		hp[i] = sorted[i].HPFrac
	}
	return hp
}

// Slice returns the observation as a fresh slice.
func (o Observation) Slice() []float64 {
	out := make([]float64, ObservationSize)
	copy(out, o[:])
	return out
}

// Vec returns the observation as a gonum vector, for policies built on
// gonum/mat.
func (o Observation) Vec() *mat.VecDense {
	return mat.NewVecDense(ObservationSize, o.Slice())
}

// AllyTowerHP returns the ally tower slots.
func (o Observation) AllyTowerHP() []float64 {
	return o.Slice()[ObsAllyTowers:ObsEnemyTower]
}

// EnemyTowerHP returns the enemy tower slots.
func (o Observation) EnemyTowerHP() []float64 {
	return o.Slice()[ObsEnemyTower:]
}
