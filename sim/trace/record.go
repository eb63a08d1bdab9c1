// Package trace records rollouts against the simulator: per-step actions and
// rewards, per-episode returns and outcomes. It has no dependencies on the
// simulator packages; it stores pure data types.
package trace

// Outcome is how an episode ended.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
	// OutcomeUnfinished means the rollout stopped the episode before the
	// simulator declared a result.
	OutcomeUnfinished Outcome = "unfinished"
)

// StepRecord captures one environment step.
type StepRecord struct {
	Episode    int
	Step       int
	CardIdx    int
	TileIdx    int
	Reward     float64
	AllyElixir float64
	TimeLeft   float64
	Terminated bool
}

// EpisodeRecord captures one finished or abandoned episode.
type EpisodeRecord struct {
	Episode int
	Seed    uint64
	Steps   int
	Return  float64
	Outcome Outcome
}
