package trace

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TraceSummary aggregates statistics from a RolloutTrace.
type TraceSummary struct {
	Episodes   int
	Steps      int
	Wins       int
	Losses     int
	Unfinished int

	MeanReturn   float64
	StdDevReturn float64 // sample standard deviation; 0 with fewer than 2 episodes
	MaxReturn    float64
	MinReturn    float64
	MeanLength   float64
}

// Summarize computes aggregate statistics from a RolloutTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(rt *RolloutTrace) *TraceSummary {
	if rt == nil {
		return &TraceSummary{}
	}
	return SummarizeEpisodes(rt.Episodes)
}

// SummarizeEpisodes computes aggregate statistics from episode records,
// whatever level they were traced at.
func SummarizeEpisodes(episodes []EpisodeRecord) *TraceSummary {
	summary := &TraceSummary{}
	if len(episodes) == 0 {
		return summary
	}

	returns := make([]float64, len(episodes))
	lengths := make([]float64, len(episodes))
	for i, ep := range episodes {
		returns[i] = ep.Return
		lengths[i] = float64(ep.Steps)
		summary.Steps += ep.Steps
		switch ep.Outcome {
		case OutcomeWin:
			summary.Wins++
		case OutcomeLose:
			summary.Losses++
		default:
			summary.Unfinished++
		}
	}

	summary.Episodes = len(episodes)
	summary.MeanReturn = stat.Mean(returns, nil)
	if len(returns) > 1 {
		summary.StdDevReturn = stat.StdDev(returns, nil)
	}
	summary.MaxReturn = floats.Max(returns)
	summary.MinReturn = floats.Min(returns)
	summary.MeanLength = stat.Mean(lengths, nil)
	return summary
}

// WinRate returns the fraction of episodes won, 0 for an empty summary.
func (s *TraceSummary) WinRate() float64 {
	if s.Episodes == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Episodes)
}
