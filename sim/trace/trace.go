package trace

// TraceLevel controls how much of a rollout is recorded.
type TraceLevel string

const (
	// TraceLevelNone disables recording.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEpisodes records one row per finished episode.
	TraceLevelEpisodes TraceLevel = "episodes"
	// TraceLevelSteps records every step as well as every episode.
	TraceLevelSteps TraceLevel = "steps"
)

var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:     true,
	TraceLevelEpisodes: true,
	TraceLevelSteps:    true,
	"":                 true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// RolloutTrace collects episode and step records during a rollout.
// Not safe for concurrent use; give each worker its own trace.
type RolloutTrace struct {
	Config   TraceConfig
	Episodes []EpisodeRecord
	Steps    []StepRecord
}

// NewRolloutTrace creates a RolloutTrace ready for recording.
func NewRolloutTrace(config TraceConfig) *RolloutTrace {
	return &RolloutTrace{
		Config:   config,
		Episodes: make([]EpisodeRecord, 0),
		Steps:    make([]StepRecord, 0),
	}
}

// RecordStep appends a step record when the level is TraceLevelSteps.
func (rt *RolloutTrace) RecordStep(record StepRecord) {
	if rt.Config.Level != TraceLevelSteps {
		return
	}
	rt.Steps = append(rt.Steps, record)
}

// RecordEpisode appends an episode record unless tracing is off.
func (rt *RolloutTrace) RecordEpisode(record EpisodeRecord) {
	if rt.Config.Level == TraceLevelNone || rt.Config.Level == "" {
		return
	}
	rt.Episodes = append(rt.Episodes, record)
}
