package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportLoad_RoundTrip_PreservesRecords(t *testing.T) {
	// GIVEN a steps-level trace with two episodes
	rt := NewRolloutTrace(TraceConfig{Level: TraceLevelSteps})
	rt.RecordStep(StepRecord{Episode: 1, Step: 1, CardIdx: 0, TileIdx: 10, Reward: 4, AllyElixir: 5.5, TimeLeft: 179.98333333333332})
	rt.RecordStep(StepRecord{Episode: 1, Step: 2, CardIdx: 1, TileIdx: 20, Reward: -0.5, AllyElixir: 6, TimeLeft: 179.96666666666667, Terminated: true})
	rt.RecordEpisode(EpisodeRecord{Episode: 1, Seed: 42, Steps: 2, Return: 3.5, Outcome: OutcomeWin})
	rt.RecordEpisode(EpisodeRecord{Episode: 2, Seed: 1<<63 + 5, Steps: 0, Return: 0, Outcome: OutcomeUnfinished})
	header := &TraceHeader{
		Version:  1,
		RunID:    "b6f1b8c6-3f0e-4c8e-9a43-1f6b7c2d9e10",
		Server:   "target/debug/crust_sim_server",
		Seed:     42,
		Episodes: 2,
		Level:    string(TraceLevelSteps),
		Policy:   "random",
		Summary:  Summarize(rt),
	}
	dir := t.TempDir()
	headerPath := filepath.Join(dir, "trace.yaml")
	dataPath := filepath.Join(dir, "trace.csv")

	// WHEN exported and loaded back
	require.NoError(t, Export(header, rt, headerPath, dataPath))
	loaded, err := Load(headerPath, dataPath)
	require.NoError(t, err)

	// THEN header and records survive unchanged
	assert.Equal(t, header.RunID, loaded.Header.RunID)
	assert.Equal(t, header.Episodes, loaded.Header.Episodes)
	require.NotNil(t, loaded.Header.Summary)
	assert.Equal(t, 1, loaded.Header.Summary.Wins)
	assert.Equal(t, rt.Steps, loaded.Steps)
	assert.Equal(t, rt.Episodes, loaded.Episodes)
}

func TestLoad_UnknownRowKind_ReturnsError(t *testing.T) {
	// GIVEN a data file with a row kind Export never writes
	dir := t.TempDir()
	headerPath := filepath.Join(dir, "trace.yaml")
	dataPath := filepath.Join(dir, "trace.csv")
	require.NoError(t, os.WriteFile(headerPath, []byte("trace_version: 1\n"), 0644))
	data := "kind,episode,step,seed,card_idx,tile_idx,reward,ally_elixir,time_left,terminated,steps,return,outcome\n" +
		"routing,1,,,,,,,,,,,\n"
	require.NoError(t, os.WriteFile(dataPath, []byte(data), 0644))

	// WHEN loaded
	_, err := Load(headerPath, dataPath)

	// THEN the row is rejected with its line number
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoad_MissingHeader_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "nope.yaml"), filepath.Join(dir, "nope.csv"))
	assert.Error(t, err)
}
