package rollout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crust-sim/crust-gym/internal/testutil"
	"github.com/crust-sim/crust-gym/sim"
	"github.com/crust-sim/crust-gym/sim/env"
	"github.com/crust-sim/crust-gym/sim/trace"
)

func fakeRollout(t *testing.T, opts testutil.FakeSimOptions) Config {
	t.Helper()
	return Config{
		Env:      env.Config{Process: testutil.FakeSimConfig(t, opts)},
		Episodes: 3,
		Seed:     7,
		Trace:    trace.TraceConfig{Level: trace.TraceLevelSteps},
	}
}

func TestEpisodeSeed_BasePlusEpisode(t *testing.T) {
	assert.Equal(t, uint64(7), EpisodeSeed(7, 0))
	assert.Equal(t, uint64(9), EpisodeSeed(7, 2))
}

func TestRun_WinAfterN_RecordsWins(t *testing.T) {
	// GIVEN a simulator that declares a win on the fourth step of every episode
	cfg := fakeRollout(t, testutil.FakeSimOptions{WinAfter: 4})

	// WHEN three episodes are played
	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	rt := res.Trace

	// THEN each episode is a four-step win with seed base+episode
	require.Len(t, rt.Episodes, 3)
	for i, ep := range rt.Episodes {
		assert.Equal(t, i, ep.Episode)
		assert.Equal(t, EpisodeSeed(7, i), ep.Seed)
		assert.Equal(t, 4, ep.Steps)
		assert.Equal(t, trace.OutcomeWin, ep.Outcome)
	}
	assert.Len(t, rt.Steps, 12)
	last := rt.Steps[3]
	assert.True(t, last.Terminated)
	assert.Equal(t, 4, last.Step)
}

func TestRun_MaxSteps_RecordsUnfinished(t *testing.T) {
	// GIVEN a simulator that never declares a result and a cap of 5 steps
	cfg := fakeRollout(t, testutil.FakeSimOptions{})
	cfg.MaxSteps = 5
	cfg.Episodes = 2

	// WHEN played
	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	rt := res.Trace

	// THEN episodes stop at the cap as unfinished
	summary := res.Summary()
	assert.Equal(t, 2, summary.Unfinished)
	assert.Equal(t, 10, summary.Steps)
	for _, s := range rt.Steps {
		assert.False(t, s.Terminated)
	}
}

func TestRun_FixedDrops_ReturnIsSumOfRewards(t *testing.T) {
	// GIVEN every tick deals 5 and takes 2, and a loss on step 3
	drops := [2]float64{5, 2}
	cfg := fakeRollout(t, testutil.FakeSimOptions{LoseAfter: 3, FixedDrops: &drops})
	cfg.Episodes = 1

	// WHEN played
	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	rt := res.Trace

	// THEN the return is 3 * (5 - 0.5*2) and the outcome a loss
	require.Len(t, rt.Episodes, 1)
	testutil.AssertFloat64Equal(t, "return", 12.0, rt.Episodes[0].Return, 1e-12)
	assert.Equal(t, trace.OutcomeLose, rt.Episodes[0].Outcome)
}

func TestRun_SameSeed_SameTrace(t *testing.T) {
	// GIVEN the same config twice
	cfg := fakeRollout(t, testutil.FakeSimOptions{WinAfter: 6})

	// WHEN run twice
	a, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	b, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	// THEN the traces are identical
	assert.Equal(t, a, b)
}

func TestRun_Workers_MergedInEpisodeOrder(t *testing.T) {
	// GIVEN five episodes split over two simulator processes
	cfg := fakeRollout(t, testutil.FakeSimOptions{WinAfter: 2})
	cfg.Episodes = 5
	cfg.Workers = 2

	// WHEN played
	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	rt := res.Trace

	// THEN the merged trace is ordered by episode then step
	require.Len(t, rt.Episodes, 5)
	for i, ep := range rt.Episodes {
		assert.Equal(t, i, ep.Episode)
	}
	require.Len(t, rt.Steps, 10)
	for i, s := range rt.Steps {
		assert.Equal(t, i/2, s.Episode)
		assert.Equal(t, i%2+1, s.Step)
	}
}

func TestRun_LegalPolicy_OnlyPlaysLegalCards(t *testing.T) {
	// GIVEN a simulator that marks only the first four hand slots legal
	cfg := fakeRollout(t, testutil.FakeSimOptions{})
	cfg.Policy = PolicyLegal
	cfg.Episodes = 1
	cfg.MaxSteps = 50

	// WHEN played
	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	rt := res.Trace

	// THEN no illegal card is ever chosen
	require.Len(t, rt.Steps, 50)
	for _, s := range rt.Steps {
		assert.Less(t, s.CardIdx, 4)
	}
}

func TestRun_SimulatorCrash_ReturnsError(t *testing.T) {
	// GIVEN a simulator that dies on the first STEP
	cfg := fakeRollout(t, testutil.FakeSimOptions{Mode: testutil.ModeCrash})

	// WHEN played
	_, err := Run(context.Background(), cfg)

	// THEN the session failure surfaces
	require.Error(t, err)
	assert.True(t, errors.Is(err, sim.ErrSessionClosed), "got %v", err)
}

func TestRun_InvalidConfig_ReturnsError(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no episodes", func(c *Config) { c.Episodes = 0 }},
		{"negative max steps", func(c *Config) { c.MaxSteps = -1 }},
		{"unknown policy", func(c *Config) { c.Policy = "greedy" }},
		{"unknown trace level", func(c *Config) { c.Trace.Level = "decisions" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Episodes: 1}
			tt.mutate(&cfg)
			_, err := Run(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestRun_TraceLevelNone_SummaryStillCountsEpisodes(t *testing.T) {
	// GIVEN tracing switched off
	cfg := fakeRollout(t, testutil.FakeSimOptions{WinAfter: 2})
	cfg.Trace = trace.TraceConfig{Level: trace.TraceLevelNone}

	// WHEN three episodes are played
	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	// THEN nothing is traced but the summary covers every episode
	assert.Empty(t, res.Trace.Episodes)
	assert.Empty(t, res.Trace.Steps)
	summary := res.Summary()
	assert.Equal(t, cfg.Episodes, summary.Episodes)
	assert.Equal(t, 3, summary.Wins)
	assert.Equal(t, 6, summary.Steps)
}

func TestRun_WorkerFailure_ReportsRootCauseNotCancellation(t *testing.T) {
	// GIVEN two workers: worker 0 (even seed) blocks on STEP forever, worker 1
	// (odd seed) loses its simulator
	cfg := fakeRollout(t, testutil.FakeSimOptions{Mode: testutil.ModeCrashOddSeed})
	cfg.Seed = 0
	cfg.Episodes = 2
	cfg.Workers = 2

	// WHEN played
	_, err := Run(context.Background(), cfg)

	// THEN the crash is reported, not the cancellation it caused in worker 0
	require.Error(t, err)
	assert.True(t, errors.Is(err, sim.ErrSessionClosed), "got %v", err)
	assert.False(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Contains(t, err.Error(), "worker 1")
}

func TestRun_LinearPolicy_DeterministicAndLegal(t *testing.T) {
	// GIVEN the linear policy on a simulator with four legal cards
	cfg := fakeRollout(t, testutil.FakeSimOptions{})
	cfg.Policy = PolicyLinear
	cfg.Episodes = 1
	cfg.MaxSteps = 20

	// WHEN run twice with the same seed
	a, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	b, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	// THEN the actions match and only legal cards are played
	assert.Equal(t, a.Trace.Steps, b.Trace.Steps)
	for _, s := range a.Trace.Steps {
		assert.Less(t, s.CardIdx, 4)
	}
}
