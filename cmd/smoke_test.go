package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crust-sim/crust-gym/internal/testutil"
	"github.com/crust-sim/crust-gym/sim"
	"github.com/crust-sim/crust-gym/sim/env"
)

func TestRunSmoke_FakeSimulator_PrintsScenario(t *testing.T) {
	// GIVEN a well-behaved simulator
	cfg := env.Config{Process: testutil.FakeSimConfig(t, testutil.FakeSimOptions{})}
	var out bytes.Buffer

	// WHEN the smoke scenario runs
	err := runSmoke(context.Background(), cfg, &out)

	// THEN it succeeds and reports each command in order
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "RESET 0: elixir="))
	assert.True(t, strings.HasPrefix(lines[1], "STEP 0 10: "))
	assert.True(t, strings.HasPrefix(lines[2], "STEP 1 20: "))
	assert.Equal(t, "EXIT: graceful", strings.Fields(lines[3])[0]+" "+strings.Fields(lines[3])[1])
}

func TestRunSmoke_CrashingSimulator_Fails(t *testing.T) {
	// GIVEN a simulator that dies on STEP
	cfg := env.Config{Process: testutil.FakeSimConfig(t, testutil.FakeSimOptions{Mode: testutil.ModeCrash})}

	// WHEN the smoke scenario runs
	err := runSmoke(context.Background(), cfg, &bytes.Buffer{})

	// THEN the session error is returned
	require.Error(t, err)
	assert.True(t, errors.Is(err, sim.ErrSessionClosed), "got %v", err)
}

func TestFormatObservation_ShowsAllFields(t *testing.T) {
	obs := env.Observation{5, 179.5, 1, 0.5, 1, 1, 1, 0.25}
	s := formatObservation(obs)
	assert.Contains(t, s, "elixir=5.00")
	assert.Contains(t, s, "time_left=179.500")
	assert.Contains(t, s, "ally_towers=[1.000 0.500 1.000]")
	assert.Contains(t, s, "enemy_towers=[1.000 1.000 0.250]")
}
