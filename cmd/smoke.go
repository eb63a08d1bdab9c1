package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/crust-sim/crust-gym/sim/env"
)

// smokeActions are the STEP commands of the smoke scenario.
var smokeActions = []env.Action{
	{CardIdx: 0, TileIdx: 10},
	{CardIdx: 1, TileIdx: 20},
}

// smokeCmd drives one short scripted session and checks the clock advances.
var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Run RESET 0, two STEPs and EXIT against the simulator",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		if err := runSmoke(ctx, cfg.EnvConfig(), cmd.OutOrStdout()); err != nil {
			logrus.Errorf("smoke test failed: %v", err)
			return err
		}
		return nil
	},
}

func runSmoke(ctx context.Context, cfg env.Config, out io.Writer) error {
	e, err := env.New(ctx, cfg)
	if err != nil {
		return err
	}

	obs, _, err := e.Reset(ctx, env.WithSeed(0))
	if err != nil {
		e.Close()
		return err
	}
	fmt.Fprintf(out, "RESET 0: %s\n", formatObservation(obs))

	prev := obs[env.ObsTimeLeft]
	for _, a := range smokeActions {
		res, err := e.Step(ctx, a)
		if err != nil {
			e.Close()
			return err
		}
		fmt.Fprintf(out, "STEP %d %d: %s reward=%.2f\n", a.CardIdx, a.TileIdx, formatObservation(res.Observation), res.Reward)
		now := res.Observation[env.ObsTimeLeft]
		if now >= prev {
			e.Close()
			return fmt.Errorf("time_left did not decrease after %s: %v -> %v", a, prev, now)
		}
		prev = now
	}

	res := e.Close()
	fmt.Fprintf(out, "EXIT: %s in %v\n", res.Termination, res.Elapsed)
	return res.Err
}

func formatObservation(o env.Observation) string {
	return fmt.Sprintf("elixir=%.2f time_left=%.3f ally_towers=%.3f enemy_towers=%.3f",
		o[env.ObsAllyElixir], o[env.ObsTimeLeft], o.AllyTowerHP(), o.EnemyTowerHP())
}
