package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/crust-sim/crust-gym/sim/rollout"
	"github.com/crust-sim/crust-gym/sim/trace"
)

var (
	// CLI flags for rollout
	episodes    int    // Number of episodes
	maxSteps    int    // Per-episode step cap
	seed        int64  // Base seed for episodes and the policy
	workers     int    // Parallel simulator processes
	policyName  string // Action policy
	traceLevel  string // Trace verbosity
	traceHeader string // Trace header output (YAML)
	traceData   string // Trace data output (CSV)
)

// traceVersion is the format version written to trace headers.
const traceVersion = 1

// rolloutCmd plays episodes with a simple policy and reports returns.
var rolloutCmd = &cobra.Command{
	Use:   "rollout",
	Short: "Play episodes with a random policy and summarize the returns",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		logrus.Infof("Starting rollout: %d episodes, seed=%d, workers=%d, policy=%s",
			cfg.Rollout.Episodes, cfg.Rollout.Seed, cfg.Rollout.Workers, cfg.Rollout.Policy)
		startTime := time.Now()
		res, err := rollout.Run(ctx, cfg.RolloutConfig())
		if err != nil {
			logrus.Errorf("rollout failed: %v", err)
			return err
		}
		summary := res.Summary()
		printSummary(cmd.OutOrStdout(), summary, time.Since(startTime))

		if cfg.Rollout.TraceHeader != "" {
			header := newTraceHeader(cfg, summary)
			if err := trace.Export(header, res.Trace, cfg.Rollout.TraceHeader, cfg.Rollout.TraceData); err != nil {
				return fmt.Errorf("exporting trace: %w", err)
			}
			logrus.Infof("Trace written to %s and %s", cfg.Rollout.TraceHeader, cfg.Rollout.TraceData)
		}
		return nil
	},
}

func applyRolloutFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	if flags.Lookup("episodes") == nil {
		return
	}
	if flags.Changed("episodes") {
		cfg.Rollout.Episodes = episodes
	}
	if flags.Changed("max-steps") {
		cfg.Rollout.MaxSteps = maxSteps
	}
	if flags.Changed("seed") {
		cfg.Rollout.Seed = seed
	}
	if flags.Changed("workers") {
		cfg.Rollout.Workers = workers
	}
	if flags.Changed("policy") {
		cfg.Rollout.Policy = policyName
	}
	if flags.Changed("trace-level") {
		cfg.Rollout.TraceLevel = traceLevel
	}
	if flags.Changed("trace-header") {
		cfg.Rollout.TraceHeader = traceHeader
	}
	if flags.Changed("trace-data") {
		cfg.Rollout.TraceData = traceData
	}
}

func newTraceHeader(cfg Config, summary *trace.TraceSummary) *trace.TraceHeader {
	return &trace.TraceHeader{
		Version:    traceVersion,
		RunID:      uuid.NewString(),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		Server:     cfg.Server.Path,
		Seed:       cfg.Rollout.Seed,
		Episodes:   cfg.Rollout.Episodes,
		MaxSteps:   cfg.Rollout.MaxSteps,
		Level:      cfg.Rollout.TraceLevel,
		Policy:     cfg.Rollout.Policy,
		AllyWeight: cfg.Env.AllyDropWeight,
		Summary:    summary,
	}
}

func printSummary(out io.Writer, s *trace.TraceSummary, elapsed time.Duration) {
	fmt.Fprintln(out, "=== Rollout Summary ===")
	fmt.Fprintf(out, "Episodes:     %d (%d won, %d lost, %d unfinished)\n", s.Episodes, s.Wins, s.Losses, s.Unfinished)
	fmt.Fprintf(out, "Win rate:     %.3f\n", s.WinRate())
	fmt.Fprintf(out, "Steps:        %d (mean length %.1f)\n", s.Steps, s.MeanLength)
	fmt.Fprintf(out, "Return:       mean %.3f, stddev %.3f, min %.3f, max %.3f\n", s.MeanReturn, s.StdDevReturn, s.MinReturn, s.MaxReturn)
	fmt.Fprintf(out, "Elapsed:      %v\n", elapsed.Round(time.Millisecond))
}

func init() {
	def := DefaultConfig().Rollout
	rolloutCmd.Flags().IntVar(&episodes, "episodes", def.Episodes, "Number of episodes to play")
	rolloutCmd.Flags().IntVar(&maxSteps, "max-steps", def.MaxSteps, "Stop an episode after this many steps (0 = until win or lose)")
	rolloutCmd.Flags().Int64Var(&seed, "seed", def.Seed, "Base seed: episode i resets with seed+i; also seeds the policy")
	rolloutCmd.Flags().IntVar(&workers, "workers", def.Workers, "Simulator processes played in parallel")
	rolloutCmd.Flags().StringVar(&policyName, "policy", def.Policy, "Action policy (random, legal, linear)")
	rolloutCmd.Flags().StringVar(&traceLevel, "trace-level", def.TraceLevel, "Trace verbosity (none, episodes, steps)")
	rolloutCmd.Flags().StringVar(&traceHeader, "trace-header", "", "Write the trace header (YAML) here")
	rolloutCmd.Flags().StringVar(&traceData, "trace-data", "", "Write the trace records (CSV) here")
}
