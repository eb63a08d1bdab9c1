// Package rollout plays whole episodes against the simulator with a simple
// policy and records them into a trace.
package rollout

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/crust-sim/crust-gym/sim"
	"github.com/crust-sim/crust-gym/sim/env"
	"github.com/crust-sim/crust-gym/sim/trace"
)

// Config configures a rollout.
type Config struct {
	Env      env.Config
	Episodes int
	// MaxSteps stops an episode the simulator has not finished. The episode
	// is recorded as unfinished. Zero means no cap.
	MaxSteps int
	Seed     int64
	// Workers is the number of simulator processes played in parallel.
	// Zero means one.
	Workers int
	Policy  string
	Trace   trace.TraceConfig
}

// EpisodeSeed is the RESET seed of episode ep (0-based).
func EpisodeSeed(base int64, ep int) uint64 {
	return uint64(base) + uint64(ep)
}

// Result is the outcome of a rollout.
type Result struct {
	// Trace holds what the configured trace level asked for.
	Trace *trace.RolloutTrace
	// Episodes holds every episode in order, whatever the trace level.
	Episodes []trace.EpisodeRecord
}

// Summary aggregates every episode played.
func (r *Result) Summary() *trace.TraceSummary {
	return trace.SummarizeEpisodes(r.Episodes)
}

type workerResult struct {
	trace    *trace.RolloutTrace
	episodes []trace.EpisodeRecord
}

// Run plays cfg.Episodes episodes. Episode ep is always played by worker
// ep % Workers, so the result for a given config does not depend on
// scheduling. The first worker to fail stops the others, and its error is the
// one returned.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Episodes <= 0 {
		return nil, fmt.Errorf("episodes must be positive, got %d", cfg.Episodes)
	}
	if cfg.MaxSteps < 0 {
		return nil, fmt.Errorf("max steps must be non-negative, got %d", cfg.MaxSteps)
	}
	if !IsValidPolicy(cfg.Policy) {
		return nil, fmt.Errorf("unknown policy %q", cfg.Policy)
	}
	if !trace.IsValidTraceLevel(string(cfg.Trace.Level)) {
		return nil, fmt.Errorf("unknown trace level %q", cfg.Trace.Level)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > cfg.Episodes {
		workers = cfg.Episodes
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rng := sim.NewPartitionedRNG(sim.NewRolloutKey(cfg.Seed))
	parts := make([]*workerResult, workers)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for w := 0; w < workers; w++ {
		subsystem := sim.SubsystemPolicy
		if w > 0 {
			subsystem = sim.SubsystemWorker(w)
		}
		policy, err := NewPolicy(cfg.Policy, env.DefaultActionSpace(), rng.ForSubsystem(subsystem))
		if err != nil {
			return nil, err
		}
		parts[w] = &workerResult{trace: trace.NewRolloutTrace(cfg.Trace)}

		wg.Add(1)
		go func(w int, policy Policy) {
			defer wg.Done()
			if err := runWorker(ctx, cfg, w, workers, policy, parts[w]); err != nil {
				// Record before cancel: failures the cancel causes in other
				// workers must not mask this one.
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("worker %d: %w", w, err)
				}
				mu.Unlock()
				cancel()
			}
		}(w, policy)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return merge(cfg.Trace, parts), nil
}

func runWorker(ctx context.Context, cfg Config, w, workers int, policy Policy, out *workerResult) error {
	e, err := env.New(ctx, cfg.Env)
	if err != nil {
		return err
	}
	defer e.Close()

	log := logrus.WithFields(logrus.Fields{"worker": w, "session": e.SessionID().String()})
	for ep := w; ep < cfg.Episodes; ep += workers {
		rec, err := playEpisode(ctx, e, cfg.MaxSteps, ep, EpisodeSeed(cfg.Seed, ep), policy, out.trace)
		if err != nil {
			return fmt.Errorf("episode %d: %w", ep, err)
		}
		out.episodes = append(out.episodes, rec)
		out.trace.RecordEpisode(rec)
		log.Infof("episode %d: %s after %d steps, return %.2f", ep, rec.Outcome, rec.Steps, rec.Return)
	}
	return nil
}

func playEpisode(ctx context.Context, e *env.Env, maxSteps, ep int, seed uint64, policy Policy, rt *trace.RolloutTrace) (trace.EpisodeRecord, error) {
	rec := trace.EpisodeRecord{Episode: ep, Seed: seed, Outcome: trace.OutcomeUnfinished}

	obs, info, err := e.Reset(ctx, env.WithSeed(seed))
	if err != nil {
		return rec, err
	}
	for maxSteps == 0 || rec.Steps < maxSteps {
		a := policy.Act(obs, info)
		res, err := e.Step(ctx, a)
		if err != nil {
			return rec, err
		}
		rec.Steps++
		rec.Return += res.Reward
		rt.RecordStep(trace.StepRecord{
			Episode:    ep,
			Step:       rec.Steps,
			CardIdx:    a.CardIdx,
			TileIdx:    a.TileIdx,
			Reward:     res.Reward,
			AllyElixir: res.Observation[env.ObsAllyElixir],
			TimeLeft:   res.Observation[env.ObsTimeLeft],
			Terminated: res.Terminated,
		})
		obs, info = res.Observation, res.Info
		if res.Terminated {
			rec.Outcome = outcome(info)
			break
		}
	}
	return rec, nil
}

func outcome(info env.Info) trace.Outcome {
	switch {
	case info.Win:
		return trace.OutcomeWin
	case info.Lose:
		return trace.OutcomeLose
	default:
		return trace.OutcomeUnfinished
	}
}

// merge combines per-worker results ordered by episode, then step.
func merge(config trace.TraceConfig, parts []*workerResult) *Result {
	res := &Result{Trace: trace.NewRolloutTrace(config)}
	for _, p := range parts {
		res.Episodes = append(res.Episodes, p.episodes...)
		res.Trace.Episodes = append(res.Trace.Episodes, p.trace.Episodes...)
		res.Trace.Steps = append(res.Trace.Steps, p.trace.Steps...)
	}
	byEpisode := func(eps []trace.EpisodeRecord) {
		sort.SliceStable(eps, func(i, j int) bool { return eps[i].Episode < eps[j].Episode })
	}
	byEpisode(res.Episodes)
	byEpisode(res.Trace.Episodes)
	steps := res.Trace.Steps
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Episode != steps[j].Episode {
			return steps[i].Episode < steps[j].Episode
		}
		return steps[i].Step < steps[j].Step
	})
	return res
}
