// Package env adapts a simulator session to a reset/step reinforcement
// learning interface with fixed observation and action schemas.
package env

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/crust-sim/crust-gym/sim"
	"github.com/crust-sim/crust-gym/sim/process"
	"github.com/crust-sim/crust-gym/sim/protocol"
	"github.com/crust-sim/crust-gym/sim/session"
)

// DefaultShutdownTimeout is how long Close waits for the simulator to exit
// after EXIT before killing it.
const DefaultShutdownTimeout = time.Second

// DefaultAllyDropWeight scales damage taken in the reward.
const DefaultAllyDropWeight = 0.5

// Config configures an Env.
type Config struct {
	Process         process.Config
	ShutdownTimeout time.Duration // zero means DefaultShutdownTimeout
	AllyDropWeight  float64       // zero means DefaultAllyDropWeight

	// Diagnostic receives banner and debug lines from the simulator's stdout.
	// Nil logs them at debug level.
	Diagnostic session.DiagnosticSink
}

// EpisodeState is the episode state machine: INIT -> ACTIVE -> DONE.
type EpisodeState int

const (
	EpisodeInit EpisodeState = iota
	EpisodeActive
	EpisodeDone
)

func (s EpisodeState) String() string {
	switch s {
	case EpisodeInit:
		return "init"
	case EpisodeActive:
		return "active"
	case EpisodeDone:
		return "done"
	default:
		return "unknown"
	}
}

// Info carries snapshot details that are not part of the observation.
type Info struct {
	TimeMs   uint64
	TimeLeft float64
	Overtime bool
	Win      bool
	Lose     bool
	Legal    *protocol.LegalMasks // nil if the simulator did not send masks
}

// StepResult is the outcome of one Step.
type StepResult struct {
	Observation Observation
	Reward      float64
	Terminated  bool
	// Truncated is always false: the adapter never ends an episode on time.
	Truncated bool
	Info      Info
}

// Env is a reinforcement learning environment backed by one simulator
// process. The process lives from New until Close and is reused across
// episodes. Not safe for concurrent use.
type Env struct {
	cfg    Config
	proc   *process.Supervisor
	client *session.Client
	log    *logrus.Entry

	actions      ActionSpace
	observations ObservationSpace

	state   EpisodeState
	seed    uint64
	steps   int
	episode int

	closed      bool
	closeResult process.ShutdownResult
}

// New launches the simulator and returns an Env in the INIT state.
func New(ctx context.Context, cfg Config) (*Env, error) {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.AllyDropWeight == 0 {
		cfg.AllyDropWeight = DefaultAllyDropWeight
	}

	proc := process.New(cfg.Process)
	if err := proc.Start(ctx); err != nil {
		return nil, err
	}

	var opts []session.Option
	if cfg.Diagnostic != nil {
		opts = append(opts, session.WithDiagnosticSink(cfg.Diagnostic))
	}
	client := session.NewClient(proc, opts...)

	return &Env{
		cfg:          cfg,
		proc:         proc,
		client:       client,
		log:          logrus.WithField("session", client.ID().String()),
		actions:      DefaultActionSpace(),
		observations: DefaultObservationSpace(),
	}, nil
}

// ActionSpace returns the action space.
func (e *Env) ActionSpace() ActionSpace { return e.actions }

// ObservationSpace returns the observation space.
func (e *Env) ObservationSpace() ObservationSpace { return e.observations }

// State returns the episode state.
func (e *Env) State() EpisodeState { return e.state }

// SessionID identifies the underlying simulator session in logs.
func (e *Env) SessionID() uuid.UUID { return e.client.ID() }

// Seed returns the seed of the current episode.
func (e *Env) Seed() uint64 { return e.seed }

// Steps returns the number of steps taken in the current episode.
func (e *Env) Steps() int { return e.steps }

// Episode returns how many episodes Reset has started.
func (e *Env) Episode() int { return e.episode }

// Stats returns session traffic counters.
func (e *Env) Stats() session.Stats { return e.client.Stats() }

// ResetOption configures Reset.
type ResetOption func(*resetOptions)

type resetOptions struct {
	seed uint64
}

// WithSeed sets the match seed. Without it Reset uses seed 0.
func WithSeed(seed uint64) ResetOption {
	return func(o *resetOptions) {
		o.seed = seed
	}
}

// Reset starts a new episode on the running simulator.
func (e *Env) Reset(ctx context.Context, opts ...ResetOption) (Observation, Info, error) {
	var o resetOptions
	for _, opt := range opts {
		opt(&o)
	}

	snap, err := e.client.Send(ctx, protocol.Reset(o.seed))
	if err != nil {
		e.state = EpisodeDone
		return Observation{}, Info{}, fmt.Errorf("reset (seed %d): %w", o.seed, err)
	}

	e.seed = o.seed
	e.steps = 0
	e.episode++
	e.state = EpisodeActive
	e.log.Debugf("episode %d started with seed %d", e.episode, o.seed)
	return ObservationFromSnapshot(snap), infoFromSnapshot(snap), nil
}

// Step plays one action. The action is not range-checked. Only a Step before
// the first Reset is refused; after the episode has ended the command still
// goes to the simulator, which decides what a late action means.
func (e *Env) Step(ctx context.Context, a Action) (StepResult, error) {
	if e.state == EpisodeInit {
		return StepResult{}, fmt.Errorf("%w: state is %s, call Reset first", sim.ErrEpisodeNotActive, e.state)
	}
	if e.closed {
		return StepResult{}, fmt.Errorf("%w: environment closed", sim.ErrSessionClosed)
	}

	snap, err := e.client.Send(ctx, protocol.Step(a.CardIdx, a.TileIdx))
	if err != nil {
		e.state = EpisodeDone
		return StepResult{}, fmt.Errorf("step %d (%s): %w", e.steps, a, err)
	}
	e.steps++

	res := StepResult{
		Observation: ObservationFromSnapshot(snap),
		Reward:      Reward(snap.EnemyTowerHPDrop, snap.AllyTowerHPDrop, e.cfg.AllyDropWeight),
		Terminated:  Terminated(snap),
		Info:        infoFromSnapshot(snap),
	}
	if !res.Terminated {
		e.state = EpisodeActive
	} else if e.state == EpisodeActive {
		e.state = EpisodeDone
		e.log.Debugf("episode %d finished after %d steps (win=%t lose=%t)", e.episode, e.steps, snap.Win, snap.Lose)
	}
	return res, nil
}

// Peek re-reads the current snapshot without advancing the simulation.
func (e *Env) Peek(ctx context.Context) (Observation, Info, error) {
	snap, err := e.client.Send(ctx, protocol.State())
	if err != nil {
		e.state = EpisodeDone
		return Observation{}, Info{}, fmt.Errorf("state: %w", err)
	}
	return ObservationFromSnapshot(snap), infoFromSnapshot(snap), nil
}

// Close stops the simulator. Failures are logged, never returned; the result
// says whether the process exited on its own or had to be killed. Repeated
// calls return the first result.
func (e *Env) Close() process.ShutdownResult {
	if e.closed {
		return e.closeResult
	}
	e.closed = true
	e.state = EpisodeDone

	res := e.proc.Shutdown(e.cfg.ShutdownTimeout)
	switch {
	case res.Err != nil:
		e.log.Warnf("simulator shutdown: %v", res.Err)
	case res.Termination == process.TerminationForced:
		e.log.Warnf("simulator ignored %s and was killed", process.ExitCommand)
	}
	e.closeResult = res
	return res
}

// Reward is damage dealt minus weighted damage taken during one tick.
func Reward(enemyDrop, allyDrop, allyWeight float64) float64 {
	return enemyDrop - allyWeight*allyDrop
}

// Terminated reports whether the match has a winner. Time running out on its
// own does not end the episode.
func Terminated(s *protocol.Snapshot) bool {
	return s.Win || s.Lose
}

func infoFromSnapshot(s *protocol.Snapshot) Info {
	return Info{
		TimeMs:   s.TimeMs,
		TimeLeft: s.TimeLeft,
		Overtime: s.Overtime,
		Win:      s.Win,
		Lose:     s.Lose,
		Legal:    s.Legal,
	}
}
