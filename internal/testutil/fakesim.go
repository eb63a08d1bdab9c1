// Package testutil provides shared test infrastructure: a fake
// crust_sim_server that runs inside the test binary, and float assertions.
//
// Packages that launch the fake simulator dispatch to it from TestMain:
//
//	func TestMain(m *testing.M) {
//		if testutil.IsFakeSim() {
//			os.Exit(testutil.RunFakeSim(os.Stdin, os.Stdout, os.Stderr))
//		}
//		os.Exit(m.Run())
//	}
package testutil

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/crust-sim/crust-gym/sim/process"
	"github.com/crust-sim/crust-gym/sim/protocol"
)

const (
	envFakeSim   = "CRUST_GYM_FAKE_SIM"
	envMode      = "FAKE_SIM_MODE"
	envWinAfter  = "FAKE_SIM_WIN_AFTER"
	envLoseAfter = "FAKE_SIM_LOSE_AFTER"
	envTimeLeft  = "FAKE_SIM_TIME_LEFT"
	envDrops     = "FAKE_SIM_DROPS"
)

// Fake simulator modes.
const (
	ModeNormal     = ""            // well-behaved server
	ModeMalformed  = "malformed"   // answers STEP with a broken '{' line
	ModeSilent     = "silent"      // never answers STEP
	ModeCrash      = "crash"       // exits without output on STEP
	ModeIgnoreExit = "ignore-exit" // keeps running after EXIT and stdin EOF
	ModeNoBanner   = "no-banner"   // no diagnostic lines at all
	// ModeCrashOddSeed exits on STEP after an odd RESET seed and never
	// answers STEP after an even one.
	ModeCrashOddSeed = "crash-odd-seed"
)

// MatchSeconds is the fake simulator's match length.
const MatchSeconds = 180.0

// TickSeconds is how much time_left drops per STEP.
const TickSeconds = 1.0 / 60.0

// FakeSimOptions configures one fake simulator process.
type FakeSimOptions struct {
	Mode      string
	WinAfter  int     // steps until win=true; 0 disables
	LoseAfter int     // steps until lose=true; 0 disables
	TimeLeft  float64 // initial time_left; 0 means MatchSeconds
	// FixedDrops, if set, replaces the seeded per-tick drops with
	// {enemy, ally}.
	FixedDrops *[2]float64
}

// FakeSimConfig returns a process.Config that re-executes the running test
// binary as a fake simulator.
func FakeSimConfig(t *testing.T, opts FakeSimOptions) process.Config {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("locate test binary: %v", err)
	}
	env := []string{
		envFakeSim + "=1",
		envMode + "=" + opts.Mode,
		envWinAfter + "=" + strconv.Itoa(opts.WinAfter),
		envLoseAfter + "=" + strconv.Itoa(opts.LoseAfter),
		envTimeLeft + "=" + strconv.FormatFloat(opts.TimeLeft, 'g', -1, 64),
	}
	if opts.FixedDrops != nil {
		env = append(env, fmt.Sprintf("%s=%g,%g", envDrops, opts.FixedDrops[0], opts.FixedDrops[1]))
	}
	return process.Config{Path: exe, Env: env}
}

// IsFakeSim reports whether this process was started by FakeSimConfig.
func IsFakeSim() bool {
	return os.Getenv(envFakeSim) == "1"
}

type fakeSim struct {
	opts FakeSimOptions
	out  *bufio.Writer
	diag io.Writer

	rng         *rand.Rand
	seed        uint64
	timeLeft    float64
	steps       int
	elixir      float64
	allyTowers  []protocol.Tower
	enemyTowers []protocol.Tower
}

// RunFakeSim serves the line protocol on in/out until EXIT or EOF and returns
// the process exit code.
func RunFakeSim(in io.Reader, out, diag io.Writer) int {
	opts, err := fakeSimOptionsFromEnv()
	if err != nil {
		fmt.Fprintf(diag, "fake sim: %v\n", err)
		return 2
	}
	s := &fakeSim{opts: opts, out: bufio.NewWriter(out), diag: diag}
	s.reset(0)

	fmt.Fprintln(diag, "crust_sim_server ready. Commands: RESET <seed>, STATE, EXIT")
	s.banner("crust_sim_server v0 (fake)")

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd, err := protocol.ParseCommand(scanner.Text())
		if err != nil {
			fmt.Fprintf(diag, "Unknown command: %v\n", err)
			continue
		}

		switch cmd.Op {
		case protocol.OpExit:
			if s.opts.Mode == ModeIgnoreExit {
				continue
			}
			return 0
		case protocol.OpReset:
			s.reset(cmd.Seed)
			s.banner(fmt.Sprintf("RESET: Player1 hand size = 4, seed = %d", cmd.Seed))
			s.emit()
		case protocol.OpState:
			s.emit()
		case protocol.OpStep:
			switch s.opts.Mode {
			case ModeCrash:
				return 3
			case ModeSilent:
				continue
			case ModeCrashOddSeed:
				if s.seed%2 == 1 {
					return 3
				}
				continue
			case ModeMalformed:
				s.banner("DEBUG: about to send a broken snapshot")
				s.writeLine(`{"ally_elixir": 5, "time_left":`)
				continue
			}
			s.banner(fmt.Sprintf("DEBUG: STEP command received card_idx=%d, tile_idx=%d", cmd.CardIdx, cmd.TileIdx))
			s.step(cmd.CardIdx, cmd.TileIdx)
		}
	}

	if s.opts.Mode == ModeIgnoreExit {
		time.Sleep(time.Hour)
	}
	return 0
}

func fakeSimOptionsFromEnv() (FakeSimOptions, error) {
	opts := FakeSimOptions{Mode: os.Getenv(envMode)}
	var err error
	if v := os.Getenv(envWinAfter); v != "" {
		if opts.WinAfter, err = strconv.Atoi(v); err != nil {
			return opts, fmt.Errorf("%s: %w", envWinAfter, err)
		}
	}
	if v := os.Getenv(envLoseAfter); v != "" {
		if opts.LoseAfter, err = strconv.Atoi(v); err != nil {
			return opts, fmt.Errorf("%s: %w", envLoseAfter, err)
		}
	}
	if v := os.Getenv(envTimeLeft); v != "" {
		if opts.TimeLeft, err = strconv.ParseFloat(v, 64); err != nil {
			return opts, fmt.Errorf("%s: %w", envTimeLeft, err)
		}
	}
	if v := os.Getenv(envDrops); v != "" {
		var d [2]float64
		if _, err := fmt.Sscanf(v, "%g,%g", &d[0], &d[1]); err != nil {
			return opts, fmt.Errorf("%s: %w", envDrops, err)
		}
		opts.FixedDrops = &d
	}
	return opts, nil
}

func (s *fakeSim) reset(seed uint64) {
	s.rng = rand.New(rand.NewSource(int64(seed)))
	s.seed = seed
	s.timeLeft = s.opts.TimeLeft
	if s.timeLeft == 0 {
		s.timeLeft = MatchSeconds
	}
	s.steps = 0
	s.elixir = 5
	// Raw order is deliberately not sorted by x.
	s.allyTowers = []protocol.Tower{
		{Owner: "ALLY", X: 14.5, Y: 6.5, HPFrac: 1},
		{Owner: "ALLY", X: 3.5, Y: 6.5, HPFrac: 1},
		{Owner: "ALLY", X: 9, Y: 3, HPFrac: 1},
	}
	s.enemyTowers = []protocol.Tower{
		{Owner: "ENEMY", X: 9, Y: 29, HPFrac: 1},
		{Owner: "ENEMY", X: 14.5, Y: 25.5, HPFrac: 1},
		{Owner: "ENEMY", X: 3.5, Y: 25.5, HPFrac: 1},
	}
}

func (s *fakeSim) step(cardIdx, tileIdx int) {
	s.steps++
	s.timeLeft -= TickSeconds

	var enemyDrop, allyDrop float64
	if s.opts.FixedDrops != nil {
		enemyDrop, allyDrop = s.opts.FixedDrops[0], s.opts.FixedDrops[1]
	} else {
		enemyDrop = float64(s.rng.Intn(40)) * float64(cardIdx%4+1)
		allyDrop = float64(s.rng.Intn(30))
	}
	damage(s.enemyTowers, (tileIdx%3+1)%3, enemyDrop)
	damage(s.allyTowers, s.rng.Intn(3), allyDrop)

	s.elixir += 0.5
	if s.elixir > 10 {
		s.elixir = 10
	}

	snap := s.snapshot()
	snap.EnemyTowerHPDrop = enemyDrop
	snap.AllyTowerHPDrop = allyDrop
	snap.Win = s.opts.WinAfter > 0 && s.steps >= s.opts.WinAfter
	snap.Lose = s.opts.LoseAfter > 0 && s.steps >= s.opts.LoseAfter
	s.write(snap)
}

func damage(towers []protocol.Tower, idx int, hp float64) {
	const towerHP = 3000.0
	t := &towers[idx]
	t.HPFrac -= hp / towerHP
	if t.HPFrac < 0 {
		t.HPFrac = 0
	}
}

func (s *fakeSim) snapshot() *protocol.Snapshot {
	legal := &protocol.LegalMasks{
		Cards:     make([]bool, 8),
		TilesFlat: make([]bool, 16*9),
	}
	for i := range legal.Cards {
		legal.Cards[i] = i < 4
	}
	for i := range legal.TilesFlat {
		legal.TilesFlat[i] = true
	}
	return &protocol.Snapshot{
		TimeMs:      uint64(s.steps) * 1000 / 60,
		AllyElixir:  s.elixir,
		TimeLeft:    s.timeLeft,
		AllyTowers:  append([]protocol.Tower(nil), s.allyTowers...),
		EnemyTowers: append([]protocol.Tower(nil), s.enemyTowers...),
		Legal:       legal,
	}
}

func (s *fakeSim) emit() {
	s.write(s.snapshot())
}

func (s *fakeSim) write(snap *protocol.Snapshot) {
	line, err := protocol.EncodeSnapshot(snap)
	if err != nil {
		fmt.Fprintf(s.diag, "encode snapshot: %v\n", err)
		return
	}
	s.writeLine(line)
}

func (s *fakeSim) banner(text string) {
	if s.opts.Mode == ModeNoBanner {
		return
	}
	s.writeLine(text)
	s.writeLine("")
}

func (s *fakeSim) writeLine(text string) {
	_, _ = s.out.WriteString(text + "\n")
	_ = s.out.Flush()
}
