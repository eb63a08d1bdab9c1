// Package process owns the simulator child process: launch, line I/O over
// its standard streams, and orderly shutdown.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crust-sim/crust-gym/sim"
)

// maxLineBytes bounds a single stdout line. Snapshots are a few KiB.
const maxLineBytes = 1 << 20

// ExitCommand is the line written by Shutdown to ask the simulator to stop.
const ExitCommand = "EXIT"

// Config describes how to launch the simulator.
type Config struct {
	Path string   // executable path or name resolved via PATH
	Args []string // extra arguments
	Env  []string // KEY=VALUE pairs appended to the parent environment
	Dir  string   // working directory; empty means the current one

	// ReadTimeout bounds each ReadLine call. Zero disables the timeout.
	ReadTimeout time.Duration
}

type lineResult struct {
	text string
	err  error
}

// Supervisor owns one simulator process and its pipes.
// It is meant to be driven by a single goroutine.
type Supervisor struct {
	cfg Config
	log *logrus.Entry

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *bufio.Writer

	lines  chan lineResult
	stop   chan struct{} // closed to unblock the stdout pump
	exited chan struct{} // closed once cmd.Wait has returned

	waitErr  error
	stopOnce sync.Once
	killed   atomic.Bool // set by Kill; later reads skip buffered output

	shutdownOnce sync.Once
	shutdown     ShutdownResult
}

// New returns an unstarted Supervisor.
func New(cfg Config) *Supervisor {
	return &Supervisor{
		cfg: cfg,
		log: logrus.WithField("component", "process"),
	}
}

// Start launches the simulator. A missing binary or a failed exec is reported
// as sim.ErrLaunch.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cmd != nil {
		return fmt.Errorf("%w: supervisor already started", sim.ErrLaunch)
	}
	if s.cfg.Path == "" {
		return fmt.Errorf("%w: no simulator path configured", sim.ErrLaunch)
	}
	path, err := exec.LookPath(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", sim.ErrLaunch, err)
	}

	// ctx only gates the launch; the process outlives it and is stopped by Shutdown.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", sim.ErrLaunch, err)
	}

	cmd := exec.Command(path, s.cfg.Args...)
	cmd.Dir = s.cfg.Dir
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %w", sim.ErrLaunch, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return fmt.Errorf("%w: stdout pipe: %w", sim.ErrLaunch, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return fmt.Errorf("%w: stderr pipe: %w", sim.ErrLaunch, err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		return fmt.Errorf("%w: %w", sim.ErrLaunch, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.writer = bufio.NewWriter(stdin)
	s.lines = make(chan lineResult, 64)
	s.stop = make(chan struct{})
	s.exited = make(chan struct{})
	s.log = s.log.WithField("pid", cmd.Process.Pid)

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		s.pumpStdout(stdout)
	}()
	go func() {
		defer pumps.Done()
		s.pumpStderr(stderr)
	}()
	// Wait closes the pipes, so it may only run after both pumps drained them.
	go func() {
		pumps.Wait()
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()

	s.log.Debugf("started simulator %s", path)
	return nil
}

func (s *Supervisor) pumpStdout(r io.Reader) {
	defer close(s.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		select {
		case s.lines <- lineResult{text: scanner.Text()}:
		case <-s.stop:
			_, _ = io.Copy(io.Discard, r)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case s.lines <- lineResult{err: fmt.Errorf("read simulator stdout: %w", err)}:
		case <-s.stop:
		}
		_, _ = io.Copy(io.Discard, r)
	}
}

func (s *Supervisor) pumpStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		s.log.WithField("stream", "stderr").Debug(scanner.Text())
	}
	_, _ = io.Copy(io.Discard, r)
}

// Started reports whether Start succeeded.
func (s *Supervisor) Started() bool {
	return s.cmd != nil
}

// Pid returns the simulator's process id, or 0 before Start.
func (s *Supervisor) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Exited reports whether the simulator process has terminated.
func (s *Supervisor) Exited() bool {
	if s.exited == nil {
		return false
	}
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

// WriteLine writes text plus a newline and flushes it to the simulator.
func (s *Supervisor) WriteLine(text string) error {
	if s.cmd == nil {
		return fmt.Errorf("%w: simulator not started", sim.ErrBrokenPipe)
	}
	if s.Exited() {
		return fmt.Errorf("%w: simulator already exited", sim.ErrBrokenPipe)
	}
	if _, err := s.writer.WriteString(text + "\n"); err != nil {
		return fmt.Errorf("%w: %w", sim.ErrBrokenPipe, err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("%w: %w", sim.ErrBrokenPipe, err)
	}
	return nil
}

// ReadLine blocks until the simulator prints a full line. It returns io.EOF
// once stdout is closed. Cancelling ctx or exceeding Config.ReadTimeout kills
// the simulator; every later ReadLine reports io.EOF, even if output was still
// buffered.
func (s *Supervisor) ReadLine(ctx context.Context) (string, error) {
	if s.cmd == nil || s.killed.Load() {
		return "", io.EOF
	}

	var timeout <-chan time.Time
	if s.cfg.ReadTimeout > 0 {
		timer := time.NewTimer(s.cfg.ReadTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return res.text, res.err
	case <-ctx.Done():
		s.log.Warn("read cancelled, killing simulator")
		s.Kill()
		return "", ctx.Err()
	case <-timeout:
		s.log.Warnf("no simulator output within %v, killing simulator", s.cfg.ReadTimeout)
		s.Kill()
		return "", fmt.Errorf("%w after %v", sim.ErrReadTimeout, s.cfg.ReadTimeout)
	}
}

// Kill force-terminates the simulator. Safe to call at any time.
func (s *Supervisor) Kill() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	s.killed.Store(true)
	s.stopPumps()
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.log.Warnf("kill simulator: %v", err)
	}
}

func (s *Supervisor) stopPumps() {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
		}
	})
}
