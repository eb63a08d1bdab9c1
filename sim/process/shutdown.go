package process

import (
	"errors"
	"os/exec"
	"time"
)

// Termination describes how the simulator stopped.
type Termination string

const (
	// TerminationGraceful means the simulator exited on its own after EXIT.
	TerminationGraceful Termination = "graceful"
	// TerminationForced means the simulator ignored EXIT and was killed.
	TerminationForced Termination = "forced"
	// TerminationAlreadyExited means the simulator was gone (or never
	// started) before Shutdown ran.
	TerminationAlreadyExited Termination = "already-exited"
)

// ShutdownResult reports the outcome of Shutdown.
type ShutdownResult struct {
	Termination Termination
	ExitCode    int // -1 when killed by a signal or unknown
	Elapsed     time.Duration
	Err         error // non-nil only if the process could not be reaped
}

// killGrace bounds how long Shutdown waits for the process to be reaped after
// a kill.
const killGrace = 5 * time.Second

// Shutdown asks the simulator to exit, waits up to timeout, then kills it.
// It is idempotent: later calls return the first result. Pipes and the
// process handle are released on every path.
func (s *Supervisor) Shutdown(timeout time.Duration) ShutdownResult {
	s.shutdownOnce.Do(func() {
		s.shutdown = s.doShutdown(timeout)
		s.log.WithField("termination", s.shutdown.Termination).
			Debugf("simulator stopped in %v (exit code %d)", s.shutdown.Elapsed, s.shutdown.ExitCode)
	})
	return s.shutdown
}

func (s *Supervisor) doShutdown(timeout time.Duration) ShutdownResult {
	start := time.Now()
	if s.cmd == nil {
		return ShutdownResult{Termination: TerminationAlreadyExited, ExitCode: -1}
	}

	if s.Exited() {
		s.stopPumps()
		_ = s.stdin.Close()
		return ShutdownResult{
			Termination: TerminationAlreadyExited,
			ExitCode:    s.exitCode(),
			Elapsed:     time.Since(start),
		}
	}

	// Best effort: a dead pipe here just means the process is on its way out.
	if err := s.WriteLine(ExitCommand); err != nil {
		s.log.Debugf("send %s: %v", ExitCommand, err)
	}
	_ = s.stdin.Close()
	// Nobody reads responses after EXIT; unread output must not keep the
	// stdout pump (and so Wait) blocked.
	s.stopPumps()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.exited:
		return ShutdownResult{
			Termination: TerminationGraceful,
			ExitCode:    s.exitCode(),
			Elapsed:     time.Since(start),
		}
	case <-timer.C:
	}

	s.log.Warnf("simulator did not exit within %v, killing it", timeout)
	s.Kill()
	res := ShutdownResult{Termination: TerminationForced, ExitCode: -1}
	select {
	case <-s.exited:
		res.ExitCode = s.exitCode()
	case <-time.After(killGrace):
		res.Err = errors.New("simulator not reaped after kill")
	}
	res.Elapsed = time.Since(start)
	return res
}

func (s *Supervisor) exitCode() int {
	if s.waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(s.waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
