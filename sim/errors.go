package sim

import "errors"

// Error taxonomy shared by the supervisor, codec, session and environment.
// Every one of these ends the current session; nothing in this module
// retries or reconnects. Callers match with errors.Is.
var (
	// ErrLaunch reports that the simulator binary is missing or failed to start.
	ErrLaunch = errors.New("simulator launch failed")

	// ErrBrokenPipe reports a write after the simulator exited or closed stdin.
	ErrBrokenPipe = errors.New("simulator input pipe broken")

	// ErrProtocolDecode reports a '{'-prefixed line that is not a valid snapshot.
	ErrProtocolDecode = errors.New("malformed snapshot line")

	// ErrSessionClosed reports that the output stream ended before a response,
	// or that the session was already terminated by an earlier failure.
	ErrSessionClosed = errors.New("simulation session closed")

	// ErrReadTimeout reports that no output line arrived within the read timeout.
	// The simulator is killed before this error is returned.
	ErrReadTimeout = errors.New("timed out waiting for simulator output")

	// ErrEpisodeNotActive reports a Step issued before Reset or after the
	// episode reached a terminal state.
	ErrEpisodeNotActive = errors.New("episode not active")
)
