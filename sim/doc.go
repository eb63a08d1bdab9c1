// Package sim holds what the crust-gym packages share: sentinel errors and
// partitioned random number generation.
//
// # Reading Guide
//
// Data flows bottom-up through the sub-packages:
//   - sim/process/: launches crust_sim_server, line I/O over its pipes, shutdown
//   - sim/protocol/: command encoding and line classification (empty, diagnostic, JSON snapshot)
//   - sim/session/: one command in, one snapshot out, diagnostics skipped
//   - sim/env/: reset/step environment with fixed observation and action spaces
//   - sim/rollout/: policies and multi-episode rollouts over one or more simulators
//   - sim/trace/: rollout records, summaries and YAML/CSV export
//
// # Errors
//
// Every failure wraps one of the sentinels in errors.go; match with errors.Is.
// Any error closes the session it happened on. There is no retry.
package sim
