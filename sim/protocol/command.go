// Package protocol implements the line-oriented wire format spoken by
// crust_sim_server: one command per line out, one JSON snapshot per line back,
// with free-form diagnostic lines mixed in.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is a command verb.
type Op string

const (
	OpReset Op = "RESET"
	OpStep  Op = "STEP"
	OpState Op = "STATE"
	OpExit  Op = "EXIT"
)

// Command is one request to the simulator.
type Command struct {
	Op      Op
	Seed    uint64 // RESET only
	CardIdx int    // STEP only
	TileIdx int    // STEP only
}

// Reset starts a new match with the given seed.
func Reset(seed uint64) Command {
	return Command{Op: OpReset, Seed: seed}
}

// Step plays the card in hand slot cardIdx on tile tileIdx and advances the
// simulation. Indices are passed through unchecked.
func Step(cardIdx, tileIdx int) Command {
	return Command{Op: OpStep, CardIdx: cardIdx, TileIdx: tileIdx}
}

// State re-reads the current snapshot without advancing the simulation.
func State() Command {
	return Command{Op: OpState}
}

// Exit stops the simulator. No snapshot follows it.
func Exit() Command {
	return Command{Op: OpExit}
}

// ExpectsResponse reports whether the simulator answers this command with a
// snapshot.
func (c Command) ExpectsResponse() bool {
	return c.Op != OpExit
}

// Encode renders the command as a single line without the terminator.
func (c Command) Encode() string {
	switch c.Op {
	case OpReset:
		return fmt.Sprintf("%s %d", OpReset, c.Seed)
	case OpStep:
		return fmt.Sprintf("%s %d %d", OpStep, c.CardIdx, c.TileIdx)
	default:
		return string(c.Op)
	}
}

func (c Command) String() string {
	return c.Encode()
}

// ParseCommand is the inverse of Encode.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command line")
	}

	switch Op(fields[0]) {
	case OpReset:
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("RESET wants 1 argument, got %d", len(fields)-1)
		}
		seed, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("RESET seed: %w", err)
		}
		return Reset(seed), nil
	case OpStep:
		if len(fields) != 3 {
			return Command{}, fmt.Errorf("STEP wants 2 arguments, got %d", len(fields)-1)
		}
		card, err := strconv.Atoi(fields[1])
		if err != nil {
			return Command{}, fmt.Errorf("STEP card_idx: %w", err)
		}
		tile, err := strconv.Atoi(fields[2])
		if err != nil {
			return Command{}, fmt.Errorf("STEP tile_idx: %w", err)
		}
		return Step(card, tile), nil
	case OpState, OpExit:
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("%s takes no arguments", fields[0])
		}
		return Command{Op: Op(fields[0])}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
}
