// Package session pairs each outbound simulator command with exactly one
// inbound snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/crust-sim/crust-gym/sim"
	"github.com/crust-sim/crust-gym/sim/protocol"
)

// Transport is the line I/O a Client needs. *process.Supervisor satisfies it.
type Transport interface {
	WriteLine(text string) error
	ReadLine(ctx context.Context) (string, error)
}

// DiagnosticSink receives every non-record, non-empty line read while
// waiting for a snapshot.
type DiagnosticSink func(text string)

// Stats counts traffic on one session.
type Stats struct {
	CommandsSent      int
	SnapshotsReceived int
	DiagnosticLines   int
}

// Client drives one simulator session. Requests are strictly sequential; a
// Client must not be shared between goroutines.
type Client struct {
	id         uuid.UUID
	transport  Transport
	diagnostic DiagnosticSink
	log        *logrus.Entry

	stats Stats
	last  *protocol.Snapshot
	err   error // first fatal error; set once, never cleared
}

// Option configures a Client.
type Option func(*Client)

// WithDiagnosticSink replaces the default sink, which logs at debug level.
func WithDiagnosticSink(sink DiagnosticSink) Option {
	return func(c *Client) {
		c.diagnostic = sink
	}
}

// WithID fixes the session id instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(c *Client) {
		c.id = id
	}
}

// NewClient returns a Client bound to t.
func NewClient(t Transport, opts ...Option) *Client {
	c := &Client{
		id:        uuid.New(),
		transport: t,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logrus.WithField("session", c.id.String())
	if c.diagnostic == nil {
		c.diagnostic = func(text string) {
			c.log.WithField("stream", "stdout").Debug(text)
		}
	}
	return c
}

// ID returns the session id.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// Stats returns traffic counters.
func (c *Client) Stats() Stats {
	return c.stats
}

// Last returns the most recent snapshot, or nil. It is stale as soon as
// another command is sent.
func (c *Client) Last() *protocol.Snapshot {
	return c.last
}

// Err returns the error that closed the session, if any.
func (c *Client) Err() error {
	return c.err
}

// Send writes cmd and returns the snapshot that answers it. EXIT is written
// and closes the session without waiting for a reply; the returned snapshot
// is nil.
//
// There are no retries. Any failure closes the session and every later Send
// returns sim.ErrSessionClosed wrapping that first failure.
func (c *Client) Send(ctx context.Context, cmd protocol.Command) (*protocol.Snapshot, error) {
	if c.err != nil {
		return nil, fmt.Errorf("%w: %w", sim.ErrSessionClosed, c.err)
	}

	line := cmd.Encode()
	if err := c.transport.WriteLine(line); err != nil {
		return nil, c.fail(fmt.Errorf("send %q: %w", line, err))
	}
	c.stats.CommandsSent++
	c.log.Tracef("-> %s", line)

	if !cmd.ExpectsResponse() {
		c.err = errExited
		c.last = nil
		return nil, nil
	}

	snap, err := c.readSnapshot(ctx)
	if err != nil {
		return nil, c.fail(fmt.Errorf("await response to %q: %w", line, err))
	}
	c.stats.SnapshotsReceived++
	c.last = snap
	return snap, nil
}

var errExited = errors.New("EXIT sent")

func (c *Client) readSnapshot(ctx context.Context) (*protocol.Snapshot, error) {
	for {
		raw, err := c.transport.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: simulator output ended", sim.ErrSessionClosed)
		}
		if err != nil {
			return nil, err
		}

		line, snap, err := protocol.Decode(raw)
		if err != nil {
			return nil, err
		}
		switch line.Kind {
		case protocol.LineRecord:
			return snap, nil
		case protocol.LineDiagnostic:
			c.stats.DiagnosticLines++
			c.diagnostic(line.Text)
		}
	}
}

func (c *Client) fail(err error) error {
	c.err = err
	c.last = nil
	c.log.Errorf("session closed: %v", err)
	return err
}
