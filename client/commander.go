package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mbocsi/simbridge/metric"
	"github.com/mbocsi/simbridge/proto"
	"github.com/mbocsi/simbridge/transport"
)

// DefaultCommandTimeout bounds how long Send waits for a reply.
const DefaultCommandTimeout = 2000 * time.Millisecond

type ErrorKind int

const (
	KindTimeout ErrorKind = iota + 1
	KindConnection
	KindEncoding
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindEncoding:
		return "encoding"
	default:
		return "unknown"
	}
}

// CommandError is returned by every failed Send.
type CommandError struct {
	Kind    ErrorKind
	Command proto.CommandName
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s command failed (%s): %v", e.Command, e.Kind, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func isKind(err error, kind ErrorKind) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.Kind == kind
}

func IsTimeout(err error) bool    { return isKind(err, KindTimeout) }
func IsConnection(err error) bool { return isKind(err, KindConnection) }
func IsEncoding(err error) bool   { return isKind(err, KindEncoding) }

type CommanderOption func(*Commander)

func WithCommandTimeout(d time.Duration) CommanderOption {
	return func(c *Commander) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithCommanderMetrics(m *metric.Metrics) CommanderOption {
	return func(c *Commander) { c.metrics = m }
}

// Commander sends commands over a Requester. Calls are serialized so at most one
// request is outstanding. Nothing is retried.
type Commander struct {
	requester transport.Requester
	timeout   time.Duration
	metrics   *metric.Metrics

	mu sync.Mutex
}

func NewCommander(r transport.Requester, opts ...CommanderOption) *Commander {
	c := &Commander{
		requester: r,
		timeout:   DefaultCommandTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the default per-call timeout.
func (c *Commander) Timeout() time.Duration {
	return c.timeout
}

// Send issues cmd and waits for the reply, which is returned unmodified. An
// optional timeout overrides the default for this call.
func (c *Commander) Send(ctx context.Context, cmd proto.Command, timeout ...time.Duration) (json.RawMessage, error) {
	if err := cmd.Validate(); err != nil {
		return nil, c.failed(cmd, KindEncoding, err, 0)
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, c.failed(cmd, KindEncoding, fmt.Errorf("marshal command: %w", err), 0)
	}

	wait := c.timeout
	if len(timeout) > 0 && timeout[0] > 0 {
		wait = timeout[0]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	slog.Debug("Sending command", "command", cmd.Name, "timeout", wait)
	start := time.Now()
	reply, err := c.requester.Request(reqCtx, payload)
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case errors.Is(err, transport.ErrTimeout):
			return nil, c.failed(cmd, KindTimeout, fmt.Errorf("no reply within %v: %w", wait, err), elapsed)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, c.failed(cmd, KindTimeout, err, elapsed)
		default:
			return nil, c.failed(cmd, KindConnection, err, elapsed)
		}
	}
	if !json.Valid(reply) {
		return nil, c.failed(cmd, KindEncoding, fmt.Errorf("reply is not valid JSON: %q", reply), elapsed)
	}

	c.metrics.CommandCompleted(string(cmd.Name), metric.OutcomeOK, elapsed)
	slog.Debug("Command reply received", "command", cmd.Name, "elapsed", elapsed, "size", len(reply))
	return json.RawMessage(reply), nil
}

func (c *Commander) failed(cmd proto.Command, kind ErrorKind, err error, elapsed time.Duration) error {
	c.metrics.CommandCompleted(string(cmd.Name), kind.String(), elapsed)
	return &CommandError{Kind: kind, Command: cmd.Name, Err: err}
}

func (c *Commander) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requester.Close()
}
