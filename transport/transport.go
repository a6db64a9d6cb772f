// Package transport connects the bridge to a simulation engine. A Source delivers
// multi-frame pub/sub messages and a Requester performs strict request/reply cycles.
package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoMessage is returned by Receive when its context expires before a message arrives.
	ErrNoMessage = errors.New("no message received")
	// ErrTimeout is returned by Request when no reply arrives before the context expires.
	ErrTimeout = errors.New("request timed out")
	// ErrConnection wraps socket and connection level failures.
	ErrConnection = errors.New("connection failure")
	// ErrNotConnected is returned when Receive is called before Connect or after Close.
	ErrNotConnected = errors.New("transport not connected")
)

// Source is the subscribing side of the engine's pub/sub channel.
type Source interface {
	// Connect opens the channel and subscribes to topics.
	Connect(ctx context.Context, topics []string) error
	// Receive blocks until the next message, returning its frames. Frame 0 is the
	// topic name and frame 1 the payload.
	Receive(ctx context.Context) ([][]byte, error)
	Close() error
}

// Requester is the client side of the engine's request/reply channel. Only one
// request may be outstanding at a time.
type Requester interface {
	Request(ctx context.Context, payload []byte) ([]byte, error)
	Close() error
}

func connectionError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrConnection, err)
}
