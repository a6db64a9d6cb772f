package transport

import (
	"context"
	"log/slog"
	"sync"
)

// MemorySource is an in-process Source. Frames pushed with Publish are delivered to
// Receive in order. Topics passed to Connect are recorded but not filtered on.
type MemorySource struct {
	mu        sync.Mutex
	frames    chan [][]byte
	failed    chan struct{}
	failErr   error
	topics    []string
	connected bool
	connErr   error
}

func NewMemorySource(buffer int) *MemorySource {
	return &MemorySource{
		frames: make(chan [][]byte, buffer),
		failed: make(chan struct{}),
	}
}

// FailConnect makes the next Connect return err.
func (m *MemorySource) FailConnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connErr = err
}

func (m *MemorySource) Connect(_ context.Context, topics []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connErr != nil {
		err := m.connErr
		m.connErr = nil
		return err
	}
	m.topics = append([]string(nil), topics...)
	m.connected = true
	slog.Debug("Connected in-memory source", "topics", topics)
	return nil
}

// Topics returns the topics of the last successful Connect.
func (m *MemorySource) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.topics...)
}

func (m *MemorySource) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Publish queues one message. It blocks when the buffer is full.
func (m *MemorySource) Publish(frames ...[]byte) {
	m.frames <- frames
}

// PublishString queues a two-frame message built from topic and payload.
func (m *MemorySource) PublishString(topic, payload string) {
	m.Publish([]byte(topic), []byte(payload))
}

// Fail makes every pending and future Receive return err.
func (m *MemorySource) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return
	}
	m.failErr = err
	close(m.failed)
}

func (m *MemorySource) Receive(ctx context.Context) ([][]byte, error) {
	m.mu.Lock()
	connected := m.connected
	m.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}

	select {
	case <-m.failed:
		m.mu.Lock()
		defer m.mu.Unlock()
		return nil, m.failErr
	default:
	}

	select {
	case f := <-m.frames:
		return f, nil
	case <-m.failed:
		m.mu.Lock()
		defer m.mu.Unlock()
		return nil, m.failErr
	case <-ctx.Done():
		return nil, ErrNoMessage
	}
}

func (m *MemorySource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f RequesterFunc) Request(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

func (f RequesterFunc) Close() error { return nil }
