// Package client talks to the simulation engine: Subscriber consumes the published
// topic stream and Commander sends request/reply commands.
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

const (
	DefaultPollInterval = time.Second
	DefaultStopGrace    = 2 * time.Second
)

// ErrStoppedWhileStarting is returned by Start when Stop was called before the
// source finished connecting.
var ErrStoppedWhileStarting = errors.New("subscriber stopped while starting")

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Handler receives one call per dispatched message, always from the subscriber's
// loop goroutine.
type Handler interface {
	OnTime(sample proto.TimeSample)
	OnStatus(running bool)
	OnEvent(level, message string)
	OnFields(updates []proto.FieldUpdate)
	OnModelTree(tree proto.ModelTree)
}

type SubscriberOption func(*Subscriber)

func WithPollInterval(d time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func WithStopGrace(d time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		if d > 0 {
			s.stopGrace = d
		}
	}
}

func WithSubscriberMetrics(m *metric.Metrics) SubscriberOption {
	return func(s *Subscriber) { s.metrics = m }
}

// Subscriber consumes the engine's topic stream on a background goroutine and
// dispatches each message to a Handler.
type Subscriber struct {
	source       transport.Source
	handler      Handler
	pollInterval time.Duration
	stopGrace    time.Duration
	metrics      *metric.Metrics

	mu            sync.Mutex
	state         State
	stopRequested bool
	cancel        context.CancelFunc
	done          chan struct{}
	err           error
}

func NewSubscriber(source transport.Source, handler Handler, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		source:       source,
		handler:      handler,
		pollInterval: DefaultPollInterval,
		stopGrace:    DefaultStopGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the transport error that ended the last run, if any.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the current run's loop exits. Before the first Start it
// returns a closed channel.
func (s *Subscriber) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

func (s *Subscriber) setState(state State) {
	s.state = state
	s.metrics.SetSubscriberState(int(state))
}

// Start connects the source, subscribes to every topic and launches the loop. It
// is a no-op when the subscriber is already running.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateRunning:
		s.mu.Unlock()
		return nil
	case StateStarting, StateStopping:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("subscriber is %s", state)
	}
	s.setState(StateStarting)
	s.stopRequested = false
	s.mu.Unlock()

	if err := s.source.Connect(ctx, proto.TopicNames()); err != nil {
		s.mu.Lock()
		s.stopRequested = false
		s.setState(StateStopped)
		s.mu.Unlock()
		return fmt.Errorf("failed to start subscriber: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.stopRequested {
		s.stopRequested = false
		s.setState(StateStopped)
		s.mu.Unlock()
		cancel()
		if err := s.source.Close(); err != nil {
			slog.Warn("Failed to close source", "error", err)
		}
		slog.Info("Subscriber stopped before start completed")
		return ErrStoppedWhileStarting
	}
	s.cancel = cancel
	s.done = done
	s.err = nil
	s.setState(StateRunning)
	s.mu.Unlock()

	go s.loop(loopCtx, done)
	slog.Info("Subscriber started", "topics", proto.TopicNames())
	return nil
}

// Stop signals the loop and waits up to the grace period for it to exit before
// releasing the connection. Overrunning the grace period is logged, not returned.
// Stop during Start is recorded and makes Start unwind once the source connects.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	if s.state == StateStarting {
		s.stopRequested = true
		s.mu.Unlock()
		return nil
	}
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.setState(StateStopping)
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(s.stopGrace):
		slog.Warn("Subscriber loop did not stop within grace period", "grace", s.stopGrace)
	}

	err := s.source.Close()

	s.mu.Lock()
	s.setState(StateStopped)
	s.mu.Unlock()

	slog.Info("Subscriber stopped")
	if err != nil {
		return fmt.Errorf("failed to close source: %w", err)
	}
	return nil
}

func (s *Subscriber) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		pollCtx, cancel := context.WithTimeout(ctx, s.pollInterval)
		frames, err := s.source.Receive(pollCtx)
		cancel()

		if err != nil {
			if errors.Is(err, transport.ErrNoMessage) || ctx.Err() != nil {
				continue
			}
			s.fail(err)
			return
		}
		s.dispatch(frames)
	}
}

// fail ends a run on a transport error that Stop did not cause.
func (s *Subscriber) fail(err error) {
	slog.Error("Subscriber loop terminated", "error", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	if s.state != StateRunning {
		return
	}
	if cerr := s.source.Close(); cerr != nil {
		slog.Warn("Failed to close source", "error", cerr)
	}
	s.setState(StateStopped)
}

func (s *Subscriber) drop(reason string, args ...any) {
	s.metrics.MessageDropped(reason)
	slog.Warn("Dropping message", append([]any{"reason", reason}, args...)...)
}

func (s *Subscriber) dispatch(frames [][]byte) {
	if len(frames) < 2 {
		s.drop(metric.ReasonShortFrames, "frames", len(frames))
		return
	}

	topic := proto.Topic(frames[0])
	payload, err := proto.DecodeValue(frames[1])
	if err != nil {
		s.drop(metric.ReasonBadJSON, "topic", topic, "error", err, "size", len(frames[1]))
		return
	}
	slog.Debug("Message received", "topic", topic, "size", len(frames[1]))

	switch topic {
	case proto.TopicTime:
		obj, ok := payload.(proto.Object)
		if !ok {
			s.drop(metric.ReasonBadPayload, "topic", topic)
			return
		}
		s.handler.OnTime(proto.TimeSample{
			SimulationTime: stringField(obj, "simulationTime", proto.Placeholder),
			MissionTime:    stringField(obj, "missionTime", proto.Placeholder),
			EpochTime:      stringField(obj, "epochTime", proto.Placeholder),
			ZuluTime:       stringField(obj, "zuluTime", proto.Placeholder),
		})

	case proto.TopicStatus:
		obj, ok := payload.(proto.Object)
		if !ok {
			s.drop(metric.ReasonBadPayload, "topic", topic)
			return
		}
		running := false
		if v, present := obj.Get("schedulerIsRunning"); present && v != nil {
			b, isBool := v.(bool)
			if !isBool {
				s.drop(metric.ReasonBadPayload, "topic", topic, "field", "schedulerIsRunning")
				return
			}
			running = b
		}
		s.handler.OnStatus(running)

	case proto.TopicEvent:
		obj, ok := payload.(proto.Object)
		if !ok {
			s.drop(metric.ReasonBadPayload, "topic", topic)
			return
		}
		s.handler.OnEvent(stringField(obj, "level", "INFO"), stringField(obj, "log", ""))

	case proto.TopicFields:
		seq, ok := payload.([]any)
		if !ok {
			s.drop(metric.ReasonBadPayload, "topic", topic)
			return
		}
		s.handler.OnFields(fieldUpdates(seq))

	case proto.TopicModelTree:
		tree, err := proto.ModelTreeFromValue(payload)
		if err != nil {
			s.drop(metric.ReasonBadPayload, "topic", topic, "error", err)
			return
		}
		s.handler.OnModelTree(tree)

	default:
		s.drop(metric.ReasonUnknownTopic, "topic", topic)
		return
	}
	s.metrics.MessageReceived(string(topic))
}

// stringField reads key from obj. Absent or null values yield def; non-string
// values yield their JSON text.
func stringField(obj proto.Object, key, def string) string {
	v, ok := obj.Get(key)
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return def
	}
	return string(data)
}

// fieldUpdates extracts the FIELDS entries, accepting the older path/value keys.
// Entries that are not objects or carry no path are skipped.
func fieldUpdates(seq []any) []proto.FieldUpdate {
	updates := make([]proto.FieldUpdate, 0, len(seq))
	for _, item := range seq {
		obj, ok := item.(proto.Object)
		if !ok {
			continue
		}
		path, ok := obj.Get("variablePath")
		if !ok {
			path, ok = obj.Get("path")
		}
		p, isString := path.(string)
		if !ok || !isString || p == "" {
			continue
		}
		value, ok := obj.Get("variableValue")
		if !ok {
			value, _ = obj.Get("value")
		}
		updates = append(updates, proto.FieldUpdate{VariablePath: p, Value: value})
	}
	return updates
}
