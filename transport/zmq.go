package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
)

// Endpoint returns a ZeroMQ tcp endpoint for host and port.
func Endpoint(host string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

// ZMQSource subscribes to a ZeroMQ PUB socket. Connect returns at once, as a
// ZeroMQ connect does: a pump goroutine dials until the publisher is reachable,
// then moves frames from the socket to a channel so Receive can honour its context.
type ZMQSource struct {
	endpoint string

	mu     sync.Mutex
	sock   zmq4.Socket
	cancel context.CancelFunc
	frames chan [][]byte
	done   chan struct{}
	err    error
}

// redialInterval is the pause between dial rounds while the publisher is down.
const redialInterval = 500 * time.Millisecond

func NewZMQSource(endpoint string) *ZMQSource {
	return &ZMQSource{endpoint: endpoint}
}

func (s *ZMQSource) Connect(ctx context.Context, topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sock != nil {
		return fmt.Errorf("zmq source already connected to %s", s.endpoint)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sockCtx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewSub(sockCtx)

	s.sock = sock
	s.cancel = cancel
	s.frames = make(chan [][]byte, 64)
	s.done = make(chan struct{})
	s.err = nil
	go s.pump(sock, append([]string(nil), topics...), s.frames, s.done)

	slog.Info("Subscribing to engine publisher", "endpoint", s.endpoint, "topics", topics)
	return nil
}

func (s *ZMQSource) pump(sock zmq4.Socket, topics []string, frames chan<- [][]byte, done <-chan struct{}) {
	defer close(frames)

	for {
		err := sock.Dial(s.endpoint)
		if err == nil {
			break
		}
		slog.Debug("Engine publisher not reachable, retrying", "endpoint", s.endpoint, "error", err)
		select {
		case <-done:
			return
		case <-time.After(redialInterval):
		}
	}
	for _, topic := range topics {
		if err := sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			s.setErr(done, fmt.Errorf("subscribe to %s: %w", topic, err))
			return
		}
	}
	slog.Info("Subscribed to engine publisher", "endpoint", s.endpoint)

	for {
		msg, err := sock.Recv()
		if err != nil {
			s.setErr(done, connectionError("receive from "+s.endpoint, err))
			return
		}
		select {
		case frames <- msg.Frames:
		case <-done:
			return
		}
	}
}

// setErr records the error that ended the pump unless Close ended it.
func (s *ZMQSource) setErr(done <-chan struct{}, err error) {
	select {
	case <-done:
	default:
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
}

func (s *ZMQSource) Receive(ctx context.Context) ([][]byte, error) {
	s.mu.Lock()
	frames := s.frames
	s.mu.Unlock()
	if frames == nil {
		return nil, ErrNotConnected
	}

	select {
	case f, ok := <-frames:
		if !ok {
			s.mu.Lock()
			err := s.err
			s.mu.Unlock()
			if err == nil {
				err = ErrNotConnected
			}
			return nil, err
		}
		return f, nil
	case <-ctx.Done():
		return nil, ErrNoMessage
	}
}

func (s *ZMQSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sock == nil {
		return nil
	}
	close(s.done)
	s.cancel()
	err := s.sock.Close()
	s.sock = nil
	s.frames = nil
	slog.Debug("Closed engine subscription", "endpoint", s.endpoint)
	return err
}

// ZMQRequester talks to a ZeroMQ REP socket. The REQ socket is dialed lazily and
// thrown away after a timeout or a failure, so the next request starts a clean
// send/receive cycle.
type ZMQRequester struct {
	endpoint string

	mu     sync.Mutex
	sock   zmq4.Socket
	cancel context.CancelFunc
}

func NewZMQRequester(endpoint string) *ZMQRequester {
	return &ZMQRequester{endpoint: endpoint}
}

type reply struct {
	msg zmq4.Msg
	err error
}

func (r *ZMQRequester) Request(ctx context.Context, payload []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.dial(ctx); err != nil {
		return nil, err
	}

	if err := r.sock.Send(zmq4.NewMsg(payload)); err != nil {
		r.reset()
		return nil, connectionError("send to "+r.endpoint, err)
	}

	replies := make(chan reply, 1)
	sock := r.sock
	go func() {
		msg, err := sock.Recv()
		replies <- reply{msg, err}
	}()

	select {
	case rep := <-replies:
		if rep.err != nil {
			r.reset()
			return nil, connectionError("receive from "+r.endpoint, rep.err)
		}
		if len(rep.msg.Frames) == 0 {
			return nil, nil
		}
		return rep.msg.Frames[0], nil
	case <-ctx.Done():
		r.reset()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// dial opens the REQ socket. zmq4 retries a refused dial on its own schedule, so
// the dial runs in the background and ctx bounds how long the caller waits for it.
func (r *ZMQRequester) dial(ctx context.Context) error {
	if r.sock != nil {
		return nil
	}
	sockCtx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewReq(sockCtx)

	dialed := make(chan error, 1)
	go func() { dialed <- sock.Dial(r.endpoint) }()

	select {
	case err := <-dialed:
		if err != nil {
			cancel()
			sock.Close()
			return connectionError("dial "+r.endpoint, err)
		}
	case <-ctx.Done():
		cancel()
		go func() {
			<-dialed
			sock.Close()
		}()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}

	r.sock = sock
	r.cancel = cancel
	slog.Debug("Connected command socket", "endpoint", r.endpoint)
	return nil
}

func (r *ZMQRequester) reset() {
	if r.sock == nil {
		return
	}
	r.cancel()
	r.sock.Close()
	r.sock = nil
	slog.Debug("Reset command socket", "endpoint", r.endpoint)
}

func (r *ZMQRequester) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
	return nil
}
