package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix namespaces engine subjects on a shared NATS server.
const DefaultSubjectPrefix = "simengine"

// CommandSubject returns the subject the engine answers commands on.
func CommandSubject(prefix string) string {
	return prefix + ".command"
}

// TopicSubject returns the subject a topic is published on.
func TopicSubject(prefix, topic string) string {
	return prefix + "." + topic
}

func natsOptions(name string) []nats.Option {
	return []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("Disconnected from NATS", "client", name, "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("Reconnected to NATS", "client", name, "url", nc.ConnectedUrl())
		}),
	}
}

// NATSSource receives engine topics published as NATS subjects. Each message is
// delivered as the frames [topic, data] so it decodes like a ZeroMQ message.
type NATSSource struct {
	url    string
	prefix string

	mu     sync.Mutex
	conn   *nats.Conn
	subs   []*nats.Subscription
	msgs   chan *nats.Msg
	closed chan struct{}
}

func NewNATSSource(url, prefix string) *NATSSource {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSource{url: url, prefix: prefix}
}

func (s *NATSSource) Connect(ctx context.Context, topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return fmt.Errorf("nats source already connected to %s", s.url)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	closed := make(chan struct{})
	opts := append(natsOptions("simbridge-subscriber"), nats.ClosedHandler(func(*nats.Conn) {
		close(closed)
	}))
	nc, err := nats.Connect(s.url, opts...)
	if err != nil {
		return connectionError("connect "+s.url, err)
	}

	msgs := make(chan *nats.Msg, 256)
	var subs []*nats.Subscription
	for _, topic := range topics {
		sub, err := nc.ChanSubscribe(TopicSubject(s.prefix, topic), msgs)
		if err != nil {
			nc.Close()
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		subs = append(subs, sub)
	}

	s.conn = nc
	s.subs = subs
	s.msgs = msgs
	s.closed = closed
	slog.Info("Subscribed to engine subjects", "url", s.url, "prefix", s.prefix, "topics", topics)
	return nil
}

func (s *NATSSource) Receive(ctx context.Context) ([][]byte, error) {
	s.mu.Lock()
	msgs, closed := s.msgs, s.closed
	s.mu.Unlock()
	if msgs == nil {
		return nil, ErrNotConnected
	}

	select {
	case msg := <-msgs:
		topic := strings.TrimPrefix(msg.Subject, s.prefix+".")
		return [][]byte{[]byte(topic), msg.Data}, nil
	case <-closed:
		return nil, connectionError("receive from "+s.url, nats.ErrConnectionClosed)
	case <-ctx.Done():
		return nil, ErrNoMessage
	}
}

func (s *NATSSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Debug("Failed to unsubscribe", "subject", sub.Subject, "error", err)
		}
	}
	s.conn.Close()
	s.conn = nil
	s.subs = nil
	s.msgs = nil
	return nil
}

// NATSRequester sends commands as NATS requests. The connection is opened on the
// first request and dropped after a connection failure.
type NATSRequester struct {
	url     string
	subject string

	mu   sync.Mutex
	conn *nats.Conn
}

func NewNATSRequester(url, prefix string) *NATSRequester {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSRequester{url: url, subject: CommandSubject(prefix)}
}

func (r *NATSRequester) Request(ctx context.Context, payload []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		nc, err := nats.Connect(r.url, natsOptions("simbridge-commander")...)
		if err != nil {
			return nil, connectionError("connect "+r.url, err)
		}
		r.conn = nc
	}

	msg, err := r.conn.RequestWithContext(ctx, r.subject, payload)
	switch {
	case err == nil:
		return msg.Data, nil
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return nil, ErrTimeout
	case errors.Is(err, context.Canceled):
		return nil, err
	default:
		r.conn.Close()
		r.conn = nil
		return nil, connectionError("request "+r.subject, err)
	}
}

func (r *NATSRequester) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	return nil
}
