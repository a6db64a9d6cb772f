package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "simengine.TIME", TopicSubject(DefaultSubjectPrefix, "TIME"))
	assert.Equal(t, "lab.command", CommandSubject("lab"))
	assert.Equal(t, "tcp://localhost:12345", Endpoint("localhost", 12345))
}

func TestDiscoveredServiceAddr(t *testing.T) {
	s := &DiscoveredService{Host: "10.0.0.5", Port: 12340}
	assert.Equal(t, "10.0.0.5:12340", s.Addr())
	s6 := &DiscoveredService{Host: "fe80::1", Port: 1}
	assert.Equal(t, "[fe80::1]:1", s6.Addr())
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource(4)

	_, err := src.Receive(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, src.Connect(context.Background(), []string{"TIME", "STATUS"}))
	assert.Equal(t, []string{"TIME", "STATUS"}, src.Topics())

	src.PublishString("TIME", `{}`)
	frames, err := src.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("TIME"), []byte(`{}`)}, frames)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = src.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	boom := errors.New("boom")
	src.Fail(boom)
	_, err = src.Receive(context.Background())
	assert.ErrorIs(t, err, boom)

	require.NoError(t, src.Close())
	assert.False(t, src.Connected())
}

func TestMemorySourceFailConnect(t *testing.T) {
	src := NewMemorySource(1)
	src.FailConnect(ErrConnection)
	assert.ErrorIs(t, src.Connect(context.Background(), nil), ErrConnection)
	assert.NoError(t, src.Connect(context.Background(), nil))
}

func TestRequesterFunc(t *testing.T) {
	var got []byte
	r := RequesterFunc(func(_ context.Context, payload []byte) ([]byte, error) {
		got = payload
		return []byte(`{"status":"OK"}`), nil
	})
	reply, err := r.Request(context.Background(), []byte(`{"command":"RUN"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"OK"}`, string(reply))
	assert.Equal(t, `{"command":"RUN"}`, string(got))
	assert.NoError(t, r.Close())
}

func listen(t *testing.T, sock zmq4.Socket) string {
	t.Helper()
	require.NoError(t, sock.Listen("tcp://127.0.0.1:0"))
	return "tcp://" + sock.Addr().String()
}

func TestZMQSourceReceivesSubscribedTopics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := zmq4.NewPub(ctx)
	defer pub.Close()
	endpoint := listen(t, pub)

	src := NewZMQSource(endpoint)
	require.NoError(t, src.Connect(ctx, []string{"TIME"}))
	defer src.Close()

	// The subscription reaches the publisher asynchronously.
	var frames [][]byte
	require.Eventually(t, func() bool {
		_ = pub.Send(zmq4.NewMsgFrom([]byte("EVENT"), []byte(`{}`)))
		_ = pub.Send(zmq4.NewMsgFrom([]byte("TIME"), []byte(`{"zuluTime":"Z"}`)))
		rctx, rcancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer rcancel()
		f, err := src.Receive(rctx)
		if err != nil {
			return false
		}
		frames = f
		return true
	}, 5*time.Second, 10*time.Millisecond)

	require.Len(t, frames, 2)
	assert.Equal(t, "TIME", string(frames[0]))
	assert.JSONEq(t, `{"zuluTime":"Z"}`, string(frames[1]))
}

func TestZMQSourceCloseIsIdempotent(t *testing.T) {
	src := NewZMQSource("tcp://127.0.0.1:1")
	assert.NoError(t, src.Close())
	_, err := src.Receive(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestZMQRequesterRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rep := zmq4.NewRep(ctx)
	defer rep.Close()
	endpoint := listen(t, rep)

	go func() {
		for {
			msg, err := rep.Recv()
			if err != nil {
				return
			}
			reply := append([]byte(`{"echo":`), msg.Frames[0]...)
			reply = append(reply, '}')
			if err := rep.Send(zmq4.NewMsg(reply)); err != nil {
				return
			}
		}
	}()

	req := NewZMQRequester(endpoint)
	defer req.Close()

	for i := 0; i < 3; i++ {
		rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
		reply, err := req.Request(rctx, []byte(`{"command":"STATUS"}`))
		rcancel()
		require.NoError(t, err)
		assert.JSONEq(t, `{"echo":{"command":"STATUS"}}`, string(reply))
	}
}

func TestZMQRequesterTimeoutThenRecovers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rep := zmq4.NewRep(ctx)
	defer rep.Close()
	endpoint := listen(t, rep)

	answer := make(chan bool, 4)
	go func() {
		for {
			msg, err := rep.Recv()
			if err != nil {
				return
			}
			if !<-answer {
				continue
			}
			if err := rep.Send(zmq4.NewMsg(msg.Frames[0])); err != nil {
				return
			}
		}
	}()

	req := NewZMQRequester(endpoint)
	defer req.Close()

	answer <- false
	start := time.Now()
	rctx, rcancel := context.WithTimeout(ctx, 100*time.Millisecond)
	_, err := req.Request(rctx, []byte(`{"command":"RUN"}`))
	rcancel()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	answer <- true
	rctx, rcancel = context.WithTimeout(ctx, 2*time.Second)
	defer rcancel()
	reply, err := req.Request(rctx, []byte(`{"command":"HOLD"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"HOLD"}`, string(reply))
}

func TestZMQRequesterConnectionFailure(t *testing.T) {
	req := NewZMQRequester("tcp://127.0.0.1:1")
	defer req.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := req.Request(ctx, []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestZMQRequesterDialHonoursDeadline(t *testing.T) {
	req := NewZMQRequester("tcp://127.0.0.1:1")
	defer req.Close()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := req.Request(ctx, []byte(`{"command":"STEP"}`))
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection), "unexpected error %v", err)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func freeEndpoint(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "tcp://" + addr
}

func TestZMQSourceConnectsBeforePublisherIsUp(t *testing.T) {
	endpoint := freeEndpoint(t)

	src := NewZMQSource(endpoint)
	start := time.Now()
	require.NoError(t, src.Connect(context.Background(), []string{"TIME"}))
	defer src.Close()
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	rctx, rcancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, err := src.Receive(rctx)
	rcancel()
	assert.ErrorIs(t, err, ErrNoMessage)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := zmq4.NewPub(ctx)
	defer pub.Close()
	require.NoError(t, pub.Listen(endpoint))

	require.Eventually(t, func() bool {
		_ = pub.Send(zmq4.NewMsgFrom([]byte("TIME"), []byte(`{}`)))
		rctx, rcancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer rcancel()
		frames, err := src.Receive(rctx)
		return err == nil && string(frames[0]) == "TIME"
	}, 10*time.Second, 10*time.Millisecond)
}
