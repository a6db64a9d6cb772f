package integration

import (
	"context"
	"testing"
	"time"

	"github.com/mbocsi/simbridge/bridge"
	"github.com/mbocsi/simbridge/client"
	"github.com/mbocsi/simbridge/data"
	"github.com/mbocsi/simbridge/engine"
	"github.com/mbocsi/simbridge/proto"
	"github.com/mbocsi/simbridge/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEngine(t *testing.T) *engine.Stub {
	t.Helper()
	stub := engine.NewStub(engine.Options{
		PubAddr:      "tcp://127.0.0.1:0",
		CmdAddr:      "tcp://127.0.0.1:0",
		TickInterval: 20 * time.Millisecond,
	})
	require.NoError(t, stub.Start(context.Background()))
	t.Cleanup(func() { stub.Shutdown() })
	return stub
}

func newBridge(t *testing.T, stub *engine.Stub, presenter bridge.Presenter, watches *data.WatchStore) *bridge.Bridge {
	t.Helper()
	b := bridge.New(bridge.Options{
		Source:            transport.NewZMQSource(stub.PubEndpoint()),
		Commander:         client.NewCommander(transport.NewZMQRequester(stub.CmdEndpoint()), client.WithCommandTimeout(time.Second)),
		SubscriberOptions: []client.SubscriberOption{client.WithPollInterval(50 * time.Millisecond)},
		Watches:           watches,
		Presenter:         presenter,
	})
	t.Cleanup(func() { b.Stop() })
	return b
}

// Test the bridge driving a live engine: tree, scheduler control and watched values
func TestBridgeAgainstEngineStub(t *testing.T) {
	stub := startEngine(t)
	presenter := newCapturePresenter()
	watches := data.NewWatchStore()
	require.True(t, watches.Add("Satellite.Power.voltage", "bus voltage"))
	require.True(t, watches.Add("Clock.tick", ""))

	b := newBridge(t, stub, presenter, watches)
	ctx := context.Background()
	require.NoError(t, b.Start(ctx))

	// Messages published before the subscription settles are lost, so keep asking.
	require.Eventually(t, func() bool {
		if presenter.treeLen() > 0 {
			return true
		}
		_ = b.RequestModelTree(ctx)
		return false
	}, 5*time.Second, 100*time.Millisecond)

	visible := b.TreeItems(true)
	require.Len(t, visible, 3)
	assert.Equal(t, "Satellite", visible[0].FullPath)
	assert.Equal(t, "Clock", visible[1].FullPath)
	assert.Equal(t, "GroundLink", visible[2].FullPath)

	require.NoError(t, b.Run(ctx))
	assert.True(t, stub.Running())
	require.Eventually(t, func() bool {
		running, _ := presenter.isRunning()
		return running
	}, 5*time.Second, 20*time.Millisecond)
	assert.True(t, b.Running())

	require.Eventually(t, func() bool {
		v, ok := watches.Get("Satellite.Power.voltage")
		return ok && v.Value != proto.Placeholder
	}, 5*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		v, _ := watches.Get("Clock.tick")
		return v.Type == data.TypeInt
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotEqual(t, proto.Placeholder, b.Snapshot().Time.SimulationTime)

	require.NoError(t, b.Toggle(ctx))
	assert.False(t, stub.Running())
	require.Eventually(t, func() bool {
		running, _ := presenter.isRunning()
		return !running
	}, 5*time.Second, 20*time.Millisecond)

	assert.True(t, presenter.hasEvent(bridge.LevelInfo, "RUN command sent"))
	assert.True(t, presenter.hasEvent(bridge.LevelInfo, "HOLD command sent"))
}

// Test that a rejected command surfaces as an error without breaking the channel
func TestBridgeEngineRejectsCommand(t *testing.T) {
	stub := startEngine(t)
	presenter := newCapturePresenter()
	b := newBridge(t, stub, presenter, nil)
	ctx := context.Background()
	require.NoError(t, b.Start(ctx))

	// The reply is an ERROR status but still a valid reply.
	require.NoError(t, b.SetRate(ctx, -1))
	require.NoError(t, b.Step(ctx))

	presenter.mu.Lock()
	defer presenter.mu.Unlock()
	assert.Equal(t, []bool{true}, presenter.results[proto.CommandRate])
	assert.Equal(t, []bool{true}, presenter.results[proto.CommandStep])
}

// Test that commands time out against an engine that never answers
func TestBridgeCommandTimeoutWithoutEngine(t *testing.T) {
	presenter := newCapturePresenter()
	b := bridge.New(bridge.Options{
		Source:    transport.NewMemorySource(1),
		Commander: client.NewCommander(transport.NewZMQRequester("tcp://127.0.0.1:1"), client.WithCommandTimeout(100*time.Millisecond)),
		Presenter: presenter,
	})
	defer b.Stop()

	// STEP and the STATUS that follows it are each bounded by the timeout.
	start := time.Now()
	err := b.Step(context.Background())
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.True(t, client.IsTimeout(err), "expected a timeout, got %v", err)
	assert.Less(t, elapsed, 2*100*time.Millisecond+150*time.Millisecond)

	presenter.mu.Lock()
	defer presenter.mu.Unlock()
	assert.Equal(t, []bool{false}, presenter.results[proto.CommandStep])
	assert.True(t, presenter.hasEventLocked(bridge.LevelWarning, "STEP command timed out"))
}

// Test that the bridge starts promptly while the engine is not up yet
func TestBridgeStartsBeforeEngine(t *testing.T) {
	presenter := newCapturePresenter()
	b := bridge.New(bridge.Options{
		Source:    transport.NewZMQSource("tcp://127.0.0.1:1"),
		Commander: client.NewCommander(transport.NewZMQRequester("tcp://127.0.0.1:1"), client.WithCommandTimeout(100*time.Millisecond)),
		Presenter: presenter,
	})
	defer b.Stop()

	start := time.Now()
	require.NoError(t, b.Start(context.Background()))
	assert.Less(t, time.Since(start), 2*100*time.Millisecond+150*time.Millisecond)
	assert.Equal(t, client.StateRunning, b.Subscriber().State())
}
