// Package engine is a stand-in simulation engine. It publishes telemetry on a
// ZeroMQ PUB socket and answers scheduler commands on a REP socket, so the bridge
// can be run and tested without the real engine.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"github.com/mbocsi/simbridge/proto"
	"github.com/mbocsi/simbridge/transport"
)

const (
	DefaultPubAddr      = "tcp://0.0.0.0:12345"
	DefaultCmdAddr      = "tcp://0.0.0.0:12340"
	DefaultTickInterval = 100 * time.Millisecond
)

type Options struct {
	PubAddr      string        // Defaults to DefaultPubAddr
	CmdAddr      string        // Defaults to DefaultCmdAddr
	TickInterval time.Duration // Defaults to DefaultTickInterval
	Epoch        time.Time     // Simulated start time, defaults to now
	Advertise    bool          // Announce both sockets over mDNS
	Instance     string        // mDNS instance name, defaults to "simengine-<uuid>"
}

// Reply is the JSON answer to every command.
type Reply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func ok() Reply { return Reply{Status: "OK"} }

func fail(format string, args ...any) Reply {
	return Reply{Status: "ERROR", Error: fmt.Sprintf(format, args...)}
}

type Stub struct {
	opts Options

	mu      sync.Mutex
	running bool
	rate    float64
	simTime time.Duration
	ticks   int64

	pubMu sync.Mutex
	pub   zmq4.Socket
	rep   zmq4.Socket

	pubEndpoint string
	cmdEndpoint string

	cancel     context.CancelFunc
	wg         sync.WaitGroup
	advertiser *transport.Advertiser
}

func NewStub(opts Options) *Stub {
	if opts.PubAddr == "" {
		opts.PubAddr = DefaultPubAddr
	}
	if opts.CmdAddr == "" {
		opts.CmdAddr = DefaultCmdAddr
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Epoch.IsZero() {
		opts.Epoch = time.Now().UTC()
	}
	if opts.Instance == "" {
		opts.Instance = "simengine-" + uuid.NewString()[:8]
	}
	return &Stub{opts: opts, rate: 1}
}

// Start binds both sockets and launches the tick and command loops.
func (s *Stub) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	pub := zmq4.NewPub(ctx)
	if err := pub.Listen(s.opts.PubAddr); err != nil {
		cancel()
		return fmt.Errorf("bind publisher %s: %w", s.opts.PubAddr, err)
	}
	rep := zmq4.NewRep(ctx)
	if err := rep.Listen(s.opts.CmdAddr); err != nil {
		cancel()
		pub.Close()
		return fmt.Errorf("bind command socket %s: %w", s.opts.CmdAddr, err)
	}

	s.pub = pub
	s.rep = rep
	s.cancel = cancel
	s.pubEndpoint = "tcp://" + pub.Addr().String()
	s.cmdEndpoint = "tcp://" + rep.Addr().String()

	if s.opts.Advertise {
		ports := map[string]int{
			transport.PublisherService: portOf(s.pubEndpoint),
			transport.CommandService:   portOf(s.cmdEndpoint),
		}
		adv, err := transport.Advertise(s.opts.Instance, ports, []string{"engine=stub"})
		if err != nil {
			slog.Warn("Failed to advertise engine over mDNS", "error", err)
		} else {
			s.advertiser = adv
		}
	}

	s.wg.Add(2)
	go s.tickLoop(ctx)
	go s.serveLoop(ctx)

	slog.Info("Engine stub started", "pub", s.PubEndpoint(), "cmd", s.CmdEndpoint(), "tick", s.opts.TickInterval)
	return nil
}

// PubEndpoint returns the dialable publisher endpoint once started.
func (s *Stub) PubEndpoint() string {
	return s.pubEndpoint
}

// CmdEndpoint returns the dialable command endpoint once started.
func (s *Stub) CmdEndpoint() string {
	return s.cmdEndpoint
}

func (s *Stub) Shutdown() error {
	s.pubMu.Lock()
	pub := s.pub
	s.pub = nil
	s.pubMu.Unlock()
	if pub == nil {
		return nil
	}

	slog.Info("Shutting down engine stub")
	if s.advertiser != nil {
		s.advertiser.Shutdown()
	}
	errs := errors.Join(s.rep.Close(), pub.Close())
	s.cancel()
	s.wg.Wait()
	return errs
}

func (s *Stub) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Stub) tickLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Running() {
				s.mu.Lock()
				d := time.Duration(float64(s.opts.TickInterval) * s.rate)
				s.mu.Unlock()
				s.step(d)
			}
		}
	}
}

func (s *Stub) serveLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		msg, err := s.rep.Recv()
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Command socket failed", "error", err)
			}
			return
		}

		var reply Reply
		var cmd proto.Command
		if len(msg.Frames) == 0 {
			reply = fail("empty request")
		} else if err := json.Unmarshal(msg.Frames[0], &cmd); err != nil {
			reply = fail("invalid command: %v", err)
		} else {
			reply = s.Handle(cmd)
		}

		data, _ := json.Marshal(reply)
		if err := s.rep.Send(zmq4.NewMsg(data)); err != nil {
			if ctx.Err() == nil {
				slog.Error("Failed to send reply", "command", cmd.Name, "error", err)
			}
			return
		}
	}
}

// Handle applies one command and publishes whatever it changes.
func (s *Stub) Handle(cmd proto.Command) Reply {
	if err := cmd.Validate(); err != nil {
		return fail("%v", err)
	}
	slog.Debug("Command received", "command", cmd.Name)

	switch cmd.Name {
	case proto.CommandRun, proto.CommandHold:
		run := cmd.Name == proto.CommandRun
		s.mu.Lock()
		changed := s.running != run
		s.running = run
		rate, simTime := s.rate, s.simTime
		s.mu.Unlock()
		if changed {
			verb := "started"
			if !run {
				verb = "held"
			}
			s.publishEvent("INFO", fmt.Sprintf(`Scheduler %s {"rate": %s, "simulationTime": "%.3f"}`,
				verb, strconv.FormatFloat(rate, 'f', -1, 64), simTime.Seconds()))
		}
		s.publishStatus()

	case proto.CommandStep:
		s.step(s.opts.TickInterval)

	case proto.CommandProgress:
		s.step(time.Duration(*cmd.Millis) * time.Millisecond)

	case proto.CommandRate:
		if *cmd.Rate <= 0 {
			return fail("rate must be positive, got %v", *cmd.Rate)
		}
		s.mu.Lock()
		s.rate = *cmd.Rate
		s.mu.Unlock()
		s.publishEvent("INFO", fmt.Sprintf("Rate set to x%s", strconv.FormatFloat(*cmd.Rate, 'f', -1, 64)))

	case proto.CommandStatus:
		s.publishStatus()

	case proto.CommandModelTree:
		s.publish(proto.TopicModelTree, modelTree.Value())
	}
	return ok()
}

// step advances simulated time by d and publishes the new frame.
func (s *Stub) step(d time.Duration) {
	s.mu.Lock()
	prev := s.simTime
	s.simTime += d
	s.ticks++
	now := s.simTime
	s.mu.Unlock()

	// The power mode is re-evaluated on 30s boundaries.
	if int64(prev.Seconds())/30 != int64(now.Seconds())/30 {
		s.publishEvent("WARNING", fmt.Sprintf(`mode check {"simulationTime": "%.3f", "mode": %q}`,
			now.Seconds(), powerMode(now)))
	}
	s.publishFrame()
}

func (s *Stub) publishFrame() {
	s.mu.Lock()
	simTime, ticks := s.simTime, s.ticks
	s.mu.Unlock()

	s.publish(proto.TopicTime, s.timeSample(simTime))
	s.publish(proto.TopicFields, fields(simTime, ticks))
}

func (s *Stub) timeSample(simTime time.Duration) proto.TimeSample {
	mission := simTime.Truncate(time.Second)
	h := int(mission.Hours())
	m := int(mission.Minutes()) % 60
	sec := int(mission.Seconds()) % 60
	now := s.opts.Epoch.Add(simTime)
	return proto.TimeSample{
		SimulationTime: fmt.Sprintf("%.3f", simTime.Seconds()),
		MissionTime:    fmt.Sprintf("T+%02d:%02d:%02d", h, m, sec),
		EpochTime:      strconv.FormatInt(now.Unix(), 10),
		ZuluTime:       now.Format("2006-01-02T15:04:05.000Z"),
	}
}

func (s *Stub) publishStatus() {
	s.publish(proto.TopicStatus, map[string]bool{"schedulerIsRunning": s.Running()})
}

func (s *Stub) publishEvent(level, message string) {
	s.publish(proto.TopicEvent, proto.EventRecord{Level: level, Message: message})
}

func (s *Stub) publish(topic proto.Topic, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode telemetry", "topic", topic, "error", err)
		return
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.pub == nil {
		return
	}
	if err := s.pub.Send(zmq4.NewMsgFrom([]byte(topic), data)); err != nil {
		slog.Warn("Failed to publish", "topic", topic, "error", err)
	}
}

func portOf(addr string) int {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return 0
	}
	port, _ := strconv.Atoi(addr[i+1:])
	return port
}
