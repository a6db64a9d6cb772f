package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mbocsi/simbridge/data"
	"github.com/mbocsi/simbridge/proto"
)

// ErrHubFull is returned when a session would exceed the session cap.
var ErrHubFull = errors.New("maximum number of sessions reached")

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is one message on the /ws stream.
type Event struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// Event kinds.
const (
	KindSnapshot = "snapshot"
	KindTime     = "time"
	KindStatus   = "status"
	KindEvent    = "event"
	KindWatch    = "watch"
	KindTree     = "tree"
	KindCommand  = "command"
)

type session struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub keeps the open WebSocket sessions and broadcasts every presenter callback
// to them as an Event.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	maxSessions int
}

func NewHub(maxSessions int) *Hub {
	if maxSessions <= 0 {
		maxSessions = 4
	}
	return &Hub{
		sessions:    make(map[string]*session),
		maxSessions: maxSessions,
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) MaxSessions() int {
	return h.maxSessions
}

func (h *Hub) register(conn *websocket.Conn) (*session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sessions) >= h.maxSessions {
		return nil, ErrHubFull
	}
	s := &session{id: "ws-" + uuid.NewString(), conn: conn}
	h.sessions[s.id] = s
	return s, nil
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		s.conn.Close()
	}
}

// Broadcast sends ev to every session. Sessions that fail to receive it are
// dropped.
func (h *Hub) Broadcast(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to encode event", "kind", ev.Kind, "error", err)
		return
	}

	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	sent := 0
	for _, s := range sessions {
		if err := s.send(payload); err != nil {
			slog.Warn("Dropping session after failed write", "session", s.id, "error", err)
			h.unregister(s.id)
			continue
		}
		sent++
	}
	slog.Debug("Event broadcast", "kind", ev.Kind, "sessions", sent, "size", len(payload))
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*session)
	h.mu.Unlock()
	for _, s := range sessions {
		s.conn.Close()
	}
}

// bridge.Presenter

func (h *Hub) OnTime(sample proto.TimeSample) {
	h.Broadcast(Event{Kind: KindTime, Data: sample})
}

func (h *Hub) OnStatus(running bool) {
	h.Broadcast(Event{Kind: KindStatus, Data: map[string]bool{"running": running}})
}

func (h *Hub) OnEvent(level, message string) {
	h.Broadcast(Event{Kind: KindEvent, Data: proto.EventRecord{Level: level, Message: message}})
}

func (h *Hub) OnFieldsBatchApplied(events []data.WatchEvent) {
	h.Broadcast(Event{Kind: KindWatch, Data: events})
}

func (h *Hub) OnTreeReplaced(items []data.FlatTreeItem) {
	h.Broadcast(Event{Kind: KindTree, Data: items})
}

func (h *Hub) OnCommandResult(name proto.CommandName, ok bool) {
	h.Broadcast(Event{Kind: KindCommand, Data: CommandResult{Command: name, OK: ok}})
}

// CommandResult is the body of a command response and of command events.
type CommandResult struct {
	Command proto.CommandName `json:"command"`
	OK      bool              `json:"ok"`
	Error   string            `json:"error,omitempty"`
}
