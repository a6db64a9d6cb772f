package data

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/mbocsi/simbridge/format"
	"github.com/mbocsi/simbridge/proto"
)

// Type tags reported for watched variables.
const (
	TypeBool    = "bool"
	TypeInt     = "int"
	TypeFloat   = "float"
	TypeString  = "string"
	TypeJSON    = "json"
	TypeArray   = "array"
	TypeUnknown = "unknown"
)

type WatchedVariable struct {
	Path        string `json:"variablePath"`
	Description string `json:"description"`
	Value       string `json:"value"`
	Type        string `json:"type"`
	Selected    bool   `json:"selected"`
}

type WatchEventKind int

const (
	WatchAdded WatchEventKind = iota
	WatchUpdated
	WatchRemoved
	WatchCleared
)

func (k WatchEventKind) String() string {
	switch k {
	case WatchAdded:
		return "added"
	case WatchUpdated:
		return "updated"
	case WatchRemoved:
		return "removed"
	case WatchCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

func (k WatchEventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// WatchEvent describes one change to the watch-list. Variable is the full entry
// after the change for added and updated events, and empty for cleared.
type WatchEvent struct {
	Kind     WatchEventKind  `json:"kind"`
	Path     string          `json:"path,omitempty"`
	Variable WatchedVariable `json:"variable"`
}

// WatchStore holds the variables under observation. Entries are replaced whole,
// so a reader never sees a half-applied update.
type WatchStore struct {
	mu       sync.RWMutex
	vars     map[string]WatchedVariable
	order    []string
	onChange func([]WatchEvent)
}

func NewWatchStore() *WatchStore {
	return &WatchStore{vars: make(map[string]WatchedVariable)}
}

// OnChange registers the listener that receives every batch of watch events.
// It is called without the store lock held.
func (s *WatchStore) OnChange(fn func([]WatchEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Add starts watching path. It returns false, and emits nothing, when path is
// already watched.
func (s *WatchStore) Add(path, description string) bool {
	s.mu.Lock()
	if _, exists := s.vars[path]; exists {
		s.mu.Unlock()
		slog.Debug("Variable is already being watched", "path", path)
		return false
	}
	v := WatchedVariable{
		Path:        path,
		Description: description,
		Value:       proto.Placeholder,
		Type:        TypeUnknown,
	}
	s.vars[path] = v
	s.order = append(s.order, path)
	fn := s.onChange
	s.mu.Unlock()

	slog.Info("Variable added to watch list", "path", path)
	emit(fn, WatchEvent{Kind: WatchAdded, Path: path, Variable: v})
	return true
}

func (s *WatchStore) Remove(path string) bool {
	s.mu.Lock()
	v, exists := s.vars[path]
	if !exists {
		s.mu.Unlock()
		slog.Debug("Variable not found in watch list", "path", path)
		return false
	}
	delete(s.vars, path)
	for i, p := range s.order {
		if p == path {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	fn := s.onChange
	s.mu.Unlock()

	slog.Info("Variable removed from watch list", "path", path)
	emit(fn, WatchEvent{Kind: WatchRemoved, Path: path, Variable: v})
	return true
}

// Clear empties the watch-list and emits a single cleared event.
func (s *WatchStore) Clear() bool {
	s.mu.Lock()
	n := len(s.vars)
	s.vars = make(map[string]WatchedVariable)
	s.order = nil
	fn := s.onChange
	s.mu.Unlock()

	slog.Info("Watch list cleared", "removed", n)
	emit(fn, WatchEvent{Kind: WatchCleared})
	return true
}

// ApplyFieldUpdates refreshes every watched variable named in updates and returns
// one updated event per affected path. Updates for unwatched paths are ignored.
// When a batch names a path more than once, the last value wins.
func (s *WatchStore) ApplyFieldUpdates(updates []proto.FieldUpdate) []WatchEvent {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	var events []WatchEvent
	index := make(map[string]int)
	for _, u := range updates {
		v, watched := s.vars[u.VariablePath]
		if !watched {
			continue
		}
		v.Value = format.FormatValue(u.Value)
		v.Type = Classify(u.Value)
		s.vars[u.VariablePath] = v

		ev := WatchEvent{Kind: WatchUpdated, Path: u.VariablePath, Variable: v}
		if i, seen := index[u.VariablePath]; seen {
			events[i] = ev
			continue
		}
		index[u.VariablePath] = len(events)
		events = append(events, ev)
	}
	fn := s.onChange
	s.mu.Unlock()

	if len(events) > 0 {
		emit(fn, events...)
	}
	return events
}

// SetSelected sets the UI selection flag of a watched variable.
func (s *WatchStore) SetSelected(path string, selected bool) bool {
	s.mu.Lock()
	v, exists := s.vars[path]
	if !exists {
		s.mu.Unlock()
		return false
	}
	v.Selected = selected
	s.vars[path] = v
	fn := s.onChange
	s.mu.Unlock()

	emit(fn, WatchEvent{Kind: WatchUpdated, Path: path, Variable: v})
	return true
}

func (s *WatchStore) Get(path string) (WatchedVariable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[path]
	return v, ok
}

func (s *WatchStore) IsWatched(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vars[path]
	return ok
}

func (s *WatchStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}

// List returns the watched variables in the order they were added.
func (s *WatchStore) List() []WatchedVariable {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vars := make([]WatchedVariable, 0, len(s.order))
	for _, p := range s.order {
		vars = append(vars, s.vars[p])
	}
	return vars
}

func emit(fn func([]WatchEvent), events ...WatchEvent) {
	if fn != nil {
		fn(events)
	}
}

// Classify returns the type tag for a decoded value. Booleans are checked before
// numbers so they are never reported as integers.
func Classify(v any) string {
	switch t := v.(type) {
	case bool:
		return TypeBool
	case json.Number:
		if proto.IsFloatNumber(t) {
			return TypeFloat
		}
		return TypeInt
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInt
	case float32, float64:
		return TypeFloat
	case []any:
		return TypeArray
	case proto.Object, map[string]any:
		return TypeJSON
	case string:
		if format.IsJSONString(t) {
			return TypeJSON
		}
		return TypeString
	default:
		return TypeUnknown
	}
}
