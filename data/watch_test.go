package data

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/mbocsi/simbridge/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventRecorder captures listener batches the way the presentation layer would.
type eventRecorder struct {
	mu      sync.Mutex
	batches [][]WatchEvent
}

func (r *eventRecorder) record(events []WatchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
}

func (r *eventRecorder) events(kind WatchEventKind) []WatchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []WatchEvent
	for _, b := range r.batches {
		for _, ev := range b {
			if ev.Kind == kind {
				out = append(out, ev)
			}
		}
	}
	return out
}

func newRecordedStore() (*WatchStore, *eventRecorder) {
	s := NewWatchStore()
	rec := &eventRecorder{}
	s.OnChange(rec.record)
	return s, rec
}

func decode(t *testing.T, s string) any {
	t.Helper()
	v, err := proto.DecodeValue([]byte(s))
	require.NoError(t, err)
	return v
}

func TestWatchStore_AddTwice(t *testing.T) {
	s, rec := newRecordedStore()

	first := s.Add("sat.power.voltage", "bus voltage")
	second := s.Add("sat.power.voltage", "again")

	assert.True(t, first)
	assert.False(t, second)
	added := rec.events(WatchAdded)
	require.Len(t, added, 1)

	v := added[0].Variable
	assert.Equal(t, "sat.power.voltage", v.Path)
	assert.Equal(t, "bus voltage", v.Description)
	assert.Equal(t, "-", v.Value)
	assert.Equal(t, TypeUnknown, v.Type)
	assert.False(t, v.Selected)
}

func TestWatchStore_Remove(t *testing.T) {
	s, rec := newRecordedStore()

	assert.False(t, s.Remove("never.added"))
	assert.Empty(t, rec.events(WatchRemoved))

	s.Add("a.b", "")
	assert.True(t, s.Remove("a.b"))
	assert.Len(t, rec.events(WatchRemoved), 1)
	assert.False(t, s.IsWatched("a.b"))
}

func TestWatchStore_Clear(t *testing.T) {
	for _, n := range []int{0, 1, 50} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s, rec := newRecordedStore()
			for i := 0; i < n; i++ {
				require.True(t, s.Add(fmt.Sprintf("var.%d", i), ""))
			}

			assert.True(t, s.Clear())
			assert.Equal(t, 0, s.Len())
			assert.Empty(t, s.List())
			assert.Len(t, rec.events(WatchCleared), 1)
			assert.Empty(t, rec.events(WatchRemoved))
		})
	}
}

func TestWatchStore_ApplyFieldUpdates(t *testing.T) {
	s, rec := newRecordedStore()
	s.Add("sat.mode", "")
	s.Add("sat.temp", "")

	events := s.ApplyFieldUpdates([]proto.FieldUpdate{
		{VariablePath: "sat.temp", Value: json.Number("21.5")},
		{VariablePath: "sat.unwatched", Value: json.Number("1")},
		{VariablePath: "sat.mode", Value: "SAFE"},
	})

	require.Len(t, events, 2)
	assert.Equal(t, "sat.temp", events[0].Path)
	assert.Equal(t, "21.500", events[0].Variable.Value)
	assert.Equal(t, TypeFloat, events[0].Variable.Type)
	assert.Equal(t, "SAFE", events[1].Variable.Value)
	assert.Equal(t, TypeString, events[1].Variable.Type)

	assert.Len(t, rec.events(WatchUpdated), 2)
	got, ok := s.Get("sat.temp")
	require.True(t, ok)
	assert.Equal(t, "21.500", got.Value)
	assert.False(t, s.IsWatched("sat.unwatched"))
}

func TestWatchStore_UnwatchedUpdateChangesNothing(t *testing.T) {
	s, rec := newRecordedStore()
	s.Add("a", "")
	before := s.List()
	batchesBefore := len(rec.batches)

	events := s.ApplyFieldUpdates([]proto.FieldUpdate{{VariablePath: "b", Value: true}})

	assert.Empty(t, events)
	assert.Equal(t, before, s.List())
	assert.Len(t, rec.batches, batchesBefore)

	// Not buffered for a later watch either.
	s.Add("b", "")
	v, _ := s.Get("b")
	assert.Equal(t, "-", v.Value)
}

func TestWatchStore_DuplicatePathInBatchLastWins(t *testing.T) {
	s, _ := newRecordedStore()
	s.Add("x", "")

	events := s.ApplyFieldUpdates([]proto.FieldUpdate{
		{VariablePath: "x", Value: json.Number("1")},
		{VariablePath: "x", Value: json.Number("2")},
	})

	require.Len(t, events, 1)
	assert.Equal(t, "2", events[0].Variable.Value)
}

func TestWatchStore_ListKeepsInsertionOrder(t *testing.T) {
	s := NewWatchStore()
	for _, p := range []string{"c", "a", "b"} {
		s.Add(p, "")
	}
	s.Remove("a")
	s.Add("d", "")

	var paths []string
	for _, v := range s.List() {
		paths = append(paths, v.Path)
	}
	assert.Equal(t, []string{"c", "b", "d"}, paths)
}

func TestWatchStore_SetSelected(t *testing.T) {
	s, rec := newRecordedStore()
	assert.False(t, s.SetSelected("missing", true))

	s.Add("a", "")
	assert.True(t, s.SetSelected("a", true))
	v, _ := s.Get("a")
	assert.True(t, v.Selected)
	assert.Len(t, rec.events(WatchUpdated), 1)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"bool", true, TypeBool},
		{"int", json.Number("3"), TypeInt},
		{"float", json.Number("3.0"), TypeFloat},
		{"exponent", json.Number("1e3"), TypeFloat},
		{"go int", 3, TypeInt},
		{"go float", 3.0, TypeFloat},
		{"array", decode(t, `[1,2]`), TypeArray},
		{"object", decode(t, `{"k":1}`), TypeJSON},
		{"map", map[string]any{"k": 1}, TypeJSON},
		{"json string", `{"k":1}`, TypeJSON},
		{"json array string", `[1]`, TypeJSON},
		{"string", "hello", TypeString},
		{"null", nil, TypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}

func TestWatchStore_ConcurrentUpdatesAndMutations(t *testing.T) {
	s := NewWatchStore()
	s.OnChange(func([]WatchEvent) {})

	const dispatches = 1000
	var wg sync.WaitGroup
	wg.Add(2)

	// Subscriber side: every update writes a value and type that must stay paired.
	go func() {
		defer wg.Done()
		for i := 0; i < dispatches; i++ {
			var v any = json.Number(fmt.Sprint(i))
			if i%2 == 1 {
				v = fmt.Sprintf("s%d", i)
			}
			s.ApplyFieldUpdates([]proto.FieldUpdate{
				{VariablePath: "shared", Value: v},
				{VariablePath: fmt.Sprintf("var.%d", i%10), Value: v},
			})
		}
	}()

	// Caller side: add/remove churn plus lookups.
	go func() {
		defer wg.Done()
		for i := 0; i < dispatches; i++ {
			p := fmt.Sprintf("var.%d", i%10)
			if i%3 == 0 {
				s.Remove(p)
			} else {
				s.Add(p, "")
			}
			if i%100 == 0 {
				s.Add("shared", "")
			}
			if v, ok := s.Get("shared"); ok {
				assertConsistent(t, v)
			}
			for _, v := range s.List() {
				assertConsistent(t, v)
			}
		}
	}()

	wg.Wait()
}

func assertConsistent(t *testing.T, v WatchedVariable) {
	t.Helper()
	switch v.Type {
	case TypeUnknown:
		assert.Equal(t, "-", v.Value)
	case TypeInt:
		assert.NotContains(t, v.Value, "s")
	case TypeString:
		assert.Contains(t, v.Value, "s")
	default:
		t.Errorf("unexpected type %q for %s", v.Type, v.Path)
	}
}
