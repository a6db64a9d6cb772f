package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mbocsi/simbridge/data"
	"github.com/mbocsi/simbridge/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresenter() (*Presenter, *bytes.Buffer) {
	var buf bytes.Buffer
	p := New(&buf)
	p.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	return p, &buf
}

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func TestTimeLinesOnlyOnChange(t *testing.T) {
	p, buf := newTestPresenter()
	sample := proto.TimeSample{SimulationTime: "1", MissionTime: "2", EpochTime: "3", ZuluTime: "Z"}

	p.OnTime(sample)
	p.OnTime(sample)
	sample.SimulationTime = "2"
	p.OnTime(sample)

	got := lines(buf)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "sim 1  mission 2  epoch 3  zulu Z")
	assert.True(t, strings.HasPrefix(got[0], "12:00:00.000 TIME"))
}

func TestEventMultilineIsIndented(t *testing.T) {
	p, buf := newTestPresenter()
	p.OnEvent("WARNING", "state\n    mode: SAFE")

	got := lines(buf)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "WARNING state")
	assert.Equal(t, strings.Repeat(" ", len("12:00:00.000 EVENT    "))+"    mode: SAFE", got[1])
}

func TestWatchAndCommandLines(t *testing.T) {
	p, buf := newTestPresenter()
	p.OnFieldsBatchApplied([]data.WatchEvent{
		{Kind: data.WatchAdded, Path: "sat.temp"},
		{Kind: data.WatchUpdated, Path: "sat.temp", Variable: data.WatchedVariable{Path: "sat.temp", Value: "21.500", Type: data.TypeFloat}},
		{Kind: data.WatchRemoved, Path: "sat.temp"},
		{Kind: data.WatchCleared},
	})
	p.OnStatus(true)
	p.OnCommandResult(proto.CommandRun, false)
	p.OnTreeReplaced([]data.FlatTreeItem{{Level: 0}, {Level: 1}, {Level: 0}})

	out := buf.String()
	assert.Contains(t, out, "+ sat.temp")
	assert.Contains(t, out, "sat.temp = 21.500 (float)")
	assert.Contains(t, out, "- sat.temp")
	assert.Contains(t, out, "watch list cleared")
	assert.Contains(t, out, "scheduler RUNNING")
	assert.Contains(t, out, "RUN failed")
	assert.Contains(t, out, "3 items, 2 roots")
}
