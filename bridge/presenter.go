package bridge

import (
	"github.com/mbocsi/simbridge/data"
	"github.com/mbocsi/simbridge/proto"
)

// Presenter is the outward callback contract. Methods are called from the
// subscriber goroutine and from command callers, so implementations must be safe
// for concurrent use.
type Presenter interface {
	OnTime(sample proto.TimeSample)
	OnStatus(running bool)
	OnEvent(level, message string)
	OnFieldsBatchApplied(events []data.WatchEvent)
	OnTreeReplaced(items []data.FlatTreeItem)
	OnCommandResult(name proto.CommandName, ok bool)
}

// NopPresenter discards everything.
type NopPresenter struct{}

func (NopPresenter) OnTime(proto.TimeSample) {}
func (NopPresenter) OnStatus(bool) {}
func (NopPresenter) OnEvent(string, string) {}
func (NopPresenter) OnFieldsBatchApplied([]data.WatchEvent) {}
func (NopPresenter) OnTreeReplaced([]data.FlatTreeItem) {}
func (NopPresenter) OnCommandResult(proto.CommandName, bool) {}

// Presenters forwards every call to each presenter in order.
type Presenters []Presenter

func (ps Presenters) OnTime(sample proto.TimeSample) {
	for _, p := range ps {
		p.OnTime(sample)
	}
}

func (ps Presenters) OnStatus(running bool) {
	for _, p := range ps {
		p.OnStatus(running)
	}
}

func (ps Presenters) OnEvent(level, message string) {
	for _, p := range ps {
		p.OnEvent(level, message)
	}
}

func (ps Presenters) OnFieldsBatchApplied(events []data.WatchEvent) {
	for _, p := range ps {
		p.OnFieldsBatchApplied(events)
	}
}

func (ps Presenters) OnTreeReplaced(items []data.FlatTreeItem) {
	for _, p := range ps {
		p.OnTreeReplaced(items)
	}
}

func (ps Presenters) OnCommandResult(name proto.CommandName, ok bool) {
	for _, p := range ps {
		p.OnCommandResult(name, ok)
	}
}
