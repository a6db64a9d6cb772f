package integration

import (
	"strings"
	"sync"

	"github.com/mbocsi/simbridge/data"
	"github.com/mbocsi/simbridge/proto"
)

// capturePresenter records what the bridge presents.
type capturePresenter struct {
	mu      sync.Mutex
	running bool
	status  int
	times   []proto.TimeSample
	events  []proto.EventRecord
	watch   []data.WatchEvent
	tree    []data.FlatTreeItem
	results map[proto.CommandName][]bool
}

func newCapturePresenter() *capturePresenter {
	return &capturePresenter{results: make(map[proto.CommandName][]bool)}
}

func (p *capturePresenter) OnTime(sample proto.TimeSample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.times = append(p.times, sample)
}

func (p *capturePresenter) OnStatus(running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = running
	p.status++
}

func (p *capturePresenter) OnEvent(level, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, proto.EventRecord{Level: level, Message: message})
}

func (p *capturePresenter) OnFieldsBatchApplied(events []data.WatchEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watch = append(p.watch, events...)
}

func (p *capturePresenter) OnTreeReplaced(items []data.FlatTreeItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tree = items
}

func (p *capturePresenter) OnCommandResult(name proto.CommandName, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[name] = append(p.results[name], ok)
}

func (p *capturePresenter) isRunning() (running bool, seen bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, p.status > 0
}

func (p *capturePresenter) treeLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tree)
}

func (p *capturePresenter) hasEvent(level, substr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasEventLocked(level, substr)
}

func (p *capturePresenter) hasEventLocked(level, substr string) bool {
	for _, e := range p.events {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
