// Package bridge wires the engine client to the data manager and a Presenter. A
// Bridge is the subscriber's Handler and the entry point for every user intent.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mbocsi/simbridge/client"
	"github.com/mbocsi/simbridge/data"
	"github.com/mbocsi/simbridge/format"
	"github.com/mbocsi/simbridge/metric"
	"github.com/mbocsi/simbridge/proto"
	"github.com/mbocsi/simbridge/transport"
)

// Event levels passed to Presenter.OnEvent.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// CommandSender is satisfied by *client.Commander.
type CommandSender interface {
	Send(ctx context.Context, cmd proto.Command, timeout ...time.Duration) (json.RawMessage, error)
	Close() error
}

type Options struct {
	Source            transport.Source          // Required
	Commander         CommandSender             // Required
	SubscriberOptions []client.SubscriberOption // Optional
	Watches           *data.WatchStore          // Optional (defaults to a new WatchStore)
	Tree              *data.TreeFlattener       // Optional (defaults to a new TreeFlattener)
	Presenter         Presenter                 // Optional (defaults to NopPresenter)
	Metrics           *metric.Metrics           // Optional
}

type Bridge struct {
	subscriber *client.Subscriber
	commander  CommandSender
	watches    *data.WatchStore
	tree       *data.TreeFlattener
	presenter  Presenter
	metrics    *metric.Metrics

	mu      sync.RWMutex
	time    proto.TimeSample
	running bool
}

func New(opts Options) *Bridge {
	if opts.Watches == nil {
		opts.Watches = data.NewWatchStore()
	}
	if opts.Tree == nil {
		opts.Tree = data.NewTreeFlattener()
	}
	if opts.Presenter == nil {
		opts.Presenter = NopPresenter{}
	}

	b := &Bridge{
		commander: opts.Commander,
		watches:   opts.Watches,
		tree:      opts.Tree,
		presenter: opts.Presenter,
		metrics:   opts.Metrics,
		time:      proto.EmptyTimeSample(),
	}
	subOpts := append([]client.SubscriberOption{client.WithSubscriberMetrics(opts.Metrics)}, opts.SubscriberOptions...)
	b.subscriber = client.NewSubscriber(opts.Source, b, subOpts...)

	b.watches.OnChange(func(events []data.WatchEvent) {
		b.metrics.SetWatchedVariables(b.watches.Len())
		b.presenter.OnFieldsBatchApplied(events)
	})
	return b
}

// Start launches the subscriber, then asks the engine for its model tree and
// current status. Command failures here are reported as events, not returned.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.subscriber.Start(ctx); err != nil {
		return err
	}
	go b.watchSubscriber(b.subscriber.Done())

	_ = b.RequestModelTree(ctx)
	_ = b.VerifyStatus(ctx)
	return nil
}

func (b *Bridge) watchSubscriber(done <-chan struct{}) {
	<-done
	if err := b.subscriber.Err(); err != nil {
		slog.Error("Telemetry subscription lost", "error", err)
		b.presenter.OnEvent(LevelError, "Telemetry subscription lost: "+err.Error())
	}
}

func (b *Bridge) Stop() error {
	return errors.Join(b.subscriber.Stop(), b.commander.Close())
}

// Subscriber exposes the underlying subscriber for status reporting.
func (b *Bridge) Subscriber() *client.Subscriber {
	return b.subscriber
}

// Snapshot is the latest time and scheduler state seen on the topic stream.
type Snapshot struct {
	Time       proto.TimeSample `json:"time"`
	Running    bool             `json:"running"`
	Subscriber string           `json:"subscriber"`
	Watched    int              `json:"watched"`
	TreeItems  int              `json:"treeItems"`
}

func (b *Bridge) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		Time:       b.time,
		Running:    b.running,
		Subscriber: b.subscriber.State().String(),
		Watched:    b.watches.Len(),
		TreeItems:  b.tree.Len(),
	}
}

func (b *Bridge) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// client.Handler

func (b *Bridge) OnTime(sample proto.TimeSample) {
	b.mu.Lock()
	b.time = sample
	b.mu.Unlock()
	b.presenter.OnTime(sample)
}

func (b *Bridge) OnStatus(running bool) {
	b.mu.Lock()
	b.running = running
	b.mu.Unlock()
	b.presenter.OnStatus(running)
}

func (b *Bridge) OnEvent(level, message string) {
	b.presenter.OnEvent(level, format.FormatMessage(message))
}

func (b *Bridge) OnFields(updates []proto.FieldUpdate) {
	b.watches.ApplyFieldUpdates(updates)
}

func (b *Bridge) OnModelTree(tree proto.ModelTree) {
	items := b.tree.Replace(tree)
	b.metrics.SetTreeItems(len(items))
	slog.Info("Model tree replaced", "items", len(items))
	b.presenter.OnTreeReplaced(items)
}

// Watch-list and tree controls

func (b *Bridge) AddWatch(path, description string) bool {
	return b.watches.Add(path, description)
}

func (b *Bridge) RemoveWatch(path string) bool {
	return b.watches.Remove(path)
}

func (b *Bridge) ClearWatches() bool {
	return b.watches.Clear()
}

func (b *Bridge) SelectWatch(path string, selected bool) bool {
	return b.watches.SetSelected(path, selected)
}

func (b *Bridge) Watches() []data.WatchedVariable {
	return b.watches.List()
}

func (b *Bridge) ExpandTree(path string, expanded bool) bool {
	return b.tree.SetExpanded(path, expanded)
}

// TreeItems returns the flattened model tree, or only its visible rows.
func (b *Bridge) TreeItems(visibleOnly bool) []data.FlatTreeItem {
	if visibleOnly {
		return b.tree.Visible()
	}
	return b.tree.Items()
}
