// Package web serves the bridge over HTTP: a REST control surface, a WebSocket
// event stream and the Prometheus endpoint.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mbocsi/simbridge/bridge"
	"github.com/mbocsi/simbridge/data"
	"github.com/mbocsi/simbridge/proto"
)

// Controller is the part of *bridge.Bridge the gateway drives.
type Controller interface {
	Snapshot() bridge.Snapshot
	Watches() []data.WatchedVariable
	AddWatch(path, description string) bool
	RemoveWatch(path string) bool
	ClearWatches() bool
	SelectWatch(path string, selected bool) bool
	TreeItems(visibleOnly bool) []data.FlatTreeItem
	ExpandTree(path string, expanded bool) bool
	Toggle(ctx context.Context) error
	Do(ctx context.Context, cmd proto.Command) error
}

type Options struct {
	Addr    string       // Defaults to ":8080"
	Hub     *Hub         // Defaults to a hub with 4 sessions
	Metrics http.Handler // Optional, served on /metrics
}

type Gateway struct {
	ctrl    Controller
	hub     *Hub
	metrics http.Handler
	server  *http.Server
}

func NewGateway(ctrl Controller, opts Options) *Gateway {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(0)
	}
	g := &Gateway{ctrl: ctrl, hub: opts.Hub, metrics: opts.Metrics}
	g.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           g.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return g
}

// Hub returns the gateway's session hub, which is also its Presenter.
func (g *Gateway) Hub() *Hub {
	return g.hub
}

func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/state", g.HandleState)
	r.Get("/api/watches", g.HandleListWatches)
	r.Post("/api/watches", g.HandleAddWatch)
	r.Delete("/api/watches", g.HandleClearWatches)
	r.Delete("/api/watches/{path}", g.HandleRemoveWatch)
	r.Put("/api/watches/{path}/selected", g.HandleSelectWatch)
	r.Get("/api/tree", g.HandleTree)
	r.Post("/api/tree/expand", g.HandleExpandTree)
	r.Post("/api/commands/{name}", g.HandleCommand)
	r.Get("/ws", g.HandleWebSocket)
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics)
	}
	return r
}

// Start serves until Shutdown is called.
func (g *Gateway) Start() error {
	slog.Info("Starting web gateway", "addr", g.server.Addr, "max_sessions", g.hub.MaxSessions())
	err := g.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down web gateway", "addr", g.server.Addr)
	g.hub.Close()
	return g.server.Shutdown(ctx)
}
