package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mbocsi/simbridge/client"
	"github.com/mbocsi/simbridge/proto"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func pathParam(r *http.Request) (string, error) {
	return url.PathUnescape(chi.URLParam(r, "path"))
}

func (g *Gateway) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.ctrl.Snapshot())
}

func (g *Gateway) HandleListWatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.ctrl.Watches())
}

func (g *Gateway) HandleAddWatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path        string `json:"variablePath"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "variablePath is required")
		return
	}
	if !g.ctrl.AddWatch(req.Path, req.Description) {
		writeError(w, http.StatusConflict, "variable is already watched")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"variablePath": req.Path})
}

func (g *Gateway) HandleClearWatches(w http.ResponseWriter, r *http.Request) {
	g.ctrl.ClearWatches()
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) HandleRemoveWatch(w http.ResponseWriter, r *http.Request) {
	path, err := pathParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if !g.ctrl.RemoveWatch(path) {
		writeError(w, http.StatusNotFound, "variable is not watched")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) HandleSelectWatch(w http.ResponseWriter, r *http.Request) {
	path, err := pathParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	var req struct {
		Selected bool `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !g.ctrl.SelectWatch(path, req.Selected) {
		writeError(w, http.StatusNotFound, "variable is not watched")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) HandleTree(w http.ResponseWriter, r *http.Request) {
	visibleOnly := r.URL.Query().Get("visible") == "true"
	writeJSON(w, http.StatusOK, g.ctrl.TreeItems(visibleOnly))
}

func (g *Gateway) HandleExpandTree(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path     string `json:"fullPath"`
		Expanded bool   `json:"expanded"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !g.ctrl.ExpandTree(req.Path, req.Expanded) {
		writeError(w, http.StatusNotFound, "no expandable tree item at path")
		return
	}
	writeJSON(w, http.StatusOK, g.ctrl.TreeItems(true))
}

// HandleCommand runs one command. PROGRESS takes {"millis": n} and RATE takes
// {"rate": x}; "toggle" picks RUN or HOLD from the last known status.
func (g *Gateway) HandleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var err error
	var cmdName proto.CommandName
	if name == "toggle" {
		cmdName = proto.CommandRun
		if g.ctrl.Snapshot().Running {
			cmdName = proto.CommandHold
		}
		err = g.ctrl.Toggle(r.Context())
	} else {
		cmdName, err = proto.ParseCommandName(name)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		cmd := proto.Command{Name: cmdName}
		if r.ContentLength != 0 {
			var args struct {
				Millis *int64   `json:"millis"`
				Rate   *float64 `json:"rate"`
			}
			if derr := json.NewDecoder(r.Body).Decode(&args); derr != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			if cmdName == proto.CommandProgress {
				cmd.Millis = args.Millis
			}
			if cmdName == proto.CommandRate {
				cmd.Rate = args.Rate
			}
		}
		if verr := cmd.Validate(); verr != nil {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		err = g.ctrl.Do(r.Context(), cmd)
	}

	res := CommandResult{Command: cmdName, OK: err == nil}
	status := http.StatusOK
	if err != nil {
		res.Error = err.Error()
		switch {
		case client.IsTimeout(err):
			status = http.StatusGatewayTimeout
		case client.IsEncoding(err):
			status = http.StatusBadRequest
		default:
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, res)
}

func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if g.hub.Len() >= g.hub.MaxSessions() {
		slog.Warn("Max sessions reached, rejecting connection", "remote_addr", r.RemoteAddr)
		http.Error(w, ErrHubFull.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection", "error", err)
		return
	}

	s, err := g.hub.register(conn)
	if err != nil {
		slog.Warn("Max sessions reached, rejecting connection", "remote_addr", r.RemoteAddr)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}
	slog.Info("WebSocket session opened", "session", s.id, "addr", r.RemoteAddr)

	defer func() {
		g.hub.unregister(s.id)
		slog.Info("WebSocket session closed", "session", s.id, "addr", r.RemoteAddr)
	}()

	snapshot, err := json.Marshal(Event{Kind: KindSnapshot, Data: map[string]any{
		"state":   g.ctrl.Snapshot(),
		"watches": g.ctrl.Watches(),
	}})
	if err == nil {
		err = s.send(snapshot)
	}
	if err != nil {
		slog.Warn("Failed to send snapshot", "session", s.id, "error", err)
		return
	}

	// The stream is one-way; reads only detect the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket connection error", "session", s.id, "error", err)
			}
			return
		}
	}
}

