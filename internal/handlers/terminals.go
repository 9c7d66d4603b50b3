// Package handlers exposes the REST and WebSocket surface of the
// multiplexer: session CRUD, layout actions, and the per-session attach
// endpoint.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/llmhub/termmux/internal/database"
	"github.com/llmhub/termmux/internal/fanout"
	"github.com/llmhub/termmux/internal/logutil"
	"github.com/llmhub/termmux/internal/mux"
	"github.com/llmhub/termmux/internal/session"
)

// Set from main.go during init.
var (
	Mux          *mux.Controller
	Sessions     *session.Manager
	StatusFanout *fanout.Broadcaster
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type serverInfo struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Host         string `json:"host"`
	TerminalPort int    `json:"terminal_port"`
	Status       string `json:"status,omitempty"`
	Message      string `json:"message,omitempty"`
}

// ListServers returns the known backend hosts with the last broadcast
// status per connection key.
func ListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := database.ListServers()
	if err != nil {
		log.Printf("[handlers] list servers failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list servers")
		return
	}

	out := make([]serverInfo, 0, len(servers))
	for _, srv := range servers {
		info := serverInfo{
			Key:          srv.Key,
			Name:         srv.Name,
			Host:         srv.Host,
			TerminalPort: srv.TerminalPort,
		}
		if last, ok := StatusFanout.Last(srv.Key); ok {
			info.Status = last.Status.String()
			info.Message = last.Message
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// ListTerminals returns the full layout snapshot: ordered sessions, focus,
// and the responsive state.
func ListTerminals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Mux.Snapshot())
}

type createTerminalRequest struct {
	ContextKey string `json:"context_key"`
	ServerKey  string `json:"server_key"`
}

func CreateTerminal(w http.ResponseWriter, r *http.Request) {
	var req createTerminalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s, err := Mux.CreateSession(req.ContextKey, req.ServerKey)
	if errors.Is(err, mux.ErrMaxSessions) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create terminal")
		return
	}

	log.Printf("[handlers] terminal created %s (context=%s server=%s)",
		s.ID, logutil.SanitizeForLog(req.ContextKey), logutil.SanitizeForLog(req.ServerKey))
	writeJSON(w, http.StatusCreated, s.Info())
}

// ReuseTerminal is the context-switch entry point: focus the session already
// bound to this (context, server) pair, or create one.
func ReuseTerminal(w http.ResponseWriter, r *http.Request) {
	var req createTerminalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s, created, err := Mux.ReuseOrCreateForContext(req.ContextKey, req.ServerKey)
	if errors.Is(err, mux.ErrMaxSessions) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reuse terminal")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"created":  created,
		"terminal": s.Info(),
	})
}

func DeleteTerminal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := Mux.CloseSession(id)
	switch {
	case errors.Is(err, mux.ErrCannotCloseLast):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, mux.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Terminal not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to close terminal")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type renameRequest struct {
	Name string `json:"name"`
}

func RenameTerminal(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	s, err := Mux.Rename(chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, http.StatusNotFound, "Terminal not found")
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

type recolorRequest struct {
	Color        string `json:"color"`
	PaletteIndex *int   `json:"palette_index"`
}

// RecolorTerminal accepts either a palette index or an explicit color.
func RecolorTerminal(w http.ResponseWriter, r *http.Request) {
	var req recolorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	color := req.Color
	if req.PaletteIndex != nil {
		color = mux.PaletteColor(*req.PaletteIndex)
	}
	if color == "" {
		writeError(w, http.StatusBadRequest, "Color or palette_index is required")
		return
	}

	s, err := Mux.SetColor(chi.URLParam(r, "id"), color)
	if err != nil {
		writeError(w, http.StatusNotFound, "Terminal not found")
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

func FocusTerminal(w http.ResponseWriter, r *http.Request) {
	if err := Mux.SetActive(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "Terminal not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active_session_id": Mux.ActiveID()})
}

// ReconnectTerminal drives the explicit reconnect transition. A failed dial
// leaves the session disconnected with a reason and still returns the
// session snapshot; only an invalid starting state is an error.
func ReconnectTerminal(w http.ResponseWriter, r *http.Request) {
	s := Mux.Get(chi.URLParam(r, "id"))
	if s == nil {
		writeError(w, http.StatusNotFound, "Terminal not found")
		return
	}

	if err := Sessions.Reconnect(s); errors.Is(err, session.ErrInvalidState) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

type dividerRequest struct {
	Phase string `json:"phase"`
	X     int    `json:"x"`
}

// DividerTerminal handles the three phases of a divider drag.
func DividerTerminal(w http.ResponseWriter, r *http.Request) {
	var req dividerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	switch req.Phase {
	case "start":
		if err := Mux.BeginDrag(id, req.X); err != nil {
			writeError(w, http.StatusNotFound, "Terminal not found")
			return
		}
	case "move":
		Mux.DragTo(req.X)
	case "end":
		Mux.EndDrag()
	default:
		writeError(w, http.StatusBadRequest, "Phase must be start, move, or end")
		return
	}

	s := Mux.Get(id)
	if s == nil {
		writeError(w, http.StatusNotFound, "Terminal not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pane_width": s.PaneWidth()})
}

type viewportRequest struct {
	Width int `json:"width"`
}

// SetViewport records the sampled browser viewport width.
func SetViewport(w http.ResponseWriter, r *http.Request) {
	var req viewportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Width <= 0 {
		writeError(w, http.StatusBadRequest, "Width is required")
		return
	}

	Mux.SetViewportWidth(req.Width)
	writeJSON(w, http.StatusOK, map[string]bool{"is_narrow_viewport": Mux.IsNarrow()})
}

// TerminalsStatus reports active sessions plus the last known status per
// backend connection key.
func TerminalsStatus(w http.ResponseWriter, r *http.Request) {
	snap := Mux.Snapshot()

	backends := make(map[string]map[string]string)
	for _, info := range snap.Sessions {
		key := info.BackendKey
		if key == "" {
			continue
		}
		if _, ok := backends[key]; ok {
			continue
		}
		entry := map[string]string{}
		if last, ok := StatusFanout.Last(key); ok {
			entry["status"] = last.Status.String()
			entry["message"] = last.Message
		}
		backends[key] = entry
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_sessions": len(snap.Sessions),
		"backends":        backends,
	})
}
