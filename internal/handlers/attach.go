package handlers

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/llmhub/termmux/internal/wire"
)

// terminalRateLimit is the maximum number of client messages per second per
// attach connection. Messages beyond this rate are dropped.
const terminalRateLimit = 200

// terminalRateBurst is the token bucket burst size, allowing short bursts of
// rapid input (e.g., paste operations) before rate limiting kicks in.
const terminalRateBurst = 200

// initTimeout bounds how long an attach connection may sit silent before
// sending its init frame.
const initTimeout = 10 * time.Second

// Upper bounds for client-requested geometry.
const (
	maxResizeCols = 500
	maxResizeRows = 200
)

// tokenBucket implements a simple token bucket rate limiter for terminal
// messages.
type tokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens added per second
	lastRefill time.Time
}

func newTokenBucket(maxTokens, refillRate int) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// allow checks if a message is allowed and consumes a token.
func (tb *tokenBucket) allow() bool {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.lastRefill = now

	tb.tokens += int(elapsed.Seconds() * float64(tb.refillRate))
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}

	if tb.tokens <= 0 {
		return false
	}
	tb.tokens--
	return true
}

// wsSurface renders a session onto an attach WebSocket: writes become
// output frames, geometry tracks the client's last reported size.
type wsSurface struct {
	conn *websocket.Conn
	ctx  context.Context

	mu   sync.Mutex
	cols uint16
	rows uint16
}

func (s *wsSurface) Write(p []byte) (int, error) {
	data, err := wire.Encode(wire.ServerMessage{Type: wire.TypeOutput, Data: string(p)})
	if err != nil {
		return 0, err
	}
	if err := s.conn.Write(s.ctx, websocket.MessageText, data); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsSurface) Size() (uint16, uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

func (s *wsSurface) Resize(cols, rows uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cols, s.rows = cols, rows
}

// TerminalAttachWS attaches a browser client to a session's byte stream.
// The client must send an init frame with its cell geometry first; after
// that, input and resize frames are relayed into the session and all session
// output (including buffered scrollback) flows back as output frames.
//
// Detaching never tears the session down; the channel keeps running and
// output accumulates in scrollback for the next attach.
func TerminalAttachWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s := Mux.Get(id)
	if s == nil {
		http.Error(w, "Terminal not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[handlers] failed to accept attach websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	conn.SetReadLimit(1024 * 1024)

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	_, data, err := conn.Read(initCtx)
	cancel()
	if err != nil {
		conn.Close(4400, "Expected init frame")
		return
	}
	msg, err := wire.DecodeClient(data)
	if err != nil || msg.Type != wire.TypeInit {
		conn.Close(4400, "Expected init frame")
		return
	}
	cols, rows := clampGeometry(msg.Cols, msg.Rows)

	surface := &wsSurface{conn: conn, ctx: ctx, cols: cols, rows: rows}
	replay := Sessions.AttachSurface(s, surface)
	defer Sessions.DetachSurface(s, surface)
	Sessions.Resize(s, cols, rows)

	log.Printf("[handlers] client attached to %s", s.ID)

	// Tell the late joiner what it attached to before replaying output.
	info := s.Info()
	if info.Server != "" {
		frame, _ := wire.Encode(wire.ServerMessage{
			Type:               wire.TypeConnected,
			Server:             info.Server,
			Host:               info.Host,
			CWD:                info.CWD,
			ChannelID:          info.ChannelID,
			ConnectionChannels: info.ConnectionChannels,
		})
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			return
		}
	}
	if len(replay) > 0 {
		if _, err := surface.Write(replay); err != nil {
			return
		}
	}

	limiter := newTokenBucket(terminalRateBurst, terminalRateLimit)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}

		if !limiter.allow() {
			continue
		}

		msg, err := wire.DecodeClient(data)
		if err != nil {
			continue
		}
		switch msg.Type {
		case wire.TypeInput:
			Sessions.SendInput(s, msg.Data)
		case wire.TypeResize:
			if msg.Cols > 0 && msg.Rows > 0 {
				cols, rows := clampGeometry(msg.Cols, msg.Rows)
				Sessions.Resize(s, cols, rows)
			}
		}
	}

	log.Printf("[handlers] client detached from %s", s.ID)
	conn.Close(websocket.StatusNormalClosure, "")
}

func clampGeometry(cols, rows uint16) (uint16, uint16) {
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}
	if cols > maxResizeCols {
		cols = maxResizeCols
	}
	if rows > maxResizeRows {
		rows = maxResizeRows
	}
	return cols, rows
}
