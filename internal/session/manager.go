// Package session owns the set of logical terminal sessions and drives each
// one's connection state machine against the channel adapter.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/llmhub/termmux/internal/channel"
	"github.com/llmhub/termmux/internal/fanout"
	"github.com/llmhub/termmux/internal/logutil"
)

// projectsRoot is where backend hosts check out project working copies; the
// auto-cd input issued on connect targets <projectsRoot>/<slug>.
const projectsRoot = "/root/llm-hub-projects"

// ErrInvalidState is returned by Reconnect when the session is neither
// disconnected nor errored.
var ErrInvalidState = errors.New("reconnect only valid from disconnected or error")

// Channel is the slice of channel.Channel the manager drives. Start must
// not deliver any event before it is called.
type Channel interface {
	Start()
	SendInput(data string) error
	Resize(cols, rows uint16)
	Close()
	Endpoint() *channel.Endpoint
}

// Opener opens duplex channels toward backend hosts.
type Opener interface {
	Open(ctx context.Context, contextKey, backendKey string, cols, rows uint16, onEvent channel.EventHandler) (Channel, error)
}

// AdapterOpener adapts *channel.Adapter to the Opener interface.
type AdapterOpener struct {
	Adapter *channel.Adapter
}

func (a AdapterOpener) Open(ctx context.Context, contextKey, backendKey string, cols, rows uint16, onEvent channel.EventHandler) (Channel, error) {
	ch, err := a.Adapter.Open(ctx, contextKey, backendKey, cols, rows, onEvent)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Manager owns all live sessions. Channels are opened once at session
// creation and only ever reopened by an explicit Reconnect; nothing here
// reacts to the surrounding application switching contexts.
type Manager struct {
	opener         Opener
	broadcaster    *fanout.Broadcaster
	scrollbackSize int

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(opener Opener, broadcaster *fanout.Broadcaster, scrollbackSize int) *Manager {
	return &Manager{
		opener:         opener,
		broadcaster:    broadcaster,
		scrollbackSize: scrollbackSize,
		sessions:       make(map[string]*Session),
	}
}

// Create registers a new session in the disconnected state. The context and
// backend keys are fixed here for the session's lifetime.
func (m *Manager) Create(name, color, contextKey, backendKey string, paneWidth int) *Session {
	s := &Session{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now(),
		contextKey: contextKey,
		backendKey: backendKey,
		name:       name,
		color:      color,
		status:     StatusDisconnected,
		paneWidth:  paneWidth,
		scrollback: NewScrollbackBuffer(m.scrollbackSize),
		surface:    newNullSurface(80, 24),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	log.Printf("[session] created %s (context=%s backend=%s)",
		s.ID, logutil.SanitizeForLog(contextKey), logutil.SanitizeForLog(backendKey))
	return s
}

// Get returns a session by ID, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Connect opens the session's channel sized to the surface's current cell
// geometry. A session with neither key stays disconnected with a reason; an
// unresolvable or unreachable endpoint also leaves it disconnected rather
// than errored, since nothing was ever established.
func (m *Manager) Connect(s *Session) error {
	if s.contextKey == "" && s.backendKey == "" {
		s.mu.Lock()
		s.status = StatusDisconnected
		s.statusReason = "no project or server configured"
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.status = StatusConnecting
	s.statusReason = ""
	surface := s.surface
	s.mu.Unlock()

	cols, rows := surface.Size()
	ch, err := m.opener.Open(context.Background(), s.contextKey, s.backendKey, cols, rows, func(ev channel.Event) {
		m.handleEvent(s, ev)
	})
	if err != nil {
		s.mu.Lock()
		s.status = StatusDisconnected
		s.statusReason = err.Error()
		s.mu.Unlock()
		s.banner("31", "Error: "+err.Error())
		return err
	}

	ep := ch.Endpoint()
	s.mu.Lock()
	s.ch = ch
	s.effectiveKey = ep.ServerKey
	if s.unsubscribe == nil {
		s.unsubscribe = m.broadcaster.Subscribe(ep.ServerKey, func(key string, status fanout.Status, message string) {
			m.handleBroadcast(s, status, message)
		})
	}
	s.mu.Unlock()

	// Only start reading once the channel and subscription are in place, so
	// a backend that answers instantly cannot slip its connected frame (or a
	// shared-status broadcast) past the bookkeeping above.
	ch.Start()
	return nil
}

// Reconnect closes any stale channel, discards buffered output, notes the
// attempt in the terminal stream, and re-enters connecting.
func (m *Manager) Reconnect(s *Session) error {
	s.mu.Lock()
	if s.status != StatusDisconnected && s.status != StatusError {
		s.mu.Unlock()
		return ErrInvalidState
	}
	stale := s.ch
	s.ch = nil
	s.degraded = false
	s.mu.Unlock()

	if stale != nil {
		stale.Close()
	}

	s.scrollback.Reset()
	s.banner("33", "Reconnecting...")
	return m.Connect(s)
}

// SendInput forwards input on the session's channel. Input while not
// connected is silently dropped: stray keystrokes before the shell is up are
// harmless and surfacing them would only add noise.
func (m *Manager) SendInput(s *Session, data string) {
	s.mu.Lock()
	ch := s.ch
	connected := s.status == StatusConnected
	s.mu.Unlock()

	if !connected || ch == nil {
		return
	}
	if err := ch.SendInput(data); err != nil {
		log.Printf("[session] input write failed for %s: %v", s.ID, err)
	}
}

// Resize updates the local surface immediately and forwards the geometry
// only when connected.
func (m *Manager) Resize(s *Session, cols, rows uint16) {
	s.mu.Lock()
	surface := s.surface
	ch := s.ch
	connected := s.status == StatusConnected
	s.mu.Unlock()

	surface.Resize(cols, rows)
	if connected && ch != nil {
		ch.Resize(cols, rows)
	}
}

// Close tears the session down: channel released (idempotent), fanout
// subscription removed, entry dropped from the registry. This is the
// cancellation primitive; pending local state goes with it.
func (m *Manager) Close(s *Session) {
	s.mu.Lock()
	ch := s.ch
	unsub := s.unsubscribe
	s.ch = nil
	s.unsubscribe = nil
	s.status = StatusDisconnected
	s.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if unsub != nil {
		unsub()
	}

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()

	log.Printf("[session] closed %s", s.ID)
}

// AttachSurface swaps in a live rendering surface and returns the retained
// output to replay onto it.
func (m *Manager) AttachSurface(s *Session, surface Surface) []byte {
	s.mu.Lock()
	s.surface = surface
	s.mu.Unlock()
	return s.scrollback.Snapshot()
}

// DetachSurface reverts to a geometry-preserving stub when a client goes
// away. The session and its channel keep running; connections are never
// dropped just because nothing is watching.
//
// The caller passes the surface it attached: if another viewer has already
// replaced it, the detach is a no-op so a stale connection tearing down
// cannot blind the current one.
func (m *Manager) DetachSurface(s *Session, surface Surface) {
	s.mu.Lock()
	if s.surface == surface {
		cols, rows := s.surface.Size()
		s.surface = newNullSurface(cols, rows)
	}
	s.mu.Unlock()
}

func (m *Manager) handleEvent(s *Session, ev channel.Event) {
	switch ev.Type {
	case channel.EventConnected:
		s.mu.Lock()
		s.status = StatusConnected
		s.statusReason = ""
		s.degraded = false
		s.server = ev.Server
		s.host = ev.Host
		s.channelID = ev.ChannelID
		s.siblingChannels = ev.ConnectionChannels
		if ev.CWD != "" {
			s.cwd = ev.CWD
		}
		ch := s.ch
		slug := ""
		if ch != nil {
			slug = ch.Endpoint().ProjectSlug
		}
		s.mu.Unlock()

		s.banner("32", fmt.Sprintf("Connected to %s (%s)", ev.Server, ev.Host))
		if slug != "" && ch != nil {
			if err := ch.SendInput(fmt.Sprintf("cd %s/%s\n", projectsRoot, slug)); err != nil {
				log.Printf("[session] auto-cd failed for %s: %v", s.ID, err)
			}
		}

	case channel.EventOutput:
		s.writeOutput(ev.Data)

	case channel.EventError:
		s.mu.Lock()
		s.status = StatusError
		s.statusReason = ev.Message
		s.mu.Unlock()
		s.banner("31", "Error: "+ev.Message)

	case channel.EventDisconnected:
		s.mu.Lock()
		s.status = StatusDisconnected
		s.mu.Unlock()
		s.banner("33", "Connection closed")
	}
}

// handleBroadcast applies a backend-wide status change. The most recent
// broadcast wins regardless of the session's own channel state.
func (m *Manager) handleBroadcast(s *Session, status fanout.Status, message string) {
	switch status {
	case fanout.StatusConnecting:
		// A session already connecting stays connecting; others wait for
		// the definitive status.

	case fanout.StatusConnected:
		s.mu.Lock()
		wasDegraded := s.degraded
		if wasDegraded {
			s.status = StatusConnected
			s.statusReason = ""
			s.degraded = false
		}
		s.mu.Unlock()
		if wasDegraded {
			s.banner("32", "VPS connection restored")
		}

	case fanout.StatusDisconnected, fanout.StatusError:
		s.mu.Lock()
		if status == fanout.StatusError {
			s.status = StatusError
		} else {
			s.status = StatusDisconnected
		}
		s.statusReason = message
		s.degraded = true
		s.mu.Unlock()

		text := "VPS connection lost - all terminals affected"
		if message != "" {
			text += ": " + message
		}
		s.banner("31", text)
	}
}
