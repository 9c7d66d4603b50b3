// Package mux is the top-level layout controller: the ordered session
// collection, focus, naming and color tags, pane geometry, and the
// narrow-viewport switch.
package mux

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/llmhub/termmux/internal/session"
)

// palette is the fixed 7-color identity palette assigned round-robin at
// session creation.
var palette = [...]string{
	"#f7768e",
	"#9ece6a",
	"#e0af68",
	"#7aa2f7",
	"#bb9af7",
	"#7dcfff",
	"#a9b1d6",
}

const (
	MaxSessions      = 6
	MinPaneWidth     = 150
	MaxPaneWidth     = 600
	DefaultPaneWidth = 300

	defaultNarrowBreakpoint = 768
)

var (
	// ErrMaxSessions rejects creation past the session cap. Existing
	// sessions are unaffected.
	ErrMaxSessions = errors.New("maximum session count reached")

	// ErrCannotCloseLast keeps the collection non-empty.
	ErrCannotCloseLast = errors.New("cannot close the last session")

	ErrSessionNotFound = errors.New("session not found")
)

// PaletteColor returns the identity color for a zero-based palette index.
func PaletteColor(i int) string {
	return palette[((i%len(palette))+len(palette))%len(palette)]
}

// dragState is the transient divider-drag value object. It exists only
// between pointer-down and pointer-up.
type dragState struct {
	sessionID   string
	originX     int
	originWidth int
}

// Controller owns render order, focus, and layout geometry on top of the
// session manager. All operations are synchronous and in-memory; the only
// refusals are the session-cap and last-session guards.
type Controller struct {
	manager     *session.Manager
	breakpoint  int
	maxSessions int

	mu            sync.Mutex
	order         []*session.Session
	activeID      string
	viewportWidth int
	drag          *dragState
}

// NewController builds a controller over the given manager. Zero or negative
// values select the defaults (768px breakpoint, 6 sessions).
func NewController(manager *session.Manager, narrowBreakpoint, maxSessions int) *Controller {
	if narrowBreakpoint <= 0 {
		narrowBreakpoint = defaultNarrowBreakpoint
	}
	if maxSessions <= 0 {
		maxSessions = MaxSessions
	}
	return &Controller{manager: manager, breakpoint: narrowBreakpoint, maxSessions: maxSessions}
}

// CreateSession adds a session bound to the given keys, colored by
// round-robin over the current session count, and focuses it. The channel
// is opened immediately; a failed connect leaves the session in place,
// disconnected with a reason.
func (c *Controller) CreateSession(contextKey, backendKey string) (*session.Session, error) {
	c.mu.Lock()
	if len(c.order) >= c.maxSessions {
		c.mu.Unlock()
		return nil, ErrMaxSessions
	}
	n := len(c.order)
	name := "bash"
	if n > 0 {
		name = fmt.Sprintf("bash %d", n+1)
	}
	s := c.manager.Create(name, palette[n%len(palette)], contextKey, backendKey, DefaultPaneWidth)
	c.order = append(c.order, s)
	c.activeID = s.ID
	c.mu.Unlock()

	if err := c.manager.Connect(s); err != nil {
		log.Printf("[mux] initial connect failed for %s: %v", s.ID, err)
	}
	return s, nil
}

// ReuseOrCreateForContext focuses an existing session matching both keys,
// or creates one. The bool reports whether a new session was created.
func (c *Controller) ReuseOrCreateForContext(contextKey, backendKey string) (*session.Session, bool, error) {
	c.mu.Lock()
	for _, s := range c.order {
		if s.ContextKey() == contextKey && s.BackendConnectionKey() == backendKey {
			c.activeID = s.ID
			c.mu.Unlock()
			return s, false, nil
		}
	}
	c.mu.Unlock()

	s, err := c.CreateSession(contextKey, backendKey)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// CloseSession removes a session, refusing to empty the collection. When the
// focused session is closed, focus moves to the most-recently-added
// remaining one.
func (c *Controller) CloseSession(id string) error {
	c.mu.Lock()
	if len(c.order) <= 1 {
		c.mu.Unlock()
		return ErrCannotCloseLast
	}

	idx := -1
	for i, s := range c.order {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return ErrSessionNotFound
	}

	s := c.order[idx]
	c.order = append(c.order[:idx], c.order[idx+1:]...)
	if c.activeID == id {
		c.activeID = c.order[len(c.order)-1].ID
	}
	if c.drag != nil && c.drag.sessionID == id {
		c.drag = nil
	}
	c.mu.Unlock()

	c.manager.Close(s)
	return nil
}

// Get returns a session in the collection by ID, or nil.
func (c *Controller) Get(id string) *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.order {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Sessions returns the sessions in render/tab order.
func (c *Controller) Sessions() []*session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*session.Session(nil), c.order...)
}

// ActiveID returns the focused session's ID.
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// SetActive focuses a session. In the narrow layout only the focused pane is
// visible; background sessions keep their connections either way.
func (c *Controller) SetActive(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.order {
		if s.ID == id {
			c.activeID = id
			return nil
		}
	}
	return ErrSessionNotFound
}

// Rename sets a session's user-visible label and returns the session.
func (c *Controller) Rename(id, name string) (*session.Session, error) {
	s := c.Get(id)
	if s == nil {
		return nil, ErrSessionNotFound
	}
	s.SetName(name)
	return s, nil
}

// SetColor overrides a session's identity color and returns the session.
// Duplicate colors across sessions are allowed.
func (c *Controller) SetColor(id, color string) (*session.Session, error) {
	s := c.Get(id)
	if s == nil {
		return nil, ErrSessionNotFound
	}
	s.SetColor(color)
	return s, nil
}

// SetPaneWidth stores a desktop pane width, clamped to [150, 600].
func (c *Controller) SetPaneWidth(id string, width int) error {
	s := c.Get(id)
	if s == nil {
		return ErrSessionNotFound
	}
	s.SetPaneWidth(clampPaneWidth(width))
	return nil
}

// BeginDrag starts a divider drag, capturing the pointer X and the pane's
// width at that instant.
func (c *Controller) BeginDrag(id string, pointerX int) error {
	s := c.Get(id)
	if s == nil {
		return ErrSessionNotFound
	}
	c.mu.Lock()
	c.drag = &dragState{sessionID: id, originX: pointerX, originWidth: s.PaneWidth()}
	c.mu.Unlock()
	return nil
}

// DragTo resizes the dragged pane to originWidth plus the pointer delta.
// Delta-based so drag direction stays stable wherever the drag started.
// A no-op when no drag is in progress.
func (c *Controller) DragTo(pointerX int) {
	c.mu.Lock()
	d := c.drag
	c.mu.Unlock()
	if d == nil {
		return
	}
	if s := c.Get(d.sessionID); s != nil {
		s.SetPaneWidth(clampPaneWidth(d.originWidth + (pointerX - d.originX)))
	}
}

// EndDrag discards the transient drag state.
func (c *Controller) EndDrag() {
	c.mu.Lock()
	c.drag = nil
	c.mu.Unlock()
}

// SetViewportWidth records the sampled viewport width for the responsive
// layout switch.
func (c *Controller) SetViewportWidth(width int) {
	c.mu.Lock()
	c.viewportWidth = width
	c.mu.Unlock()
}

// IsNarrow reports whether the layout is in single-visible-pane mode. An
// unsampled viewport renders the desktop layout.
func (c *Controller) IsNarrow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewportWidth > 0 && c.viewportWidth < c.breakpoint
}

// Layout is the JSON shape of the whole multiplexer state.
type Layout struct {
	ActiveSessionID  string         `json:"active_session_id"`
	IsNarrowViewport bool           `json:"is_narrow_viewport"`
	ViewportWidth    int            `json:"viewport_width,omitempty"`
	Sessions         []session.Info `json:"sessions"`
}

// Snapshot captures the collection and layout state for API responses.
func (c *Controller) Snapshot() Layout {
	c.mu.Lock()
	order := append([]*session.Session(nil), c.order...)
	out := Layout{
		ActiveSessionID:  c.activeID,
		ViewportWidth:    c.viewportWidth,
		IsNarrowViewport: c.viewportWidth > 0 && c.viewportWidth < c.breakpoint,
	}
	c.mu.Unlock()

	out.Sessions = make([]session.Info, 0, len(order))
	for _, s := range order {
		out.Sessions = append(out.Sessions, s.Info())
	}
	return out
}

// CloseAll tears down every session regardless of the last-session guard.
// Shutdown path only.
func (c *Controller) CloseAll() {
	c.mu.Lock()
	order := c.order
	c.order = nil
	c.activeID = ""
	c.drag = nil
	c.mu.Unlock()

	for _, s := range order {
		c.manager.Close(s)
	}
}

func clampPaneWidth(w int) int {
	if w < MinPaneWidth {
		return MinPaneWidth
	}
	if w > MaxPaneWidth {
		return MaxPaneWidth
	}
	return w
}
