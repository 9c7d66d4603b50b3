package session

import (
	"sync"
	"time"
)

// Status is the lifecycle state of one terminal session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is one of the defined constants.
func (s Status) IsValid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected, StatusError:
		return true
	default:
		return false
	}
}

// Surface is the rendering widget a session draws to. The real one lives in
// the browser behind the attach WebSocket; a geometry-only stub stands in
// while nothing is attached.
type Surface interface {
	Write(p []byte) (int, error)
	Size() (cols, rows uint16)
	Resize(cols, rows uint16)
}

// Session is one logical terminal. Its context key and backend connection
// key are construction parameters and never change afterward: switching the
// active project elsewhere in the app must not rebind or reopen a running
// session.
type Session struct {
	ID        string
	CreatedAt time.Time

	contextKey string
	backendKey string

	mu           sync.Mutex
	name         string
	color        string
	status       Status
	statusReason string
	paneWidth    int

	// Reported by the backend on connect.
	server          string
	host            string
	cwd             string
	channelID       string
	siblingChannels int

	// effectiveKey is the server key the live channel resolved to; equals
	// backendKey unless the session was bound through its project.
	effectiveKey string
	degraded     bool

	surface    Surface
	scrollback *ScrollbackBuffer

	ch          Channel
	unsubscribe func()
}

// ContextKey returns the project binding fixed at creation.
func (s *Session) ContextKey() string { return s.contextKey }

// BackendConnectionKey returns the host binding fixed at creation.
func (s *Session) BackendConnectionKey() string { return s.backendKey }

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *Session) Color() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.color
}

func (s *Session) SetColor(color string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.color = color
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StatusReason explains why the session is disconnected or errored.
func (s *Session) StatusReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusReason
}

func (s *Session) PaneWidth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paneWidth
}

func (s *Session) SetPaneWidth(w int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paneWidth = w
}

// CWD returns the last working directory reported by the backend.
func (s *Session) CWD() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Scrollback exposes the retained-output buffer for replay on attach.
func (s *Session) Scrollback() *ScrollbackBuffer {
	return s.scrollback
}

// Info is the JSON shape of a session in the REST API.
type Info struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Color              string `json:"color"`
	Status             Status `json:"status"`
	StatusReason       string `json:"status_reason,omitempty"`
	ContextKey         string `json:"context_key,omitempty"`
	BackendKey         string `json:"backend_key,omitempty"`
	PaneWidth          int    `json:"pane_width"`
	Server             string `json:"server,omitempty"`
	Host               string `json:"host,omitempty"`
	CWD                string `json:"cwd,omitempty"`
	ChannelID          string `json:"channel_id,omitempty"`
	ConnectionChannels int    `json:"connection_channels,omitempty"`
	CreatedAt          string `json:"created_at"`
}

// Info snapshots the session for API responses.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:                 s.ID,
		Name:               s.name,
		Color:              s.color,
		Status:             s.status,
		StatusReason:       s.statusReason,
		ContextKey:         s.contextKey,
		BackendKey:         s.backendKey,
		PaneWidth:          s.paneWidth,
		Server:             s.server,
		Host:               s.host,
		CWD:                s.cwd,
		ChannelID:          s.channelID,
		ConnectionChannels: s.siblingChannels,
		CreatedAt:          s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// writeOutput appends bytes to scrollback and the current surface.
func (s *Session) writeOutput(p []byte) {
	s.scrollback.Write(p)
	s.mu.Lock()
	surface := s.surface
	s.mu.Unlock()
	if surface != nil {
		surface.Write(p)
	}
}

// banner writes a colored single-line notice into the terminal stream, the
// way the browser client annotates connects, errors, and disconnects.
func (s *Session) banner(ansiColor, text string) {
	s.writeOutput([]byte("\r\n\x1b[" + ansiColor + "m" + text + "\x1b[0m\r\n"))
}

// nullSurface keeps geometry while no client is attached and discards
// writes; output is already retained by the scrollback buffer.
type nullSurface struct {
	mu   sync.Mutex
	cols uint16
	rows uint16
}

func newNullSurface(cols, rows uint16) *nullSurface {
	return &nullSurface{cols: cols, rows: rows}
}

func (n *nullSurface) Write(p []byte) (int, error) {
	return len(p), nil
}

func (n *nullSurface) Size() (uint16, uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cols, n.rows
}

func (n *nullSurface) Resize(cols, rows uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cols, n.rows = cols, rows
}
