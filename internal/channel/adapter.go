// Package channel wraps one duplex WebSocket per backend connection in the
// application-level message protocol, translating transport frames into
// typed events for the session layer.
package channel

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/llmhub/termmux/internal/fanout"
	"github.com/llmhub/termmux/internal/logutil"
	"github.com/llmhub/termmux/internal/wire"
)

// frameInterval matches one animation frame; resize bursts are coalesced so
// at most one resize message per frame reaches the wire.
const frameInterval = 16 * time.Millisecond

const defaultDialTimeout = 15 * time.Second

const readLimit = 1024 * 1024

// Adapter opens channels against backend terminal endpoints. Backend-wide
// connection_status frames received on any channel are routed to the fanout
// broadcaster keyed by the backend connection key.
type Adapter struct {
	resolver    Resolver
	broadcaster *fanout.Broadcaster

	// DialTimeout bounds the transport dial. FrameInterval overrides the
	// resize coalescing window; tests shorten it.
	DialTimeout   time.Duration
	FrameInterval time.Duration
}

func NewAdapter(resolver Resolver, broadcaster *fanout.Broadcaster) *Adapter {
	return &Adapter{
		resolver:      resolver,
		broadcaster:   broadcaster,
		DialTimeout:   defaultDialTimeout,
		FrameInterval: frameInterval,
	}
}

// Channel is one live duplex channel. All methods are safe for concurrent
// use; Close is idempotent. Incoming frames are not read until Start is
// called, so the owner can finish registering the channel before the first
// event can fire.
type Channel struct {
	endpoint    *Endpoint
	conn        *websocket.Conn
	onEvent     EventHandler
	broadcaster *fanout.Broadcaster
	startOnce   sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	closeMu sync.Mutex
	closed  bool

	frameInterval time.Duration
	resizeMu      sync.Mutex
	resizePending bool
	pendingCols   uint16
	pendingRows   uint16
}

// Open resolves the key pair, dials the backend terminal endpoint, and sends
// the init handshake carrying the surface's current cell geometry. Resolution
// and dial failures surface synchronously as ErrConnectionRefused; everything
// after that arrives through onEvent once the caller invokes Start.
func (a *Adapter) Open(ctx context.Context, contextKey, backendKey string, cols, rows uint16, onEvent EventHandler) (*Channel, error) {
	ep, err := a.resolver.Resolve(contextKey, backendKey)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, a.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, ep.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnectionRefused, ep.URL, err)
	}
	conn.SetReadLimit(readLimit)

	chCtx, chCancel := context.WithCancel(context.Background())
	ch := &Channel{
		endpoint:      ep,
		conn:          conn,
		onEvent:       onEvent,
		broadcaster:   a.broadcaster,
		ctx:           chCtx,
		cancel:        chCancel,
		frameInterval: a.FrameInterval,
	}

	if err := ch.write(wire.Init(cols, rows)); err != nil {
		ch.Close()
		return nil, fmt.Errorf("%w: init handshake: %v", ErrConnectionRefused, err)
	}

	log.Printf("[channel] opened %s (backend %s)", ep.URL, logutil.SanitizeForLog(ep.ServerKey))
	return ch, nil
}

// Start begins reading frames from the backend. Until Start is called no
// event fires, so a backend that answers instantly cannot race the owner's
// bookkeeping. Calling Start more than once is a no-op.
func (c *Channel) Start() {
	c.startOnce.Do(func() {
		go c.readLoop()
	})
}

// Endpoint returns the resolved endpoint this channel was opened against.
func (c *Channel) Endpoint() *Endpoint {
	return c.endpoint
}

// SendInput forwards raw keystroke/paste bytes. Fire-and-forget: no
// acknowledgement is expected, ordering is preserved by the transport.
func (c *Channel) SendInput(data string) error {
	return c.write(wire.Input(data))
}

// Resize records the latest geometry and schedules a single resize message
// per frame interval. Rapid bursts (window drags) collapse into the most
// recent geometry.
func (c *Channel) Resize(cols, rows uint16) {
	c.resizeMu.Lock()
	c.pendingCols, c.pendingRows = cols, rows
	schedule := !c.resizePending
	c.resizePending = true
	c.resizeMu.Unlock()

	if schedule {
		time.AfterFunc(c.frameInterval, c.flushResize)
	}
}

func (c *Channel) flushResize() {
	c.resizeMu.Lock()
	cols, rows := c.pendingCols, c.pendingRows
	c.resizePending = false
	c.resizeMu.Unlock()

	if c.isClosed() {
		return
	}
	if err := c.write(wire.Resize(cols, rows)); err != nil {
		log.Printf("[channel] resize write failed: %v", err)
	}
}

// Close releases the transport. Safe to call multiple times.
func (c *Channel) Close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.closeMu.Unlock()

	c.cancel()
	c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Channel) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

func (c *Channel) write(msg wire.ClientMessage) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// readLoop translates transport frames into events until the channel dies.
// Events fire one at a time in arrival order.
func (c *Channel) readLoop() {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			// Abrupt transport loss becomes a disconnected event; a
			// deliberate Close already told the owner everything it needs.
			if !c.isClosed() {
				c.onEvent(Event{Type: EventDisconnected})
			}
			c.Close()
			return
		}

		msg, err := wire.DecodeServer(data)
		if err != nil {
			log.Printf("[channel] dropping bad frame from %s: %v", c.endpoint.Host, err)
			continue
		}

		switch msg.Type {
		case wire.TypeConnected:
			c.onEvent(Event{
				Type:               EventConnected,
				Server:             msg.Server,
				Host:               msg.Host,
				CWD:                msg.CWD,
				ChannelID:          msg.ChannelID,
				ConnectionChannels: msg.ConnectionChannels,
			})
		case wire.TypeOutput:
			c.onEvent(Event{Type: EventOutput, Data: []byte(msg.Data)})
		case wire.TypeError:
			c.onEvent(Event{Type: EventError, Message: msg.Message})
		case wire.TypeDisconnected:
			c.onEvent(Event{Type: EventDisconnected})
		case wire.TypeConnectionStatus:
			// Backend-wide status is fanned out to every session sharing
			// this backend connection, not just this channel's owner.
			c.broadcaster.Broadcast(c.endpoint.ServerKey, fanout.Status(msg.Status), msg.Message)
		default:
			log.Printf("[channel] unknown frame type %q from %s", logutil.SanitizeForLog(msg.Type), c.endpoint.Host)
		}
	}
}
