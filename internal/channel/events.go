package channel

// EventType identifies an event emitted upward by a channel.
type EventType string

const (
	// EventConnected means the channel's shell is live on the backend.
	EventConnected EventType = "connected"
	// EventOutput carries raw bytes for the rendering surface.
	EventOutput EventType = "output"
	// EventError means this channel failed mid-session.
	EventError EventType = "error"
	// EventDisconnected means this channel closed.
	EventDisconnected EventType = "disconnected"
)

// Event is a translated transport message delivered to the channel's owner.
// Backend-connection-wide status frames are not delivered here; they go
// through the fanout broadcaster instead.
type Event struct {
	Type    EventType
	Data    []byte
	Message string

	// Populated on EventConnected.
	Server             string
	Host               string
	CWD                string
	ChannelID          string
	ConnectionChannels int
}

// EventHandler receives channel events in transport arrival order.
type EventHandler func(Event)
