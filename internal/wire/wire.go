// Package wire defines the JSON message protocol spoken on the duplex
// terminal channel, both between browser and multiplexer and between
// multiplexer and backend host.
package wire

import (
	"encoding/json"
	"fmt"
)

// Client → server message types.
const (
	TypeInit   = "init"
	TypeInput  = "input"
	TypeResize = "resize"
)

// Server → client message types.
const (
	TypeConnected        = "connected"
	TypeOutput           = "output"
	TypeConnectionStatus = "connection_status"
	TypeError            = "error"
	TypeDisconnected     = "disconnected"
)

// ClientMessage is a message sent toward the backend: the initial geometry
// handshake, raw input bytes, or a resize notification.
type ClientMessage struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
	Data string `json:"data,omitempty"`
}

// ServerMessage is a message delivered toward the rendering surface.
//
// ConnectionChannels optionally reports how many sibling sessions share the
// backend connection at the time the channel came up.
type ServerMessage struct {
	Type               string `json:"type"`
	Server             string `json:"server,omitempty"`
	Host               string `json:"host,omitempty"`
	CWD                string `json:"cwd,omitempty"`
	ChannelID          string `json:"channel_id,omitempty"`
	ConnectionChannels int    `json:"connection_channels,omitempty"`
	Data               string `json:"data,omitempty"`
	Status             string `json:"status,omitempty"`
	Message            string `json:"message,omitempty"`
}

// Init builds the geometry handshake sent immediately after a channel opens.
func Init(cols, rows uint16) ClientMessage {
	return ClientMessage{Type: TypeInit, Cols: cols, Rows: rows}
}

// Input builds a keystroke/paste message.
func Input(data string) ClientMessage {
	return ClientMessage{Type: TypeInput, Data: data}
}

// Resize builds a geometry-change message.
func Resize(cols, rows uint16) ClientMessage {
	return ClientMessage{Type: TypeResize, Cols: cols, Rows: rows}
}

// Encode marshals a message for the transport.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode wire message: %w", err)
	}
	return data, nil
}

// DecodeClient parses a client-originated frame.
func DecodeClient(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("decode client message: missing type")
	}
	return msg, nil
}

// DecodeServer parses a backend-originated frame.
func DecodeServer(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, fmt.Errorf("decode server message: %w", err)
	}
	if msg.Type == "" {
		return ServerMessage{}, fmt.Errorf("decode server message: missing type")
	}
	return msg, nil
}
