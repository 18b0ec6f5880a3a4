package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names the kind of a websocket frame exchanged with the signaling server.
type Event string

const (
	// participant -> server
	EventJoin  Event = "join"
	EventLeave Event = "leave"

	// both directions
	EventSignal Event = "signal"

	// server -> participant
	EventJoined         Event = "joined"
	EventRoomFull       Event = "room_full"
	EventReady          Event = "ready"
	EventPeerDisconnect Event = "peer_disconnect"
	EventEvicted        Event = "evicted"
	EventError          Event = "error"
)

// Message is a single websocket frame.
type Message struct {
	Event      Event           `json:"event"`
	RoomID     string          `json:"room_id,omitempty"`
	OccupantID string          `json:"occupant_id,omitempty"`
	PeerID     string          `json:"peer_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

var ErrMalformedFrame = errors.New("malformed frame")

// Decode parses a frame. The signal payload is kept as the exact bytes
// received.
func Decode(frame []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedFrame)
	}
	return &msg, nil
}

// Encode marshals a frame for the wire.
func Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// SignalFrame wraps a relayed payload without re-encoding it, so the peer
// receives the sender's bytes unchanged.
func SignalFrame(data []byte) []byte {
	const prefix = `{"event":"signal","data":`
	frame := make([]byte, 0, len(prefix)+len(data)+1)
	frame = append(frame, prefix...)
	frame = append(frame, data...)
	return append(frame, '}')
}
