package rooms

import "time"

// Outbound event names delivered through the transport boundary.
const (
	EventRoomJoined       = "room-joined"
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
	EventNewMessage       = "new-message"
	EventUserTyping       = "user-typing"
	EventError            = "error"

	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"
)

// Event is the closed set of inbound events the Engine accepts. The
// transport boundary parses and validates wire frames into exactly one of
// these variants before handing them to the Engine; no other event shapes
// reach the state machine.
type Event interface{ isEvent() }

// JoinRoom binds the connection to a room under a display id, implicitly
// leaving a previously joined different room first.
type JoinRoom struct {
	RoomID string
	UserID string
}

// Offer carries an opaque SDP offer addressed to a target connection id.
type Offer struct {
	Target  string
	Payload map[string]any
}

// Answer carries an opaque SDP answer addressed to a target connection id.
type Answer struct {
	Target  string
	Payload map[string]any
}

// ICECandidate carries an opaque ICE candidate addressed to a target
// connection id.
type ICECandidate struct {
	Target  string
	Payload map[string]any
}

// SendMessage broadcasts a chat message to the sender's current room.
type SendMessage struct {
	Text string
}

// TypingStart and TypingStop announce typing state to the sender's room.
type TypingStart struct{}
type TypingStop struct{}

func (JoinRoom) isEvent()     {}
func (Offer) isEvent()        {}
func (Answer) isEvent()       {}
func (ICECandidate) isEvent() {}
func (SendMessage) isEvent()  {}
func (TypingStart) isEvent()  {}
func (TypingStop) isEvent()   {}

// Message is one chat message as fanned out to a room. Messages are
// ephemeral: relayed once, never retained.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomJoined is sent to the joining connection alone. The member snapshot
// is taken after the join mutation and includes the joiner itself.
type RoomJoined struct {
	RoomID  string   `json:"roomId"`
	UserID  string   `json:"userId"`
	Members []Member `json:"members"`
}

// Presence is the payload of user-connected and user-disconnected events.
type Presence struct {
	UserID       string    `json:"userId"`
	ConnectionID string    `json:"connectionId"`
	Timestamp    time.Time `json:"timestamp"`
	Reason       string    `json:"reason,omitempty"`
}

// Typing is the payload of user-typing events.
type Typing struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// ErrorPayload is delivered only to the connection whose event failed.
type ErrorPayload struct {
	Message string `json:"message"`
}
