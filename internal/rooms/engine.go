package rooms

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tigasdev/signaling/internal/metrics"
)

// Sender delivers one event to one connection's transport channel.
//
// Delivery is best-effort and must not block: a false return means the
// frame was dropped (the connection is gone or its send queue is full).
// The Engine never retries.
type Sender interface {
	Send(connectionID, event string, payload any) bool
}

// EngineConfig wires the Engine's runtime dependencies.
type EngineConfig struct {
	Sender  Sender
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Engine is the per-connection session state machine and the only writer of
// the connection registry and room directory. Each inbound event runs to
// completion under a single mutex: full state mutation first, then fan-out,
// before the next event for any connection begins.
type Engine struct {
	sender  Sender
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	registry  *Registry
	directory *Directory
}

func NewEngine(cfg EngineConfig) *Engine {
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		sender:    cfg.Sender,
		metrics:   m,
		log:       log,
		now:       now,
		registry:  NewRegistry(),
		directory: NewDirectory(),
	}
}

// Connect registers a new transport session. The connection starts unbound.
func (e *Engine) Connect(id string, meta Metadata) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.registry.Register(id, meta, e.now()); err != nil {
		return err
	}
	e.metrics.Inc(metrics.ConnectionsTotal)
	e.log.Info("connected", "connection_id", id, "remote_addr", meta.RemoteAddr)
	return nil
}

// Handle runs one inbound event to completion. Events for ids that are not
// registered (never connected, or already disconnected) are dropped.
//
// A panic while handling abandons that event only: the fault is logged and
// the process keeps serving. State mutated before the fault stays applied;
// handlers mutate the tables only once their inputs are validated.
func (e *Engine) Handle(id string, ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			e.metrics.Inc(metrics.HandlerPanics)
			e.log.Error("panic handling event", "connection_id", id, "recover", rec)
		}
	}()

	conn, err := e.registry.Lookup(id)
	if err != nil {
		return
	}

	switch ev := ev.(type) {
	case JoinRoom:
		e.handleJoin(conn, ev)
	case Offer:
		e.forward(conn, EventOffer, ev.Target, ev.Payload)
	case Answer:
		e.forward(conn, EventAnswer, ev.Target, ev.Payload)
	case ICECandidate:
		e.forward(conn, EventICECandidate, ev.Target, ev.Payload)
	case SendMessage:
		e.handleSendMessage(conn, ev)
	case TypingStart:
		e.handleTyping(conn, true)
	case TypingStop:
		e.handleTyping(conn, false)
	default:
		// The transport constructs events from the closed variant set above;
		// anything else is a programming error.
		e.log.Error("unknown event variant", "connection_id", id)
	}
}

// Disconnect tears down the session: the connection leaves its room (if
// any) with a user-disconnected broadcast to the remaining members, then
// its registry entry is removed. Terminal; later events for this id are
// dropped by Handle.
func (e *Engine) Disconnect(id, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	conn, err := e.registry.Lookup(id)
	if err != nil {
		return
	}

	now := e.now()
	if conn.Bound() {
		e.directory.Leave(conn.RoomID, id, now)
		e.broadcast(conn.RoomID, EventUserDisconnected, Presence{
			UserID:       conn.UserID,
			ConnectionID: id,
			Timestamp:    now,
			Reason:       reason,
		}, "")
	}
	if _, err := e.registry.Remove(id); err != nil && !errors.Is(err, ErrNotFound) {
		e.log.Error("remove connection", "connection_id", id, "err", err)
	}
	e.log.Info("disconnected", "connection_id", id, "reason", reason)
}

func (e *Engine) handleJoin(conn *Connection, ev JoinRoom) {
	roomID := strings.TrimSpace(ev.RoomID)
	userID := strings.TrimSpace(ev.UserID)
	if roomID == "" || userID == "" {
		e.sendError(conn.ID, "roomId and userId are required")
		return
	}

	now := e.now()

	// Implicit leave: switching rooms leaves the previous room, and its
	// remaining members learn about it, before any effect of the new join
	// is visible.
	if conn.Bound() && conn.RoomID != roomID {
		prevRoom, prevUser := conn.RoomID, conn.UserID
		e.directory.Leave(prevRoom, conn.ID, now)
		if err := e.registry.Unbind(conn.ID); err != nil {
			e.log.Error("unbind on room switch", "connection_id", conn.ID, "err", err)
		}
		e.broadcast(prevRoom, EventUserDisconnected, Presence{
			UserID:       prevUser,
			ConnectionID: conn.ID,
			Timestamp:    now,
			Reason:       "switched-room",
		}, "")
	}

	members, created := e.directory.Join(roomID, userID, conn.ID, now)
	if created {
		e.metrics.Inc(metrics.RoomsCreatedTotal)
	}
	if err := e.registry.Bind(conn.ID, roomID, userID); err != nil {
		e.log.Error("bind after join", "connection_id", conn.ID, "err", err)
	}

	e.broadcast(roomID, EventUserConnected, Presence{
		UserID:       userID,
		ConnectionID: conn.ID,
		Timestamp:    now,
	}, conn.ID)

	// The joiner alone gets the post-join snapshot, itself included.
	e.sender.Send(conn.ID, EventRoomJoined, RoomJoined{
		RoomID:  roomID,
		UserID:  userID,
		Members: members,
	})

	e.log.Info("joined room", "connection_id", conn.ID, "room_id", roomID, "user_id", userID, "members", len(members))
}

// forward relays an opaque negotiation payload to the target connection,
// stamping the sender's connection id. A missing target is a benign race
// with its disconnect: the payload is dropped and nothing is surfaced.
func (e *Engine) forward(conn *Connection, event, target string, payload map[string]any) {
	if _, err := e.registry.Lookup(target); err != nil {
		e.metrics.Inc(metrics.RelayTargetMissing)
		return
	}

	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["from"] = conn.ID

	e.sender.Send(target, event, out)
	e.metrics.Inc(metrics.RelayForwarded)
}

func (e *Engine) handleSendMessage(conn *Connection, ev SendMessage) {
	if !conn.Bound() {
		e.sendError(conn.ID, "join a room before sending messages")
		return
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		e.sendError(conn.ID, "message must not be empty")
		return
	}

	msg := Message{
		ID:        uuid.NewString(),
		RoomID:    conn.RoomID,
		UserID:    conn.UserID,
		Text:      text,
		Timestamp: e.now(),
	}

	// The sender is part of the room and receives its own message.
	e.broadcast(conn.RoomID, EventNewMessage, msg, "")
	e.metrics.Inc(metrics.MessagesBroadcast)
}

// handleTyping is intentionally silent for unbound connections, unlike
// send-message. Typing indicators are advisory; an error event would be
// noisier than the signal is worth.
func (e *Engine) handleTyping(conn *Connection, isTyping bool) {
	if !conn.Bound() {
		return
	}
	e.broadcast(conn.RoomID, EventUserTyping, Typing{
		UserID:   conn.UserID,
		IsTyping: isTyping,
	}, conn.ID)
}

// broadcast fans payload out to a point-in-time snapshot of the room's
// members, skipping excludeID when non-empty.
func (e *Engine) broadcast(roomID, event string, payload any, excludeID string) {
	for _, m := range e.directory.Members(roomID) {
		if m.ConnectionID == excludeID {
			continue
		}
		e.sender.Send(m.ConnectionID, event, payload)
	}
}

func (e *Engine) sendError(id, message string) {
	e.metrics.Inc(metrics.EventErrors)
	e.sender.Send(id, EventError, ErrorPayload{Message: message})
}

// Stats is a read-only snapshot of the registry/directory counters.
type Stats struct {
	ActiveConnections int            `json:"activeConnections"`
	TotalConnections  uint64         `json:"totalConnections"`
	ActiveRooms       int            `json:"activeRooms"`
	TotalRoomsCreated uint64         `json:"totalRoomsCreated"`
	RoomMemberCounts  map[string]int `json:"roomMemberCounts"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		ActiveConnections: e.registry.Len(),
		TotalConnections:  e.registry.TotalRegistered(),
		ActiveRooms:       e.directory.Len(),
		TotalRoomsCreated: e.directory.TotalCreated(),
		RoomMemberCounts:  e.directory.MemberCounts(),
	}
}
