package rooms

import (
	"fmt"
	"time"
)

// Metadata captures transport-level details about a connection. It is
// recorded at registration time and never changes afterwards.
type Metadata struct {
	RemoteAddr string
	UserAgent  string
}

// Connection is the registry's record of one live transport session.
// Exactly one record exists per session; its lifetime equals the session's.
type Connection struct {
	ID        string
	Meta      Metadata
	CreatedAt time.Time

	// RoomID/UserID are set while the connection is bound to a room and
	// empty otherwise. A connection is bound to at most one room.
	RoomID string
	UserID string
}

// Bound reports whether the connection currently belongs to a room.
func (c *Connection) Bound() bool { return c.RoomID != "" }

// Registry is the authoritative table of live connections.
//
// It is not safe for concurrent use on its own; the Engine owns it and
// serializes all access behind its mutex.
type Registry struct {
	conns map[string]*Connection

	// totalRegistered counts every register call, monotonically.
	totalRegistered uint64
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

func (r *Registry) Register(id string, meta Metadata, now time.Time) (*Connection, error) {
	if _, ok := r.conns[id]; ok {
		return nil, fmt.Errorf("register %q: %w", id, ErrDuplicateID)
	}
	conn := &Connection{ID: id, Meta: meta, CreatedAt: now}
	r.conns[id] = conn
	r.totalRegistered++
	return conn, nil
}

func (r *Registry) Lookup(id string) (*Connection, error) {
	conn, ok := r.conns[id]
	if !ok {
		return nil, fmt.Errorf("lookup %q: %w", id, ErrNotFound)
	}
	return conn, nil
}

// Bind records the connection's current room and display id.
func (r *Registry) Bind(id, roomID, userID string) error {
	conn, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("bind %q: %w", id, ErrNotFound)
	}
	conn.RoomID = roomID
	conn.UserID = userID
	return nil
}

// Unbind clears the connection's room binding.
func (r *Registry) Unbind(id string) error {
	conn, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("unbind %q: %w", id, ErrNotFound)
	}
	conn.RoomID = ""
	conn.UserID = ""
	return nil
}

// Remove deletes and returns the connection. Removal is not idempotent;
// callers that may race their own teardown must tolerate ErrNotFound.
func (r *Registry) Remove(id string) (*Connection, error) {
	conn, ok := r.conns[id]
	if !ok {
		return nil, fmt.Errorf("remove %q: %w", id, ErrNotFound)
	}
	delete(r.conns, id)
	return conn, nil
}

// Len returns the number of live connections.
func (r *Registry) Len() int { return len(r.conns) }

// TotalRegistered returns the monotonic count of register calls.
func (r *Registry) TotalRegistered() uint64 { return r.totalRegistered }
