// Package signaling is the WebSocket transport boundary in front of the
// room engine.
//
// It owns socket upgrades, the connection-id to socket routing table, and
// the wire envelope. Frames are parsed and validated here; the engine only
// ever sees the closed event set defined in internal/rooms.
package signaling
