// Package rooms implements the room and connection state behind the
// signaling transport: the connection registry, the room directory, the
// per-connection session state machine, and the relay/broadcast fan-out
// used to deliver signaling, presence and chat events.
//
// All registry/directory mutations go through the Engine, which serializes
// event handling behind a single mutex. State is mutated before any fan-out
// for the same event, so a mid-delivery fault can never leave the tables
// inconsistent.
package rooms
