package rooms

import "errors"

var (
	// ErrDuplicateID is returned when registering a connection id that is
	// already live. The transport never reuses ids while a session is open,
	// so hitting this indicates a boundary bug.
	ErrDuplicateID = errors.New("rooms: duplicate connection id")

	// ErrNotFound is returned by registry lookups and updates for ids that
	// are not (or no longer) registered.
	ErrNotFound = errors.New("rooms: connection not found")
)
