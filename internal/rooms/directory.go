package rooms

import "time"

// Member is the binding of one connection to one room under a display id.
type Member struct {
	UserID       string    `json:"userId"`
	ConnectionID string    `json:"connectionId"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Room is a named group of members, ordered by join time. Rooms are created
// lazily on first join and deleted in the same step that removes the last
// member: a room with zero members never exists in the directory.
type Room struct {
	ID           string
	Members      []Member
	CreatedAt    time.Time
	LastActivity time.Time
}

// Directory is the authoritative table of rooms.
//
// Like Registry, it is owned by the Engine and must not be used
// concurrently on its own.
type Directory struct {
	rooms map[string]*Room

	// totalCreated counts every room ever created, monotonically.
	totalCreated uint64
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*Room)}
}

// Join adds (or re-adds) the connection to the room, creating the room if
// absent. A connection id appears at most once per room: rejoining replaces
// the prior entry, reinserting at the end. The returned snapshot is taken
// after insertion and therefore includes the new member. created reports
// whether this join brought the room into existence.
func (d *Directory) Join(roomID, userID, connectionID string, now time.Time) (members []Member, created bool) {
	room, ok := d.rooms[roomID]
	if !ok {
		room = &Room{ID: roomID, CreatedAt: now}
		d.rooms[roomID] = room
		d.totalCreated++
		created = true
	}

	room.Members = removeMember(room.Members, connectionID)
	room.Members = append(room.Members, Member{
		UserID:       userID,
		ConnectionID: connectionID,
		JoinedAt:     now,
	})
	room.LastActivity = now

	return snapshotMembers(room.Members), created
}

// Leave removes the connection from the room. Removing a member that is not
// present is a no-op. When the last member leaves, the room is deleted in
// the same step and removed=true is reported.
func (d *Directory) Leave(roomID, connectionID string, now time.Time) (removed bool) {
	room, ok := d.rooms[roomID]
	if !ok {
		return false
	}

	room.Members = removeMember(room.Members, connectionID)
	room.LastActivity = now

	if len(room.Members) == 0 {
		delete(d.rooms, roomID)
		return true
	}
	return false
}

// Members returns a point-in-time snapshot of the room's member list, empty
// if the room does not exist.
func (d *Directory) Members(roomID string) []Member {
	room, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	return snapshotMembers(room.Members)
}

// Len returns the number of live rooms.
func (d *Directory) Len() int { return len(d.rooms) }

// TotalCreated returns the monotonic count of rooms ever created.
func (d *Directory) TotalCreated() uint64 { return d.totalCreated }

// MemberCounts returns the member count per live room.
func (d *Directory) MemberCounts() map[string]int {
	counts := make(map[string]int, len(d.rooms))
	for id, room := range d.rooms {
		counts[id] = len(room.Members)
	}
	return counts
}

func removeMember(members []Member, connectionID string) []Member {
	for i, m := range members {
		if m.ConnectionID == connectionID {
			return append(members[:i], members[i+1:]...)
		}
	}
	return members
}

func snapshotMembers(members []Member) []Member {
	out := make([]Member, len(members))
	copy(out, members)
	return out
}
