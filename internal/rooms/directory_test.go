package rooms

import (
	"testing"
	"time"
)

func TestDirectory_JoinCreatesLazilyAndSnapshotsAfterInsert(t *testing.T) {
	d := NewDirectory()
	now := time.Unix(1700000000, 0)

	members, created := d.Join("r1", "alice", "c1", now)
	if !created {
		t.Fatalf("first join should create the room")
	}
	if len(members) != 1 || members[0].UserID != "alice" || members[0].ConnectionID != "c1" {
		t.Fatalf("members = %+v", members)
	}
	if d.Len() != 1 || d.TotalCreated() != 1 {
		t.Fatalf("len=%d total=%d, want 1/1", d.Len(), d.TotalCreated())
	}

	members, created = d.Join("r1", "bob", "c2", now.Add(time.Second))
	if created {
		t.Fatalf("second join must not re-create the room")
	}
	if len(members) != 2 || members[1].UserID != "bob" {
		t.Fatalf("members = %+v", members)
	}
}

func TestDirectory_RejoinSameConnectionReplacesEntry(t *testing.T) {
	d := NewDirectory()
	now := time.Unix(1700000000, 0)

	d.Join("r1", "alice", "c1", now)
	d.Join("r1", "bob", "c2", now)
	members, _ := d.Join("r1", "alice2", "c1", now.Add(time.Minute))

	if len(members) != 2 {
		t.Fatalf("rejoin must not duplicate the connection: %+v", members)
	}
	// Replacement reinserts at the end.
	if members[0].ConnectionID != "c2" || members[1].ConnectionID != "c1" {
		t.Fatalf("member order = %+v", members)
	}
	if members[1].UserID != "alice2" {
		t.Fatalf("rejoin should adopt the new display id: %+v", members[1])
	}
}

func TestDirectory_LeaveDeletesEmptyRoomAtomically(t *testing.T) {
	d := NewDirectory()
	now := time.Unix(1700000000, 0)

	d.Join("r1", "alice", "c1", now)
	d.Join("r1", "bob", "c2", now)

	if removed := d.Leave("r1", "c1", now); removed {
		t.Fatalf("room with a remaining member must not be removed")
	}
	if got := d.Members("r1"); len(got) != 1 || got[0].ConnectionID != "c2" {
		t.Fatalf("members after first leave = %+v", got)
	}

	if removed := d.Leave("r1", "c2", now); !removed {
		t.Fatalf("last leave must remove the room")
	}
	if d.Len() != 0 {
		t.Fatalf("directory still holds %d rooms", d.Len())
	}
	if got := d.Members("r1"); len(got) != 0 {
		t.Fatalf("members of removed room = %+v", got)
	}

	// A room with zero members never exists: every live room has members.
	for id, n := range d.MemberCounts() {
		if n == 0 {
			t.Fatalf("room %q exists with zero members", id)
		}
	}
}

func TestDirectory_LeaveUnknownIsNoop(t *testing.T) {
	d := NewDirectory()
	now := time.Unix(1700000000, 0)

	if removed := d.Leave("nope", "c1", now); removed {
		t.Fatalf("leaving an absent room reported removal")
	}

	d.Join("r1", "alice", "c1", now)
	if removed := d.Leave("r1", "c9", now); removed {
		t.Fatalf("leaving with an unknown connection reported removal")
	}
	if got := d.Members("r1"); len(got) != 1 {
		t.Fatalf("members = %+v", got)
	}
}

func TestDirectory_MembersReturnsSnapshot(t *testing.T) {
	d := NewDirectory()
	now := time.Unix(1700000000, 0)

	d.Join("r1", "alice", "c1", now)
	snap := d.Members("r1")
	snap[0].UserID = "mutated"

	if got := d.Members("r1"); got[0].UserID != "alice" {
		t.Fatalf("snapshot mutation leaked into the directory: %+v", got)
	}
}
