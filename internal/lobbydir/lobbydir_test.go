package lobbydir

import (
	"testing"

	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

func summary(id, name string, players int) contract.RoomSummary {
	return contract.RoomSummary{
		ID:             id,
		Name:           name,
		Pace:           contract.PaceChill,
		MaxPlayers:     4,
		CurrentPlayers: players,
		Status:         contract.StatusWaiting,
	}
}

func roomIDs(d *Directory) []string {
	rooms := d.Rooms()
	out := make([]string, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.ID)
	}
	return out
}

func TestReplaceAllDropsPreviousState(t *testing.T) {
	d := New()
	d.Upsert(summary("old", "stale room", 1))

	d.ReplaceAll([]contract.RoomSummary{
		summary("r1", "first", 1),
		summary("r2", "second", 2),
	})

	got := roomIDs(d)
	if len(got) != 2 || got[0] != "r1" || got[1] != "r2" {
		t.Fatalf("want [r1 r2], got %v", got)
	}
}

func TestUpsertPreservesPositionOnUpdate(t *testing.T) {
	d := New()
	d.ReplaceAll([]contract.RoomSummary{
		summary("r1", "first", 1),
		summary("r2", "second", 1),
		summary("r3", "third", 1),
	})

	// update the middle room; it must not move
	d.Upsert(summary("r2", "second (renamed)", 3))

	got := roomIDs(d)
	if got[1] != "r2" {
		t.Fatalf("updated room moved: %v", got)
	}
	if d.Rooms()[1].Name != "second (renamed)" {
		t.Fatal("update not applied")
	}
}

func TestUpsertAppendsUnseenRoom(t *testing.T) {
	d := New()
	d.ReplaceAll([]contract.RoomSummary{summary("r1", "first", 1)})

	d.Upsert(summary("r2", "second", 1))

	got := roomIDs(d)
	if len(got) != 2 || got[1] != "r2" {
		t.Fatalf("new room must append, got %v", got)
	}
}

func TestRemove(t *testing.T) {
	d := New()
	d.ReplaceAll([]contract.RoomSummary{
		summary("r1", "first", 1),
		summary("r2", "second", 1),
	})

	d.Remove("r1")
	d.Remove("ghost") // unknown id is a no-op

	got := roomIDs(d)
	if len(got) != 1 || got[0] != "r2" {
		t.Fatalf("want [r2], got %v", got)
	}
}

func TestIdempotentReplay(t *testing.T) {
	d := New()
	r := summary("r1", "first", 2)

	d.Upsert(r)
	d.Upsert(r)
	if d.Len() != 1 {
		t.Fatalf("replayed upsert duplicated the room: %d entries", d.Len())
	}

	d.Remove("r1")
	d.Remove("r1")
	if d.Len() != 0 {
		t.Fatalf("want empty list, got %d entries", d.Len())
	}
}

func TestRoomsReturnsACopy(t *testing.T) {
	d := New()
	d.Upsert(summary("r1", "first", 1))

	snap := d.Rooms()
	snap[0].Name = "mutated"

	if d.Rooms()[0].Name != "first" {
		t.Fatal("caller mutation leaked into the directory")
	}
}
