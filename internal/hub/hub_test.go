package hub

import (
	"context"
	"testing"
	"time"

	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

// chanClient delivers sends to a channel so tests can wait on them.
type chanClient struct {
	id  contract.Identity
	out chan sent
}

type sent struct {
	event   string
	payload any
}

func newClient(userID, name string) *chanClient {
	return &chanClient{
		id:  contract.Identity{UserID: userID, Username: name},
		out: make(chan sent, 16),
	}
}

func (c *chanClient) Identity() contract.Identity { return c.id }
func (c *chanClient) Send(event string, payload any) {
	select {
	case c.out <- sent{event, payload}:
	default:
	}
}

func recv(t *testing.T, c *chanClient, wantEvent string) sent {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case s := <-c.out:
			if s.event == wantEvent {
				return s
			}
			// skip unrelated lobby chatter
		case <-deadline:
			t.Fatalf("timed out waiting for %s", wantEvent)
			return sent{}
		}
	}
}

func inspect(t *testing.T, h *Hub) View {
	t.Helper()
	reply := make(chan View, 1)
	h.Inbox() <- Inspect{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hub view")
		return View{}
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, nil)
}

func TestCreateRoomRespondsWithJoinedAndAnnounces(t *testing.T) {
	h := startHub(t)
	alice := newClient("u1", "alice")
	watcher := newClient("u2", "bob")

	h.Inbox() <- Register{Client: alice}
	h.Inbox() <- Register{Client: watcher}
	h.Inbox() <- CreateRoom{Client: alice, Payload: contract.RoomCreatePayload{Name: "alice's room", MaxPlayers: 4}}

	joined := recv(t, alice, contract.EventRoomJoined)
	detail := joined.payload.(contract.RoomJoinedPayload).RoomDetail
	if detail.HostUserID != "u1" || len(detail.Players) != 1 {
		t.Fatalf("creator must be host and sole member: %+v", detail)
	}

	added := recv(t, watcher, contract.EventLobbyRoomAdded)
	if added.payload.(contract.RoomSummary).ID != detail.ID {
		t.Fatal("lobby announcement must carry the new room")
	}
}

func TestJoinFlowsThroughToRoomAndLobby(t *testing.T) {
	h := startHub(t)
	alice := newClient("u1", "alice")
	bob := newClient("u2", "bob")

	h.Inbox() <- Register{Client: alice}
	h.Inbox() <- Register{Client: bob}
	h.Inbox() <- CreateRoom{Client: alice, Payload: contract.RoomCreatePayload{Name: "room", MaxPlayers: 4}}
	detail := recv(t, alice, contract.EventRoomJoined).payload.(contract.RoomJoinedPayload).RoomDetail

	h.Inbox() <- JoinRoom{Client: bob, Payload: contract.RoomJoinPayload{RoomID: detail.ID}}

	got := recv(t, bob, contract.EventRoomJoined).payload.(contract.RoomJoinedPayload).RoomDetail
	if len(got.Players) != 2 {
		t.Fatalf("roster after join: %+v", got.Players)
	}
	// host sees the same broadcast
	hostGot := recv(t, alice, contract.EventRoomJoined).payload.(contract.RoomJoinedPayload).RoomDetail
	if len(hostGot.Players) != 2 {
		t.Fatalf("host's broadcast: %+v", hostGot.Players)
	}

	updated := recv(t, alice, contract.EventLobbyRoomUpdated).payload.(contract.RoomSummary)
	if updated.CurrentPlayers != 2 {
		t.Fatalf("lobby must reflect the new player count: %+v", updated)
	}
}

func TestJoinUnknownRoomIsTargetedError(t *testing.T) {
	h := startHub(t)
	bob := newClient("u2", "bob")
	h.Inbox() <- Register{Client: bob}

	h.Inbox() <- JoinRoom{Client: bob, Payload: contract.RoomJoinPayload{RoomID: "ghost"}}

	errPayload := recv(t, bob, contract.EventRoomError).payload.(contract.RoomErrorPayload)
	if errPayload.Code != contract.ErrCodeRoomNotFound {
		t.Fatalf("want room_not_found, got %+v", errPayload)
	}
}

func TestEmptyRoomIsRemovedFromLobby(t *testing.T) {
	h := startHub(t)
	alice := newClient("u1", "alice")
	watcher := newClient("u2", "bob")

	h.Inbox() <- Register{Client: alice}
	h.Inbox() <- Register{Client: watcher}
	h.Inbox() <- CreateRoom{Client: alice, Payload: contract.RoomCreatePayload{Name: "room", MaxPlayers: 4}}
	detail := recv(t, alice, contract.EventRoomJoined).payload.(contract.RoomJoinedPayload).RoomDetail

	h.Inbox() <- LeaveRoom{UserID: "u1", Payload: contract.RoomLeavePayload{RoomID: detail.ID}}

	removed := recv(t, watcher, contract.EventLobbyRoomRemoved)
	if removed.payload.(string) != detail.ID {
		t.Fatalf("want removal of %s, got %v", detail.ID, removed.payload)
	}
	if v := inspect(t, h); len(v.RoomIDs) != 0 {
		t.Fatalf("room registry not empty: %v", v.RoomIDs)
	}
}

func TestUnregisterIsImplicitLeave(t *testing.T) {
	h := startHub(t)
	alice := newClient("u1", "alice")
	bob := newClient("u2", "bob")

	h.Inbox() <- Register{Client: alice}
	h.Inbox() <- Register{Client: bob}
	h.Inbox() <- CreateRoom{Client: alice, Payload: contract.RoomCreatePayload{Name: "room", MaxPlayers: 4}}
	detail := recv(t, alice, contract.EventRoomJoined).payload.(contract.RoomJoinedPayload).RoomDetail
	h.Inbox() <- JoinRoom{Client: bob, Payload: contract.RoomJoinPayload{RoomID: detail.ID}}
	recv(t, alice, contract.EventRoomJoined) // own create response already consumed; this is bob's join

	// bob's socket dies
	h.Inbox() <- Unregister{UserID: "u2"}

	left := recv(t, alice, contract.EventRoomLeft).payload.(contract.RoomLeftPayload)
	if left.RoomDetail == nil || len(left.RoomDetail.Players) != 1 {
		t.Fatalf("remaining member must see bob gone: %+v", left)
	}
	if v := inspect(t, h); v.NumClients != 1 {
		t.Fatalf("want 1 client left, got %d", v.NumClients)
	}
}

func TestCannotBeInTwoRooms(t *testing.T) {
	h := startHub(t)
	alice := newClient("u1", "alice")
	h.Inbox() <- Register{Client: alice}
	h.Inbox() <- CreateRoom{Client: alice, Payload: contract.RoomCreatePayload{Name: "first", MaxPlayers: 4}}
	recv(t, alice, contract.EventRoomJoined)

	h.Inbox() <- CreateRoom{Client: alice, Payload: contract.RoomCreatePayload{Name: "second", MaxPlayers: 4}}

	errPayload := recv(t, alice, contract.EventRoomError).payload.(contract.RoomErrorPayload)
	if errPayload.Code != contract.ErrCodeBadRequest {
		t.Fatalf("want bad_request, got %+v", errPayload)
	}
	if v := inspect(t, h); len(v.RoomIDs) != 1 {
		t.Fatalf("second room must not exist: %v", v.RoomIDs)
	}
}

func TestListRooms(t *testing.T) {
	h := startHub(t)
	alice := newClient("u1", "alice")
	bob := newClient("u2", "bob")
	h.Inbox() <- Register{Client: alice}
	h.Inbox() <- Register{Client: bob}
	h.Inbox() <- CreateRoom{Client: alice, Payload: contract.RoomCreatePayload{Name: "room", MaxPlayers: 4}}
	recv(t, alice, contract.EventRoomJoined)

	h.Inbox() <- ListRooms{UserID: "u2"}

	rooms := recv(t, bob, contract.EventLobbyRooms).payload.([]contract.RoomSummary)
	if len(rooms) != 1 || rooms[0].Name != "room" {
		t.Fatalf("room list: %+v", rooms)
	}
}
