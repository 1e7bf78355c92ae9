// Package contract defines the wire contract between the game client and
// the room server: event names, payload shapes, and the JSON envelope that
// frames every message on the socket.
//
// The shapes here are shared by both sides and must not drift; the server
// broadcasts exactly these structs and the client reconciles against them.
package contract

import (
	"encoding/json"
	"fmt"
)

// Lobby events. GET_ROOMS and ROOMS intentionally share one name: the
// request carries no payload and the response carries the room list on the
// same event. Compatibility requires keeping it that way.
const (
	EventLobbyRooms       = "lobby:rooms"        // c->s: none | s->c: []RoomSummary
	EventLobbyRoomAdded   = "lobby:room-added"   // s->c: RoomSummary
	EventLobbyRoomUpdated = "lobby:room-updated" // s->c: RoomSummary
	EventLobbyRoomRemoved = "lobby:room-removed" // s->c: roomId string
)

// Room events.
const (
	EventRoomCreate  = "room:create"  // c->s: RoomCreatePayload
	EventRoomJoin    = "room:join"    // c->s: RoomJoinPayload
	EventRoomLeave   = "room:leave"   // c->s: RoomLeavePayload
	EventRoomUpdate  = "room:update"  // c->s: RoomUpdatePayload
	EventRoomJoined  = "room:joined"  // s->c broadcast: RoomJoinedPayload
	EventRoomLeft    = "room:left"    // s->c broadcast: RoomLeftPayload
	EventRoomUpdated = "room:updated" // s->c broadcast: RoomUpdatedPayload
	EventRoomError   = "room:error"   // s->c, requesting socket only: RoomErrorPayload
)

// Error codes carried by room:error.
const (
	ErrCodeBadPassword  = "bad_password"
	ErrCodeRoomFull     = "room_full"
	ErrCodeInProgress   = "in_progress"
	ErrCodeRoomNotFound = "room_not_found"
	ErrCodeNotHost      = "not_host"
	ErrCodeNotWaiting   = "not_waiting"
	ErrCodeBadRequest   = "bad_request"
)

type Pace string

const (
	PaceChill Pace = "chill"
	PaceSlow  Pace = "slow"
	PaceFast  Pace = "fast"
)

type RoomStatus string

const (
	StatusWaiting    RoomStatus = "waiting"
	StatusInProgress RoomStatus = "in-progress"
	StatusFinished   RoomStatus = "finished"
)

// Room capacity bounds.
const (
	MinPlayers = 2
	MaxPlayers = 4
)

// Identity is who a connection belongs to. UserID is the stable key for
// every roster operation; Username is display-only and must never be used
// as a key.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RoomSummary is the lobby-list view of a room.
type RoomSummary struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	HostUserID     string     `json:"hostUserId"`
	HostUsername   string     `json:"hostUsername"`
	Pace           Pace       `json:"pace"`
	IsPrivate      bool       `json:"isPrivate"`
	MaxPlayers     int        `json:"maxPlayers"`
	CurrentPlayers int        `json:"currentPlayers"`
	Status         RoomStatus `json:"status"`
}

// RoomDetail is the full view held by members of a room. Players are in
// join order; the host is index 0. No duplicate UserID may appear.
type RoomDetail struct {
	RoomSummary
	Players []Identity `json:"players"`
}

// HasPlayer reports whether userID is on the roster.
func (d *RoomDetail) HasPlayer(userID string) bool {
	for _, p := range d.Players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

type RoomCreatePayload struct {
	Name       string `json:"name"`
	Pace       Pace   `json:"pace,omitempty"`
	IsPrivate  bool   `json:"isPrivate,omitempty"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
	Password   string `json:"password,omitempty"`
}

type RoomJoinPayload struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password,omitempty"`
}

type RoomLeavePayload struct {
	RoomID string `json:"roomId"`
}

// RoomUpdatePayload carries a partial settings update. Password is
// three-state: absent leaves the password untouched, explicit null clears
// it, a string sets it. ClearPassword distinguishes null from absent when
// Password is nil.
type RoomUpdatePayload struct {
	RoomID        string  `json:"roomId"`
	Name          *string `json:"name,omitempty"`
	Pace          *Pace   `json:"pace,omitempty"`
	IsPrivate     *bool   `json:"isPrivate,omitempty"`
	MaxPlayers    *int    `json:"maxPlayers,omitempty"`
	Password      *string `json:"-"`
	ClearPassword bool    `json:"-"`
}

func (p RoomUpdatePayload) MarshalJSON() ([]byte, error) {
	type alias RoomUpdatePayload
	m := map[string]json.RawMessage{}
	base, err := json.Marshal(alias(p))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	switch {
	case p.Password != nil:
		m["password"], _ = json.Marshal(*p.Password)
	case p.ClearPassword:
		m["password"] = json.RawMessage("null")
	}
	return json.Marshal(m)
}

func (p *RoomUpdatePayload) UnmarshalJSON(b []byte) error {
	type alias RoomUpdatePayload
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var probe struct {
		Password json.RawMessage `json:"password"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return err
	}
	*p = RoomUpdatePayload(a)
	switch {
	case probe.Password == nil:
		// absent: leave untouched
	case string(probe.Password) == "null":
		p.ClearPassword = true
	default:
		var s string
		if err := json.Unmarshal(probe.Password, &s); err != nil {
			return err
		}
		p.Password = &s
	}
	return nil
}

type RoomJoinedPayload struct {
	RoomDetail RoomDetail `json:"roomDetail"`
}

// RoomLeftPayload: RoomDetail is absent when the departing player was the
// last one and the room no longer exists.
type RoomLeftPayload struct {
	RoomID     string      `json:"roomId"`
	RoomDetail *RoomDetail `json:"roomDetail,omitempty"`
}

type RoomUpdatedPayload struct {
	RoomDetail RoomDetail `json:"roomDetail"`
}

type RoomErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope frames every socket message: the event name plus its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a wire frame for event. A nil payload produces a frame
// with no data field (the lobby:rooms request, for instance).
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses a wire frame. Frames without an event name are rejected.
func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode frame: missing event name")
	}
	return env, nil
}
