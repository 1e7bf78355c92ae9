// Package room holds the server-side state of a single game room: settings,
// membership in join order, and the broadcast fan-out for the room events.
//
// A Room is owned by the hub actor and is only ever touched from its
// goroutine, so there is no locking here.
package room

import (
	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

// Client is one connected member as the room sees it: an identity plus a
// best-effort send. Send must never block; the ws layer drops slow
// connections itself.
type Client interface {
	Identity() contract.Identity
	Send(event string, payload any)
}

// Reject is a declined action, delivered to the requesting client only as
// room:error.
type Reject struct {
	Code    string
	Message string
}

func (r *Reject) Error() string { return r.Code + ": " + r.Message }

func reject(code, message string) *Reject {
	return &Reject{Code: code, Message: message}
}

// Room is the authoritative state for one room.
type Room struct {
	id         string
	name       string
	pace       contract.Pace
	maxPlayers int
	password   string
	status     contract.RoomStatus
	members    []Client // join order; index 0 is the host
}

// New creates a room with the creator as host and sole member. Defaults:
// chill pace, four seats. Invalid settings are clamped rather than
// rejected; creation already passed the client-side form.
func New(id string, host Client, p contract.RoomCreatePayload) *Room {
	pace := p.Pace
	switch pace {
	case contract.PaceChill, contract.PaceSlow, contract.PaceFast:
	default:
		pace = contract.PaceChill
	}
	maxPlayers := p.MaxPlayers
	if maxPlayers < contract.MinPlayers || maxPlayers > contract.MaxPlayers {
		maxPlayers = contract.MaxPlayers
	}
	return &Room{
		id:         id,
		name:       p.Name,
		pace:       pace,
		maxPlayers: maxPlayers,
		password:   p.Password,
		status:     contract.StatusWaiting,
		members:    []Client{host},
	}
}

func (r *Room) ID() string { return r.id }

func (r *Room) Empty() bool { return len(r.members) == 0 }

func (r *Room) HasMember(userID string) bool {
	return r.memberIndex(userID) >= 0
}

func (r *Room) memberIndex(userID string) int {
	for i, m := range r.members {
		if m.Identity().UserID == userID {
			return i
		}
	}
	return -1
}

func (r *Room) host() contract.Identity {
	if len(r.members) == 0 {
		return contract.Identity{}
	}
	return r.members[0].Identity()
}

// Summary is the lobby-list view.
func (r *Room) Summary() contract.RoomSummary {
	host := r.host()
	return contract.RoomSummary{
		ID:             r.id,
		Name:           r.name,
		HostUserID:     host.UserID,
		HostUsername:   host.Username,
		Pace:           r.pace,
		IsPrivate:      r.password != "",
		MaxPlayers:     r.maxPlayers,
		CurrentPlayers: len(r.members),
		Status:         r.status,
	}
}

// Detail is the member view: summary plus the roster in join order.
func (r *Room) Detail() contract.RoomDetail {
	players := make([]contract.Identity, 0, len(r.members))
	for _, m := range r.members {
		players = append(players, m.Identity())
	}
	return contract.RoomDetail{RoomSummary: r.Summary(), Players: players}
}

// Join admits c and broadcasts room:joined to every member, the joiner
// included. The checks mirror what the lobby UI already disables; they
// exist because the lobby view can be stale.
func (r *Room) Join(c Client, password string) *Reject {
	if r.status != contract.StatusWaiting {
		return reject(contract.ErrCodeInProgress, "Game already in progress")
	}
	if len(r.members) >= r.maxPlayers {
		return reject(contract.ErrCodeRoomFull, "Room is full")
	}
	if r.password != "" && password != r.password {
		return reject(contract.ErrCodeBadPassword, "Incorrect password")
	}
	if r.HasMember(c.Identity().UserID) {
		return reject(contract.ErrCodeBadRequest, "Already in this room")
	}

	r.members = append(r.members, c)
	r.Broadcast(contract.EventRoomJoined, contract.RoomJoinedPayload{RoomDetail: r.Detail()})
	return nil
}

// Leave removes userID and broadcasts room:left to the leaver and everyone
// remaining. When the last member leaves the payload carries no detail:
// the room is gone. Unknown ids are a no-op (a duplicate leave after a
// disconnect race).
func (r *Room) Leave(userID string) (left bool) {
	i := r.memberIndex(userID)
	if i < 0 {
		return false
	}
	leaver := r.members[i]
	r.members = append(r.members[:i], r.members[i+1:]...)

	payload := contract.RoomLeftPayload{RoomID: r.id}
	if !r.Empty() {
		d := r.Detail()
		payload.RoomDetail = &d
	}
	leaver.Send(contract.EventRoomLeft, payload)
	r.Broadcast(contract.EventRoomLeft, payload)
	return true
}

// Update applies a partial settings change from the host while waiting,
// then broadcasts room:updated to every member. Password is three-state:
// absent keeps, null clears, value sets; privacy follows the password.
func (r *Room) Update(requesterID string, p contract.RoomUpdatePayload) *Reject {
	if r.host().UserID != requesterID {
		return reject(contract.ErrCodeNotHost, "Only the host can update the room")
	}
	if r.status != contract.StatusWaiting {
		return reject(contract.ErrCodeNotWaiting, "Settings are locked once the game starts")
	}
	if p.MaxPlayers != nil {
		n := *p.MaxPlayers
		if n < contract.MinPlayers || n > contract.MaxPlayers {
			return reject(contract.ErrCodeBadRequest, "Player count must be between 2 and 4")
		}
		if n < len(r.members) {
			return reject(contract.ErrCodeBadRequest, "Cannot shrink the room below its current players")
		}
	}

	if p.Name != nil && *p.Name != "" {
		r.name = *p.Name
	}
	if p.Pace != nil {
		switch *p.Pace {
		case contract.PaceChill, contract.PaceSlow, contract.PaceFast:
			r.pace = *p.Pace
		}
	}
	if p.MaxPlayers != nil {
		r.maxPlayers = *p.MaxPlayers
	}
	switch {
	case p.Password != nil:
		r.password = *p.Password
	case p.ClearPassword:
		r.password = ""
	}

	r.Broadcast(contract.EventRoomUpdated, contract.RoomUpdatedPayload{RoomDetail: r.Detail()})
	return nil
}

// Broadcast sends event to every current member.
func (r *Room) Broadcast(event string, payload any) {
	for _, m := range r.members {
		m.Send(event, payload)
	}
}
