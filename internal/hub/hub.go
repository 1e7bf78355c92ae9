// Package hub is the server's registry actor: it owns every room and every
// connected client, and it is the single goroutine through which all room
// and lobby operations flow. One actor for everything keeps the lobby
// fan-out (room-added/updated/removed) trivially consistent with the room
// state that triggered it.
package hub

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valeofeternity/vale-rooms/internal/room"
	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

type Msg interface{ isHubMsg() }

// Register announces a freshly connected client.
type Register struct{ Client room.Client }

// Unregister removes a client; if it was in a room this is an implicit
// leave.
type Unregister struct{ UserID string }

// ListRooms answers the lobby:rooms request for one client.
type ListRooms struct{ UserID string }

// CreateRoom creates a room with the sender as host.
type CreateRoom struct {
	Client  room.Client
	Payload contract.RoomCreatePayload
}

// JoinRoom admits the sender to an existing room.
type JoinRoom struct {
	Client  room.Client
	Payload contract.RoomJoinPayload
}

// LeaveRoom removes the sender from a room.
type LeaveRoom struct {
	UserID  string
	Payload contract.RoomLeavePayload
}

// UpdateRoom changes a room's settings.
type UpdateRoom struct {
	UserID  string
	Payload contract.RoomUpdatePayload
}

// Inspect reflects internal state without data races. Test-only.
type Inspect struct{ Reply chan View }

type Shutdown struct{}

func (Register) isHubMsg()   {}
func (Unregister) isHubMsg() {}
func (ListRooms) isHubMsg()  {}
func (CreateRoom) isHubMsg() {}
func (JoinRoom) isHubMsg()   {}
func (LeaveRoom) isHubMsg()  {}
func (UpdateRoom) isHubMsg() {}
func (Inspect) isHubMsg()    {}
func (Shutdown) isHubMsg()   {}

// View is a race-free snapshot of the hub for tests.
type View struct {
	NumClients int
	RoomIDs    []string
}

type Hub struct {
	inbox      chan Msg
	rooms      map[string]*room.Room
	roomOrder  []string // creation order, so lobby lists are stable
	roomByUser map[string]string
	clients    map[string]room.Client
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewHub(parent context.Context, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:      make(chan Msg, 64),
		rooms:      make(map[string]*room.Room),
		roomByUser: make(map[string]string),
		clients:    make(map[string]room.Client),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Register:
				h.clients[msg.Client.Identity().UserID] = msg.Client

			case Unregister:
				if roomID, ok := h.roomByUser[msg.UserID]; ok {
					h.leave(msg.UserID, roomID)
				}
				delete(h.clients, msg.UserID)

			case ListRooms:
				if c, ok := h.clients[msg.UserID]; ok {
					c.Send(contract.EventLobbyRooms, h.summaries())
				}

			case CreateRoom:
				h.create(msg.Client, msg.Payload)

			case JoinRoom:
				h.join(msg.Client, msg.Payload)

			case LeaveRoom:
				h.leave(msg.UserID, msg.Payload.RoomID)

			case UpdateRoom:
				h.update(msg.UserID, msg.Payload)

			case Inspect:
				msg.Reply <- View{
					NumClients: len(h.clients),
					RoomIDs:    append([]string(nil), h.roomOrder...),
				}

			case Shutdown:
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) summaries() []contract.RoomSummary {
	out := make([]contract.RoomSummary, 0, len(h.roomOrder))
	for _, id := range h.roomOrder {
		out = append(out, h.rooms[id].Summary())
	}
	return out
}

// lobbyBroadcast reaches every connected client; clients not showing the
// lobby simply have no handler attached.
func (h *Hub) lobbyBroadcast(event string, payload any) {
	for _, c := range h.clients {
		c.Send(event, payload)
	}
}

func (h *Hub) sendError(c room.Client, rej *room.Reject) {
	c.Send(contract.EventRoomError, contract.RoomErrorPayload{Code: rej.Code, Message: rej.Message})
}

func (h *Hub) create(c room.Client, p contract.RoomCreatePayload) {
	userID := c.Identity().UserID
	if _, inRoom := h.roomByUser[userID]; inRoom {
		h.sendError(c, &room.Reject{Code: contract.ErrCodeBadRequest, Message: "Already in a room"})
		return
	}
	if p.Name == "" {
		h.sendError(c, &room.Reject{Code: contract.ErrCodeBadRequest, Message: "Room name is required"})
		return
	}

	id := uuid.NewString()
	r := room.New(id, c, p)
	h.rooms[id] = r
	h.roomOrder = append(h.roomOrder, id)
	h.roomByUser[userID] = id

	h.logger.Info("room created", zap.String("roomId", id), zap.String("host", userID))

	// the create response is a joined payload: the creator adopts it the
	// same way a joiner would
	c.Send(contract.EventRoomJoined, contract.RoomJoinedPayload{RoomDetail: r.Detail()})
	h.lobbyBroadcast(contract.EventLobbyRoomAdded, r.Summary())
}

func (h *Hub) join(c room.Client, p contract.RoomJoinPayload) {
	userID := c.Identity().UserID
	if _, inRoom := h.roomByUser[userID]; inRoom {
		h.sendError(c, &room.Reject{Code: contract.ErrCodeBadRequest, Message: "Already in a room"})
		return
	}
	r, ok := h.rooms[p.RoomID]
	if !ok {
		h.sendError(c, &room.Reject{Code: contract.ErrCodeRoomNotFound, Message: "Room no longer exists"})
		return
	}
	if rej := r.Join(c, p.Password); rej != nil {
		h.sendError(c, rej)
		return
	}
	h.roomByUser[userID] = p.RoomID
	h.lobbyBroadcast(contract.EventLobbyRoomUpdated, r.Summary())
}

func (h *Hub) leave(userID, roomID string) {
	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if !r.Leave(userID) {
		return
	}
	delete(h.roomByUser, userID)

	if r.Empty() {
		delete(h.rooms, roomID)
		for i, id := range h.roomOrder {
			if id == roomID {
				h.roomOrder = append(h.roomOrder[:i], h.roomOrder[i+1:]...)
				break
			}
		}
		h.logger.Info("room removed", zap.String("roomId", roomID))
		h.lobbyBroadcast(contract.EventLobbyRoomRemoved, roomID)
		return
	}
	h.lobbyBroadcast(contract.EventLobbyRoomUpdated, r.Summary())
}

func (h *Hub) update(userID string, p contract.RoomUpdatePayload) {
	c, ok := h.clients[userID]
	if !ok {
		return
	}
	r, found := h.rooms[p.RoomID]
	if !found {
		h.sendError(c, &room.Reject{Code: contract.ErrCodeRoomNotFound, Message: "Room no longer exists"})
		return
	}
	if rej := r.Update(userID, p); rej != nil {
		h.sendError(c, rej)
		return
	}
	h.lobbyBroadcast(contract.EventLobbyRoomUpdated, r.Summary())
}
