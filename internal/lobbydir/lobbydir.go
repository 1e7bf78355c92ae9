// Package lobbydir maintains the client's view of the open-room list shown
// before a room is joined. It is a reducer over four lobby events: a full
// snapshot replace plus incremental upsert/remove, applied in arrival
// order.
package lobbydir

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/valeofeternity/vale-rooms/internal/conn"
	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

// Directory owns the ordered-by-arrival room list. The visible list at any
// instant is a pure function of the most recent ReplaceAll plus every
// Upsert/Remove applied since.
type Directory struct {
	mu    sync.Mutex
	order []string
	rooms map[string]contract.RoomSummary
}

func New() *Directory {
	return &Directory{rooms: make(map[string]contract.RoomSummary)}
}

// ReplaceAll installs a full snapshot, dropping everything held before.
func (d *Directory) ReplaceAll(rooms []contract.RoomSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.order = d.order[:0]
	d.rooms = make(map[string]contract.RoomSummary, len(rooms))
	for _, r := range rooms {
		if _, seen := d.rooms[r.ID]; !seen {
			d.order = append(d.order, r.ID)
		}
		d.rooms[r.ID] = r
	}
}

// Upsert inserts an unseen room at the end, or replaces a known one in
// place. An update never reorders the list.
func (d *Directory) Upsert(room contract.RoomSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.rooms[room.ID]; !seen {
		d.order = append(d.order, room.ID)
	}
	d.rooms[room.ID] = room
}

// Remove deletes by id. Removing an unknown id is a no-op.
func (d *Directory) Remove(roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.rooms[roomID]; !seen {
		return
	}
	delete(d.rooms, roomID)
	for i, id := range d.order {
		if id == roomID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Rooms returns a copy of the current list in arrival order.
func (d *Directory) Rooms() []contract.RoomSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]contract.RoomSummary, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.rooms[id])
	}
	return out
}

// Len reports the number of rooms currently listed.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

// Attach subscribes the directory to m, requests the initial snapshot, and
// returns a teardown that unregisters every handler it registered. The
// teardown must be called when the lobby view goes away; a stale
// subscription would keep mutating a list nobody renders.
//
// On every successful (re)connect the snapshot is re-requested, so the
// list converges after a connection drop.
func (d *Directory) Attach(m conn.Bus, logger *zap.Logger) (detach func()) {
	if logger == nil {
		logger = zap.NewNop()
	}

	onRooms := func(data json.RawMessage) {
		var rooms []contract.RoomSummary
		if err := json.Unmarshal(data, &rooms); err != nil {
			logger.Warn("bad lobby:rooms payload", zap.Error(err))
			return
		}
		d.ReplaceAll(rooms)
	}
	onAdded := func(data json.RawMessage) {
		var room contract.RoomSummary
		if err := json.Unmarshal(data, &room); err != nil {
			logger.Warn("bad lobby:room-added payload", zap.Error(err))
			return
		}
		d.Upsert(room)
	}
	onUpdated := func(data json.RawMessage) {
		var room contract.RoomSummary
		if err := json.Unmarshal(data, &room); err != nil {
			logger.Warn("bad lobby:room-updated payload", zap.Error(err))
			return
		}
		d.Upsert(room)
	}
	onRemoved := func(data json.RawMessage) {
		var roomID string
		if err := json.Unmarshal(data, &roomID); err != nil {
			logger.Warn("bad lobby:room-removed payload", zap.Error(err))
			return
		}
		d.Remove(roomID)
	}
	onConnect := func(json.RawMessage) {
		m.Emit(contract.EventLobbyRooms, nil)
	}

	m.On(contract.EventLobbyRooms, onRooms)
	m.On(contract.EventLobbyRoomAdded, onAdded)
	m.On(contract.EventLobbyRoomUpdated, onUpdated)
	m.On(contract.EventLobbyRoomRemoved, onRemoved)
	m.On(conn.EventConnect, onConnect)

	m.Emit(contract.EventLobbyRooms, nil)

	return func() {
		m.Off(contract.EventLobbyRooms, onRooms)
		m.Off(contract.EventLobbyRoomAdded, onAdded)
		m.Off(contract.EventLobbyRoomUpdated, onUpdated)
		m.Off(contract.EventLobbyRoomRemoved, onRemoved)
		m.Off(conn.EventConnect, onConnect)
	}
}
