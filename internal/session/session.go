// Package session holds the per-room state machine: room metadata,
// membership, lifecycle status, and the derived table view. It is the only
// owner of that state; everything else reads copies.
//
// Membership notifications are not server messages. They are derived by
// diffing the incoming roster against the one currently held (package
// roster), which also makes broadcast replay harmless: an unchanged roster
// diffs to nothing.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/valeofeternity/vale-rooms/internal/conn"
	"github.com/valeofeternity/vale-rooms/internal/game"
	"github.com/valeofeternity/vale-rooms/internal/roster"
	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

// Notifier is the seam to whatever surfaces transient user-facing
// messages. Presentation plugs a toast layer in here; tests plug a
// recorder.
type Notifier interface {
	Success(msg string)
	Warning(msg string)
	Error(msg string)
}

var (
	ErrNotConnected = errors.New("session: not connected")
	ErrNotInRoom    = errors.New("session: not in a room")
	ErrNotHost      = errors.New("session: only the host may do that")
	ErrNotWaiting   = errors.New("session: room is not in the waiting state")
	ErrNotFinished  = errors.New("session: game is not finished")
)

// RejectionError is a server-declined action: bad password, full room,
// invalid settings. It never mutates room state.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("session: rejected (%s): %s", e.Code, e.Message)
}

// Session is the state machine for the one room this client is in.
type Session struct {
	mgr    conn.Bus
	me     contract.Identity
	notify Notifier
	logger *zap.Logger

	mu     sync.Mutex
	detail *contract.RoomDetail
	status contract.RoomStatus
	view   game.State

	onAbandon func(reason error)
	teardown  func()
}

func New(mgr conn.Bus, me contract.Identity, n Notifier, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{mgr: mgr, me: me, notify: n, logger: logger}
}

// OnAbandon registers the callback fired when a desynchronization forces
// this session back to the lobby. The callback runs after local state has
// been cleared; the caller is expected to detach and navigate away.
func (s *Session) OnAbandon(fn func(reason error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAbandon = fn
}

// Detail returns a copy of the held room detail, or nil when not in a
// room.
func (s *Session) Detail() *contract.RoomDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detailCopyLocked()
}

func (s *Session) detailCopyLocked() *contract.RoomDetail {
	if s.detail == nil {
		return nil
	}
	cp := *s.detail
	cp.Players = append([]contract.Identity(nil), s.detail.Players...)
	return &cp
}

// Status returns the room lifecycle status, or "" when not in a room.
func (s *Session) Status() contract.RoomStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Game returns a copy of the current table view.
func (s *Session) Game() game.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.view
	out.Players = append([]game.Player(nil), s.view.Players...)
	out.BoardZones = append([]game.FamilyZone(nil), s.view.BoardZones...)
	return out
}

// CreateRoom asks the server for a new room and adopts the confirmation.
// The creating player is host by construction: the first and only roster
// entry of the returned detail. The context bounds the wait; on expiry
// both response handlers are torn down so a late reply fires into nothing.
func (s *Session) CreateRoom(ctx context.Context, p contract.RoomCreatePayload) (*contract.RoomDetail, error) {
	return s.requestRoom(ctx, func() {
		s.mgr.Emit(contract.EventRoomCreate, p)
	})
}

// Join asks to enter roomID. A rejection (wrong password, full room)
// reaches only this client, mutates nothing, and surfaces one error
// notification.
func (s *Session) Join(ctx context.Context, roomID, password string) (*contract.RoomDetail, error) {
	return s.requestRoom(ctx, func() {
		s.mgr.Emit(contract.EventRoomJoin, contract.RoomJoinPayload{RoomID: roomID, Password: password})
	})
}

type roomResult struct {
	detail *contract.RoomDetail
	reject *RejectionError
	err    error
}

func (s *Session) requestRoom(ctx context.Context, emit func()) (*contract.RoomDetail, error) {
	if !s.mgr.Connected() {
		return nil, ErrNotConnected
	}

	ch := make(chan roomResult, 1)
	var onJoined, onError conn.Handler
	onJoined = func(data json.RawMessage) {
		s.mgr.Off(contract.EventRoomError, onError)
		var p contract.RoomJoinedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			ch <- roomResult{err: fmt.Errorf("session: bad room:joined payload: %w", err)}
			return
		}
		ch <- roomResult{detail: &p.RoomDetail}
	}
	onError = func(data json.RawMessage) {
		s.mgr.Off(contract.EventRoomJoined, onJoined)
		var p contract.RoomErrorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			ch <- roomResult{err: fmt.Errorf("session: bad room:error payload: %w", err)}
			return
		}
		ch <- roomResult{reject: &RejectionError{Code: p.Code, Message: p.Message}}
	}

	s.mgr.Once(contract.EventRoomJoined, onJoined)
	s.mgr.Once(contract.EventRoomError, onError)
	emit()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.reject != nil {
			s.notify.Error(r.reject.Message)
			return nil, r.reject
		}
		s.adopt(r.detail)
		return s.Detail(), nil
	case <-ctx.Done():
		s.mgr.Off(contract.EventRoomJoined, onJoined)
		s.mgr.Off(contract.EventRoomError, onError)
		return nil, fmt.Errorf("session: no response from server: %w", ctx.Err())
	}
}

func (s *Session) adopt(detail *contract.RoomDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detail = detail
	s.status = detail.Status
	if s.status == contract.StatusWaiting {
		s.view = game.BuildWaitingState(detail)
	}
}

// UpdateRoom sends a settings change. The outcome arrives as the
// room:updated broadcast handled by Attach; a rejection arrives as
// room:error. Fire-and-forget, matching the contract.
func (s *Session) UpdateRoom(p contract.RoomUpdatePayload) error {
	if !s.mgr.Connected() {
		return ErrNotConnected
	}
	s.mu.Lock()
	inRoom := s.detail != nil
	s.mu.Unlock()
	if !inRoom {
		return ErrNotInRoom
	}
	s.mgr.Emit(contract.EventRoomUpdate, p)
	return nil
}

// Leave emits the leave intent and tears the local view down immediately,
// without waiting for an acknowledgment. Remaining members converge via
// their own room:left broadcast. Handlers are detached first, so the
// server's room:left echo to the leaver lands on nothing instead of
// re-adopting the room just left.
func (s *Session) Leave() {
	s.Detach()

	s.mu.Lock()
	detail := s.detail
	s.detail = nil
	s.status = ""
	s.view = game.State{}
	s.mu.Unlock()

	if detail != nil {
		s.mgr.Emit(contract.EventRoomLeave, contract.RoomLeavePayload{RoomID: detail.ID})
	}
}

// StartGame transitions waiting -> in-progress and bootstraps the table
// from the current roster. Host-only: the server does not police this, so
// the local check is the only gate.
func (s *Session) StartGame() (game.State, error) {
	s.mu.Lock()
	if s.detail == nil {
		s.mu.Unlock()
		return game.State{}, ErrNotInRoom
	}
	if s.detail.HostUserID != s.me.UserID {
		s.mu.Unlock()
		return game.State{}, ErrNotHost
	}
	if s.status != contract.StatusWaiting {
		s.mu.Unlock()
		return game.State{}, ErrNotWaiting
	}

	st, err := game.Bootstrap(s.detail.Players, s.me.UserID)
	if err != nil {
		s.mu.Unlock()
		s.abandon(fmt.Errorf("session: bootstrap failed: %w", err))
		return game.State{}, err
	}
	s.status = contract.StatusInProgress
	s.detail.Status = contract.StatusInProgress
	s.view = st
	s.mu.Unlock()
	return s.Game(), nil
}

// StartNewGame re-enters waiting from finished, rebuilding the waiting
// table from the current roster.
func (s *Session) StartNewGame() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detail == nil {
		return ErrNotInRoom
	}
	if s.status != contract.StatusFinished {
		return ErrNotFinished
	}
	s.status = contract.StatusWaiting
	s.detail.Status = contract.StatusWaiting
	s.view = game.BuildWaitingState(s.detail)
	return nil
}

// ApplyGameState adopts an authoritative state push. Hands are re-filtered
// before adoption so an opponent's hand never exists in local state, and a
// push whose roster lacks the local identity is a desynchronization.
func (s *Session) ApplyGameState(st game.State) error {
	s.mu.Lock()
	if s.detail == nil {
		s.mu.Unlock()
		return ErrNotInRoom
	}
	filtered := st.FilterHands(s.me.UserID)
	mine := false
	for _, p := range filtered.Players {
		if p.ID == s.me.UserID {
			mine = true
			break
		}
	}
	if !mine {
		s.mu.Unlock()
		err := &game.SeatNotFoundError{UserID: s.me.UserID}
		s.abandon(fmt.Errorf("session: authoritative state: %w", err))
		return err
	}
	s.view = filtered
	s.mu.Unlock()
	return nil
}

// Attach subscribes the session to the room broadcasts and returns Detach.
// Call it after CreateRoom/Join has adopted the initial detail. Leave and
// the desynchronization path detach on their own, so once the session no
// longer holds a room no handler can fire on its behalf.
func (s *Session) Attach() (detach func()) {
	onJoined := func(data json.RawMessage) {
		var p contract.RoomJoinedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn("bad room:joined payload", zap.Error(err))
			return
		}
		s.applyRosterChange(&p.RoomDetail, true)
	}
	onLeft := func(data json.RawMessage) {
		var p contract.RoomLeftPayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn("bad room:left payload", zap.Error(err))
			return
		}
		// absent detail: the room emptied and no longer exists
		if p.RoomDetail == nil {
			return
		}
		s.applyRosterChange(p.RoomDetail, false)
	}
	onUpdated := func(data json.RawMessage) {
		var p contract.RoomUpdatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn("bad room:updated payload", zap.Error(err))
			return
		}
		s.mu.Lock()
		if s.detail == nil {
			s.mu.Unlock()
			s.abandon(fmt.Errorf("session: room:updated for %s while not in a room", p.RoomDetail.ID))
			return
		}
		if s.detail.ID != p.RoomDetail.ID {
			held := s.detail.ID
			s.mu.Unlock()
			s.abandon(fmt.Errorf("session: room:updated for %s while in %s", p.RoomDetail.ID, held))
			return
		}
		s.detail = &p.RoomDetail
		s.status = p.RoomDetail.Status
		s.mu.Unlock()
		s.notify.Success("Room updated successfully")
	}
	onError := func(data json.RawMessage) {
		var p contract.RoomErrorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn("bad room:error payload", zap.Error(err))
			return
		}
		// rejection: message only, never a state change
		s.notify.Error(p.Message)
	}
	onDisconnect := func(json.RawMessage) {
		s.mu.Lock()
		inRoom := s.detail != nil
		s.mu.Unlock()
		// no room-snapshot request exists on the wire, so a drop while in
		// a room cannot be resynced; fall back to the lobby
		if inRoom {
			s.abandon(errors.New("session: connection lost while in a room"))
		}
	}

	s.mgr.On(contract.EventRoomJoined, onJoined)
	s.mgr.On(contract.EventRoomLeft, onLeft)
	s.mgr.On(contract.EventRoomUpdated, onUpdated)
	s.mgr.On(contract.EventRoomError, onError)
	s.mgr.On(conn.EventDisconnect, onDisconnect)

	off := func() {
		s.mgr.Off(contract.EventRoomJoined, onJoined)
		s.mgr.Off(contract.EventRoomLeft, onLeft)
		s.mgr.Off(contract.EventRoomUpdated, onUpdated)
		s.mgr.Off(contract.EventRoomError, onError)
		s.mgr.Off(conn.EventDisconnect, onDisconnect)
	}

	s.mu.Lock()
	s.teardown = off
	s.mu.Unlock()

	return s.Detach
}

// Detach unregisters every handler Attach installed. Idempotent; safe to
// call after Leave or an abandon already tore the handlers down.
func (s *Session) Detach() {
	s.mu.Lock()
	off := s.teardown
	s.teardown = nil
	s.mu.Unlock()
	if off != nil {
		off()
	}
}

// applyRosterChange is the shared join/left broadcast path: diff the
// incoming roster against the held one, replace the detail, rebuild the
// waiting table if still waiting, then notify once per changed member. A
// broadcast for a room we do not hold, or for no room at all, is a
// desynchronization, never something to adopt.
func (s *Session) applyRosterChange(next *contract.RoomDetail, joinSide bool) {
	s.mu.Lock()
	if s.detail == nil {
		s.mu.Unlock()
		s.abandon(fmt.Errorf("session: broadcast for room %s while not in a room", next.ID))
		return
	}
	if s.detail.ID != next.ID {
		held := s.detail.ID
		s.mu.Unlock()
		s.abandon(fmt.Errorf("session: broadcast for room %s while in %s", next.ID, held))
		return
	}
	delta := roster.Diff(s.detail.Players, next.Players)
	s.detail = next
	s.status = next.Status
	if s.status == contract.StatusWaiting {
		s.view = game.BuildWaitingState(next)
	}
	s.mu.Unlock()

	if joinSide {
		for _, m := range delta.Joined {
			if m.UserID == s.me.UserID {
				continue // never announce our own arrival to ourselves
			}
			s.notify.Success(fmt.Sprintf("%s joined the room", m.Username))
		}
	} else {
		for _, m := range delta.Left {
			s.notify.Warning(fmt.Sprintf("%s left the room", m.Username))
		}
	}
}

// abandon is the desynchronization path: detach, clear everything, tell
// the user, hand control back to the lobby.
func (s *Session) abandon(reason error) {
	s.logger.Error("abandoning room session", zap.Error(reason))

	s.Detach()

	s.mu.Lock()
	s.detail = nil
	s.status = ""
	s.view = game.State{}
	fn := s.onAbandon
	s.mu.Unlock()

	s.notify.Error("Lost sync with the room, returning to the lobby")
	if fn != nil {
		fn(reason)
	}
}
