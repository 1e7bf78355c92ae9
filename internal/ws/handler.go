// Package ws is the server's socket endpoint: it upgrades the connection,
// binds it to the identity carried in the query string, and shuttles
// contract envelopes between the wire and the hub actor.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/valeofeternity/vale-rooms/internal/hub"
	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 32
)

// client is one connection as the hub and rooms see it. Send is called
// only from the hub goroutine; the writer goroutine owns the wire.
type client struct {
	identity contract.Identity
	out      chan []byte
	cancel   context.CancelFunc
	logger   *zap.Logger
}

func (c *client) Identity() contract.Identity { return c.identity }

// Send encodes and queues one frame. A full outbox means the client cannot
// keep up; the connection is cut rather than blocking the hub.
func (c *client) Send(event string, payload any) {
	frame, err := contract.Encode(event, payload)
	if err != nil {
		c.logger.Error("encode outgoing frame", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case c.out <- frame:
	default:
		c.logger.Warn("outbox full, dropping connection", zap.String("userId", c.identity.UserID))
		c.cancel()
	}
}

// Handler returns the /ws endpoint. Identity comes from the userId and
// username query parameters attached at connect time.
func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		username := r.URL.Query().Get("username")
		if userID == "" || username == "" {
			http.Error(w, "missing identity", http.StatusBadRequest)
			return
		}

		wsConn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer wsConn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := &client{
			identity: contract.Identity{UserID: userID, Username: username},
			out:      make(chan []byte, outboxSize),
			cancel:   cancel,
			logger:   logger,
		}

		h.Inbox() <- hub.Register{Client: c}
		defer func() { h.Inbox() <- hub.Unregister{UserID: userID} }()

		go writePump(ctx, wsConn, c.out)

		readLoop(ctx, wsConn, c, h, logger)
	}
}

func writePump(ctx context.Context, wsConn *websocket.Conn, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsConn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func readLoop(ctx context.Context, wsConn *websocket.Conn, c *client, h *hub.Hub, logger *zap.Logger) {
	for {
		_, data, err := wsConn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					logger.Debug("read failed", zap.String("userId", c.identity.UserID), zap.Error(err))
				}
			}
			return
		}

		env, err := contract.Decode(data)
		if err != nil {
			c.Send(contract.EventRoomError, contract.RoomErrorPayload{
				Code: contract.ErrCodeBadRequest, Message: "Malformed frame",
			})
			continue
		}
		dispatch(h, c, env)
	}
}

func dispatch(h *hub.Hub, c *client, env contract.Envelope) {
	switch env.Event {
	case contract.EventLobbyRooms:
		h.Inbox() <- hub.ListRooms{UserID: c.identity.UserID}

	case contract.EventRoomCreate:
		var p contract.RoomCreatePayload
		if !decode(c, env.Data, &p) {
			return
		}
		h.Inbox() <- hub.CreateRoom{Client: c, Payload: p}

	case contract.EventRoomJoin:
		var p contract.RoomJoinPayload
		if !decode(c, env.Data, &p) {
			return
		}
		h.Inbox() <- hub.JoinRoom{Client: c, Payload: p}

	case contract.EventRoomLeave:
		var p contract.RoomLeavePayload
		if !decode(c, env.Data, &p) {
			return
		}
		h.Inbox() <- hub.LeaveRoom{UserID: c.identity.UserID, Payload: p}

	case contract.EventRoomUpdate:
		var p contract.RoomUpdatePayload
		if !decode(c, env.Data, &p) {
			return
		}
		h.Inbox() <- hub.UpdateRoom{UserID: c.identity.UserID, Payload: p}

	default:
		c.Send(contract.EventRoomError, contract.RoomErrorPayload{
			Code: contract.ErrCodeBadRequest, Message: "Unknown event " + env.Event,
		})
	}
}

func decode(c *client, data json.RawMessage, into any) bool {
	if err := json.Unmarshal(data, into); err != nil {
		c.Send(contract.EventRoomError, contract.RoomErrorPayload{
			Code: contract.ErrCodeBadRequest, Message: "Malformed payload",
		})
		return false
	}
	return true
}
