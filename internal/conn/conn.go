// Package conn owns the client's single persistent channel to the room
// server and the typed publish/subscribe surface on top of it.
//
// All server events are dispatched from one read-pump goroutine, in
// arrival order, each handler running to completion before the next frame
// is looked at. Nothing in this package reorders or coalesces events.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/valeofeternity/vale-rooms/pkg/contract"
)

// Synthetic local events, never sent on the wire. Connect fires after a
// successful dial; Disconnect fires exactly once per connection when the
// channel goes away, whether by Disconnect() or by the peer.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

var ErrAlreadyConnected = errors.New("conn: already connected")

const writeTimeout = 3 * time.Second

// Handler receives the raw payload of one event. Handlers registered for
// synthetic events receive nil.
type Handler func(data json.RawMessage)

// Bus is the typed publish/subscribe surface of Manager. Room and lobby
// components take a Bus rather than the concrete Manager so tests can
// substitute a fake channel instead of patching shared state.
//
// Handler identity is the func literal, not the closure instance: two
// closures built from the same literal count as one handler, so On drops
// the second and Off removes whichever registered first. Components that
// attach to a shared Bus must therefore not attach twice concurrently;
// one session and one lobby view per Manager is the supported shape.
type Bus interface {
	Connected() bool
	Emit(event string, payload any)
	On(event string, h Handler)
	Off(event string, h Handler)
	Once(event string, h Handler)
}

var _ Bus = (*Manager)(nil)

type registration struct {
	key  uintptr
	fn   Handler
	once bool
}

// Manager gates the channel behind a known identity and routes incoming
// envelopes to registered handlers.
type Manager struct {
	baseURL string
	logger  *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	dialing    bool
	cancelPump context.CancelFunc
	notifyDown *sync.Once // per-connection, guards the disconnect event
	handlers   map[string][]registration
	identity   contract.Identity
}

// New builds a manager for the server at baseURL (http(s):// or ws(s)://,
// without the /ws path). No network activity happens until Connect.
func New(baseURL string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		baseURL:  baseURL,
		logger:   logger,
		handlers: make(map[string][]registration),
	}
}

// Connect dials the server, attaching identity as connection-time
// credentials, and starts the read pump. Fires the synthetic "connect"
// event before any server frame can be dispatched, so resync handlers run
// first.
func (m *Manager) Connect(ctx context.Context, identity contract.Identity) error {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return fmt.Errorf("conn: bad server url: %w", err)
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("userId", identity.UserID)
	q.Set("username", identity.Username)
	u.RawQuery = q.Encode()

	// dialing holds the slot across the dial so a concurrent Connect
	// cannot pass the check and overwrite this connection
	m.mu.Lock()
	if m.conn != nil || m.dialing {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.dialing = true
	m.mu.Unlock()

	c, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		m.mu.Lock()
		m.dialing = false
		m.mu.Unlock()
		return fmt.Errorf("conn: dial: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.dialing = false
	m.conn = c
	m.cancelPump = cancel
	m.notifyDown = new(sync.Once)
	m.identity = identity
	down := m.notifyDown
	m.mu.Unlock()

	m.logger.Info("connected", zap.String("userId", identity.UserID))
	m.dispatch(EventConnect, nil)

	go m.readPump(pumpCtx, c, down)
	return nil
}

// Disconnect closes the channel. Idempotent; safe when never connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	c := m.conn
	cancel := m.cancelPump
	down := m.notifyDown
	m.conn = nil
	m.cancelPump = nil
	m.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	_ = c.Close(websocket.StatusNormalClosure, "bye")
	down.Do(func() {
		m.logger.Info("disconnected")
		m.dispatch(EventDisconnect, nil)
	})
}

// Identity returns the identity attached at connect time.
func (m *Manager) Identity() contract.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Connected reports whether the channel is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Emit sends a fire-and-forget frame. When the channel is not connected
// this is a deliberate no-op: the caller observes only the absence of a
// response and owns any timeout policy.
func (m *Manager) Emit(event string, payload any) {
	frame, err := contract.Encode(event, payload)
	if err != nil {
		m.logger.Warn("emit: encode failed", zap.String("event", event), zap.Error(err))
		return
	}

	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()
	if c == nil {
		m.logger.Debug("emit while disconnected, dropping", zap.String("event", event))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, frame); err != nil {
		m.logger.Warn("emit: write failed", zap.String("event", event), zap.Error(err))
	}
}

// On registers h for event. Registration is keyed by the handler func's
// identity: registering the same func for the same event twice delivers
// one callback, not two.
func (m *Manager) On(event string, h Handler) {
	m.register(event, h, false)
}

// Once registers h for a single delivery, after which it is removed.
func (m *Manager) Once(event string, h Handler) {
	m.register(event, h, true)
}

// Off removes h from event. Removing an unregistered handler is a no-op.
func (m *Manager) Off(event string, h Handler) {
	key := handlerKey(h)
	m.mu.Lock()
	defer m.mu.Unlock()
	regs := m.handlers[event]
	for i, r := range regs {
		if r.key == key {
			m.handlers[event] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

func (m *Manager) register(event string, h Handler, once bool) {
	key := handlerKey(h)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.handlers[event] {
		if r.key == key {
			return
		}
	}
	m.handlers[event] = append(m.handlers[event], registration{key: key, fn: h, once: once})
}

// handlerKey gives funcs an identity so (event, handler) pairs dedupe.
// Two distinct closures are distinct handlers, the same func value is the
// same handler, matching the semantics callers expect from On/Off pairs.
func handlerKey(h Handler) uintptr {
	return reflect.ValueOf(h).Pointer()
}

func (m *Manager) dispatch(event string, data json.RawMessage) {
	m.mu.Lock()
	regs := m.handlers[event]
	run := make([]Handler, 0, len(regs))
	kept := regs[:0]
	for _, r := range regs {
		run = append(run, r.fn)
		if !r.once {
			kept = append(kept, r)
		}
	}
	m.handlers[event] = kept
	m.mu.Unlock()

	for _, fn := range run {
		fn(data)
	}
}

func (m *Manager) readPump(ctx context.Context, c *websocket.Conn, down *sync.Once) {
	defer func() {
		m.mu.Lock()
		if m.conn == c {
			m.conn = nil
			m.cancelPump = nil
		}
		m.mu.Unlock()
		down.Do(func() {
			m.logger.Info("disconnected")
			m.dispatch(EventDisconnect, nil)
		})
	}()

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					m.logger.Warn("read pump stopped", zap.Error(err))
				}
			}
			return
		}

		env, err := contract.Decode(data)
		if err != nil {
			m.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		m.dispatch(env.Event, env.Data)
	}
}
