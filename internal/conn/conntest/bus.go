// Package conntest provides an in-memory conn.Bus for tests: events fired
// by hand, emits recorded, optional scripted responses. Registration
// semantics match the real Manager (idempotent per handler identity,
// one-shot Once).
package conntest

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/valeofeternity/vale-rooms/internal/conn"
)

type registration struct {
	key  uintptr
	fn   conn.Handler
	once bool
}

// Emitted is one recorded Emit call.
type Emitted struct {
	Event   string
	Payload any
}

// Bus is a fake channel. Not safe for concurrent use; tests drive it from
// one goroutine, the same way the real read pump delivers events.
type Bus struct {
	ConnectedState bool
	Emits          []Emitted

	// OnEmit, when set, runs synchronously inside Emit. Tests script the
	// server's reply with it.
	OnEmit func(event string, payload any)

	handlers map[string][]registration
}

func New() *Bus {
	return &Bus{
		ConnectedState: true,
		handlers:       make(map[string][]registration),
	}
}

func (b *Bus) Connected() bool { return b.ConnectedState }

func (b *Bus) Emit(event string, payload any) {
	if !b.ConnectedState {
		return
	}
	b.Emits = append(b.Emits, Emitted{Event: event, Payload: payload})
	if b.OnEmit != nil {
		b.OnEmit(event, payload)
	}
}

func (b *Bus) On(event string, h conn.Handler)   { b.register(event, h, false) }
func (b *Bus) Once(event string, h conn.Handler) { b.register(event, h, true) }

func (b *Bus) Off(event string, h conn.Handler) {
	key := reflect.ValueOf(h).Pointer()
	regs := b.handlers[event]
	for i, r := range regs {
		if r.key == key {
			b.handlers[event] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

func (b *Bus) register(event string, h conn.Handler, once bool) {
	key := reflect.ValueOf(h).Pointer()
	for _, r := range b.handlers[event] {
		if r.key == key {
			return
		}
	}
	b.handlers[event] = append(b.handlers[event], registration{key: key, fn: h, once: once})
}

// Fire delivers payload (marshalled to JSON) to every handler of event,
// removing one-shot registrations first, exactly like the real dispatch.
func (b *Bus) Fire(event string, payload any) {
	var data json.RawMessage
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("conntest: marshal %s payload: %v", event, err))
		}
	}

	regs := b.handlers[event]
	run := make([]conn.Handler, 0, len(regs))
	kept := regs[:0]
	for _, r := range regs {
		run = append(run, r.fn)
		if !r.once {
			kept = append(kept, r)
		}
	}
	b.handlers[event] = kept

	for _, fn := range run {
		fn(data)
	}
}

// HandlerCount reports how many handlers are registered for event.
func (b *Bus) HandlerCount(event string) int {
	return len(b.handlers[event])
}

// EmittedEvents lists the event names emitted so far, in order.
func (b *Bus) EmittedEvents() []string {
	out := make([]string, 0, len(b.Emits))
	for _, e := range b.Emits {
		out = append(out, e.Event)
	}
	return out
}
