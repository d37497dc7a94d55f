// Package dispatch routes decoded messages to handlers that were registered
// for their type. Registrations are scoped: every Handle call returns a
// Registration that removes exactly that handler when closed.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/chilledoj/pongroom/protocol"
)

var ErrNoHandler = errors.New("dispatch: no handler registered")

type Handler func(from protocol.ParticipantID, env protocol.Envelope) error

type entry struct {
	id uint64
	h  Handler
}

type Registry struct {
	mu       sync.Mutex
	next     uint64
	handlers map[protocol.MessageType][]entry

	Slogger *slog.Logger
}

func NewRegistry(sl *slog.Logger) *Registry {
	if sl == nil {
		sl = slog.Default()
	}
	return &Registry{
		handlers: make(map[protocol.MessageType][]entry),
		Slogger:  sl,
	}
}

// Handle registers h for messages of type t.
func (r *Registry) Handle(t protocol.MessageType, h Handler) *Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.handlers[t] = append(r.handlers[t], entry{id: r.next, h: h})
	return &Registration{registry: r, msgType: t, id: r.next}
}

// Has reports whether at least one handler is registered for t.
func (r *Registry) Has(t protocol.MessageType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[t]) > 0
}

// Dispatch calls every handler registered for env.Type in registration order.
// Handlers may close registrations, including their own, while running.
func (r *Registry) Dispatch(from protocol.ParticipantID, env protocol.Envelope) error {
	r.mu.Lock()
	hs := slices.Clone(r.handlers[env.Type])
	r.mu.Unlock()

	if len(hs) == 0 {
		return fmt.Errorf("%w for %q", ErrNoHandler, env.Type)
	}
	var errs []error
	for _, e := range hs {
		if !r.live(env.Type, e.id) {
			continue
		}
		if err := e.h(from, env); err != nil {
			r.Slogger.Debug("handler failed", "func", "dispatch.Dispatch", "type", env.Type, "from", from, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) live(t protocol.MessageType, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.handlers[t], func(e entry) bool { return e.id == id })
}

func (r *Registry) remove(t protocol.MessageType, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = slices.DeleteFunc(r.handlers[t], func(e entry) bool { return e.id == id })
	if len(r.handlers[t]) == 0 {
		delete(r.handlers, t)
	}
}

// Registration is the handle for a single registered handler.
type Registration struct {
	registry *Registry
	msgType  protocol.MessageType
	id       uint64
	once     sync.Once
}

// Close removes the handler. It is safe to call more than once.
func (reg *Registration) Close() {
	if reg == nil {
		return
	}
	reg.once.Do(func() {
		reg.registry.remove(reg.msgType, reg.id)
	})
}

// Group closes a set of registrations together.
type Group struct {
	mu   sync.Mutex
	regs []*Registration
}

func (g *Group) Add(regs ...*Registration) {
	g.mu.Lock()
	g.regs = append(g.regs, regs...)
	g.mu.Unlock()
}

func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.regs)
}

func (g *Group) Close() {
	g.mu.Lock()
	regs := g.regs
	g.regs = nil
	g.mu.Unlock()
	for _, reg := range regs {
		reg.Close()
	}
}
