package missioncontrol

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mindburn-labs/aegis/pkg/governance"
)

// EventHandler receives fanned-out Mission Control events.
type EventHandler func(governance.Event)

// Subscription is returned by OnEvent; call Unsubscribe to deregister.
// Synthesized from artaoheed-agentgate's internal/events Emitter/
// MultiEmitter design, extended with a handle so a caller can actually
// deregister — the agentgate emitters this is modeled on don't support
// that, but spec.md requires it.
type Subscription struct {
	id   string
	kind governance.EventKind
	bus  *bus
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.kind, s.id)
}

// bus is the internal fan-out registry shared by the audit trail,
// enforcement engine, and approval workflow: all three are constructed
// with this bus as their governance.EventEmitter, so registering once on
// Mission Control transitively covers events from every subcomponent.
type bus struct {
	mu       sync.RWMutex
	handlers map[governance.EventKind]map[string]EventHandler
	logger   *slog.Logger
}

func newBus(logger *slog.Logger) *bus {
	return &bus{handlers: make(map[governance.EventKind]map[string]EventHandler), logger: logger}
}

// Emit implements governance.EventEmitter.
func (b *bus) Emit(ev governance.Event) {
	b.mu.RLock()
	set := b.handlers[ev.Kind]
	handlers := make([]EventHandler, 0, len(set))
	for _, h := range set {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, ev)
	}
}

func (b *bus) invoke(h EventHandler, ev governance.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "kind", ev.Kind, "recover", r)
		}
	}()
	h(ev)
}

// On registers a handler for a single event kind and returns a
// Subscription the caller can use to unregister it later.
func (b *bus) On(kind governance.EventKind, h EventHandler) *Subscription {
	id := uuid.New().String()
	b.mu.Lock()
	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[string]EventHandler)
	}
	b.handlers[kind][id] = h
	b.mu.Unlock()
	return &Subscription{id: id, kind: kind, bus: b}
}

func (b *bus) unsubscribe(kind governance.EventKind, id string) {
	b.mu.Lock()
	delete(b.handlers[kind], id)
	b.mu.Unlock()
}
