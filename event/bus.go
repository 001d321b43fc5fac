// Package event carries record lifecycle and field-change notifications to
// unrelated subsystems. Kinds form a closed set: record types register the
// kinds they emit when the store opens, and Subscribe rejects anything not
// registered, so misspelled event names fail at wiring time instead of
// silently never firing.
package event

import (
	"fmt"
	"sync"
)

// Kind names one event stream.
type Kind string

// Base lifecycle kinds, pre-registered on every bus.
const (
	Insert Kind = "insert"
	Update Kind = "update"
	Delete Kind = "delete"
)

// Handler receives emitted events. Handlers run on the emitter's goroutine;
// wrap the bus with NewAsync when they are not cheap.
type Handler func(kind Kind, data any)

type Bus struct {
	mu       sync.RWMutex
	known    map[Kind]struct{}
	handlers map[Kind][]Handler
}

func NewBus() *Bus {
	b := &Bus{
		known:    make(map[Kind]struct{}),
		handlers: make(map[Kind][]Handler),
	}
	b.Register(Insert, Update, Delete)
	return b
}

// Register adds kinds to the closed set. Idempotent.
func (b *Bus) Register(kinds ...Kind) {
	b.mu.Lock()
	for _, k := range kinds {
		b.known[k] = struct{}{}
	}
	b.mu.Unlock()
}

// Subscribe attaches a handler to a registered kind.
func (b *Bus) Subscribe(k Kind, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.known[k]; !ok {
		return fmt.Errorf("event: unknown kind %q", k)
	}
	b.handlers[k] = append(b.handlers[k], h)
	return nil
}

// Emit delivers data to every handler of k, in subscription order. Emitting
// a kind nobody subscribed to is a no-op.
func (b *Bus) Emit(k Kind, data any) {
	b.mu.RLock()
	hs := b.handlers[k]
	b.mu.RUnlock()
	for _, h := range hs {
		h(k, data)
	}
}
