// Package eventbuf holds lifecycle events that arrive for an entity before
// the entity is registered locally, and hands them to the entity exactly
// once when it is.
package eventbuf

import (
	"sync"
	"time"
)

type pending[E any] struct {
	event      E
	receivedAt time.Time
}

// Config configures a Buffer.
type Config[E any] struct {
	// Apply delivers an event to a registered entity. Required.
	Apply func(id string, event E)

	// OnBuffered, if set, is called with the number of buffered events
	// after every change.
	OnBuffered func(n int)

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// Buffer routes events by entity id. Events for registered ids go straight
// to Apply; events for unknown ids are buffered, last write wins, until the
// id is registered.
type Buffer[E any] struct {
	apply      func(id string, event E)
	onBuffered func(n int)
	now        func() time.Time

	mu         sync.Mutex
	registered map[string]struct{}
	buffered   map[string]pending[E]
}

// New creates a Buffer.
func New[E any](cfg Config[E]) *Buffer[E] {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Buffer[E]{
		apply:      cfg.Apply,
		onBuffered: cfg.OnBuffered,
		now:        cfg.Now,
		registered: make(map[string]struct{}),
		buffered:   make(map[string]pending[E]),
	}
}

// Deliver routes event to the entity id. It reports whether the event was
// buffered rather than applied.
func (b *Buffer[E]) Deliver(id string, event E) (buffered bool) {
	b.mu.Lock()
	if _, ok := b.registered[id]; ok {
		b.mu.Unlock()
		b.apply(id, event)
		return false
	}
	b.buffered[id] = pending[E]{event: event, receivedAt: b.now()}
	n := len(b.buffered)
	b.mu.Unlock()

	b.report(n)
	return true
}

// Register marks id as known. create builds the entity's local state: it
// receives the buffered event for id, or nil when none arrived, and runs
// while the buffer is locked so no event for id can slip between seeding
// and registration. The buffered slot is consumed. Register reports whether
// a buffered event seeded the entity.
func (b *Buffer[E]) Register(id string, create func(seed *E)) (seeded bool) {
	b.mu.Lock()
	p, ok := b.buffered[id]
	delete(b.buffered, id)
	b.registered[id] = struct{}{}
	if ok {
		ev := p.event
		create(&ev)
	} else {
		create(nil)
	}
	n := len(b.buffered)
	b.mu.Unlock()

	if ok {
		b.report(n)
	}
	return ok
}

// Unregister forgets id. Later events for it are buffered again.
func (b *Buffer[E]) Unregister(id string) {
	b.mu.Lock()
	delete(b.registered, id)
	b.mu.Unlock()
}

// Registered reports whether id is registered.
func (b *Buffer[E]) Registered(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.registered[id]
	return ok
}

// Len returns the number of buffered events.
func (b *Buffer[E]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffered)
}

// Prune drops buffered events older than maxAge, for entities that were
// never registered. It returns how many were dropped.
func (b *Buffer[E]) Prune(maxAge time.Duration) int {
	b.mu.Lock()
	cutoff := b.now().Add(-maxAge)
	removed := 0
	for id, p := range b.buffered {
		if p.receivedAt.Before(cutoff) {
			delete(b.buffered, id)
			removed++
		}
	}
	n := len(b.buffered)
	b.mu.Unlock()

	if removed > 0 {
		b.report(n)
	}
	return removed
}

func (b *Buffer[E]) report(n int) {
	if b.onBuffered != nil {
		b.onBuffered(n)
	}
}
