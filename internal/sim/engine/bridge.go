package engine

import (
	"log"
	"sync"
	"sync/atomic"
)

// Bridge fans effects out to presentation-layer subscribers. Subscriptions
// are handles: closing one marks it dead, and dead entries are pruned on
// the next dispatch rather than requiring the subscriber list to be edited
// at close time. A panicking handler is isolated and logged; the remaining
// subscribers still run.
type Bridge struct {
	logger *log.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[EffectKind][]*Subscription
}

type Subscription struct {
	id     uint64
	kind   EffectKind
	fn     func(Effect)
	closed atomic.Bool
}

// Close marks the subscription dead. Safe to call more than once and safe
// to call concurrently with dispatch.
func (s *Subscription) Close() {
	s.closed.Store(true)
}

// KindAny subscribes to every effect kind.
const KindAny EffectKind = "*"

func NewBridge(logger *log.Logger) *Bridge {
	return &Bridge{
		logger: logger,
		subs:   make(map[EffectKind][]*Subscription),
	}
}

func (b *Bridge) Subscribe(kind EffectKind, fn func(Effect)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &Subscription{id: b.nextID, kind: kind, fn: fn}
	b.subs[kind] = append(b.subs[kind], s)
	return s
}

// SubscriberCount reports live subscriptions for a kind (post-prune view).
func (b *Bridge) SubscriberCount(kind EffectKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs[kind] {
		if !s.closed.Load() {
			n++
		}
	}
	return n
}

// Publish delivers e to subscribers of its kind and of KindAny, pruning
// closed subscriptions as it goes.
func (b *Bridge) Publish(e Effect) {
	targets := b.collect(e.Kind)
	if e.Kind != KindAny {
		targets = append(targets, b.collect(KindAny)...)
	}
	for _, s := range targets {
		b.deliver(s, e)
	}
}

// collect snapshots the live subscriptions for kind and compacts out the
// closed ones under the lock.
func (b *Bridge) collect(kind EffectKind) []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[kind]
	live := list[:0]
	for _, s := range list {
		if !s.closed.Load() {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		delete(b.subs, kind)
	} else {
		b.subs[kind] = live
	}
	out := make([]*Subscription, len(live))
	copy(out, live)
	return out
}

func (b *Bridge) deliver(s *Subscription, e Effect) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Printf("bridge: subscriber %d panicked on %s: %v", s.id, e.Kind, r)
		}
	}()
	if s.closed.Load() {
		return
	}
	s.fn(e)
}
