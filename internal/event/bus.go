package event

import (
	"sync"
)

// Handler receives delivered events.
type Handler func(Event)

// Bus is an ordered publish/subscribe channel for events.
//
// Handlers run synchronously on the publishing goroutine. A handler must not
// publish on the bus that is delivering to it. Handler panics are not
// recovered.
type Bus interface {
	// Send stamps an unstamped event and delivers it to current subscribers.
	Send(e Event)
	// SendAll delivers a batch in order.
	SendAll(events []Event)
	// Time reads the shared clock.
	Time() int64
	// Subscribe registers h for one event kind.
	Subscribe(kind Kind, h Handler)
	// SubscribeAll registers h for every event kind.
	SubscribeAll(h Handler)

	publish(e Event) Event
}

// On subscribes a typed handler. It is a convenience over Subscribe that
// saves handlers from type-switching.
func On[T Event](b Bus, h func(T)) {
	var zero T
	b.Subscribe(zero.Kind(), func(e Event) {
		if te, ok := e.(T); ok {
			h(te)
		}
	})
}

type handlers struct {
	mu     sync.RWMutex
	byKind map[Kind][]Handler
	all    []Handler
}

func (hs *handlers) add(kind Kind, h Handler) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.byKind == nil {
		hs.byKind = make(map[Kind][]Handler)
	}
	hs.byKind[kind] = append(hs.byKind[kind], h)
}

func (hs *handlers) addAll(h Handler) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.all = append(hs.all, h)
}

// snapshot returns the handlers for kind in registration order: kind-specific
// handlers first, then catch-all handlers.
func (hs *handlers) snapshot(kind Kind) []Handler {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	out := make([]Handler, 0, len(hs.byKind[kind])+len(hs.all))
	out = append(out, hs.byKind[kind]...)
	out = append(out, hs.all...)
	return out
}

func (hs *handlers) deliver(e Event) {
	for _, h := range hs.snapshot(e.Kind()) {
		h(e)
	}
}

// SyncBus is the root bus of a run.
//
// Thread-safety: SyncBus is safe for concurrent use. Stamping and delivery
// happen under one lock, so timestamps are non-decreasing in delivery order
// even when several goroutines publish.
type SyncBus struct {
	clock    TimeSource
	deliver  sync.Mutex
	handlers handlers
}

// NewBus creates a root bus stamping events from clock.
func NewBus(clock TimeSource) *SyncBus {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &SyncBus{clock: clock}
}

// Send implements Bus.
func (b *SyncBus) Send(e Event) {
	b.publish(e)
}

// SendAll implements Bus. The batch is delivered without interleaving with
// other publishers.
func (b *SyncBus) SendAll(events []Event) {
	b.deliver.Lock()
	defer b.deliver.Unlock()
	for _, e := range events {
		b.handlers.deliver(b.stamp(e))
	}
}

// Time implements Bus.
func (b *SyncBus) Time() int64 {
	return b.clock.Now()
}

// Subscribe implements Bus.
func (b *SyncBus) Subscribe(kind Kind, h Handler) {
	b.handlers.add(kind, h)
}

// SubscribeAll implements Bus.
func (b *SyncBus) SubscribeAll(h Handler) {
	b.handlers.addAll(h)
}

func (b *SyncBus) publish(e Event) Event {
	b.deliver.Lock()
	defer b.deliver.Unlock()
	e = b.stamp(e)
	b.handlers.deliver(e)
	return e
}

func (b *SyncBus) stamp(e Event) Event {
	if e.Timestamp() != 0 {
		return e
	}
	return e.stamped(b.clock.Now())
}

// BufferingBus decorates a parent bus for one execution unit.
//
// Every event sent to a BufferingBus is published on the parent immediately,
// stamped by the parent under its delivery lock, then delivered to the
// BufferingBus's own subscribers and recorded. Flush re-publishes the
// recorded batch to the parent once, in original order, keeping the original
// timestamps; hosts that reset their view of the parent between units use it
// to replay one unit. Discard drops the recorded batch.
//
// Deferred switches off the immediate forwarding: the parent then sees the
// events only on Flush, each exactly once.
//
// Thread-safety: BufferingBus is safe for concurrent use, but is intended to
// be owned by a single session.
type BufferingBus struct {
	parent   Bus
	deferred bool
	mu       sync.Mutex
	events   []Event
	handlers handlers
}

// BufferingOption configures a BufferingBus.
type BufferingOption func(*BufferingBus)

// Deferred holds events back from the parent until Flush.
func Deferred() BufferingOption {
	return func(b *BufferingBus) { b.deferred = true }
}

// NewBufferingBus wraps parent.
func NewBufferingBus(parent Bus, opts ...BufferingOption) *BufferingBus {
	b := &BufferingBus{parent: parent}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send implements Bus.
func (b *BufferingBus) Send(e Event) {
	b.publish(e)
}

// SendAll implements Bus.
func (b *BufferingBus) SendAll(events []Event) {
	for _, e := range events {
		b.publish(e)
	}
}

// Time implements Bus.
func (b *BufferingBus) Time() int64 {
	return b.parent.Time()
}

// Subscribe implements Bus. Handlers see events as they are sent.
func (b *BufferingBus) Subscribe(kind Kind, h Handler) {
	b.handlers.add(kind, h)
}

// SubscribeAll implements Bus.
func (b *BufferingBus) SubscribeAll(h Handler) {
	b.handlers.addAll(h)
}

func (b *BufferingBus) publish(e Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.deferred {
		e = b.parent.publish(e)
	} else if e.Timestamp() == 0 {
		e = e.stamped(b.parent.Time())
	}
	b.handlers.deliver(e)
	b.events = append(b.events, e)
	return e
}

// Len reports the number of recorded events.
func (b *BufferingBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush publishes the recorded batch to the parent and clears it. It returns
// the number of events published.
func (b *BufferingBus) Flush() int {
	batch := b.take()
	if len(batch) == 0 {
		return 0
	}
	b.parent.SendAll(batch)
	return len(batch)
}

// Discard clears the recorded batch without publishing it and returns the
// number of events dropped.
func (b *BufferingBus) Discard() int {
	return len(b.take())
}

func (b *BufferingBus) take() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.events
	b.events = nil
	return batch
}

// Recorder collects every event of a bus. It is used by reporters that need
// the whole stream and by tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder subscribes a recorder to every kind on b.
func NewRecorder(b Bus) *Recorder {
	r := &Recorder{}
	b.SubscribeAll(r.record)
	return r
}

func (r *Recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []Kind {
	events := r.Events()
	out := make([]Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind()
	}
	return out
}
