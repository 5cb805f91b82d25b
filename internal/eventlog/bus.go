package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/kandev/conductor/internal/common/logger"
	v1 "github.com/kandev/conductor/pkg/api/v1"
	"go.uber.org/zap"
)

// Listener is called synchronously with every event published for the
// execution it was registered against.
type Listener func(event v1.ExecutionEvent)

// eventBuffer holds the most recent events for one execution in memory, so
// a just-connected SSE client can be replayed a short backlog without a
// store round-trip.
type eventBuffer struct {
	executionID string
	events      []v1.ExecutionEvent
	maxSize     int
}

// Bus persists every published event to Store and fans it out to live
// listeners (the SSE hub registers one per connected client).
//
// A single mutex guards both the backlog buffers and the listener sets,
// rather than one each: Publish's buffer-append and listener-snapshot, and
// SubscribeWithBacklog's buffer-snapshot and listener-registration, each run
// as one critical section under that same lock. That makes the two
// operations mutually exclusive, so every event is delivered to a given
// subscriber exactly once — either it was already in the backlog snapshot
// the subscriber received (and is absent from the listener list Publish
// snapshotted for it), or it arrives live (and is absent from the backlog,
// since the subscription's snapshot was taken before Publish appended it).
// Two separate locks cannot make that guarantee: a Publish landing between
// a Subscribe call's buffer read and its listener registration would be
// both replayed and delivered live.
type Bus struct {
	store Store
	log   *logger.Logger

	mu        sync.Mutex
	buffers   map[string]*eventBuffer
	listeners map[string][]subscription
	nextSubID int
}

type subscription struct {
	id int
	fn Listener
}

// NewBus builds an event bus backed by store.
func NewBus(store Store, log *logger.Logger) *Bus {
	if log == nil {
		log = logger.Default()
	}
	return &Bus{
		store:     store,
		log:       log.WithFields(zap.String("component", "eventlog.bus")),
		buffers:   make(map[string]*eventBuffer),
		listeners: make(map[string][]subscription),
	}
}

// Publish persists event, appends it to executionID's backlog, and notifies
// every listener registered at the time of publication. Errors persisting
// are logged, not returned — publishing is best-effort from the caller's
// perspective so a storage hiccup never stalls an in-flight execution.
func (b *Bus) Publish(ctx context.Context, executionID string, event v1.ExecutionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := b.store.AppendEvent(ctx, executionID, event); err != nil {
		b.log.Error("failed to persist execution event", zap.String("execution_id", executionID), zap.Error(err))
	}

	b.mu.Lock()
	buf, ok := b.buffers[executionID]
	if !ok {
		buf = &eventBuffer{executionID: executionID, maxSize: 200}
		b.buffers[executionID] = buf
	}
	buf.events = append(buf.events, event)
	if len(buf.events) > buf.maxSize {
		buf.events = buf.events[len(buf.events)-buf.maxSize:]
	}
	subs := append([]subscription(nil), b.listeners[executionID]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(event)
	}
}

// Subscribe registers a listener for executionID and returns a function
// that removes it. Prefer SubscribeWithBacklog when the caller also needs
// the backlog, since registering and snapshotting separately reopens the
// double/missed-delivery race SubscribeWithBacklog exists to close.
func (b *Bus) Subscribe(executionID string, listener Listener) func() {
	_, unsubscribe := b.SubscribeWithBacklog(executionID, listener)
	return unsubscribe
}

// SubscribeWithBacklog atomically snapshots executionID's current backlog
// and registers listener, so no event publishd concurrently with this call
// is either missed or delivered twice: see the Bus doc comment.
func (b *Bus) SubscribeWithBacklog(executionID string, listener Listener) ([]v1.ExecutionEvent, func()) {
	b.mu.Lock()
	var backlog []v1.ExecutionEvent
	if buf, ok := b.buffers[executionID]; ok {
		backlog = make([]v1.ExecutionEvent, len(buf.events))
		copy(backlog, buf.events)
	}

	b.nextSubID++
	id := b.nextSubID
	b.listeners[executionID] = append(b.listeners[executionID], subscription{id: id, fn: listener})
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		ls := b.listeners[executionID]
		for i := range ls {
			if ls[i].id == id {
				b.listeners[executionID] = append(ls[:i], ls[i+1:]...)
				return
			}
		}
	}
	return backlog, unsubscribe
}

// Recent returns the in-memory backlog for executionID. Exposed for callers
// that only need a one-off snapshot with no subscription (e.g. reporting);
// SSE streaming uses SubscribeWithBacklog instead, since calling this
// separately from Subscribe cannot avoid the duplicate/missed-delivery
// window described on Bus.
func (b *Bus) Recent(executionID string) []v1.ExecutionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[executionID]
	if !ok {
		return nil
	}
	out := make([]v1.ExecutionEvent, len(buf.events))
	copy(out, buf.events)
	return out
}

// Forget drops the in-memory buffer and listener set for a completed
// execution; persisted events and the Execution record remain in Store.
func (b *Bus) Forget(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, executionID)
	delete(b.listeners, executionID)
}
