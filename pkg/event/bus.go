// Package event implements the versioned event envelope and the in-process
// bus that carries every runtime observation: one producer per run,
// sequential dispatch, automatic payload redaction, and an append-only log.
package event

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/tabula/pkg/observability"
	"github.com/kadirpekel/tabula/pkg/redact"
)

// ErrBusClosed is returned by Emit after Close. It is the only way Emit can
// fail.
var ErrBusClosed = errors.New("event bus is closed")

// DefaultMaxListeners is the advisory per-type subscription limit. Exceeding
// it logs a warning but never fails.
const DefaultMaxListeners = 32

// Handler receives envelopes for a subscribed type. Handlers must not mutate
// the envelope. A panicking handler is recovered, logged, and does not stop
// dispatch to the remaining handlers.
type Handler func(*Envelope)

// Sink receives a write-through copy of every emitted envelope, typically a
// persistence port. Sink failures are logged and swallowed: the bus never
// depends on its readiness.
type Sink interface {
	SaveEvent(env *Envelope) error
}

// EmitOptions carries the optional per-emit overrides.
type EmitOptions struct {
	Actor          Actor
	CorrelationID  string
	RedactionLevel redact.Level
}

type subscription struct {
	id      uint64
	handler Handler
	once    bool
}

// Bus is the single-producer, many-consumer event channel for one run.
type Bus struct {
	runID        string
	maxListeners int
	sink         Sink
	metrics      *observability.Metrics

	mu       sync.Mutex
	state    string
	closed   bool
	log      []*Envelope
	subs     map[Type][]*subscription
	wildcard []*subscription
	lastTS   time.Time
	nextSub  uint64
}

// BusOption configures a Bus at construction.
type BusOption func(*Bus)

// WithSink attaches a write-through persistence sink.
func WithSink(sink Sink) BusOption {
	return func(b *Bus) { b.sink = sink }
}

// WithMetrics attaches runtime metrics.
func WithMetrics(m *observability.Metrics) BusOption {
	return func(b *Bus) { b.metrics = m }
}

// WithMaxListeners overrides the advisory listener limit.
func WithMaxListeners(n int) BusOption {
	return func(b *Bus) { b.maxListeners = n }
}

// NewBus creates a bus for one run. initialState is the workflow state
// stamped on envelopes until the orchestrator advances it via SetState.
func NewBus(runID, initialState string, opts ...BusOption) *Bus {
	b := &Bus{
		runID:        runID,
		state:        initialState,
		maxListeners: DefaultMaxListeners,
		metrics:      observability.NoopMetrics(),
		subs:         make(map[Type][]*subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetState updates the workflow state stamped on subsequent envelopes.
func (b *Bus) SetState(state string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state
}

// RunID returns the run this bus belongs to.
func (b *Bus) RunID() string {
	return b.runID
}

// Emit publishes an event. It fails only when the bus is closed; otherwise
// it always returns a fully populated envelope. The payload is scanned for
// sensitive material and the redaction level auto-escalates to strict when
// any is found, overriding a weaker explicit level.
func (b *Bus) Emit(t Type, payload any, opts EmitOptions) (*Envelope, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}

	level := opts.RedactionLevel
	if level == "" {
		level = redact.LevelNone
	}
	if redact.Scan(payload) {
		if level != redact.LevelStrict {
			level = redact.LevelStrict
			b.metrics.RedactionsApplied.Inc()
		}
		payload = redact.Sanitize(payload, level)
	} else if level != redact.LevelNone {
		payload = redact.Sanitize(payload, level)
	}

	actor := opts.Actor
	if actor == "" {
		actor = ActorSystem
	}

	eventID := uuid.NewString()
	correlationID := opts.CorrelationID
	if correlationID == "" {
		correlationID = eventID
	}

	env := &Envelope{
		EventVersion:   Version,
		RunID:          b.runID,
		EventID:        eventID,
		Timestamp:      b.nextTimestampLocked(),
		State:          b.state,
		Actor:          actor,
		Type:           t,
		CorrelationID:  correlationID,
		Payload:        payload,
		RedactionLevel: level,
	}

	b.log = append(b.log, env)
	typed := b.snapshotLocked(b.subs[t])
	wildcard := b.snapshotLocked(b.wildcard)
	b.mu.Unlock()

	b.metrics.EventsEmitted.WithLabelValues(string(t)).Inc()

	for _, sub := range typed {
		b.dispatch(sub, env, t)
	}
	for _, sub := range wildcard {
		b.dispatch(sub, env, "")
	}

	if b.sink != nil {
		if err := b.sink.SaveEvent(env); err != nil {
			slog.Warn("event write-through failed", "type", t, "run_id", b.runID, "error", err)
		}
	}

	return env, nil
}

// nextTimestampLocked returns a timestamp that is strictly monotonic within
// this run's log, even if the wall clock stalls or steps backwards.
func (b *Bus) nextTimestampLocked() time.Time {
	ts := time.Now().UTC()
	if !ts.After(b.lastTS) {
		ts = b.lastTS.Add(time.Microsecond)
	}
	b.lastTS = ts
	return ts
}

func (b *Bus) snapshotLocked(subs []*subscription) []*subscription {
	out := make([]*subscription, len(subs))
	copy(out, subs)
	return out
}

func (b *Bus) dispatch(sub *subscription, env *Envelope, t Type) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.SubscriberPanics.Inc()
			slog.Error("event handler panicked", "type", env.Type, "run_id", b.runID, "panic", r)
		}
	}()

	if sub.once {
		if !b.removeSub(sub, t) {
			// Already consumed by a concurrent emit.
			return
		}
	}
	sub.handler(env)
}

// On subscribes a handler for one event type, returning an unsubscribe func.
func (b *Bus) On(t Type, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := b.addLocked(t, handler, false)
	return func() { b.removeSub(sub, t) }
}

// OnAll subscribes a handler for every event type.
func (b *Bus) OnAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := b.addLocked("", handler, false)
	return func() { b.removeSub(sub, "") }
}

// Once subscribes a handler that fires for at most one event of the type.
func (b *Bus) Once(t Type, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := b.addLocked(t, handler, true)
	return func() { b.removeSub(sub, t) }
}

func (b *Bus) addLocked(t Type, handler Handler, once bool) *subscription {
	b.nextSub++
	sub := &subscription{id: b.nextSub, handler: handler, once: once}
	if t == "" {
		b.wildcard = append(b.wildcard, sub)
		if len(b.wildcard) > b.maxListeners {
			slog.Warn("wildcard listener count exceeds advisory limit", "count", len(b.wildcard), "limit", b.maxListeners)
		}
		return sub
	}
	b.subs[t] = append(b.subs[t], sub)
	if len(b.subs[t]) > b.maxListeners {
		slog.Warn("listener count exceeds advisory limit", "type", t, "count", len(b.subs[t]), "limit", b.maxListeners)
	}
	return sub
}

// removeSub deletes a subscription, reporting whether it was still present.
func (b *Bus) removeSub(sub *subscription, t Type) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.wildcard
	if t != "" {
		list = b.subs[t]
	}
	for i, s := range list {
		if s.id == sub.id {
			list = append(list[:i], list[i+1:]...)
			if t == "" {
				b.wildcard = list
			} else {
				b.subs[t] = list
			}
			return true
		}
	}
	return false
}

// Log returns a copy of the append-only envelope log in emission order.
func (b *Bus) Log() []*Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Envelope, len(b.log))
	copy(out, b.log)
	return out
}

// LogByType filters the log down to one event type.
func (b *Bus) LogByType(t Type) []*Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Envelope
	for _, env := range b.log {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

// Close stops the bus. Further emits fail with ErrBusClosed. Close is
// idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Closed reports whether the bus has been closed.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
