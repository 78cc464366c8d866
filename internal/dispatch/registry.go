package dispatch

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/botdesk/botstream/internal/model"
)

// Handler consumes inbound messages.
type Handler interface {
	Handle(msg model.Message)
}

// HandlerFunc adapts a function to Handler. Function values are not
// comparable, so every Subscribe of a HandlerFunc creates a new subscription;
// remove it through the returned Subscription.
type HandlerFunc func(msg model.Message)

// Handle calls f(msg).
func (f HandlerFunc) Handle(msg model.Message) { f(msg) }

// Registry fans inbound messages out to subscribers.
type Registry interface {
	// Subscribe registers h. Registering an identical handler again returns
	// the existing subscription. A nil handler is ignored and yields nil.
	Subscribe(h Handler) *Subscription

	// Unsubscribe removes h. No-op if h is not registered. Handlers that are
	// not comparable, such as HandlerFunc, cannot be found by value and must
	// be removed through their Subscription.
	Unsubscribe(h Handler)

	// Dispatch delivers msg to every current subscriber.
	Dispatch(msg model.Message)

	// Len returns the number of registered subscribers.
	Len() int

	// Stats returns dispatch counters.
	Stats() Stats
}

// Stats contains runtime statistics.
type Stats struct {
	Subscribers   int
	Dispatched    int64 // messages passed to Dispatch
	Deliveries    int64 // handler invocations that returned normally
	HandlerPanics int64
}

// Subscription is a registered handler.
type Subscription struct {
	ID uuid.UUID

	handler Handler
	key     Handler // nil when handler is not comparable
	reg     *registry
	active  atomic.Bool
}

// Unsubscribe removes the subscription from its registry. Safe to call more
// than once and from inside a handler.
func (s *Subscription) Unsubscribe() {
	s.reg.remove(s)
}

// Active reports whether the subscription is still registered.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// registry is the internal implementation.
type registry struct {
	logger *slog.Logger

	mu    sync.Mutex
	subs  []*Subscription // registration order, replaced on every change
	byKey map[Handler]*Subscription

	dispatched atomic.Int64
	deliveries atomic.Int64
	panics     atomic.Int64
}

// NewRegistry creates an empty Dispatch Registry.
func NewRegistry(logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &registry{
		logger: logger,
		byKey:  make(map[Handler]*Subscription),
	}
}

// Subscribe registers a handler.
func (r *registry) Subscribe(h Handler) *Subscription {
	if isNilHandler(h) {
		r.logger.Warn("subscribe ignored: nil handler")
		return nil
	}
	key := handlerKey(h)

	r.mu.Lock()
	defer r.mu.Unlock()

	if key != nil {
		if existing, ok := r.byKey[key]; ok {
			return existing
		}
	}

	sub := &Subscription{
		ID:      uuid.New(),
		handler: h,
		key:     key,
		reg:     r,
	}
	sub.active.Store(true)

	next := make([]*Subscription, len(r.subs), len(r.subs)+1)
	copy(next, r.subs)
	r.subs = append(next, sub)
	if key != nil {
		r.byKey[key] = sub
	}

	r.logger.Debug("subscriber added", "subscription", sub.ID, "subscribers", len(r.subs))
	return sub
}

// Unsubscribe removes a handler by identity.
func (r *registry) Unsubscribe(h Handler) {
	if isNilHandler(h) {
		return
	}
	key := handlerKey(h)
	if key == nil {
		r.logger.Warn("unsubscribe ignored: handler is not comparable; use Subscription.Unsubscribe",
			"handler_type", fmt.Sprintf("%T", h))
		return
	}

	r.mu.Lock()
	sub, ok := r.byKey[key]
	r.mu.Unlock()

	if ok {
		r.remove(sub)
	}
}

func (r *registry) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !sub.active.Swap(false) {
		return
	}

	next := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		if s != sub {
			next = append(next, s)
		}
	}
	r.subs = next
	if sub.key != nil {
		delete(r.byKey, sub.key)
	}

	r.logger.Debug("subscriber removed", "subscription", sub.ID, "subscribers", len(r.subs))
}

// Dispatch delivers msg to the subscribers registered at the time of the call.
func (r *registry) Dispatch(msg model.Message) {
	r.dispatched.Add(1)

	r.mu.Lock()
	snapshot := r.subs
	r.mu.Unlock()

	for _, sub := range snapshot {
		// Removed earlier in this dispatch.
		if !sub.active.Load() {
			continue
		}
		r.deliver(sub, msg)
	}
}

func (r *registry) deliver(sub *Subscription, msg model.Message) {
	defer func() {
		if p := recover(); p != nil {
			r.panics.Add(1)
			r.logger.Error("subscriber panicked",
				"subscription", sub.ID,
				"type", msg.Type,
				"bot_id", msg.BotID,
				"panic", p,
			)
		}
	}()

	sub.handler.Handle(msg)
	r.deliveries.Add(1)
}

// Len returns the number of subscribers.
func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Stats returns current statistics.
func (r *registry) Stats() Stats {
	return Stats{
		Subscribers:   r.Len(),
		Dispatched:    r.dispatched.Load(),
		Deliveries:    r.deliveries.Load(),
		HandlerPanics: r.panics.Load(),
	}
}

// handlerKey returns h when it can be used as a map key, nil otherwise.
// Structs and arrays are excluded because == on them panics when they hold a
// func inside an interface field.
// isNilHandler reports whether h is nil or a nil HandlerFunc.
func isNilHandler(h Handler) bool {
	if h == nil {
		return true
	}
	f, ok := h.(HandlerFunc)
	return ok && f == nil
}

func handlerKey(h Handler) Handler {
	if h == nil {
		return nil
	}
	t := reflect.TypeOf(h)
	if !t.Comparable() {
		return nil
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Array, reflect.Interface:
		return nil
	}
	return h
}
