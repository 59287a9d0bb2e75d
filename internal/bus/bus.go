package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"lane-siege/server/internal/battle"
	"lane-siege/server/internal/telemetry"
)

// Handler consumes one event. Handlers run concurrently with one another;
// a returned error is logged and isolated, never propagated to siblings.
type Handler func(ctx context.Context, event Event) error

// SubscriptionID identifies one registered handler so it can be removed.
type SubscriptionID string

// Filter decides whether a subscription wants a particular event.
type Filter func(Event) bool

type subscription struct {
	id       SubscriptionID
	kind     Kind
	handler  Handler
	filter   Filter
	battleID battle.ID
}

// SubscribeOption customizes a subscription.
type SubscribeOption func(*subscription)

// WithFilter attaches a predicate; events failing it are not delivered.
func WithFilter(filter Filter) SubscribeOption {
	return func(s *subscription) {
		s.filter = filter
	}
}

// WithBattle scopes the subscription to one battle. Scoped subscriptions only
// see that battle's events and are dropped by ClearBattle.
func WithBattle(battleID battle.ID) SubscribeOption {
	return func(s *subscription) {
		s.battleID = battleID
	}
}

// Bus is the typed pub/sub dispatcher for battle events. Emit fans out to all
// matching handlers in parallel and waits for every one of them, so by the
// time Emit returns each subscriber has observed the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind]map[SubscriptionID]*subscription
	kinds  map[SubscriptionID]Kind
	logger telemetry.Logger
}

// New creates an empty bus. A nil logger falls back to a no-op.
func New(logger telemetry.Logger) *Bus {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Bus{
		subs:   make(map[Kind]map[SubscriptionID]*subscription),
		kinds:  make(map[SubscriptionID]Kind),
		logger: logger,
	}
}

// On registers a handler for one event kind and returns its subscription id.
func (b *Bus) On(kind Kind, handler Handler, opts ...SubscribeOption) SubscriptionID {
	sub := &subscription{
		id:      SubscriptionID(uuid.NewString()),
		kind:    kind,
		handler: handler,
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	byID, ok := b.subs[kind]
	if !ok {
		byID = make(map[SubscriptionID]*subscription)
		b.subs[kind] = byID
	}
	byID[sub.id] = sub
	b.kinds[sub.id] = kind
	return sub.id
}

// Off removes a subscription. Removing an unknown id is a no-op.
func (b *Bus) Off(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kind, ok := b.kinds[id]
	if !ok {
		return
	}
	delete(b.kinds, id)
	delete(b.subs[kind], id)
}

// Emit dispatches the event to every matching subscription and blocks until
// all handlers have finished. A handler that errors or panics is logged and
// never aborts its siblings or the emit itself. Relative ordering between
// independent handlers is unspecified.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.subs[event.Kind]))
	for _, sub := range b.subs[event.Kind] {
		if sub.battleID != "" && sub.battleID != event.BattleID {
			continue
		}
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		matched = append(matched, sub)
	}
	b.mu.RUnlock()

	if len(matched) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(matched))
	for _, sub := range matched {
		go func(sub *subscription) {
			defer wg.Done()
			b.dispatch(ctx, sub, event)
		}(sub)
	}
	wg.Wait()
}

// dispatch runs one handler with panic and error isolation.
func (b *Bus) dispatch(ctx context.Context, sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"kind", string(event.Kind),
				"subscription", string(sub.id),
				"panic", r)
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		b.logger.Error("event handler failed",
			"kind", string(event.Kind),
			"subscription", string(sub.id),
			"error", err.Error())
	}
}

// ClearBattle removes every subscription scoped to the given battle.
func (b *Bus) ClearBattle(battleID battle.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, byID := range b.subs {
		for id, sub := range byID {
			if sub.battleID == battleID {
				delete(byID, id)
				delete(b.kinds, id)
			}
		}
		if len(byID) == 0 {
			delete(b.subs, kind)
		}
	}
}

// SubscriptionCount reports how many handlers are registered for a kind.
func (b *Bus) SubscriptionCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}
