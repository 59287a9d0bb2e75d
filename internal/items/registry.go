package items

import (
	"fmt"
	"sync"

	"lane-siege/server/internal/battle"
	"lane-siege/server/internal/bus"
	"lane-siege/server/internal/telemetry"
)

// RolledStats are the one-time randomized numeric parameters assigned to an
// item copy at acquisition. They arrive as plain input and are never
// re-rolled here.
type RolledStats map[string]float64

// Get returns the rolled value, or fallback when the stat was never rolled.
func (r RolledStats) Get(key string, fallback float64) float64 {
	if value, ok := r[key]; ok {
		return value
	}
	return fallback
}

// Instance identifies one activated item copy inside one battle.
type Instance struct {
	ItemID         string
	ItemInstanceID string
	BattleID       battle.ID
	Side           battle.Side
	Rolled         RolledStats
}

// Context is what an effect's setup function receives. It scopes event
// subscriptions and counters to the item instance and exposes the engine
// primitives, which are the only legal way for an effect to mutate shared
// battle state.
type Context struct {
	ItemInstanceID string
	BattleID       battle.ID
	Side           battle.Side
	Rolled         RolledStats
	Engine         *Primitives

	events   *bus.Bus
	counters *Counters
	subs     []bus.SubscriptionID
}

// On subscribes a handler to the event stream, scoped to the context's
// battle so ClearBattle tears it down with everything else.
func (c *Context) On(kind bus.Kind, handler bus.Handler, opts ...bus.SubscribeOption) bus.SubscriptionID {
	opts = append(opts, bus.WithBattle(c.BattleID))
	id := c.events.On(kind, handler, opts...)
	c.subs = append(c.subs, id)
	return id
}

// GetCounter reads one of the instance's counters.
func (c *Context) GetCounter(key string) float64 {
	return c.counters.Get(c.ItemInstanceID, key)
}

// SetCounter stores one of the instance's counters.
func (c *Context) SetCounter(key string, value float64) {
	c.counters.Set(c.ItemInstanceID, key, value)
}

// IncrementCounter adds delta to a counter and returns the new value.
func (c *Context) IncrementCounter(key string, delta float64) float64 {
	return c.counters.Increment(c.ItemInstanceID, key, delta)
}

// ResetCounter sets a counter back to zero.
func (c *Context) ResetCounter(key string) {
	c.counters.Reset(c.ItemInstanceID, key)
}

// SetupFunc wires one item instance's behavior. It is expected only to
// subscribe to events through the context; the engine assumes nothing else.
type SetupFunc func(ctx *Context)

// Registry stores effect factories by item id and activates them per item
// instance. Two independently authored effects never need mutual awareness:
// whatever shared orb, shield, or HP state they touch is reached exclusively
// through the engine primitives.
type Registry struct {
	mu        sync.Mutex
	setups    map[string]SetupFunc
	instances map[string]*Context

	events     *bus.Bus
	counters   *Counters
	primitives *Primitives
	logger     telemetry.Logger
}

// NewRegistry wires the registry to the bus, counters, and primitives.
func NewRegistry(events *bus.Bus, counters *Counters, primitives *Primitives, logger telemetry.Logger) *Registry {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Registry{
		setups:     make(map[string]SetupFunc),
		instances:  make(map[string]*Context),
		events:     events,
		counters:   counters,
		primitives: primitives,
		logger:     logger,
	}
}

// RegisterEffect stores the setup factory for an item id. Re-registering
// replaces the previous factory.
func (r *Registry) RegisterEffect(itemID string, setup SetupFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setups[itemID] = setup
}

// Activate builds the runtime context for an item instance and runs its
// setup. Activating an unregistered item id is an error; activating the same
// instance twice is an idempotent no-op with a warning.
func (r *Registry) Activate(instance Instance) error {
	r.mu.Lock()
	setup, ok := r.setups[instance.ItemID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("items: no effect registered for item %q", instance.ItemID)
	}
	if _, exists := r.instances[instance.ItemInstanceID]; exists {
		r.mu.Unlock()
		r.logger.Warn("item instance already active", "instance", instance.ItemInstanceID)
		return nil
	}

	ctx := &Context{
		ItemInstanceID: instance.ItemInstanceID,
		BattleID:       instance.BattleID,
		Side:           instance.Side,
		Rolled:         instance.Rolled,
		Engine:         r.primitives,
		events:         r.events,
		counters:       r.counters,
	}
	r.instances[instance.ItemInstanceID] = ctx
	r.mu.Unlock()

	setup(ctx)
	return nil
}

// ActiveInstances reports how many item instances are live for a battle.
func (r *Registry) ActiveInstances(battleID battle.ID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, ctx := range r.instances {
		if ctx.BattleID == battleID {
			count++
		}
	}
	return count
}

// ClearBattle deactivates every instance of a battle: subscriptions are
// removed and counters dropped.
func (r *Registry) ClearBattle(battleID battle.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ctx := range r.instances {
		if ctx.BattleID != battleID {
			continue
		}
		for _, sub := range ctx.subs {
			r.events.Off(sub)
		}
		r.counters.ClearInstance(id)
		delete(r.instances, id)
	}
}
