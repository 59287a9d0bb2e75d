package stats

import (
	"context"
	"sync"

	"lane-siege/server/internal/battle"
	"lane-siege/server/internal/bus"
)

// Aggregate is one side's combat totals for a single quarter.
type Aggregate struct {
	ProjectilesFired int
	Collisions       int
	OrbsDestroyed    int
	CastleDamage     float64
}

type aggregateKey struct {
	battleID battle.ID
	side     battle.Side
	quarter  battle.Quarter
}

// Recorder accumulates per-quarter aggregates from the event stream. Item
// effects read them through Current and Previous to implement
// "stronger during a losing quarter" style behaviors.
type Recorder struct {
	mu       sync.Mutex
	totals   map[aggregateKey]*Aggregate
	quarters map[battle.ID]battle.Quarter
	subs     []bus.SubscriptionID
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		totals:   make(map[aggregateKey]*Aggregate),
		quarters: make(map[battle.ID]battle.Quarter),
	}
}

// Attach subscribes the recorder to the battle event stream.
func (r *Recorder) Attach(events *bus.Bus) {
	r.subs = append(r.subs,
		events.On(bus.KindQuarterStart, r.onQuarterStart),
		events.On(bus.KindProjectileFired, r.count(func(a *Aggregate, _ bus.Event) {
			a.ProjectilesFired++
		})),
		events.On(bus.KindProjectileCollision, r.count(func(a *Aggregate, _ bus.Event) {
			a.Collisions++
		})),
		events.On(bus.KindOpponentOrbDestroyed, r.count(func(a *Aggregate, _ bus.Event) {
			a.OrbsDestroyed++
		})),
		events.On(bus.KindProjectileHitCastle, r.count(func(a *Aggregate, ev bus.Event) {
			if payload, ok := ev.Payload.(bus.ProjectileHitCastlePayload); ok {
				a.CastleDamage += payload.Damage
			}
		})),
	)
}

// Detach removes the recorder's subscriptions.
func (r *Recorder) Detach(events *bus.Bus) {
	for _, id := range r.subs {
		events.Off(id)
	}
	r.subs = nil
}

func (r *Recorder) onQuarterStart(_ context.Context, ev bus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Quarter > r.quarters[ev.BattleID] {
		r.quarters[ev.BattleID] = ev.Quarter
	}
	return nil
}

func (r *Recorder) count(apply func(*Aggregate, bus.Event)) bus.Handler {
	return func(_ context.Context, ev bus.Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		key := aggregateKey{battleID: ev.BattleID, side: ev.Side, quarter: ev.Quarter}
		agg, ok := r.totals[key]
		if !ok {
			agg = &Aggregate{}
			r.totals[key] = agg
		}
		apply(agg, ev)
		return nil
	}
}

// Quarter reports the battle's current quarter.
func (r *Recorder) Quarter(battleID battle.ID) battle.Quarter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quarters[battleID]
}

// Current returns the side's aggregate for the running quarter.
func (r *Recorder) Current(battleID battle.ID, side battle.Side) Aggregate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(battleID, side, r.quarters[battleID])
}

// Previous returns the side's aggregate for the quarter before the running
// one. It is zero during the first quarter.
func (r *Recorder) Previous(battleID battle.ID, side battle.Side) Aggregate {
	r.mu.Lock()
	defer r.mu.Unlock()
	quarter := r.quarters[battleID]
	if quarter <= 1 {
		return Aggregate{}
	}
	return r.lookupLocked(battleID, side, quarter-1)
}

func (r *Recorder) lookupLocked(battleID battle.ID, side battle.Side, quarter battle.Quarter) Aggregate {
	if agg, ok := r.totals[aggregateKey{battleID: battleID, side: side, quarter: quarter}]; ok {
		return *agg
	}
	return Aggregate{}
}

// ClearBattle drops the battle's accumulated totals.
func (r *Recorder) ClearBattle(battleID battle.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.totals {
		if key.battleID == battleID {
			delete(r.totals, key)
		}
	}
	delete(r.quarters, battleID)
}
