package engine

import (
	"context"
	"time"

	"lane-siege/server/internal/attackqueue"
	"lane-siege/server/internal/battle"
	"lane-siege/server/internal/bus"
	"lane-siege/server/internal/castle"
	"lane-siege/server/internal/collision"
	"lane-siege/server/internal/items"
	"lane-siege/server/internal/projectile"
	"lane-siege/server/internal/stats"
	"lane-siege/server/internal/telemetry"
)

// Options configure one engine instance.
type Options struct {
	// FireInterval paces same-key launches; zero means the default 500ms.
	FireInterval time.Duration
	// FlightStep is the projectile movement cadence; zero keeps the default.
	FlightStep time.Duration
	// Layout is the zone/cell geometry collaborator. Required.
	Layout battle.Layout
	// CastleMaxHP seeds castles created by StartBattle.
	CastleMaxHP float64
	Logger      telemetry.Logger
}

// Engine owns one process-wide set of battle services. Services are explicit
// objects injected by reference; battles register into them at start and are
// torn out at end, so concurrent battles never share mutable state.
type Engine struct {
	Bus        *bus.Bus
	Castles    *castle.Manager
	Orbs       *battle.OrbStore
	Pool       *projectile.Pool
	Queue      *attackqueue.Queue
	Collisions *collision.Manager
	Recorder   *stats.Recorder
	Counters   *items.Counters
	Items      *items.Registry
	Primitives *items.Primitives
	Layout     battle.Layout

	castleMaxHP float64
	logger      telemetry.Logger
}

// New constructs and wires every service once.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	if opts.CastleMaxHP <= 0 {
		opts.CastleMaxHP = 100
	}

	events := bus.New(logger)
	castles := castle.NewManager(logger)
	orbs := battle.NewOrbStore(logger)
	pool := projectile.NewPool(logger)

	queue, err := attackqueue.New(opts.FireInterval, logger)
	if err != nil {
		return nil, err
	}

	collisions := collision.NewManager(events, opts.Layout, logger)

	recorder := stats.NewRecorder()
	recorder.Attach(events)

	counters := items.NewCounters()
	primitives := items.NewPrimitives(events, castles, orbs, queue, pool, collisions, recorder, opts.Layout, logger)
	if opts.FlightStep > 0 {
		primitives.SetFlightStep(opts.FlightStep)
	}
	primitives.Attach()

	registry := items.NewRegistry(events, counters, primitives, logger)
	items.RegisterBuiltins(registry)

	return &Engine{
		Bus:         events,
		Castles:     castles,
		Orbs:        orbs,
		Pool:        pool,
		Queue:       queue,
		Collisions:  collisions,
		Recorder:    recorder,
		Counters:    counters,
		Items:       registry,
		Primitives:  primitives,
		Layout:      opts.Layout,
		castleMaxHP: opts.CastleMaxHP,
		logger:      logger,
	}, nil
}

// StartBattle initializes both castles, installs the battle's collision
// hooks, and announces the start to both sides.
func (e *Engine) StartBattle(ctx context.Context, battleID battle.ID) {
	for _, side := range []battle.Side{battle.SideLeft, battle.SideRight} {
		e.Castles.InitializeCastle(items.CastleID(battleID, side), e.castleMaxHP, 0)
	}

	e.Collisions.RegisterBattle(battleID, collision.BattleHooks{
		Snapshot: func() battle.OrbSnapshot {
			return e.Orbs.Snapshot(battleID)
		},
		ApplyDamage: e.Orbs.ApplyDamage,
		Quarter: func() battle.Quarter {
			return e.Recorder.Quarter(battleID)
		},
	})

	e.emitPerSide(ctx, bus.KindBattleStart, battleID, 0)
}

// StartQuarter announces a new quarter to both sides.
func (e *Engine) StartQuarter(ctx context.Context, battleID battle.ID, quarter battle.Quarter) {
	e.emitPerSide(ctx, bus.KindQuarterStart, battleID, quarter)
}

// EndQuarter announces the end of a quarter to both sides.
func (e *Engine) EndQuarter(ctx context.Context, battleID battle.ID, quarter battle.Quarter) {
	e.emitPerSide(ctx, bus.KindQuarterEnd, battleID, quarter)
}

// StartFinalBlow opens the final-blow phase; banked projectiles flush into
// the attack queue as the events land.
func (e *Engine) StartFinalBlow(ctx context.Context, battleID battle.ID) {
	e.emitPerSide(ctx, bus.KindFinalBlowStart, battleID, e.Recorder.Quarter(battleID))
}

// EndBattle tears the battle out of every service.
func (e *Engine) EndBattle(battleID battle.ID) {
	e.Queue.ClearBattle(battleID)
	e.Collisions.UnregisterBattle(battleID)
	e.Items.ClearBattle(battleID)
	e.Primitives.ClearBattle(battleID)
	e.Bus.ClearBattle(battleID)
	e.Orbs.RemoveBattle(battleID)
	e.Recorder.ClearBattle(battleID)
	for _, side := range []battle.Side{battle.SideLeft, battle.SideRight} {
		e.Castles.RemoveCastle(items.CastleID(battleID, side))
	}
}

func (e *Engine) emitPerSide(ctx context.Context, kind bus.Kind, battleID battle.ID, quarter battle.Quarter) {
	for _, side := range []battle.Side{battle.SideLeft, battle.SideRight} {
		e.Bus.Emit(ctx, bus.NewEvent(kind, battleID, side, quarter, nil))
	}
}
