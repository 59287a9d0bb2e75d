package collision

import (
	"context"
	"math"
	"sync"

	"lane-siege/server/internal/battle"
	"lane-siege/server/internal/bus"
	"lane-siege/server/internal/projectile"
	"lane-siege/server/internal/telemetry"
)

// SnapshotFunc returns a fresh copy of a battle's living defense orbs. The
// manager calls it on every single check and never caches the result: a
// different concurrently-flying projectile may have mutated orb state between
// two checks of the same flight.
type SnapshotFunc func() battle.OrbSnapshot

// DamageFunc applies projectile damage to one orb and reports the outcome.
// It is the sole write path into the orb store.
type DamageFunc func(orbID battle.OrbID, amount float64) (battle.OrbDamageResult, error)

// BattleHooks bundles the per-battle callbacks the manager depends on.
// Quarter is optional and only feeds event envelopes.
type BattleHooks struct {
	Snapshot    SnapshotFunc
	ApplyDamage DamageFunc
	Quarter     func() battle.Quarter
}

// Manager is the per-battle authority resolving what each projectile
// intersects on every movement step, in strict priority order:
// projectile-vs-projectile first, then projectile-vs-defense-orb, then
// nothing. Misconfigured battles degrade to "no collision" with a warning;
// the simulation keeps advancing.
type Manager struct {
	mu     sync.Mutex
	hooks  map[battle.ID]BattleHooks
	active map[battle.ID]map[string]*projectile.Projectile
	layout battle.Layout
	events *bus.Bus
	logger telemetry.Logger
}

// NewManager wires the manager to the event bus and layout collaborator.
func NewManager(events *bus.Bus, layout battle.Layout, logger telemetry.Logger) *Manager {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Manager{
		hooks:  make(map[battle.ID]BattleHooks),
		active: make(map[battle.ID]map[string]*projectile.Projectile),
		layout: layout,
		events: events,
		logger: logger,
	}
}

// RegisterBattle installs the battle's snapshot and damage callbacks.
func (m *Manager) RegisterBattle(battleID battle.ID, hooks BattleHooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[battleID] = hooks
	if _, ok := m.active[battleID]; !ok {
		m.active[battleID] = make(map[string]*projectile.Projectile)
	}
}

// UnregisterBattle removes the battle's callbacks and cancels its remaining
// registered projectiles. Terminating them resolves every in-flight Fly loop
// immediately, so teardown never leaves flights stepping against a battle
// that no longer has hooks.
func (m *Manager) UnregisterBattle(battleID battle.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.active[battleID] {
		p.Terminate(projectile.OutcomeCancelled)
		p.SetRegistered(false)
	}
	delete(m.active, battleID)
	delete(m.hooks, battleID)
}

// RegisterProjectile adds a projectile to the battle's active set.
func (m *Manager) RegisterProjectile(p *projectile.Projectile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.active[p.BattleID]
	if !ok {
		set = make(map[string]*projectile.Projectile)
		m.active[p.BattleID] = set
	}
	set[p.ID] = p
	p.SetRegistered(true)
}

// UnregisterProjectile removes a projectile from the active set. Callers must
// do this before releasing the projectile back to the pool.
func (m *Manager) UnregisterProjectile(p *projectile.Projectile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.active[p.BattleID]; ok {
		delete(set, p.ID)
	}
	p.SetRegistered(false)
}

// ActiveCount reports the number of registered projectiles for a battle.
func (m *Manager) ActiveCount(battleID battle.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active[battleID])
}

// Checker adapts Check into the per-step callback a projectile flight wants.
func (m *Manager) Checker(ctx context.Context) projectile.CheckFunc {
	return func(p *projectile.Projectile) bool {
		return m.Check(ctx, p)
	}
}

// Check resolves one movement step for the projectile. It returns true when
// the projectile's flight must stop. State resolution happens under the
// manager lock so a projectile pair is resolved exactly once; events are
// emitted after the lock is released because handlers may legally re-enter
// the manager.
func (m *Manager) Check(ctx context.Context, p *projectile.Projectile) bool {
	if p.Terminal() {
		return true
	}

	m.mu.Lock()
	hooks, ok := m.hooks[p.BattleID]
	if !ok || hooks.Snapshot == nil || hooks.ApplyDamage == nil {
		m.mu.Unlock()
		m.logger.Warn("collision check without battle hooks",
			"battle", string(p.BattleID), "projectile", p.ID)
		return false
	}
	quarter := battle.Quarter(0)
	if hooks.Quarter != nil {
		quarter = hooks.Quarter()
	}

	// Priority 1: projectile-vs-projectile.
	if other := m.findInterceptLocked(p); other != nil {
		p.Terminate(projectile.OutcomeProjectile)
		other.Terminate(projectile.OutcomeProjectile)
		x := p.X()
		m.mu.Unlock()

		m.emitCollisionPair(ctx, p, other, quarter, x)
		return true
	}

	// Priority 2: projectile-vs-defense-orb, only inside the opposing zone.
	defender := p.Side.Opponent()
	x := p.X()
	if !m.layout.InZone(defender, x) {
		m.mu.Unlock()
		return false
	}
	cell, ok := m.layout.CellIndex(defender, x)
	if !ok {
		m.mu.Unlock()
		return false
	}

	// Orb state is read through a fresh snapshot on every check, never
	// cached across this projectile's own steps.
	orb, ok := hooks.Snapshot().Lookup(defender, p.Lane, cell)
	if !ok || !orb.Alive {
		m.mu.Unlock()
		return false
	}

	result, err := hooks.ApplyDamage(orb.ID, p.Damage)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("orb damage apply failed",
			"battle", string(p.BattleID), "orb", string(orb.ID), "error", err.Error())
		return false
	}

	// A projectile flies on only while it both has hit points left and broke
	// through the orb; a surviving orb blocks it regardless of budget.
	remaining := p.ConsumeHitPoint()
	stopped := remaining <= 0 || !result.Destroyed
	if stopped {
		p.Terminate(projectile.OutcomeDefense)
	}
	m.mu.Unlock()

	if result.Destroyed {
		m.emitOrbDestroyed(ctx, p, orb, quarter)
	}
	return stopped
}

// findInterceptLocked searches the battle's active, not-yet-terminal
// projectiles for an opposing one on the same lane that either crossed paths
// with p or sits within collision range. Mortar-style types never intercept.
func (m *Manager) findInterceptLocked(p *projectile.Projectile) *projectile.Projectile {
	if !p.Intercepts {
		return nil
	}
	px := p.X()
	for _, other := range m.active[p.BattleID] {
		if other.ID == p.ID || other.Lane != p.Lane || other.Side != p.Side.Opponent() {
			continue
		}
		if !other.Intercepts || other.Terminal() {
			continue
		}
		ox := other.X()

		// Path crossing: the left-side projectile has passed the right-side
		// one along the direction of travel.
		var leftX, rightX float64
		if p.Side == battle.SideLeft {
			leftX, rightX = px, ox
		} else {
			leftX, rightX = ox, px
		}
		crossed := leftX >= rightX
		proximate := math.Abs(px-ox) <= p.Radius+other.Radius
		if crossed || proximate {
			return other
		}
	}
	return nil
}

// emitCollisionPair publishes one collision event per side with symmetric,
// perspective-swapped fields.
func (m *Manager) emitCollisionPair(ctx context.Context, p, other *projectile.Projectile, quarter battle.Quarter, x float64) {
	m.events.Emit(ctx, bus.NewEvent(bus.KindProjectileCollision, p.BattleID, p.Side, quarter,
		bus.ProjectileCollisionPayload{
			Lane:                 p.Lane,
			ProjectileID:         p.ID,
			OpponentProjectileID: other.ID,
			X:                    x,
		}))
	m.events.Emit(ctx, bus.NewEvent(bus.KindProjectileCollision, other.BattleID, other.Side, quarter,
		bus.ProjectileCollisionPayload{
			Lane:                 other.Lane,
			ProjectileID:         other.ID,
			OpponentProjectileID: p.ID,
			X:                    x,
		}))
}

// emitOrbDestroyed publishes the single destruction as exactly one event for
// the orb's owner and exactly one for the attacker.
func (m *Manager) emitOrbDestroyed(ctx context.Context, p *projectile.Projectile, orb battle.DefenseOrb, quarter battle.Quarter) {
	payload := bus.OrbDestroyedPayload{
		Lane:         p.Lane,
		OrbID:        orb.ID,
		Cell:         orb.Cell,
		ProjectileID: p.ID,
	}
	m.events.Emit(ctx, bus.NewEvent(bus.KindDefenseOrbDestroyed, p.BattleID, orb.Side, quarter, payload))
	m.events.Emit(ctx, bus.NewEvent(bus.KindOpponentOrbDestroyed, p.BattleID, p.Side, quarter, payload))
}
