package items

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lane-siege/server/internal/attackqueue"
	"lane-siege/server/internal/battle"
	"lane-siege/server/internal/bus"
	"lane-siege/server/internal/castle"
	"lane-siege/server/internal/collision"
	"lane-siege/server/internal/projectile"
	"lane-siege/server/internal/stats"
	"lane-siege/server/internal/telemetry"
)

// DefaultFlightStep is the movement cadence used for projectile flights
// launched through the primitives.
const DefaultFlightStep = 16 * time.Millisecond

// CastleID derives the canonical castle id for a battle side.
func CastleID(battleID battle.ID, side battle.Side) castle.ID {
	return castle.ID(fmt.Sprintf("%s/%s", battleID, side))
}

// LaunchSpec describes one batch of projectile launches.
type LaunchSpec struct {
	Lane      battle.Lane
	Count     int
	Type      projectile.Type
	Overrides *projectile.Overrides
	Source    string
	ItemID    string
}

// Primitives are the only mutation surface item effects get. Every spawn,
// buff, shield, launch, and stat read funnels through here into the castle
// health system, the orb store, and the collision manager, so independently
// authored effects can safely touch shared state without knowing about each
// other.
type Primitives struct {
	events     *bus.Bus
	castles    *castle.Manager
	orbs       *battle.OrbStore
	queue      *attackqueue.Queue
	pool       *projectile.Pool
	collisions *collision.Manager
	recorder   *stats.Recorder
	layout     battle.Layout
	logger     telemetry.Logger

	flightStep time.Duration

	mu     sync.Mutex
	banked map[battle.ID]map[battle.Side][]LaunchSpec
	subs   []bus.SubscriptionID
}

// NewPrimitives wires the primitive surface to its collaborators.
func NewPrimitives(
	events *bus.Bus,
	castles *castle.Manager,
	orbs *battle.OrbStore,
	queue *attackqueue.Queue,
	pool *projectile.Pool,
	collisions *collision.Manager,
	recorder *stats.Recorder,
	layout battle.Layout,
	logger telemetry.Logger,
) *Primitives {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Primitives{
		events:     events,
		castles:    castles,
		orbs:       orbs,
		queue:      queue,
		pool:       pool,
		collisions: collisions,
		recorder:   recorder,
		layout:     layout,
		logger:     logger,
		flightStep: DefaultFlightStep,
		banked:     make(map[battle.ID]map[battle.Side][]LaunchSpec),
	}
}

// SetFlightStep overrides the movement cadence. Tests use short steps so
// flights resolve quickly; zero and negative values are ignored.
func (p *Primitives) SetFlightStep(step time.Duration) {
	if step > 0 {
		p.flightStep = step
	}
}

// Attach subscribes the final-blow flusher to the event stream.
func (p *Primitives) Attach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, p.events.On(bus.KindFinalBlowStart, p.onFinalBlowStart))
}

// SpawnDefenseOrb places a destructible orb in the side's defense grid.
func (p *Primitives) SpawnDefenseOrb(battleID battle.ID, side battle.Side, lane battle.Lane, cell int, hp float64) (battle.DefenseOrb, error) {
	if cell < 0 || cell >= p.layout.CellCount() {
		return battle.DefenseOrb{}, fmt.Errorf("items: cell %d outside defense grid", cell)
	}
	return p.orbs.Spawn(battleID, side, lane, cell, hp)
}

// BuffDefenseOrbs raises HP and max HP of the side's living orbs, optionally
// restricted to one lane. Returns how many orbs were touched.
func (p *Primitives) BuffDefenseOrbs(battleID battle.ID, side battle.Side, lane battle.Lane, extraHP float64) int {
	return p.orbs.Buff(battleID, side, lane, extraHP)
}

// HealDefenseOrb restores HP on one living orb, capped at its max.
func (p *Primitives) HealDefenseOrb(orbID battle.OrbID, amount float64) error {
	return p.orbs.Heal(orbID, amount)
}

// CreateShield installs a shield on the side's castle. A second activation
// while one is active is refused by the health authority.
func (p *Primitives) CreateShield(battleID battle.ID, side battle.Side, kind castle.ShieldKind, hp, threshold float64, source string) bool {
	return p.castles.ActivateShield(CastleID(battleID, side), kind, hp, threshold, source)
}

// HealShield restores shield HP on the side's castle.
func (p *Primitives) HealShield(battleID battle.ID, side battle.Side, amount float64) bool {
	return p.castles.HealShield(CastleID(battleID, side), amount)
}

// DamageShield drains the opposing shield without touching primary HP and
// publishes the shield hit.
func (p *Primitives) DamageShield(ctx context.Context, battleID battle.ID, side battle.Side, amount float64, source string) bool {
	id := CastleID(battleID, side)
	broken, ok := p.castles.DamageShield(id, amount)
	if !ok {
		return false
	}
	status, _ := p.castles.Snapshot(id)
	remaining := 0.0
	if status.Shield != nil {
		remaining = status.Shield.HP
	}
	p.events.Emit(ctx, bus.NewEvent(bus.KindCastleShieldHit, battleID, side, p.recorder.Quarter(battleID),
		bus.CastleShieldHitPayload{
			Damage:            amount,
			RemainingShieldHP: remaining,
			ShieldBroken:      broken,
			Source:            source,
		}))
	return true
}

// DamageCastle routes damage through the castle health authority
// (shield first, then primary HP) and publishes the resulting shield and
// primary hits for the defending side.
func (p *Primitives) DamageCastle(ctx context.Context, battleID battle.ID, side battle.Side, amount float64, source string) (castle.DamageResult, bool) {
	result, ok := p.castles.TakeDamage(CastleID(battleID, side), amount, source)
	if !ok {
		return result, false
	}

	quarter := p.recorder.Quarter(battleID)
	if result.ShieldDamage > 0 {
		p.events.Emit(ctx, bus.NewEvent(bus.KindCastleShieldHit, battleID, side, quarter,
			bus.CastleShieldHitPayload{
				Damage:            result.ShieldDamage,
				RemainingShieldHP: result.FinalShieldHP,
				ShieldBroken:      result.ShieldBroken,
				Source:            source,
			}))
	}
	if result.HPDamage > 0 {
		p.events.Emit(ctx, bus.NewEvent(bus.KindCastlePrimaryHit, battleID, side, quarter,
			bus.CastlePrimaryHitPayload{
				Damage:          result.HPDamage,
				RemainingHP:     result.FinalHP,
				CastleDestroyed: result.CastleDestroyed,
				Source:          source,
			}))
	}
	return result, true
}

// HealCastle restores primary HP on the side's castle, capped at max.
func (p *Primitives) HealCastle(battleID battle.ID, side battle.Side, amount float64) (float64, bool) {
	return p.castles.Heal(CastleID(battleID, side), amount)
}

// CurrentQuarterStats reads the side's aggregate for the running quarter.
func (p *Primitives) CurrentQuarterStats(battleID battle.ID, side battle.Side) stats.Aggregate {
	return p.recorder.Current(battleID, side)
}

// PreviousQuarterStats reads the side's aggregate for the quarter before the
// running one.
func (p *Primitives) PreviousQuarterStats(battleID battle.ID, side battle.Side) stats.Aggregate {
	return p.recorder.Previous(battleID, side)
}

// FireProjectiles enqueues spec.Count paced launches on the attack queue.
// Each launch acquires a pooled projectile at the side's own castle, flies it
// toward the opposing castle under per-step collision checks, applies castle
// damage on arrival, and recycles the projectile once its flight resolves.
func (p *Primitives) FireProjectiles(ctx context.Context, battleID battle.ID, side battle.Side, spec LaunchSpec) {
	if spec.Count <= 0 {
		return
	}
	if spec.Type == "" {
		spec.Type = projectile.TypeStandard
	}
	for i := 0; i < spec.Count; i++ {
		p.queue.Enqueue(battleID, side, spec.Lane, func() {
			p.launch(ctx, battleID, side, spec)
		}, spec.Source, spec.ItemID)
	}
}

// launch runs one projectile's full lifecycle. It executes fire-and-forget
// relative to the attack queue: travel and collision never delay the next
// scheduled launch.
func (p *Primitives) launch(ctx context.Context, battleID battle.ID, side battle.Side, spec LaunchSpec) {
	proj, err := p.pool.Acquire(projectile.Config{
		BattleID:  battleID,
		Lane:      spec.Lane,
		Side:      side,
		Type:      spec.Type,
		StartX:    p.layout.CastleX(side),
		TargetX:   p.layout.CastleX(side.Opponent()),
		Overrides: spec.Overrides,
	})
	if err != nil {
		p.logger.Warn("projectile launch rejected",
			"battle", string(battleID), "side", string(side), "lane", string(spec.Lane), "error", err.Error())
		return
	}

	p.collisions.RegisterProjectile(proj)

	p.events.Emit(ctx, bus.NewEvent(bus.KindProjectileFired, battleID, side, p.recorder.Quarter(battleID),
		bus.ProjectileFiredPayload{
			Lane:         spec.Lane,
			ProjectileID: proj.ID,
			Damage:       proj.Damage,
			Source:       spec.Source,
			ItemID:       spec.ItemID,
		}))

	outcome := proj.Fly(ctx, p.flightStep, p.collisions.Checker(ctx))

	if outcome == projectile.OutcomeArrived {
		defender := side.Opponent()
		result, ok := p.DamageCastle(ctx, battleID, defender, proj.Damage, spec.Source)
		if ok {
			p.events.Emit(ctx, bus.NewEvent(bus.KindProjectileHitCastle, battleID, side, p.recorder.Quarter(battleID),
				bus.ProjectileHitCastlePayload{
					Lane:            spec.Lane,
					ProjectileID:    proj.ID,
					Damage:          proj.Damage,
					ShieldDamage:    result.ShieldDamage,
					HPDamage:        result.HPDamage,
					CastleDestroyed: result.CastleDestroyed,
				}))
		}
	}

	p.collisions.UnregisterProjectile(proj)
	if err := p.pool.Release(proj); err != nil {
		p.logger.Warn("projectile release failed", "projectile", proj.ID, "error", err.Error())
	}
}

// BankFinalBlow stores launches to be released when the battle's final-blow
// phase starts.
func (p *Primitives) BankFinalBlow(battleID battle.ID, side battle.Side, spec LaunchSpec) {
	if spec.Count <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sides, ok := p.banked[battleID]
	if !ok {
		sides = make(map[battle.Side][]LaunchSpec)
		p.banked[battleID] = sides
	}
	sides[side] = append(sides[side], spec)
}

// BankedCount reports how many launches the side has banked.
func (p *Primitives) BankedCount(battleID battle.ID, side battle.Side) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, spec := range p.banked[battleID][side] {
		total += spec.Count
	}
	return total
}

// onFinalBlowStart flushes the side's banked launches into the attack queue.
func (p *Primitives) onFinalBlowStart(ctx context.Context, ev bus.Event) error {
	p.mu.Lock()
	specs := p.banked[ev.BattleID][ev.Side]
	if sides, ok := p.banked[ev.BattleID]; ok {
		delete(sides, ev.Side)
	}
	p.mu.Unlock()

	for _, spec := range specs {
		if spec.Source == "" {
			spec.Source = "final-blow"
		}
		p.FireProjectiles(ctx, ev.BattleID, ev.Side, spec)
	}
	return nil
}

// ClearBattle drops the battle's banked launches.
func (p *Primitives) ClearBattle(battleID battle.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.banked, battleID)
}
