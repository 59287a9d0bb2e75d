package collision

import (
	"context"
	"sync"
	"testing"
	"time"

	"lane-siege/server/internal/battle"
	"lane-siege/server/internal/bus"
	"lane-siege/server/internal/projectile"
)

type eventCapture struct {
	mu     sync.Mutex
	events []bus.Event
}

func (c *eventCapture) attach(b *bus.Bus, kinds ...bus.Kind) {
	for _, kind := range kinds {
		b.On(kind, func(_ context.Context, ev bus.Event) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.events = append(c.events, ev)
			return nil
		})
	}
}

func (c *eventCapture) byKind(kind bus.Kind) []bus.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []bus.Event
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

type rig struct {
	manager *Manager
	events  *bus.Bus
	orbs    *battle.OrbStore
	pool    *projectile.Pool
	capture *eventCapture
}

func newRig(t *testing.T) *rig {
	t.Helper()
	layout, err := battle.NewGridLayout(1000, 250, 5)
	if err != nil {
		t.Fatalf("NewGridLayout: %v", err)
	}

	events := bus.New(nil)
	orbs := battle.NewOrbStore(nil)
	manager := NewManager(events, layout, nil)
	manager.RegisterBattle("b1", BattleHooks{
		Snapshot:    func() battle.OrbSnapshot { return orbs.Snapshot("b1") },
		ApplyDamage: orbs.ApplyDamage,
		Quarter:     func() battle.Quarter { return 1 },
	})

	capture := &eventCapture{}
	capture.attach(events,
		bus.KindProjectileCollision,
		bus.KindDefenseOrbDestroyed,
		bus.KindOpponentOrbDestroyed,
	)

	return &rig{
		manager: manager,
		events:  events,
		orbs:    orbs,
		pool:    projectile.NewPool(nil),
		capture: capture,
	}
}

func (r *rig) acquire(t *testing.T, side battle.Side, ptype projectile.Type, x float64, overrides *projectile.Overrides) *projectile.Projectile {
	t.Helper()
	target := 1000.0
	if side == battle.SideRight {
		target = 0
	}
	proj, err := r.pool.Acquire(projectile.Config{
		BattleID:  "b1",
		Lane:      battle.LanePoints,
		Side:      side,
		Type:      ptype,
		StartX:    x,
		TargetX:   target,
		Overrides: overrides,
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	r.manager.RegisterProjectile(proj)
	return proj
}

func TestOpposingProjectilesCollideOnPathCrossing(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	left := r.acquire(t, battle.SideLeft, projectile.TypeStandard, 510, nil)
	right := r.acquire(t, battle.SideRight, projectile.TypeStandard, 500, nil)

	if !r.manager.Check(ctx, left) {
		t.Fatalf("crossed projectiles did not collide")
	}

	for name, proj := range map[string]*projectile.Projectile{"left": left, "right": right} {
		collided, with := proj.Collided()
		if !collided || with != projectile.CollidedProjectile {
			t.Errorf("%s projectile state = %v %v", name, collided, with)
		}
		if !proj.Terminal() {
			t.Errorf("%s projectile not terminal", name)
		}
	}

	collisions := r.capture.byKind(bus.KindProjectileCollision)
	if len(collisions) != 2 {
		t.Fatalf("collision events = %d, want exactly 2", len(collisions))
	}
	bySide := map[battle.Side]bus.ProjectileCollisionPayload{}
	for _, ev := range collisions {
		bySide[ev.Side] = ev.Payload.(bus.ProjectileCollisionPayload)
	}
	if bySide[battle.SideLeft].ProjectileID != left.ID || bySide[battle.SideLeft].OpponentProjectileID != right.ID {
		t.Errorf("left perspective = %+v", bySide[battle.SideLeft])
	}
	if bySide[battle.SideRight].ProjectileID != right.ID || bySide[battle.SideRight].OpponentProjectileID != left.ID {
		t.Errorf("right perspective = %+v", bySide[battle.SideRight])
	}
}

func TestOpposingProjectilesCollideOnProximity(t *testing.T) {
	r := newRig(t)

	// Not crossed yet, but within combined radii (6+6).
	left := r.acquire(t, battle.SideLeft, projectile.TypeStandard, 490, nil)
	right := r.acquire(t, battle.SideRight, projectile.TypeStandard, 500, nil)

	if !r.manager.Check(context.Background(), left) {
		t.Fatalf("proximate projectiles did not collide")
	}
	if !right.Terminal() {
		t.Fatalf("opposing projectile left in flight")
	}
}

func TestMortarNeverIntercepts(t *testing.T) {
	r := newRig(t)

	mortar := r.acquire(t, battle.SideLeft, projectile.TypeMortar, 510, nil)
	r.acquire(t, battle.SideRight, projectile.TypeStandard, 500, nil)

	if r.manager.Check(context.Background(), mortar) {
		t.Fatalf("mortar intercepted a projectile")
	}
	if len(r.capture.byKind(bus.KindProjectileCollision)) != 0 {
		t.Fatalf("mortar produced collision events")
	}
}

func TestProjectileCollisionWinsOverOrb(t *testing.T) {
	r := newRig(t)
	orb, _ := r.orbs.Spawn("b1", battle.SideRight, battle.LanePoints, 0, 50)

	// Deep inside the right defense zone at cell 0, with an opposing
	// projectile overlapping the same spot.
	left := r.acquire(t, battle.SideLeft, projectile.TypeStandard, 990, nil)
	r.acquire(t, battle.SideRight, projectile.TypeStandard, 985, nil)

	if !r.manager.Check(context.Background(), left) {
		t.Fatalf("no collision resolved")
	}

	if _, with := left.Collided(); with != projectile.CollidedProjectile {
		t.Fatalf("collidedWith = %v, want projectile (priority)", with)
	}
	snapshot := r.orbs.Snapshot("b1")
	if got, ok := snapshot.Lookup(battle.SideRight, battle.LanePoints, 0); !ok || got.HP != 50 {
		t.Fatalf("orb %s touched despite projectile-collision priority: %+v", orb.ID, got)
	}
}

func TestOrbDestructionEmitsExactlyOnePairOfEvents(t *testing.T) {
	r := newRig(t)
	orb, _ := r.orbs.Spawn("b1", battle.SideRight, battle.LanePoints, 0, 10)

	left := r.acquire(t, battle.SideLeft, projectile.TypeStandard, 990, nil)

	if !r.manager.Check(context.Background(), left) {
		t.Fatalf("orb hit did not stop the projectile")
	}
	if _, with := left.Collided(); with != projectile.CollidedDefense {
		t.Fatalf("collidedWith = %v, want defense", with)
	}

	owner := r.capture.byKind(bus.KindDefenseOrbDestroyed)
	attacker := r.capture.byKind(bus.KindOpponentOrbDestroyed)
	if len(owner) != 1 || len(attacker) != 1 {
		t.Fatalf("destroyed events = %d owner / %d attacker, want 1/1", len(owner), len(attacker))
	}
	if owner[0].Side != battle.SideRight {
		t.Errorf("owner event side = %q, want right", owner[0].Side)
	}
	if attacker[0].Side != battle.SideLeft {
		t.Errorf("attacker event side = %q, want left", attacker[0].Side)
	}
	payload := owner[0].Payload.(bus.OrbDestroyedPayload)
	if payload.OrbID != orb.ID || payload.Cell != 0 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestSurvivingOrbBlocksProjectileWithoutDestructionEvents(t *testing.T) {
	r := newRig(t)
	orb, _ := r.orbs.Spawn("b1", battle.SideRight, battle.LanePoints, 0, 100)

	left := r.acquire(t, battle.SideLeft, projectile.TypeStandard, 990, nil)
	if !r.manager.Check(context.Background(), left) {
		t.Fatalf("blocked projectile kept flying")
	}

	if len(r.capture.byKind(bus.KindDefenseOrbDestroyed)) != 0 {
		t.Fatalf("surviving orb reported destroyed")
	}
	snapshot := r.orbs.Snapshot("b1")
	if got, _ := snapshot.Lookup(battle.SideRight, battle.LanePoints, 0); got.HP != 90 {
		t.Fatalf("orb %s hp = %v, want 90", orb.ID, got.HP)
	}
}

func TestPiercingProjectileSpendsHitPointsAcrossOrbs(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	piercing := r.acquire(t, battle.SideLeft, projectile.TypePiercing, 990,
		&projectile.Overrides{Damage: 10, HitPoints: 2})

	r.orbs.Spawn("b1", battle.SideRight, battle.LanePoints, 0, 10)
	if r.manager.Check(ctx, piercing) {
		t.Fatalf("piercing projectile stopped on its first kill")
	}
	if piercing.Terminal() {
		t.Fatalf("piercing projectile terminal after first kill")
	}
	if piercing.HitPoints() != 1 {
		t.Fatalf("hit points = %d, want 1", piercing.HitPoints())
	}

	// The cell is empty now; the next orb spends the final hit point.
	r.orbs.Spawn("b1", battle.SideRight, battle.LanePoints, 0, 10)
	if !r.manager.Check(ctx, piercing) {
		t.Fatalf("exhausted projectile kept flying")
	}
	if _, with := piercing.Collided(); with != projectile.CollidedDefense {
		t.Fatalf("collidedWith = %v, want defense", with)
	}

	if destroyed := r.capture.byKind(bus.KindDefenseOrbDestroyed); len(destroyed) != 2 {
		t.Fatalf("destroyed events = %d, want 2 (one per orb)", len(destroyed))
	}
}

func TestOrbStateIsReadFreshEveryCheck(t *testing.T) {
	r := newRig(t)
	orb, _ := r.orbs.Spawn("b1", battle.SideRight, battle.LanePoints, 0, 10)

	left := r.acquire(t, battle.SideLeft, projectile.TypeStandard, 990, nil)

	// Another flight kills the orb between this projectile's steps.
	if result, _ := r.orbs.ApplyDamage(orb.ID, 10); !result.Destroyed {
		t.Fatalf("setup kill failed")
	}

	if r.manager.Check(context.Background(), left) {
		t.Fatalf("projectile collided with an orb that died between steps")
	}
	if left.Terminal() {
		t.Fatalf("projectile terminal without a collision")
	}
}

func TestMissingBattleHooksDegradeToNoCollision(t *testing.T) {
	layout, _ := battle.NewGridLayout(1000, 250, 5)
	logged := &captureLogger{}
	manager := NewManager(bus.New(nil), layout, logged)
	pool := projectile.NewPool(nil)

	proj, err := pool.Acquire(projectile.Config{
		BattleID: "unregistered",
		Lane:     battle.LanePoints,
		Side:     battle.SideLeft,
		Type:     projectile.TypeStandard,
		StartX:   990,
		TargetX:  1000,
	})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	manager.RegisterProjectile(proj)

	if manager.Check(context.Background(), proj) {
		t.Fatalf("unregistered battle produced a collision")
	}
	if logged.warnings() == 0 {
		t.Fatalf("missing hooks not logged")
	}
}

func TestUnregisterBattleClearsRegisteredFlags(t *testing.T) {
	r := newRig(t)
	proj := r.acquire(t, battle.SideLeft, projectile.TypeStandard, 100, nil)

	if !proj.Registered() {
		t.Fatalf("projectile not registered")
	}
	r.manager.UnregisterBattle("b1")
	if proj.Registered() {
		t.Fatalf("projectile stuck registered after battle teardown")
	}
	if r.manager.ActiveCount("b1") != 0 {
		t.Fatalf("active set survived teardown")
	}
}

func TestUnregisterBattleCancelsInFlightProjectiles(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	// Slow flight far from anything to hit; without cancellation it would
	// keep stepping long after the battle is gone.
	proj := r.acquire(t, battle.SideLeft, projectile.TypeStandard, 100,
		&projectile.Overrides{Speed: 1})

	outcome := make(chan projectile.Outcome, 1)
	go func() {
		outcome <- proj.Fly(ctx, time.Millisecond, r.manager.Checker(ctx))
	}()

	r.manager.UnregisterBattle("b1")

	select {
	case got := <-outcome:
		if got != projectile.OutcomeCancelled {
			t.Fatalf("outcome = %v, want cancelled", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("flight survived battle teardown")
	}
	if !proj.Terminal() {
		t.Fatalf("projectile not terminal after teardown")
	}
}

type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}
func (l *captureLogger) Error(string, ...any) {}

func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *captureLogger) warnings() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}
