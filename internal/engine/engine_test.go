package engine

import (
	"context"
	"testing"
	"time"

	"lane-siege/server/internal/battle"
	"lane-siege/server/internal/bus"
	"lane-siege/server/internal/items"
	"lane-siege/server/internal/projectile"
)

// newTestEngine builds an engine on a short field with millisecond pacing so
// full projectile flights resolve inside a test.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	layout, err := battle.NewGridLayout(60, 10, 2)
	if err != nil {
		t.Fatalf("NewGridLayout: %v", err)
	}
	e, err := New(Options{
		FireInterval: 2 * time.Millisecond,
		FlightStep:   time.Millisecond,
		Layout:       layout,
		CastleMaxHP:  100,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func captureEvents(e *Engine) chan bus.Event {
	captured := make(chan bus.Event, 128)
	for _, kind := range bus.Kinds() {
		e.Bus.On(kind, func(_ context.Context, ev bus.Event) error {
			select {
			case captured <- ev:
			default:
			}
			return nil
		})
	}
	return captured
}

func awaitEvent(t *testing.T, captured chan bus.Event, kind bus.Kind, timeout time.Duration) bus.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-captured:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event before timeout", kind)
		}
	}
}

func TestStartBattleInitializesBothSides(t *testing.T) {
	e := newTestEngine(t)
	captured := captureEvents(e)

	e.StartBattle(context.Background(), "b1")

	for _, side := range []battle.Side{battle.SideLeft, battle.SideRight} {
		status, ok := e.Castles.Snapshot(items.CastleID("b1", side))
		if !ok {
			t.Fatalf("castle %s not initialized", side)
		}
		if status.CurrentHP != 100 || status.MaxHP != 100 {
			t.Errorf("castle %s = %+v, want full health", side, status)
		}
	}

	sides := map[battle.Side]bool{}
	for i := 0; i < 2; i++ {
		ev := awaitEvent(t, captured, bus.KindBattleStart, time.Second)
		sides[ev.Side] = true
	}
	if !sides[battle.SideLeft] || !sides[battle.SideRight] {
		t.Errorf("battle-start sides = %v, want both", sides)
	}
}

func TestUncontestedFlightDamagesOpposingCastle(t *testing.T) {
	e := newTestEngine(t)
	captured := captureEvents(e)
	ctx := context.Background()

	e.StartBattle(ctx, "b1")
	e.StartQuarter(ctx, "b1", 1)

	e.Primitives.FireProjectiles(ctx, "b1", battle.SideLeft, items.LaunchSpec{
		Lane:      battle.LanePoints,
		Count:     1,
		Type:      projectile.TypeStandard,
		Overrides: &projectile.Overrides{Speed: 3000},
		Source:    "test",
	})

	hit := awaitEvent(t, captured, bus.KindProjectileHitCastle, 2*time.Second)
	if hit.Side != battle.SideLeft {
		t.Errorf("hit attributed to %q, want attacker side", hit.Side)
	}

	status, _ := e.Castles.Snapshot(items.CastleID("b1", battle.SideRight))
	if status.CurrentHP >= 100 {
		t.Errorf("defender hp = %v, want damaged", status.CurrentHP)
	}
	// The recorder's handler runs concurrently with the capture handler that
	// delivered the hit event, so give it a moment to settle.
	deadline := time.Now().Add(time.Second)
	got := e.Recorder.Current("b1", battle.SideLeft)
	for (got.ProjectilesFired != 1 || got.CastleDamage == 0) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
		got = e.Recorder.Current("b1", battle.SideLeft)
	}
	if got.ProjectilesFired != 1 || got.CastleDamage == 0 {
		t.Errorf("attacker aggregate = %+v", got)
	}
}

func TestCrossfireOnOneLaneCollidesMidAir(t *testing.T) {
	e := newTestEngine(t)
	captured := captureEvents(e)
	ctx := context.Background()

	e.StartBattle(ctx, "b1")
	e.StartQuarter(ctx, "b1", 1)

	spec := items.LaunchSpec{
		Lane:      battle.LanePoints,
		Count:     1,
		Type:      projectile.TypeStandard,
		Overrides: &projectile.Overrides{Speed: 1000},
	}
	e.Primitives.FireProjectiles(ctx, "b1", battle.SideLeft, spec)
	e.Primitives.FireProjectiles(ctx, "b1", battle.SideRight, spec)

	sides := map[battle.Side]int{}
	for i := 0; i < 2; i++ {
		ev := awaitEvent(t, captured, bus.KindProjectileCollision, 2*time.Second)
		sides[ev.Side]++
	}
	if sides[battle.SideLeft] != 1 || sides[battle.SideRight] != 1 {
		t.Errorf("collision events per side = %v, want one each", sides)
	}

	for _, side := range []battle.Side{battle.SideLeft, battle.SideRight} {
		status, _ := e.Castles.Snapshot(items.CastleID("b1", side))
		if status.CurrentHP != 100 {
			t.Errorf("castle %s hp = %v, want untouched", side, status.CurrentHP)
		}
	}
}

func TestDefenseOrbStopsStandardProjectile(t *testing.T) {
	e := newTestEngine(t)
	captured := captureEvents(e)
	ctx := context.Background()

	e.StartBattle(ctx, "b1")
	e.StartQuarter(ctx, "b1", 1)

	// The defending orb sits in the cell the projectile enters first.
	if _, err := e.Primitives.SpawnDefenseOrb("b1", battle.SideRight, battle.LanePoints, 1, 5); err != nil {
		t.Fatalf("SpawnDefenseOrb: %v", err)
	}

	e.Primitives.FireProjectiles(ctx, "b1", battle.SideLeft, items.LaunchSpec{
		Lane:      battle.LanePoints,
		Count:     1,
		Type:      projectile.TypeStandard,
		Overrides: &projectile.Overrides{Speed: 3000},
	})

	destroyed := awaitEvent(t, captured, bus.KindDefenseOrbDestroyed, 2*time.Second)
	if destroyed.Side != battle.SideRight {
		t.Errorf("orb destruction attributed to %q, want owner side", destroyed.Side)
	}
	awaitEvent(t, captured, bus.KindOpponentOrbDestroyed, 2*time.Second)

	status, _ := e.Castles.Snapshot(items.CastleID("b1", battle.SideRight))
	if status.CurrentHP != 100 {
		t.Errorf("defender hp = %v, want protected by orb", status.CurrentHP)
	}
}

func TestEndBattleTearsDownEveryService(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.StartBattle(ctx, "b1")
	e.StartQuarter(ctx, "b1", 1)
	if _, err := e.Primitives.SpawnDefenseOrb("b1", battle.SideLeft, battle.LanePoints, 0, 10); err != nil {
		t.Fatalf("SpawnDefenseOrb: %v", err)
	}

	e.EndBattle("b1")

	if _, ok := e.Castles.Snapshot(items.CastleID("b1", battle.SideLeft)); ok {
		t.Errorf("castle survived EndBattle")
	}
	if len(e.Orbs.Snapshot("b1")) != 0 {
		t.Errorf("orbs survived EndBattle")
	}
	if got := e.Recorder.Quarter("b1"); got != 0 {
		t.Errorf("quarter survived EndBattle: %v", got)
	}
	if got := e.Collisions.ActiveCount("b1"); got != 0 {
		t.Errorf("active projectiles after EndBattle: %d", got)
	}
}
