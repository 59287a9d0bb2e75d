package items

import (
	"context"

	"lane-siege/server/internal/battle"
	"lane-siege/server/internal/bus"
	"lane-siege/server/internal/castle"
	"lane-siege/server/internal/projectile"
)

// Built-in item ids. Third-party effects register alongside these through
// the same Registry API; nothing here is special-cased by the engine.
const (
	ItemOrbBulwark       = "orb-bulwark"
	ItemShieldStriker    = "shield-striker"
	ItemEmergencyAegis   = "emergency-aegis"
	ItemFinalBlowHoarder = "final-blow-hoarder"
)

// RegisterBuiltins installs the stock item effects. They double as the
// reference for effect authors: subscribe in setup, count occurrences with
// instance counters, and mutate battle state only through ctx.Engine.
func RegisterBuiltins(r *Registry) {
	r.RegisterEffect(ItemOrbBulwark, setupOrbBulwark)
	r.RegisterEffect(ItemShieldStriker, setupShieldStriker)
	r.RegisterEffect(ItemEmergencyAegis, setupEmergencyAegis)
	r.RegisterEffect(ItemFinalBlowHoarder, setupFinalBlowHoarder)
}

// setupOrbBulwark lines the owner's points lane with fresh defense orbs at
// the start of every quarter. Already-occupied cells are skipped by the orb
// store, so re-spawning over survivors is harmless.
func setupOrbBulwark(ctx *Context) {
	hp := ctx.Rolled.Get("orbHp", 20)
	cells := int(ctx.Rolled.Get("orbCells", 3))

	ctx.On(bus.KindQuarterStart, func(_ context.Context, ev bus.Event) error {
		for cell := 0; cell < cells; cell++ {
			if _, err := ctx.Engine.SpawnDefenseOrb(ev.BattleID, ctx.Side, battle.LanePoints, cell, hp); err != nil {
				continue
			}
		}
		return nil
	})
}

// setupShieldStriker drains the opposing shield after every N projectiles the
// owner fires on the rolled lane.
func setupShieldStriker(ctx *Context) {
	threshold := ctx.Rolled.Get("threshold", 5)
	damage := ctx.Rolled.Get("strikeDamage", 12)
	lane := battle.LanePoints

	ctx.On(bus.KindProjectileFired, func(eventCtx context.Context, ev bus.Event) error {
		payload, ok := ev.Payload.(bus.ProjectileFiredPayload)
		if !ok || ev.Side != ctx.Side || payload.Lane != lane {
			return nil
		}
		if ctx.IncrementCounter("fired", 1) < threshold {
			return nil
		}
		ctx.ResetCounter("fired")
		ctx.Engine.DamageShield(eventCtx, ev.BattleID, ctx.Side.Opponent(), damage, ItemShieldStriker)
		return nil
	})
}

// setupEmergencyAegis raises a one-shot emergency shield the first time the
// owner's castle drops to the rolled HP threshold.
func setupEmergencyAegis(ctx *Context) {
	threshold := ctx.Rolled.Get("hpThreshold", 30)
	shieldHP := ctx.Rolled.Get("shieldHp", 40)

	ctx.On(bus.KindCastlePrimaryHit, func(_ context.Context, ev bus.Event) error {
		payload, ok := ev.Payload.(bus.CastlePrimaryHitPayload)
		if !ok || ev.Side != ctx.Side {
			return nil
		}
		if payload.RemainingHP > threshold || ctx.GetCounter("activated") > 0 {
			return nil
		}
		if ctx.Engine.CreateShield(ev.BattleID, ctx.Side, castle.ShieldEmergency, shieldHP, threshold, ItemEmergencyAegis) {
			ctx.SetCounter("activated", 1)
		}
		return nil
	})
}

// setupFinalBlowHoarder banks one extra projectile for the final-blow phase
// after every M projectiles the owner fires, anywhere.
func setupFinalBlowHoarder(ctx *Context) {
	every := ctx.Rolled.Get("every", 4)

	ctx.On(bus.KindProjectileFired, func(_ context.Context, ev bus.Event) error {
		payload, ok := ev.Payload.(bus.ProjectileFiredPayload)
		if !ok || ev.Side != ctx.Side {
			return nil
		}
		if ctx.IncrementCounter("hoard", 1) < every {
			return nil
		}
		ctx.ResetCounter("hoard")
		ctx.Engine.BankFinalBlow(ev.BattleID, ctx.Side, LaunchSpec{
			Lane:   payload.Lane,
			Count:  1,
			Type:   projectile.TypeStandard,
			Source: "final-blow",
			ItemID: ItemFinalBlowHoarder,
		})
		return nil
	})
}
