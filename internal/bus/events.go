package bus

import "lane-siege/server/internal/battle"

// Kind tags the battle lifecycle and combat events carried by the bus.
type Kind string

const (
	KindBattleStart          Kind = "battle-start"
	KindQuarterStart         Kind = "quarter-start"
	KindQuarterEnd           Kind = "quarter-end"
	KindProjectileFired      Kind = "projectile-fired"
	KindProjectileCollision  Kind = "projectile-collision"
	KindProjectileHitCastle  Kind = "projectile-hit-castle"
	KindDefenseOrbDestroyed  Kind = "defense-orb-destroyed"
	KindOpponentOrbDestroyed Kind = "opponent-orb-destroyed"
	KindCastleShieldHit      Kind = "castle-shield-hit"
	KindCastlePrimaryHit     Kind = "castle-primary-hit"
	KindFinalBlowStart       Kind = "final-blow-start"
)

// Kinds returns every event kind in canonical order.
func Kinds() []Kind {
	return []Kind{
		KindBattleStart,
		KindQuarterStart,
		KindQuarterEnd,
		KindProjectileFired,
		KindProjectileCollision,
		KindProjectileHitCastle,
		KindDefenseOrbDestroyed,
		KindOpponentOrbDestroyed,
		KindCastleShieldHit,
		KindCastlePrimaryHit,
		KindFinalBlowStart,
	}
}

// Event is a single battle occurrence. Events are immutable once emitted:
// handlers receive value copies and payloads are plain data structs.
type Event struct {
	Kind         Kind            `json:"kind"`
	BattleID     battle.ID       `json:"battleId"`
	Side         battle.Side     `json:"side"`
	OpponentSide battle.Side     `json:"opponentSide"`
	Quarter      battle.Quarter  `json:"quarter"`
	Payload      any             `json:"payload,omitempty"`
}

// NewEvent fills the common envelope fields, deriving OpponentSide from Side
// so the two can never drift apart.
func NewEvent(kind Kind, battleID battle.ID, side battle.Side, quarter battle.Quarter, payload any) Event {
	return Event{
		Kind:         kind,
		BattleID:     battleID,
		Side:         side,
		OpponentSide: side.Opponent(),
		Quarter:      quarter,
		Payload:      payload,
	}
}

// ProjectileFiredPayload accompanies KindProjectileFired.
type ProjectileFiredPayload struct {
	Lane         battle.Lane `json:"lane"`
	ProjectileID string      `json:"projectileId"`
	Damage       float64     `json:"damage"`
	Source       string      `json:"source"`
	ItemID       string      `json:"itemId,omitempty"`
}

// ProjectileCollisionPayload accompanies KindProjectileCollision. Each side
// receives its own perspective: ProjectileID is that side's projectile.
type ProjectileCollisionPayload struct {
	Lane                 battle.Lane `json:"lane"`
	ProjectileID         string      `json:"projectileId"`
	OpponentProjectileID string      `json:"opponentProjectileId"`
	X                    float64     `json:"x"`
}

// ProjectileHitCastlePayload accompanies KindProjectileHitCastle.
type ProjectileHitCastlePayload struct {
	Lane            battle.Lane `json:"lane"`
	ProjectileID    string      `json:"projectileId"`
	Damage          float64     `json:"damage"`
	ShieldDamage    float64     `json:"shieldDamage"`
	HPDamage        float64     `json:"hpDamage"`
	CastleDestroyed bool        `json:"castleDestroyed"`
}

// OrbDestroyedPayload accompanies both KindDefenseOrbDestroyed (emitted for
// the orb's owner) and KindOpponentOrbDestroyed (emitted for the attacker).
type OrbDestroyedPayload struct {
	Lane         battle.Lane  `json:"lane"`
	OrbID        battle.OrbID `json:"orbId"`
	Cell         int          `json:"cell"`
	ProjectileID string       `json:"projectileId"`
}

// CastleShieldHitPayload accompanies KindCastleShieldHit.
type CastleShieldHitPayload struct {
	Damage            float64 `json:"damage"`
	RemainingShieldHP float64 `json:"remainingShieldHp"`
	ShieldBroken      bool    `json:"shieldBroken"`
	Source            string  `json:"source"`
}

// CastlePrimaryHitPayload accompanies KindCastlePrimaryHit.
type CastlePrimaryHitPayload struct {
	Damage          float64 `json:"damage"`
	RemainingHP     float64 `json:"remainingHp"`
	CastleDestroyed bool    `json:"castleDestroyed"`
	Source          string  `json:"source"`
}
