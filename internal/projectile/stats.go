package projectile

import "fmt"

// Type selects the stat block a projectile is born with.
type Type string

const (
	// TypeStandard is the default single-hit projectile.
	TypeStandard Type = "standard"
	// TypePiercing survives several defense-orb hits before expiring.
	TypePiercing Type = "piercing"
	// TypeMortar arcs over the lane and never intercepts other projectiles.
	TypeMortar Type = "mortar"
)

// Stats are the type-derived combat numbers assigned at acquisition.
type Stats struct {
	Damage     float64
	BaseSpeed  float64
	Radius     float64
	HitPoints  int
	Intercepts bool
}

var typeStats = map[Type]Stats{
	TypeStandard: {Damage: 10, BaseSpeed: 120, Radius: 6, HitPoints: 1, Intercepts: true},
	TypePiercing: {Damage: 8, BaseSpeed: 100, Radius: 5, HitPoints: 3, Intercepts: true},
	TypeMortar:   {Damage: 18, BaseSpeed: 70, Radius: 9, HitPoints: 1, Intercepts: false},
}

// StatsFor resolves the stat block for a projectile type. Unknown types fail
// loudly; there is no silent default.
func StatsFor(t Type) (Stats, error) {
	stats, ok := typeStats[t]
	if !ok {
		return Stats{}, fmt.Errorf("projectile: unknown type %q", t)
	}
	return stats, nil
}
