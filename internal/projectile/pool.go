package projectile

import (
	"fmt"
	"sync"
	"sync/atomic"

	"lane-siege/server/internal/battle"
	"lane-siege/server/internal/telemetry"
)

// Overrides carry item-sourced stat adjustments applied at acquisition.
// Zero-valued fields keep the type defaults.
type Overrides struct {
	Damage          float64
	Speed           float64
	Radius          float64
	HitPoints       int
	SpeedMultiplier float64
}

// Config describes one acquisition.
type Config struct {
	BattleID  battle.ID
	Lane      battle.Lane
	Side      battle.Side
	Type      Type
	StartX    float64
	TargetX   float64
	Overrides *Overrides
}

// Pool recycles projectile entities so sustained lane fire does not churn
// allocations. Acquire hands out an initialized projectile; Release returns
// it to the free list once its flight has fully resolved.
type Pool struct {
	mu     sync.Mutex
	free   []*Projectile
	nextID atomic.Uint64
	logger telemetry.Logger
}

// NewPool creates an empty pool. A nil logger falls back to a no-op.
func NewPool(logger telemetry.Logger) *Pool {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Pool{logger: logger}
}

// Acquire returns a projectile initialized from the config, recycling a
// pooled one when available. Unknown lanes, sides, and types fail loudly.
func (p *Pool) Acquire(cfg Config) (*Projectile, error) {
	if !battle.ValidLane(cfg.Lane) {
		return nil, fmt.Errorf("projectile: unknown lane %q", cfg.Lane)
	}
	if !cfg.Side.Valid() {
		return nil, fmt.Errorf("projectile: unknown side %q", cfg.Side)
	}
	stats, err := StatsFor(cfg.Type)
	if err != nil {
		return nil, err
	}
	if cfg.Overrides != nil {
		if cfg.Overrides.Damage > 0 {
			stats.Damage = cfg.Overrides.Damage
		}
		if cfg.Overrides.Speed > 0 {
			stats.BaseSpeed = cfg.Overrides.Speed
		}
		if cfg.Overrides.Radius > 0 {
			stats.Radius = cfg.Overrides.Radius
		}
		if cfg.Overrides.HitPoints > 0 {
			stats.HitPoints = cfg.Overrides.HitPoints
		}
	}

	proj := p.takeFree()
	if proj == nil {
		proj = &Projectile{}
	}

	proj.ID = fmt.Sprintf("proj-%d", p.nextID.Add(1))
	proj.BattleID = cfg.BattleID
	proj.Lane = cfg.Lane
	proj.Side = cfg.Side
	proj.Type = cfg.Type
	proj.Damage = stats.Damage
	proj.Radius = stats.Radius
	proj.BaseSpeed = stats.BaseSpeed
	proj.TargetX = cfg.TargetX
	proj.Intercepts = stats.Intercepts

	proj.mu.Lock()
	proj.x = cfg.StartX
	proj.speedMultiplier = 1
	if cfg.Overrides != nil && cfg.Overrides.SpeedMultiplier > 0 {
		proj.speedMultiplier = cfg.Overrides.SpeedMultiplier
	}
	proj.hitPoints = stats.HitPoints
	proj.terminal = false
	proj.collided = false
	proj.collidedWith = CollidedNone
	proj.outcome = ""
	proj.registered = false
	proj.done = make(chan struct{})
	proj.mu.Unlock()

	return proj, nil
}

// Release resets the projectile and returns it to the free list. Releasing a
// projectile still registered with the collision manager is a usage error:
// callers must unregister first so the registry never holds recycled state.
func (p *Pool) Release(proj *Projectile) error {
	if proj == nil {
		return nil
	}
	if proj.Registered() {
		return fmt.Errorf("projectile: release of %s while still registered for collision", proj.ID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, proj)
	return nil
}

// FreeCount reports the number of pooled idle projectiles.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

func (p *Pool) takeFree() *Projectile {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return nil
	}
	proj := p.free[len(p.free)-1]
	p.free[len(p.free)-1] = nil
	p.free = p.free[:len(p.free)-1]
	return proj
}
