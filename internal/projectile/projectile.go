package projectile

import (
	"context"
	"sync"
	"time"

	"lane-siege/server/internal/battle"
)

// CollidedWith classifies what ended a projectile's flight.
type CollidedWith string

const (
	CollidedNone       CollidedWith = "none"
	CollidedProjectile CollidedWith = "projectile"
	CollidedDefense    CollidedWith = "defense"
)

// Outcome is the terminal result of a flight.
type Outcome string

const (
	// OutcomeArrived means the projectile reached its target position.
	OutcomeArrived Outcome = "arrived"
	// OutcomeProjectile means it was intercepted by an opposing projectile.
	OutcomeProjectile Outcome = "projectile"
	// OutcomeDefense means it spent itself against defense orbs.
	OutcomeDefense Outcome = "defense"
	// OutcomeCancelled means the flight context was cancelled externally.
	OutcomeCancelled Outcome = "cancelled"
)

// CheckFunc is invoked on every movement step with the projectile's fresh
// position. Returning true stops the flight; the checker is expected to have
// terminated the projectile itself before doing so.
type CheckFunc func(p *Projectile) bool

// Projectile is an ephemeral in-flight entity. It is owned by the pool when
// idle and by the collision registry while flying. The terminal transition
// (Terminate) is one-way and resolves the in-flight awaiter exactly once,
// even when triggered externally by an opposing projectile's resolution.
type Projectile struct {
	ID       string
	BattleID battle.ID
	Lane     battle.Lane
	Side     battle.Side
	Type     Type

	Damage    float64
	Radius    float64
	BaseSpeed float64
	TargetX   float64

	// Intercepts reports whether this type participates in
	// projectile-vs-projectile resolution.
	Intercepts bool

	mu              sync.Mutex
	x               float64
	speedMultiplier float64
	hitPoints       int
	terminal        bool
	collided        bool
	collidedWith    CollidedWith
	outcome         Outcome
	registered      bool
	done            chan struct{}
}

// X returns the current continuous position.
func (p *Projectile) X() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.x
}

// Direction is +1 for left-side projectiles (travelling toward higher x) and
// -1 for right-side ones.
func (p *Projectile) Direction() float64 {
	if p.Side == battle.SideLeft {
		return 1
	}
	return -1
}

// SpeedMultiplier returns the current item-adjustable speed factor.
func (p *Projectile) SpeedMultiplier() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speedMultiplier
}

// SetSpeedMultiplier adjusts flight speed mid-air. Values <= 0 are ignored.
func (p *Projectile) SetSpeedMultiplier(m float64) {
	if m <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speedMultiplier = m
}

// HitPoints returns the remaining multi-hit budget.
func (p *Projectile) HitPoints() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hitPoints
}

// ConsumeHitPoint decrements the multi-hit budget and reports the remainder.
func (p *Projectile) ConsumeHitPoint() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hitPoints > 0 {
		p.hitPoints--
	}
	return p.hitPoints
}

// Collided reports the terminal collision flag and its classification.
func (p *Projectile) Collided() (bool, CollidedWith) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collided, p.collidedWith
}

// Terminal reports whether the projectile has finished, for any reason.
func (p *Projectile) Terminal() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminal
}

// Outcome returns the terminal outcome. Only meaningful after Done fires.
func (p *Projectile) Outcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

// Done is closed exactly once when the projectile reaches a terminal state.
func (p *Projectile) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Terminate flips the projectile into its terminal state. The transition is
// idempotent: only the first call wins, later calls are no-ops, and the done
// channel closes exactly once so cleanup is deterministic. Collision outcomes
// also set the one-way collided flag.
func (p *Projectile) Terminate(outcome Outcome) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminal {
		return false
	}
	p.terminal = true
	p.outcome = outcome
	switch outcome {
	case OutcomeProjectile:
		p.collided = true
		p.collidedWith = CollidedProjectile
	case OutcomeDefense:
		p.collided = true
		p.collidedWith = CollidedDefense
	}
	close(p.done)
	return true
}

// SetRegistered marks whether the collision registry currently tracks this
// projectile. The pool refuses to recycle registered projectiles.
func (p *Projectile) SetRegistered(registered bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = registered
}

// Registered reports whether the collision registry still tracks this
// projectile.
func (p *Projectile) Registered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registered
}

// Fly advances the projectile toward its target at baseSpeed times the
// current multiplier, invoking check on every step. The call blocks until the
// projectile terminates: by collision (its own check or an opposing
// projectile's resolution), by arrival, or by context cancellation. Flight is
// cooperative; collision resolution within one step is never re-entered by
// this projectile's own later steps.
func (p *Projectile) Fly(ctx context.Context, step time.Duration, check CheckFunc) Outcome {
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Terminate(OutcomeCancelled)
			return p.Outcome()
		case <-p.Done():
			return p.Outcome()
		case <-ticker.C:
		}

		arrived := p.advance(step)

		if check != nil && check(p) {
			// The checker resolved a collision; it terminates the flight
			// itself. The fallback guards against a misbehaving checker so
			// the flight can never hang in a half-resolved state.
			p.Terminate(OutcomeDefense)
			return p.Outcome()
		}
		if p.Terminal() {
			return p.Outcome()
		}
		if arrived {
			p.Terminate(OutcomeArrived)
			return p.Outcome()
		}
	}
}

// advance moves one step toward the target and reports arrival. The position
// never overshoots the target.
func (p *Projectile) advance(step time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	distance := p.BaseSpeed * p.speedMultiplier * step.Seconds()
	next := p.x + p.Direction()*distance
	if p.Direction() > 0 && next >= p.TargetX {
		p.x = p.TargetX
		return true
	}
	if p.Direction() < 0 && next <= p.TargetX {
		p.x = p.TargetX
		return true
	}
	p.x = next
	return false
}
