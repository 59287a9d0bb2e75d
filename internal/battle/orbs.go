package battle

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"lane-siege/server/internal/telemetry"
)

// OrbID identifies a defense orb within its battle.
type OrbID string

// DefenseOrb is a destructible unit occupying one grid cell in a lane,
// blocking incoming projectiles until destroyed.
type DefenseOrb struct {
	ID       OrbID
	BattleID ID
	Side     Side
	Lane     Lane
	Cell     int
	HP       float64
	MaxHP    float64
	Alive    bool
}

// OrbKey addresses the single cell an orb can occupy. Lookups by key are
// constant-time, which is what keeps per-step collision checks cheap.
type OrbKey struct {
	Side Side
	Lane Lane
	Cell int
}

// OrbSnapshot is a point-in-time copy of a battle's orbs. Holding value
// copies keeps callers from mutating store state behind the store's back.
type OrbSnapshot map[OrbKey]DefenseOrb

// Lookup returns the orb at the exact cell, if any.
func (s OrbSnapshot) Lookup(side Side, lane Lane, cell int) (DefenseOrb, bool) {
	orb, ok := s[OrbKey{Side: side, Lane: lane, Cell: cell}]
	return orb, ok
}

// OrbDamageResult reports the outcome of applying damage to one orb.
type OrbDamageResult struct {
	OrbID       OrbID
	RemainingHP float64
	Destroyed   bool
}

// OrbStore owns every battle's defense orbs. It is the sole logical writer:
// all mutation goes through ApplyDamage, Heal, and Buff so concurrently
// flying projectiles never race on orb HP.
type OrbStore struct {
	mu      sync.RWMutex
	battles map[ID]map[OrbKey]*DefenseOrb
	byID    map[OrbID]*DefenseOrb
	logger  telemetry.Logger
}

// NewOrbStore creates an empty store. A nil logger falls back to a no-op.
func NewOrbStore(logger telemetry.Logger) *OrbStore {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &OrbStore{
		battles: make(map[ID]map[OrbKey]*DefenseOrb),
		byID:    make(map[OrbID]*DefenseOrb),
		logger:  logger,
	}
}

// Spawn places a new orb at the given cell. Spawning onto a cell that still
// holds a living orb is rejected so item effects cannot silently stack units.
func (s *OrbStore) Spawn(battleID ID, side Side, lane Lane, cell int, hp float64) (DefenseOrb, error) {
	if hp <= 0 {
		return DefenseOrb{}, fmt.Errorf("orbs: spawn hp must be positive, got %v", hp)
	}
	if !ValidLane(lane) {
		return DefenseOrb{}, fmt.Errorf("orbs: unknown lane %q", lane)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cells, ok := s.battles[battleID]
	if !ok {
		cells = make(map[OrbKey]*DefenseOrb)
		s.battles[battleID] = cells
	}

	key := OrbKey{Side: side, Lane: lane, Cell: cell}
	if existing, ok := cells[key]; ok && existing.Alive {
		return DefenseOrb{}, fmt.Errorf("orbs: cell %v already occupied by %s", key, existing.ID)
	}

	orb := &DefenseOrb{
		ID:       OrbID(uuid.NewString()),
		BattleID: battleID,
		Side:     side,
		Lane:     lane,
		Cell:     cell,
		HP:       hp,
		MaxHP:    hp,
		Alive:    true,
	}
	cells[key] = orb
	s.byID[orb.ID] = orb
	return *orb, nil
}

// Snapshot returns a fresh copy of the battle's living orbs. Callers must
// re-fetch before every check; a cached snapshot is a stale one.
func (s *OrbStore) Snapshot(battleID ID) OrbSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cells := s.battles[battleID]
	snapshot := make(OrbSnapshot, len(cells))
	for key, orb := range cells {
		if !orb.Alive {
			continue
		}
		snapshot[key] = *orb
	}
	return snapshot
}

// ApplyDamage subtracts damage from one orb's HP, clamped at zero. The orb is
// marked dead exactly when HP reaches zero, and the result reports that
// transition exactly once.
func (s *OrbStore) ApplyDamage(orbID OrbID, amount float64) (OrbDamageResult, error) {
	if amount < 0 {
		return OrbDamageResult{}, fmt.Errorf("orbs: damage must be non-negative, got %v", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orb, ok := s.byID[orbID]
	if !ok {
		return OrbDamageResult{}, fmt.Errorf("orbs: unknown orb %s", orbID)
	}
	if !orb.Alive {
		return OrbDamageResult{OrbID: orbID, RemainingHP: 0, Destroyed: false}, nil
	}

	orb.HP -= amount
	if orb.HP <= 0 {
		orb.HP = 0
		orb.Alive = false
		return OrbDamageResult{OrbID: orbID, RemainingHP: 0, Destroyed: true}, nil
	}
	return OrbDamageResult{OrbID: orbID, RemainingHP: orb.HP, Destroyed: false}, nil
}

// Heal raises one orb's HP, capped at its max. Dead orbs stay dead.
func (s *OrbStore) Heal(orbID OrbID, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("orbs: heal must be non-negative, got %v", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orb, ok := s.byID[orbID]
	if !ok {
		return fmt.Errorf("orbs: unknown orb %s", orbID)
	}
	if !orb.Alive {
		return nil
	}
	orb.HP += amount
	if orb.HP > orb.MaxHP {
		orb.HP = orb.MaxHP
	}
	return nil
}

// Buff raises both HP and max HP of every living orb on the given side of a
// battle, optionally restricted to one lane (empty lane means all lanes).
func (s *OrbStore) Buff(battleID ID, side Side, lane Lane, extraHP float64) int {
	if extraHP <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buffed := 0
	for key, orb := range s.battles[battleID] {
		if !orb.Alive || key.Side != side {
			continue
		}
		if lane != "" && key.Lane != lane {
			continue
		}
		orb.MaxHP += extraHP
		orb.HP += extraHP
		buffed++
	}
	return buffed
}

// RemoveBattle drops all orb state for a finished battle.
func (s *OrbStore) RemoveBattle(battleID ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, orb := range s.battles[battleID] {
		delete(s.byID, orb.ID)
	}
	delete(s.battles, battleID)
}
