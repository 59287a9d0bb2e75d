package castle

import (
	"sync"
	"time"

	"lane-siege/server/internal/telemetry"
)

// ID identifies one castle. Castles are created per battle and side; the
// caller decides the naming scheme.
type ID string

// ShieldKind distinguishes the shield lifecycles item effects can install.
type ShieldKind string

const (
	ShieldStatic       ShieldKind = "static"
	ShieldQuarterFresh ShieldKind = "refresh-each-quarter"
	ShieldRegenerating ShieldKind = "regenerating"
	ShieldEmergency    ShieldKind = "emergency"
	ShieldMagic        ShieldKind = "magic"
)

// Shield is the at-most-one HP buffer absorbing castle damage before primary
// HP. Metadata is free-form item bookkeeping the health system never reads.
type Shield struct {
	Kind      ShieldKind
	HP        float64
	MaxHP     float64
	Threshold float64
	Source    string
	Metadata  map[string]any
}

// DamageRecord is one append-only history entry.
type DamageRecord struct {
	At           time.Time
	Total        float64
	ShieldDamage float64
	HPDamage     float64
	Source       string
}

// DamageResult reports how one TakeDamage call split across shield and HP.
type DamageResult struct {
	ShieldDamage    float64
	HPDamage        float64
	ShieldBroken    bool
	CastleDestroyed bool
	FinalHP         float64
	FinalShieldHP   float64
}

// Status is a read-only view of one castle.
type Status struct {
	CurrentHP float64
	MaxHP     float64
	Shield    *Shield
}

type state struct {
	currentHP float64
	maxHP     float64
	shield    *Shield
	history   []DamageRecord
}

// Manager is the sole authority for castle HP and shields. All mutation goes
// through its API; nothing else holds a reference to the underlying state.
type Manager struct {
	mu      sync.Mutex
	castles map[ID]*state
	logger  telemetry.Logger
	now     func() time.Time
}

// NewManager creates an empty manager. A nil logger falls back to a no-op.
func NewManager(logger telemetry.Logger) *Manager {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Manager{
		castles: make(map[ID]*state),
		logger:  logger,
		now:     time.Now,
	}
}

// InitializeCastle starts tracking a castle. currentHP <= 0 means "start at
// full". Re-initializing a tracked id is an idempotent no-op with a warning,
// because re-entrant setup calls from the surrounding UI are expected.
func (m *Manager) InitializeCastle(id ID, maxHP, currentHP float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.castles[id]; ok {
		m.logger.Warn("castle already initialized", "castle", string(id))
		return
	}
	if currentHP <= 0 || currentHP > maxHP {
		currentHP = maxHP
	}
	m.castles[id] = &state{currentHP: currentHP, maxHP: maxHP}
}

// ActivateShield installs a shield on the castle. A second activation while
// one is active is a no-op with a warning.
func (m *Manager) ActivateShield(id ID, kind ShieldKind, hp, threshold float64, source string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.castles[id]
	if !ok {
		m.logger.Warn("shield activation for unknown castle", "castle", string(id))
		return false
	}
	if st.shield != nil {
		m.logger.Warn("shield already active", "castle", string(id), "source", source)
		return false
	}
	st.shield = &Shield{
		Kind:      kind,
		HP:        hp,
		MaxHP:     hp,
		Threshold: threshold,
		Source:    source,
		Metadata:  make(map[string]any),
	}
	return true
}

// DeactivateShield clears any active shield.
func (m *Manager) DeactivateShield(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.castles[id]; ok {
		st.shield = nil
	}
}

// TakeDamage routes damage through the shield first, then primary HP, both
// clamped at zero, and appends a history record. The shield-before-HP order
// is a strict invariant: primary HP is only touched once the shield (if any)
// is fully depleted within this same call.
func (m *Manager) TakeDamage(id ID, amount float64, source string) (DamageResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.castles[id]
	if !ok {
		m.logger.Warn("damage for unknown castle", "castle", string(id), "amount", amount)
		return DamageResult{}, false
	}
	if amount < 0 {
		amount = 0
	}

	result := DamageResult{}
	remaining := amount

	if st.shield != nil && st.shield.HP > 0 {
		absorbed := remaining
		if absorbed > st.shield.HP {
			absorbed = st.shield.HP
		}
		st.shield.HP -= absorbed
		remaining -= absorbed
		result.ShieldDamage = absorbed
		if st.shield.HP <= 0 {
			result.ShieldBroken = true
		}
	}

	if remaining > 0 && st.currentHP > 0 {
		applied := remaining
		if applied > st.currentHP {
			applied = st.currentHP
		}
		st.currentHP -= applied
		result.HPDamage = applied
	}

	result.FinalHP = st.currentHP
	if st.shield != nil {
		result.FinalShieldHP = st.shield.HP
	}
	result.CastleDestroyed = st.currentHP <= 0

	st.history = append(st.history, DamageRecord{
		At:           m.now(),
		Total:        amount,
		ShieldDamage: result.ShieldDamage,
		HPDamage:     result.HPDamage,
		Source:       source,
	})
	return result, true
}

// Heal raises primary HP up to max. It never touches the shield.
func (m *Manager) Heal(id ID, amount float64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.castles[id]
	if !ok {
		m.logger.Warn("heal for unknown castle", "castle", string(id))
		return 0, false
	}
	if amount > 0 {
		st.currentHP += amount
		if st.currentHP > st.maxHP {
			st.currentHP = st.maxHP
		}
	}
	return st.currentHP, true
}

// DamageShield drains shield HP only, clamped at zero. Primary HP is never
// touched, even when the damage exceeds the shield. Reports whether this call
// broke the shield.
func (m *Manager) DamageShield(id ID, amount float64) (broken bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, found := m.castles[id]
	if !found || st.shield == nil || amount <= 0 {
		return false, found
	}
	st.shield.HP -= amount
	if st.shield.HP <= 0 {
		st.shield.HP = 0
		return true, true
	}
	return false, true
}

// HealShield raises shield HP up to its max.
func (m *Manager) HealShield(id ID, amount float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.castles[id]
	if !ok || st.shield == nil {
		return false
	}
	if amount > 0 {
		st.shield.HP += amount
		if st.shield.HP > st.shield.MaxHP {
			st.shield.HP = st.shield.MaxHP
		}
	}
	return true
}

// Snapshot returns a read-only copy of the castle's current state.
func (m *Manager) Snapshot(id ID) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.castles[id]
	if !ok {
		return Status{}, false
	}
	status := Status{CurrentHP: st.currentHP, MaxHP: st.maxHP}
	if st.shield != nil {
		shield := *st.shield
		status.Shield = &shield
	}
	return status, true
}

// History returns a copy of the castle's damage history.
func (m *Manager) History(id ID) []DamageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.castles[id]
	if !ok {
		return nil
	}
	history := make([]DamageRecord, len(st.history))
	copy(history, st.history)
	return history
}

// RemoveCastle releases the castle's state at battle teardown.
func (m *Manager) RemoveCastle(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.castles, id)
}
