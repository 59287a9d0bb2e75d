package items

import "sync"

// Counters hold per-item-instance numeric state, keyed by instance id and a
// free-form key. They are how "every N events" triggers get implemented
// without the engine knowing anything about item semantics. Instances never
// see each other's counters.
type Counters struct {
	mu     sync.Mutex
	values map[string]map[string]float64
}

// NewCounters creates an empty counter table.
func NewCounters() *Counters {
	return &Counters{values: make(map[string]map[string]float64)}
}

// Get returns the counter value, zero when unset.
func (c *Counters) Get(instanceID, key string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[instanceID][key]
}

// Set stores the counter value.
func (c *Counters) Set(instanceID, key string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLocked(instanceID)[key] = value
}

// Increment adds delta to the counter and returns the new value.
func (c *Counters) Increment(instanceID, key string, delta float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket := c.ensureLocked(instanceID)
	bucket[key] += delta
	return bucket[key]
}

// Reset sets the counter back to zero.
func (c *Counters) Reset(instanceID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bucket, ok := c.values[instanceID]; ok {
		delete(bucket, key)
	}
}

// ClearInstance drops every counter owned by the instance.
func (c *Counters) ClearInstance(instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, instanceID)
}

func (c *Counters) ensureLocked(instanceID string) map[string]float64 {
	bucket, ok := c.values[instanceID]
	if !ok {
		bucket = make(map[string]float64)
		c.values[instanceID] = bucket
	}
	return bucket
}
