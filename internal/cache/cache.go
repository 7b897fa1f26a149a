package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/example/facegate/internal/domain"
)

// memo is one keyed mapping: an expiring LRU in front of a single-flight
// group. Concurrent callers for the same key share one computation; a failed
// computation is never stored, so the next caller recomputes.
type memo[V any] struct {
	entries *expirable.LRU[string, V]
	group   singleflight.Group
}

func newMemo[V any](capacity int, ttl time.Duration) *memo[V] {
	return &memo[V]{entries: expirable.NewLRU[string, V](capacity, nil, ttl)}
}

func (m *memo[V]) getOrCompute(key string, compute func() (V, error)) (V, error) {
	if value, ok := m.entries.Get(key); ok {
		return value, nil
	}

	result, err, _ := m.group.Do(key, func() (interface{}, error) {
		// A previous flight may have stored the entry between our miss
		// and acquiring the flight.
		if value, ok := m.entries.Get(key); ok {
			return value, nil
		}
		value, err := compute()
		if err != nil {
			return nil, err
		}
		m.entries.Add(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

func (m *memo[V]) invalidate(key string) {
	m.entries.Remove(key)
}

// ValidationCache memoizes detection outcomes and existence checks per photo
// name. Both mappings share the TTL and capacity bound but evict
// independently. Constructed once at startup and shared by reference.
type ValidationCache struct {
	outcomes  *memo[domain.DetectionOutcome]
	existence *memo[bool]
}

// NewValidationCache builds a cache bounding each mapping to capacity entries
// with the given time-to-live.
func NewValidationCache(capacity int, ttl time.Duration) *ValidationCache {
	return &ValidationCache{
		outcomes:  newMemo[domain.DetectionOutcome](capacity, ttl),
		existence: newMemo[bool](capacity, ttl),
	}
}

// GetOrCompute returns the cached detection outcome for name, computing and
// storing it if absent. At most one compute runs per name at a time.
func (c *ValidationCache) GetOrCompute(name string, compute func() (domain.DetectionOutcome, error)) (domain.DetectionOutcome, error) {
	return c.outcomes.getOrCompute(name, compute)
}

// GetOrComputeExistence returns the cached existence result for name under
// the same single-flight and eviction rules as GetOrCompute.
func (c *ValidationCache) GetOrComputeExistence(name string, check func() (bool, error)) (bool, error) {
	return c.existence.getOrCompute(name, check)
}

// Invalidate drops name from both mappings.
func (c *ValidationCache) Invalidate(name string) {
	c.outcomes.invalidate(name)
	c.existence.invalidate(name)
}

// InvalidateExistence drops only the existence entry for name. Used after a
// successful save so Exists reflects the new record before the TTL expires.
func (c *ValidationCache) InvalidateExistence(name string) {
	c.existence.invalidate(name)
}
