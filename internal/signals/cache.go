// Package signals caches the external (jam factor, weather) pair per group.
package signals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/parkpulse/parking-pricing/internal/parking"
)

// DefaultTTL is how long a fetched signal pair stays fresh.
const DefaultTTL = 5 * time.Minute

// FailurePolicy decides what a provider failure does to the enclosing
// price computation for a group.
type FailurePolicy string

const (
	// PolicyFail propagates the provider error; the group's quotes are
	// aborted for this pass.
	PolicyFail FailurePolicy = "fail"
	// PolicyFallback substitutes a zero-value signal and carries on.
	PolicyFallback FailurePolicy = "fallback"
)

// ParsePolicy maps a config string onto a FailurePolicy, defaulting unknown
// values to def.
func ParsePolicy(s string, def FailurePolicy) FailurePolicy {
	switch FailurePolicy(s) {
	case PolicyFail, PolicyFallback:
		return FailurePolicy(s)
	}
	return def
}

// Cache is a TTL cache over the two signal providers, keyed by group id.
// Entries are only ever overwritten, never evicted; memory grows with the
// number of distinct groups, which is bounded by geography in practice.
type Cache struct {
	weather parking.WeatherProvider
	traffic parking.TrafficProvider

	ttl   time.Duration
	clock parking.Clock

	weatherPolicy FailurePolicy
	trafficPolicy FailurePolicy

	mu      sync.RWMutex
	entries map[string]parking.CachedSignal

	flight singleflight.Group
}

// Option customises a Cache.
type Option func(*Cache)

// WithTTL overrides the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects a clock, for tests.
func WithClock(clock parking.Clock) Option {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithPolicies sets the per-signal failure policies.
func WithPolicies(weather, traffic FailurePolicy) Option {
	return func(c *Cache) {
		c.weatherPolicy = weather
		c.trafficPolicy = traffic
	}
}

// NewCache creates a signal cache. Default policies reproduce the historical
// asymmetry (weather hard-fails, traffic falls back to jam factor 0); both
// are configurable so the asymmetry can be resolved in deployment.
func NewCache(weather parking.WeatherProvider, traffic parking.TrafficProvider, opts ...Option) *Cache {
	c := &Cache{
		weather:       weather,
		traffic:       traffic,
		ttl:           DefaultTTL,
		clock:         parking.SystemClock,
		weatherPolicy: PolicyFail,
		trafficPolicy: PolicyFallback,
		entries:       make(map[string]parking.CachedSignal),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrFetch returns the cached signal pair for a group if it is still
// fresh; otherwise it fetches weather and traffic concurrently, stores the
// pair, and returns it. Concurrent callers racing on the same missing or
// expired key share a single in-flight fetch.
func (c *Cache) GetOrFetch(ctx context.Context, groupID string, center parking.Coordinate) (parking.Signal, error) {
	if sig, ok := c.fresh(groupID); ok {
		return sig, nil
	}

	v, err, _ := c.flight.Do(groupID, func() (interface{}, error) {
		// A waiter that lost the race may find the entry already refreshed.
		if sig, ok := c.fresh(groupID); ok {
			return sig, nil
		}
		return c.fetch(ctx, groupID, center)
	})
	if err != nil {
		return parking.Signal{}, err
	}
	return v.(parking.Signal), nil
}

func (c *Cache) fresh(groupID string) (parking.Signal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[groupID]
	if !ok {
		return parking.Signal{}, false
	}
	if c.clock.Now().Sub(entry.FetchedAt) >= c.ttl {
		return parking.Signal{}, false
	}
	return entry.Signal, true
}

// fetch issues the weather and traffic calls in parallel with a single join
// point; no ordering is guaranteed between the two, only that both have
// completed before the pair is stored.
func (c *Cache) fetch(ctx context.Context, groupID string, center parking.Coordinate) (parking.Signal, error) {
	var (
		wg         sync.WaitGroup
		weather    parking.WeatherReading
		jamFactor  float64
		weatherErr error
		trafficErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		weather, weatherErr = c.weather.Fetch(ctx, center)
	}()
	go func() {
		defer wg.Done()
		jamFactor, trafficErr = c.traffic.FetchJamFactor(ctx, center)
	}()
	wg.Wait()

	if weatherErr != nil {
		if c.weatherPolicy == PolicyFail {
			return parking.Signal{}, fmt.Errorf("weather fetch for group %s: %w", groupID, weatherErr)
		}
		weather = parking.WeatherReading{Condition: parking.ConditionUnknown}
	}
	if trafficErr != nil {
		if c.trafficPolicy == PolicyFail {
			return parking.Signal{}, fmt.Errorf("traffic fetch for group %s: %w", groupID, trafficErr)
		}
		jamFactor = 0
	}

	sig := parking.Signal{JamFactor: jamFactor, Weather: weather}

	c.mu.Lock()
	c.entries[groupID] = parking.CachedSignal{
		GroupID:   groupID,
		Signal:    sig,
		FetchedAt: c.clock.Now(),
	}
	c.mu.Unlock()

	return sig, nil
}

var _ parking.SignalSource = (*Cache)(nil)
