package signals

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parkpulse/parking-pricing/internal/parking"
)

type stubWeather struct {
	reading parking.WeatherReading
	err     error
	calls   int32
	block   chan struct{}
}

func (s *stubWeather) Name() string { return "stub-weather" }

func (s *stubWeather) Fetch(_ context.Context, _ parking.Coordinate) (parking.WeatherReading, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.block != nil {
		<-s.block
	}
	return s.reading, s.err
}

type stubTraffic struct {
	jam   float64
	err   error
	calls int32
}

func (s *stubTraffic) Name() string { return "stub-traffic" }

func (s *stubTraffic) FetchJamFactor(_ context.Context, _ parking.Coordinate) (float64, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.jam, s.err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGetOrFetchCachesWithinTTL(t *testing.T) {
	weather := &stubWeather{reading: parking.WeatherReading{Temperature: 12, Condition: parking.ConditionCloudy}}
	traffic := &stubTraffic{jam: 3}
	clock := &testClock{now: time.Unix(10000, 0)}

	cache := NewCache(weather, traffic, WithTTL(5*time.Minute), WithClock(clock))

	ctx := context.Background()
	center := parking.Coordinate{Latitude: 52.5, Longitude: 13.4}

	first, err := cache.GetOrFetch(ctx, "g1", center)
	if err != nil {
		t.Fatalf("first GetOrFetch: %v", err)
	}

	clock.Advance(4 * time.Minute)
	second, err := cache.GetOrFetch(ctx, "g1", center)
	if err != nil {
		t.Fatalf("second GetOrFetch: %v", err)
	}

	if first != second {
		t.Fatalf("cached signal changed within TTL: %+v vs %+v", first, second)
	}
	if weather.calls != 1 || traffic.calls != 1 {
		t.Fatalf("expected exactly one fetch pair, got weather=%d traffic=%d", weather.calls, traffic.calls)
	}
}

func TestGetOrFetchRefreshesAfterExpiry(t *testing.T) {
	weather := &stubWeather{reading: parking.WeatherReading{Condition: parking.ConditionClear}}
	traffic := &stubTraffic{jam: 1}
	clock := &testClock{now: time.Unix(10000, 0)}

	cache := NewCache(weather, traffic, WithTTL(5*time.Minute), WithClock(clock))

	ctx := context.Background()
	center := parking.Coordinate{}

	if _, err := cache.GetOrFetch(ctx, "g1", center); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}

	clock.Advance(5 * time.Minute) // entry is now exactly TTL old, i.e. stale

	if _, err := cache.GetOrFetch(ctx, "g1", center); err != nil {
		t.Fatalf("GetOrFetch after expiry: %v", err)
	}
	if weather.calls != 2 || traffic.calls != 2 {
		t.Fatalf("expected a second fetch pair after expiry, got weather=%d traffic=%d", weather.calls, traffic.calls)
	}
}

func TestGetOrFetchDistinctGroupsFetchIndependently(t *testing.T) {
	weather := &stubWeather{}
	traffic := &stubTraffic{}
	cache := NewCache(weather, traffic, WithClock(&testClock{now: time.Unix(0, 0)}))

	ctx := context.Background()
	if _, err := cache.GetOrFetch(ctx, "g1", parking.Coordinate{}); err != nil {
		t.Fatalf("GetOrFetch g1: %v", err)
	}
	if _, err := cache.GetOrFetch(ctx, "g2", parking.Coordinate{}); err != nil {
		t.Fatalf("GetOrFetch g2: %v", err)
	}
	if weather.calls != 2 {
		t.Fatalf("expected per-group fetches, got %d", weather.calls)
	}
}

func TestTrafficFallbackPolicy(t *testing.T) {
	weather := &stubWeather{reading: parking.WeatherReading{Condition: parking.ConditionRain}}
	traffic := &stubTraffic{jam: 9, err: errors.New("provider down")}

	cache := NewCache(weather, traffic,
		WithClock(&testClock{now: time.Unix(0, 0)}),
		WithPolicies(PolicyFail, PolicyFallback),
	)

	sig, err := cache.GetOrFetch(context.Background(), "g1", parking.Coordinate{})
	if err != nil {
		t.Fatalf("expected fallback, got error: %v", err)
	}
	if sig.JamFactor != 0 {
		t.Fatalf("jam factor = %v, want fallback 0", sig.JamFactor)
	}
	if sig.Weather.Condition != parking.ConditionRain {
		t.Fatalf("weather lost in fallback: %+v", sig.Weather)
	}
}

func TestWeatherHardFailPolicy(t *testing.T) {
	weather := &stubWeather{err: errors.New("provider down")}
	traffic := &stubTraffic{jam: 2}

	cache := NewCache(weather, traffic,
		WithClock(&testClock{now: time.Unix(0, 0)}),
		WithPolicies(PolicyFail, PolicyFallback),
	)

	if _, err := cache.GetOrFetch(context.Background(), "g1", parking.Coordinate{}); err == nil {
		t.Fatalf("expected hard failure on weather error")
	}

	// A failed fetch must not poison the cache with a stale pair.
	weather.err = nil
	weather.reading = parking.WeatherReading{Condition: parking.ConditionClear}
	sig, err := cache.GetOrFetch(context.Background(), "g1", parking.Coordinate{})
	if err != nil {
		t.Fatalf("retry after provider recovery: %v", err)
	}
	if sig.Weather.Condition != parking.ConditionClear {
		t.Fatalf("unexpected cached signal after recovery: %+v", sig)
	}
}

func TestWeatherFallbackPolicy(t *testing.T) {
	weather := &stubWeather{err: errors.New("provider down")}
	traffic := &stubTraffic{jam: 2}

	cache := NewCache(weather, traffic,
		WithClock(&testClock{now: time.Unix(0, 0)}),
		WithPolicies(PolicyFallback, PolicyFallback),
	)

	sig, err := cache.GetOrFetch(context.Background(), "g1", parking.Coordinate{})
	if err != nil {
		t.Fatalf("expected fallback, got error: %v", err)
	}
	if sig.Weather.Condition != parking.ConditionUnknown {
		t.Fatalf("fallback weather condition = %q, want unknown", sig.Weather.Condition)
	}
	if sig.JamFactor != 2 {
		t.Fatalf("jam factor = %v, want 2", sig.JamFactor)
	}
}

// TestConcurrentCallersShareOneFetch: callers racing on a missing key must
// coalesce onto a single in-flight fetch pair.
func TestConcurrentCallersShareOneFetch(t *testing.T) {
	block := make(chan struct{})
	weather := &stubWeather{block: block}
	traffic := &stubTraffic{jam: 1}

	cache := NewCache(weather, traffic, WithClock(&testClock{now: time.Unix(0, 0)}))

	const callers = 8
	var ready, done sync.WaitGroup
	ready.Add(callers)
	done.Add(callers)

	for i := 0; i < callers; i++ {
		go func() {
			defer done.Done()
			ready.Done()
			if _, err := cache.GetOrFetch(context.Background(), "g1", parking.Coordinate{}); err != nil {
				t.Errorf("GetOrFetch: %v", err)
			}
		}()
	}

	ready.Wait()
	time.Sleep(20 * time.Millisecond) // let every caller reach the flight
	close(block)
	done.Wait()

	if got := atomic.LoadInt32(&weather.calls); got != 1 {
		t.Fatalf("expected one coalesced weather fetch, got %d", got)
	}
}
