package parking

import (
	"context"
	"time"
)

// WeatherProvider abstracts a weather-by-coordinate source (e.g. OpenWeatherMap).
type WeatherProvider interface {
	Name() string
	Fetch(ctx context.Context, coord Coordinate) (WeatherReading, error)
}

// TrafficProvider abstracts a congestion source queried by bounding box
// around a point. Jam factor ranges 0 (free-flowing) to 10 (blocked).
type TrafficProvider interface {
	Name() string
	FetchJamFactor(ctx context.Context, coord Coordinate) (float64, error)
}

// SignalSource yields the (jam factor, weather) pair for a group, typically
// backed by a TTL cache over the two providers.
type SignalSource interface {
	GetOrFetch(ctx context.Context, groupID string, center Coordinate) (Signal, error)
}

// EventStore is the contract for the append-only parking event log.
type EventStore interface {
	// AppendEvent records one event. Events are immutable once written.
	AppendEvent(ctx context.Context, ev ParkingEvent) error
	// EventsBySpot returns a spot's full history ordered by timestamp ascending.
	EventsBySpot(ctx context.Context, spotID string) ([]ParkingEvent, error)
	// LatestPoints returns one entry per known spot carrying its most recent
	// coordinate, in the order spots were first observed. Clustering output
	// depends on this order, so it must be stable across calls.
	LatestPoints(ctx context.Context) ([]SpotPoint, error)
}

// GroupStore is the contract for the persisted group collection.
type GroupStore interface {
	// UpsertGroup replaces-or-inserts a group by its GroupID.
	UpsertGroup(ctx context.Context, g SpotGroup) error
	// ListGroups returns all current groups.
	ListGroups(ctx context.Context) ([]SpotGroup, error)
	// PruneGroupsExcept removes every group whose id is not in keep, so a
	// re-clustering pass cannot leave stale centroid-keyed records behind.
	PruneGroupsExcept(ctx context.Context, keep map[string]bool) error
}

// Clock lets tests control time-dependent behavior (cache TTL, local hour).
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a func to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// TimeLocator resolves the wall-clock time at a coordinate. The real
// timezone database lookup is an external collaborator; implementations here
// approximate it.
type TimeLocator interface {
	LocalTime(coord Coordinate, at time.Time) time.Time
}
