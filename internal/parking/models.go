package parking

import (
	"fmt"
	"math"
	"time"
)

// SpotStatus is the reported state of a single parking spot.
type SpotStatus string

const (
	StatusFree     SpotStatus = "free"
	StatusOccupied SpotStatus = "occupied"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rainy"
	ConditionSnow    Condition = "snowy"
	ConditionStorm   Condition = "stormy"
)

// Coordinate is a WGS84 point. Distances between coordinates are computed in
// raw degree space; see Distance.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Distance returns the flat-earth Euclidean distance to other, in degrees.
// Good enough at clustering scale (0.01 deg ~ 1.1 km at the equator); the
// error of ignoring latitude compression is accepted deliberately.
func (c Coordinate) Distance(other Coordinate) float64 {
	dLat := c.Latitude - other.Latitude
	dLon := c.Longitude - other.Longitude
	return math.Sqrt(dLat*dLat + dLon*dLon)
}

// ParkingEvent is one append-only status reading for a spot. Events are never
// mutated after they are recorded.
type ParkingEvent struct {
	ID        string     `json:"id"`
	SpotID    string     `json:"spot_id"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Status    SpotStatus `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
}

// SpotPoint is a spot's most recent known coordinate, the clustering input.
type SpotPoint struct {
	SpotID string
	Coord  Coordinate
}

// SpotGroup is a spatial cluster of nearby spots with a running centroid.
type SpotGroup struct {
	GroupID     string     `json:"group_id"`
	Center      Coordinate `json:"center"`
	Members     []string   `json:"members"`
	LastUpdated time.Time  `json:"last_updated"`
}

// GroupID derives the deterministic group identifier for a centroid: latitude
// and longitude each rounded to 4 decimal places, joined with an underscore.
func GroupID(center Coordinate) string {
	return fmt.Sprintf("%.4f_%.4f", center.Latitude, center.Longitude)
}

// WeatherReading is the weather signal consumed by pricing.
type WeatherReading struct {
	Temperature float64   `json:"temperature"`
	Condition   Condition `json:"condition"`
}

// Signal is the pair of external signals attached to a group.
type Signal struct {
	JamFactor float64        `json:"jam_factor"`
	Weather   WeatherReading `json:"weather"`
}

// CachedSignal is a Signal with its fetch time, as held by the signal cache.
type CachedSignal struct {
	GroupID   string
	Signal    Signal
	FetchedAt time.Time
}

// PriceQuote is the response shape for one spot on a price query.
// It is assembled per request and never persisted.
type PriceQuote struct {
	SpotID        string         `json:"spot_id"`
	Latitude      float64        `json:"latitude"`
	Longitude     float64        `json:"longitude"`
	Status        SpotStatus     `json:"status"`
	Price         float64        `json:"price"`
	Weather       WeatherReading `json:"weather"`
	JamFactor     float64        `json:"jam_factor"`
	OccupancyRate float64        `json:"occupancy_rate"`
	LocalTime     string         `json:"local_time"`
}
