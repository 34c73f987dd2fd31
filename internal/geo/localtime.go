// Package geo approximates timezone resolution from coordinates. A real
// deployment would call a timezone-by-coordinate service; the longitude-based
// offset here is accurate to within an hour for most inhabited places and
// keeps the pipeline free of network calls on the query path.
package geo

import (
	"math"
	"time"

	"github.com/parkpulse/parking-pricing/internal/parking"
)

// LongitudeLocator derives a fixed UTC offset from longitude: one hour per
// 15 degrees, rounded to the nearest whole hour.
type LongitudeLocator struct{}

// LocalTime shifts at into the zone implied by the coordinate's longitude.
func (LongitudeLocator) LocalTime(coord parking.Coordinate, at time.Time) time.Time {
	offsetHours := int(math.Round(coord.Longitude / 15))
	zone := time.FixedZone("lon-offset", offsetHours*3600)
	return at.In(zone)
}

// FixedZoneLocator pins every coordinate to one IANA timezone, for
// single-city deployments where LOCAL_TIMEZONE is configured.
type FixedZoneLocator struct {
	Location *time.Location
}

func (f FixedZoneLocator) LocalTime(_ parking.Coordinate, at time.Time) time.Time {
	if f.Location == nil {
		return at.UTC()
	}
	return at.In(f.Location)
}

var (
	_ parking.TimeLocator = LongitudeLocator{}
	_ parking.TimeLocator = FixedZoneLocator{}
)
