package parking

// OccupancyRate turns a spot's event history, ordered by timestamp ascending,
// into the fraction of observed time the spot was occupied, in [0, 1].
//
// The walk pairs consecutive events; each interval takes the status of the
// event it starts at. The open interval from the last event to "now" is not
// counted — a known limitation, kept so repeated calls over an unchanged
// history return identical rates.
func OccupancyRate(events []ParkingEvent) float64 {
	if len(events) < 2 {
		return 0
	}

	var totalTime, occupiedTime float64
	for i := 1; i < len(events); i++ {
		dt := events[i].Timestamp.Sub(events[i-1].Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		totalTime += dt
		if events[i-1].Status == StatusOccupied {
			occupiedTime += dt
		}
	}

	if totalTime == 0 {
		return 0
	}
	return occupiedTime / totalTime
}
