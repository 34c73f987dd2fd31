package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/parkpulse/parking-pricing/internal/parking"
)

var (
	// ErrNotFound is returned when no data is available for a given spot.
	ErrNotFound = errors.New("no events for spot")
	// ErrDuplicateEvent is returned when an event id is appended twice.
	ErrDuplicateEvent = errors.New("duplicate event id")
)

// MemoryStore is a concurrency-safe in-memory implementation of the
// append-only event log and the group collection.
type MemoryStore struct {
	mu sync.RWMutex

	// eventsBySpot holds each spot's history ordered by timestamp ascending.
	eventsBySpot map[string][]parking.ParkingEvent
	// spotOrder preserves first-observed order; clustering output depends on
	// a stable iteration order over spots.
	spotOrder []string
	// latestBySpot tracks the most recent event per spot for coordinate
	// snapshots without scanning histories.
	latestBySpot map[string]parking.ParkingEvent
	eventIDs     map[string]bool

	groups map[string]parking.SpotGroup
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		eventsBySpot: make(map[string][]parking.ParkingEvent),
		latestBySpot: make(map[string]parking.ParkingEvent),
		eventIDs:     make(map[string]bool),
		groups:       make(map[string]parking.SpotGroup),
	}
}

// AppendEvent records one immutable event, keeping the spot's history sorted
// by timestamp so out-of-order sensor deliveries do not corrupt interval math.
func (s *MemoryStore) AppendEvent(_ context.Context, ev parking.ParkingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eventIDs[ev.ID] {
		return ErrDuplicateEvent
	}
	s.eventIDs[ev.ID] = true

	history, known := s.eventsBySpot[ev.SpotID]
	if !known {
		s.spotOrder = append(s.spotOrder, ev.SpotID)
	}

	// Insert in timestamp order; the common case is an append at the end.
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].Timestamp.After(ev.Timestamp)
	})
	history = append(history, parking.ParkingEvent{})
	copy(history[idx+1:], history[idx:])
	history[idx] = ev
	s.eventsBySpot[ev.SpotID] = history

	if latest, ok := s.latestBySpot[ev.SpotID]; !ok || !ev.Timestamp.Before(latest.Timestamp) {
		s.latestBySpot[ev.SpotID] = ev
	}
	return nil
}

// EventsBySpot returns a copy of the spot's history, timestamp ascending.
func (s *MemoryStore) EventsBySpot(_ context.Context, spotID string) ([]parking.ParkingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.eventsBySpot[spotID]
	if !ok || len(history) == 0 {
		return nil, ErrNotFound
	}

	out := make([]parking.ParkingEvent, len(history))
	copy(out, history)
	return out, nil
}

// LatestPoints returns each known spot's most recent coordinate in
// first-observed spot order.
func (s *MemoryStore) LatestPoints(_ context.Context) ([]parking.SpotPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := make([]parking.SpotPoint, 0, len(s.spotOrder))
	for _, spotID := range s.spotOrder {
		ev, ok := s.latestBySpot[spotID]
		if !ok {
			continue
		}
		points = append(points, parking.SpotPoint{
			SpotID: spotID,
			Coord:  parking.Coordinate{Latitude: ev.Latitude, Longitude: ev.Longitude},
		})
	}
	return points, nil
}

// UpsertGroup replaces-or-inserts a group by id.
func (s *MemoryStore) UpsertGroup(_ context.Context, g parking.SpotGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.groups[g.GroupID] = g
	return nil
}

// ListGroups returns all groups ordered by id for stable output.
func (s *MemoryStore) ListGroups(_ context.Context) ([]parking.SpotGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]parking.SpotGroup, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

// PruneGroupsExcept deletes every group whose id is not in keep.
func (s *MemoryStore) PruneGroupsExcept(_ context.Context, keep map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.groups {
		if !keep[id] {
			delete(s.groups, id)
		}
	}
	return nil
}

var (
	_ parking.EventStore = (*MemoryStore)(nil)
	_ parking.GroupStore = (*MemoryStore)(nil)
)
