package parking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeStore is a minimal in-memory EventStore + GroupStore for pipeline tests.
type fakeStore struct {
	events map[string][]ParkingEvent
	order  []string
	groups map[string]SpotGroup

	failAppendFor string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events: make(map[string][]ParkingEvent),
		groups: make(map[string]SpotGroup),
	}
}

func (f *fakeStore) AppendEvent(_ context.Context, ev ParkingEvent) error {
	if ev.SpotID == f.failAppendFor {
		return errors.New("simulated persistence failure")
	}
	if _, ok := f.events[ev.SpotID]; !ok {
		f.order = append(f.order, ev.SpotID)
	}
	f.events[ev.SpotID] = append(f.events[ev.SpotID], ev)
	return nil
}

func (f *fakeStore) EventsBySpot(_ context.Context, spotID string) ([]ParkingEvent, error) {
	evs, ok := f.events[spotID]
	if !ok {
		return nil, errors.New("not found")
	}
	return evs, nil
}

func (f *fakeStore) LatestPoints(_ context.Context) ([]SpotPoint, error) {
	var points []SpotPoint
	for _, id := range f.order {
		evs := f.events[id]
		last := evs[len(evs)-1]
		points = append(points, SpotPoint{
			SpotID: id,
			Coord:  Coordinate{Latitude: last.Latitude, Longitude: last.Longitude},
		})
	}
	return points, nil
}

func (f *fakeStore) UpsertGroup(_ context.Context, g SpotGroup) error {
	f.groups[g.GroupID] = g
	return nil
}

func (f *fakeStore) ListGroups(_ context.Context) ([]SpotGroup, error) {
	var out []SpotGroup
	for _, g := range f.groups {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeStore) PruneGroupsExcept(_ context.Context, keep map[string]bool) error {
	for id := range f.groups {
		if !keep[id] {
			delete(f.groups, id)
		}
	}
	return nil
}

// fakeSignals returns a fixed signal, or an error for configured group ids.
type fakeSignals struct {
	signal  Signal
	failFor map[string]bool
}

func (f *fakeSignals) GetOrFetch(_ context.Context, groupID string, _ Coordinate) (Signal, error) {
	if f.failFor[groupID] {
		return Signal{}, fmt.Errorf("signals unavailable for %s", groupID)
	}
	return f.signal, nil
}

// utcLocator keeps quote timestamps in UTC.
type utcLocator struct{}

func (utcLocator) LocalTime(_ Coordinate, at time.Time) time.Time { return at.UTC() }

func newTestService(store *fakeStore, signals SignalSource, now time.Time) *Service {
	clusterer := NewProximityClusterer(0.01, fixedClock(now))
	return NewService(store, store, clusterer, signals, utcLocator{}, fixedClock(now), 10)
}

func TestIngestBatchAssignsIDsAndReclusters(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, &fakeSignals{}, now)

	stored, err := svc.IngestBatch(context.Background(), []ParkingEvent{
		{SpotID: "s1", Latitude: 52.5000, Longitude: 13.4000, Status: StatusFree, Timestamp: now},
		{SpotID: "s2", Latitude: 52.5030, Longitude: 13.4030, Status: StatusOccupied, Timestamp: now},
		{SpotID: "s3", Latitude: 52.6000, Longitude: 13.5000, Status: StatusFree, Timestamp: now},
	})
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if stored != 3 {
		t.Fatalf("stored = %d, want 3", stored)
	}

	for _, id := range []string{"s1", "s2", "s3"} {
		evs := store.events[id]
		if len(evs) != 1 || evs[0].ID == "" {
			t.Fatalf("spot %s: expected one event with a generated id, got %+v", id, evs)
		}
	}

	if len(store.groups) != 2 {
		t.Fatalf("expected 2 groups after reclustering, got %d", len(store.groups))
	}
}

// TestReclusterPrunesStaleGroups: a moved spot shifts its centroid, which
// changes the centroid-derived group id; the old record must not linger.
func TestReclusterPrunesStaleGroups(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, &fakeSignals{}, now)

	ctx := context.Background()
	if _, err := svc.IngestBatch(ctx, []ParkingEvent{
		{SpotID: "s1", Latitude: 10.0000, Longitude: 20.0000, Status: StatusFree, Timestamp: now},
	}); err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if len(store.groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(store.groups))
	}

	// Same spot reports from a different coordinate.
	if _, err := svc.IngestBatch(ctx, []ParkingEvent{
		{SpotID: "s1", Latitude: 10.0050, Longitude: 20.0050, Status: StatusFree, Timestamp: now.Add(time.Minute)},
	}); err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}

	if len(store.groups) != 1 {
		t.Fatalf("expected stale group pruned, got %d groups", len(store.groups))
	}
	if _, ok := store.groups["10.0050_20.0050"]; !ok {
		t.Fatalf("expected group at new centroid, got %v", store.groups)
	}
}

// TestIngestBatchPartialPersistenceFailure: a failing append abandons that
// event only; siblings are still stored.
func TestIngestBatchPartialPersistenceFailure(t *testing.T) {
	store := newFakeStore()
	store.failAppendFor = "bad"
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, &fakeSignals{}, now)

	stored, err := svc.IngestBatch(context.Background(), []ParkingEvent{
		{SpotID: "good", Latitude: 1, Longitude: 1, Status: StatusFree, Timestamp: now},
		{SpotID: "bad", Latitude: 2, Longitude: 2, Status: StatusFree, Timestamp: now},
	})
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if stored != 1 {
		t.Fatalf("stored = %d, want 1", stored)
	}
	if len(store.events["good"]) != 1 {
		t.Fatalf("sibling event should still be stored")
	}
}

func TestQuotePricesEndToEnd(t *testing.T) {
	store := newFakeStore()
	// 09:00 UTC is inside the morning peak window.
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	sig := &fakeSignals{signal: Signal{
		JamFactor: 5,
		Weather:   WeatherReading{Temperature: 4.5, Condition: ConditionRain},
	}}
	svc := newTestService(store, sig, now)

	ctx := context.Background()
	base := now.Add(-time.Hour)
	// Occupied 0-800s, free 800-1000s: occupancy 0.8.
	batches := []ParkingEvent{
		{SpotID: "s1", Latitude: 52.5, Longitude: 13.4, Status: StatusOccupied, Timestamp: base},
		{SpotID: "s1", Latitude: 52.5, Longitude: 13.4, Status: StatusFree, Timestamp: base.Add(800 * time.Second)},
		{SpotID: "s1", Latitude: 52.5, Longitude: 13.4, Status: StatusOccupied, Timestamp: base.Add(1000 * time.Second)},
	}
	for _, ev := range batches {
		if _, err := svc.IngestBatch(ctx, []ParkingEvent{ev}); err != nil {
			t.Fatalf("IngestBatch: %v", err)
		}
	}

	quotes, err := svc.QuotePrices(ctx)
	if err != nil {
		t.Fatalf("QuotePrices: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}

	q := quotes[0]
	if q.SpotID != "s1" {
		t.Fatalf("quote spot = %q", q.SpotID)
	}
	if q.Status != StatusOccupied {
		t.Fatalf("quote status = %q, want occupied", q.Status)
	}
	if q.OccupancyRate != 0.8 {
		t.Fatalf("occupancy = %v, want 0.8", q.OccupancyRate)
	}
	// 10 + 2 (occupancy) + 1.5 (peak) + 1 (rain) + 2 (jam) = 16.50
	if q.Price != 16.50 {
		t.Fatalf("price = %v, want 16.50", q.Price)
	}
	if q.JamFactor != 5 {
		t.Fatalf("jam factor = %v, want 5", q.JamFactor)
	}
	if q.LocalTime != now.Format(time.RFC3339) {
		t.Fatalf("local time = %q, want %q", q.LocalTime, now.Format(time.RFC3339))
	}
}

// TestQuotePricesGroupFailureIsolation: a signal failure for one group must
// not abort quotes for the others.
func TestQuotePricesGroupFailureIsolation(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	sig := &fakeSignals{
		signal:  Signal{Weather: WeatherReading{Condition: ConditionClear}},
		failFor: map[string]bool{},
	}
	svc := newTestService(store, sig, now)

	ctx := context.Background()
	events := []ParkingEvent{
		{SpotID: "a", Latitude: 10.0, Longitude: 20.0, Status: StatusFree, Timestamp: now.Add(-time.Minute)},
		{SpotID: "a", Latitude: 10.0, Longitude: 20.0, Status: StatusOccupied, Timestamp: now},
		{SpotID: "b", Latitude: 50.0, Longitude: 60.0, Status: StatusFree, Timestamp: now.Add(-time.Minute)},
		{SpotID: "b", Latitude: 50.0, Longitude: 60.0, Status: StatusFree, Timestamp: now},
	}
	if _, err := svc.IngestBatch(ctx, events); err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}

	sig.failFor["10.0000_20.0000"] = true

	quotes, err := svc.QuotePrices(ctx)
	if err != nil {
		t.Fatalf("QuotePrices: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote from the healthy group, got %d", len(quotes))
	}
	if quotes[0].SpotID != "b" {
		t.Fatalf("quote spot = %q, want b", quotes[0].SpotID)
	}
}
