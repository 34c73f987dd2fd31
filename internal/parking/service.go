package parking

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Service is the derivation pipeline: it turns ingested sensor readings into
// persisted groups, and persisted state plus external signals into quotes.
type Service struct {
	events    EventStore
	groups    GroupStore
	clusterer *ProximityClusterer
	signals   SignalSource
	locator   TimeLocator
	clock     Clock
	basePrice float64
}

// NewService creates the pipeline.
func NewService(events EventStore, groups GroupStore, clusterer *ProximityClusterer, signals SignalSource, locator TimeLocator, clock Clock, basePrice float64) *Service {
	if clock == nil {
		clock = SystemClock
	}
	if basePrice <= 0 {
		basePrice = DefaultBasePrice
	}
	return &Service{
		events:    events,
		groups:    groups,
		clusterer: clusterer,
		signals:   signals,
		locator:   locator,
		clock:     clock,
		basePrice: basePrice,
	}
}

// IngestBatch appends the batch to the event log and re-derives the group
// collection from the full set of known spots.
//
// A failing append abandons that event only; siblings are still attempted.
// There is no transaction spanning clustering and upsert — each group's
// upsert is independently atomic.
func (s *Service) IngestBatch(ctx context.Context, events []ParkingEvent) (int, error) {
	stored := 0
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = s.clock.Now().UTC()
		}
		if err := s.events.AppendEvent(ctx, ev); err != nil {
			log.Printf("ERROR: append event for spot %s failed: %v", ev.SpotID, err)
			continue
		}
		stored++
	}

	if err := s.Recluster(ctx); err != nil {
		return stored, err
	}
	return stored, nil
}

// Recluster recomputes all groups from the current distinct spot set and
// persists the result. The whole-set recomputation (rather than incremental
// single-spot reassignment) is an accepted choice for small deployments.
func (s *Service) Recluster(ctx context.Context) error {
	points, err := s.events.LatestPoints(ctx)
	if err != nil {
		return fmt.Errorf("load spot points: %w", err)
	}

	groups := s.clusterer.Cluster(points)

	keep := make(map[string]bool, len(groups))
	for _, g := range groups {
		keep[g.GroupID] = true
		if err := s.groups.UpsertGroup(ctx, g); err != nil {
			// Abandon this group only; the rest of the pass continues.
			log.Printf("ERROR: upsert group %s failed: %v", g.GroupID, err)
		}
	}

	// A shifting centroid changes the group id, so a pass can strand records
	// keyed by centroids that no longer exist. Prune them.
	if err := s.groups.PruneGroupsExcept(ctx, keep); err != nil {
		log.Printf("ERROR: prune stale groups failed: %v", err)
	}
	return nil
}

// QuotePrices assembles a price quote for every member spot of every current
// group. A failure while resolving one group's signals aborts that group's
// quotes only; the remaining groups are still processed.
func (s *Service) QuotePrices(ctx context.Context) ([]PriceQuote, error) {
	groups, err := s.groups.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	quotes := make([]PriceQuote, 0)
	for _, g := range groups {
		sig, err := s.signals.GetOrFetch(ctx, g.GroupID, g.Center)
		if err != nil {
			log.Printf("signals for group %s failed: %v", g.GroupID, err)
			continue
		}

		localTime := s.localTime(g.Center)

		for _, spotID := range g.Members {
			q, err := s.quoteSpot(ctx, spotID, sig, localTime)
			if err != nil {
				log.Printf("quote for spot %s failed: %v", spotID, err)
				continue
			}
			quotes = append(quotes, q)
		}
	}
	return quotes, nil
}

func (s *Service) quoteSpot(ctx context.Context, spotID string, sig Signal, localTime time.Time) (PriceQuote, error) {
	events, err := s.events.EventsBySpot(ctx, spotID)
	if err != nil {
		return PriceQuote{}, fmt.Errorf("events for spot %s: %w", spotID, err)
	}
	if len(events) == 0 {
		return PriceQuote{}, fmt.Errorf("no events for spot %s", spotID)
	}

	latest := events[len(events)-1]
	occupancy := OccupancyRate(events)
	price := Price(s.basePrice, occupancy, localTime.Hour(), sig.Weather.Condition, sig.JamFactor)

	return PriceQuote{
		SpotID:        spotID,
		Latitude:      latest.Latitude,
		Longitude:     latest.Longitude,
		Status:        latest.Status,
		Price:         price,
		Weather:       sig.Weather,
		JamFactor:     sig.JamFactor,
		OccupancyRate: occupancy,
		LocalTime:     localTime.Format(time.RFC3339),
	}, nil
}

// ListGroups exposes the current group collection for the API layer.
func (s *Service) ListGroups(ctx context.Context) ([]SpotGroup, error) {
	return s.groups.ListGroups(ctx)
}

func (s *Service) localTime(center Coordinate) time.Time {
	now := s.clock.Now()
	if s.locator == nil {
		return now.UTC()
	}
	return s.locator.LocalTime(center, now)
}
