package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parkpulse/parking-pricing/internal/parking"
)

// SQLiteStore persists the event log and group collection in a sqlite file.
// It satisfies the same contracts as MemoryStore, selected via STORE_DRIVER.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures
// the schema exists. Pass ":memory:" for an ephemeral database in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// sqlite allows a single writer; a one-connection pool also keeps
	// :memory: databases coherent across queries.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS parking_events (
			id TEXT PRIMARY KEY,
			spot_id TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			status TEXT NOT NULL,
			ts INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_parking_events_spot ON parking_events(spot_id, ts);
		CREATE TABLE IF NOT EXISTS groups (
			group_id TEXT PRIMARY KEY,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			members TEXT NOT NULL,
			last_updated INTEGER NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendEvent inserts one immutable event. Events are never updated.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev parking.ParkingEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO parking_events (id, spot_id, latitude, longitude, status, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SpotID, ev.Latitude, ev.Longitude, string(ev.Status), ev.Timestamp.UTC().UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "constraint") {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// EventsBySpot returns a spot's history ordered by timestamp ascending.
func (s *SQLiteStore) EventsBySpot(ctx context.Context, spotID string) ([]parking.ParkingEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, spot_id, latitude, longitude, status, ts FROM parking_events WHERE spot_id = ? ORDER BY ts ASC, rowid ASC`,
		spotID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []parking.ParkingEvent
	for rows.Next() {
		var ev parking.ParkingEvent
		var status string
		var ts int64
		if err := rows.Scan(&ev.ID, &ev.SpotID, &ev.Latitude, &ev.Longitude, &status, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Status = parking.SpotStatus(status)
		ev.Timestamp = time.Unix(0, ts).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events, nil
}

// LatestPoints returns each spot's most recent coordinate in first-observed
// spot order, which the clustering pass depends on.
func (s *SQLiteStore) LatestPoints(ctx context.Context) ([]parking.SpotPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT spot_id, latitude, longitude FROM (
			SELECT spot_id, latitude, longitude,
				ROW_NUMBER() OVER (PARTITION BY spot_id ORDER BY ts DESC, rowid DESC) AS rn,
				MIN(rowid) OVER (PARTITION BY spot_id) AS first_seen
			FROM parking_events
		) WHERE rn = 1 ORDER BY first_seen ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query latest points: %w", err)
	}
	defer rows.Close()

	var points []parking.SpotPoint
	for rows.Next() {
		var p parking.SpotPoint
		if err := rows.Scan(&p.SpotID, &p.Coord.Latitude, &p.Coord.Longitude); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// UpsertGroup replaces-or-inserts a group by id.
func (s *SQLiteStore) UpsertGroup(ctx context.Context, g parking.SpotGroup) error {
	members, err := json.Marshal(g.Members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO groups (group_id, latitude, longitude, members, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			members = excluded.members,
			last_updated = excluded.last_updated`,
		g.GroupID, g.Center.Latitude, g.Center.Longitude, string(members), g.LastUpdated.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}
	return nil
}

// ListGroups returns all groups ordered by id.
func (s *SQLiteStore) ListGroups(ctx context.Context) ([]parking.SpotGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, latitude, longitude, members, last_updated FROM groups ORDER BY group_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []parking.SpotGroup
	for rows.Next() {
		var g parking.SpotGroup
		var members string
		var ts int64
		if err := rows.Scan(&g.GroupID, &g.Center.Latitude, &g.Center.Longitude, &members, &ts); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &g.Members); err != nil {
			return nil, fmt.Errorf("decode members for group %s: %w", g.GroupID, err)
		}
		g.LastUpdated = time.Unix(0, ts).UTC()
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// PruneGroupsExcept deletes every group whose id is not in keep.
func (s *SQLiteStore) PruneGroupsExcept(ctx context.Context, keep map[string]bool) error {
	ids, err := s.groupIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if keep[id] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE group_id = ?`, id); err != nil {
			return fmt.Errorf("delete group %s: %w", id, err)
		}
	}
	return nil
}

func (s *SQLiteStore) groupIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id FROM groups`)
	if err != nil {
		return nil, fmt.Errorf("query group ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var (
	_ parking.EventStore = (*SQLiteStore)(nil)
	_ parking.GroupStore = (*SQLiteStore)(nil)
)
