package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/citydwell/sessions-backend-go/internal/database"
	"github.com/citydwell/sessions-backend-go/internal/models"
)

// SessionRepository handles database operations for sessions and their
// serialized snapshots.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts the session record when tracking starts.
func (r *SessionRepository) Create(s models.Session) error {
	query := `INSERT INTO sessions (id, label, started_at, sample_count, rejected_count)
		VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query, s.ID, s.Label, s.StartedAt.Unix(), s.SampleCount, s.RejectedCount)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// SaveSnapshot persists the full serialized session: record, route and
// dwells, replacing whatever was stored before. Called at session end
// and on every user-visible mutation of a live session.
func (r *SessionRepository) SaveSnapshot(snap models.SessionSnapshot) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		s := snap.Session

		var endedAt interface{}
		if s.EndedAt != nil {
			endedAt = s.EndedAt.Unix()
		}

		_, err := tx.Exec(`INSERT INTO sessions (id, label, started_at, ended_at, sample_count, rejected_count)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				label = excluded.label,
				ended_at = excluded.ended_at,
				sample_count = excluded.sample_count,
				rejected_count = excluded.rejected_count`,
			s.ID, s.Label, s.StartedAt.Unix(), endedAt, s.SampleCount, s.RejectedCount)
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM dwells WHERE session_id = ?", s.ID); err != nil {
			return fmt.Errorf("failed to clear dwells: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM route_points WHERE session_id = ?", s.ID); err != nil {
			return fmt.Errorf("failed to clear route points: %w", err)
		}

		dwellStmt, err := tx.Prepare(`INSERT INTO dwells (
			id, session_id, anchor_lat, anchor_lon, start_time, end_time, duration_s,
			confidence, sample_count, is_revisit, revisit_of,
			venue_name, venue_override, nearby_venues, rating, note
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare dwell insert: %w", err)
		}
		defer dwellStmt.Close()

		for _, d := range snap.Dwells {
			_, err := dwellStmt.Exec(
				d.ID, d.SessionID, d.AnchorLat, d.AnchorLon,
				d.StartTime.Unix(), d.EndTime.Unix(), int64(d.Duration().Seconds()),
				string(d.Confidence), d.SampleCount, d.IsRevisit, d.RevisitOf,
				d.VenueName, d.VenueOverride, encodeNearby(d.NearbyVenues), d.Rating, d.Note,
			)
			if err != nil {
				return fmt.Errorf("failed to insert dwell %s: %w", d.ID, err)
			}
		}

		routeStmt, err := tx.Prepare(`INSERT INTO route_points (
			session_id, latitude, longitude, recorded_at, accuracy, vertical_accuracy, speed
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare route insert: %w", err)
		}
		defer routeStmt.Close()

		for _, p := range snap.Route {
			_, err := routeStmt.Exec(
				s.ID, p.Latitude, p.Longitude, p.RecordedAt.Unix(),
				p.Accuracy, p.VerticalAccuracy, p.Speed,
			)
			if err != nil {
				return fmt.Errorf("failed to insert route point: %w", err)
			}
		}

		return nil
	})
}

// GetByID retrieves a session record, or nil when absent.
func (r *SessionRepository) GetByID(id string) (*models.Session, error) {
	query := `SELECT id, label, started_at, ended_at, sample_count, rejected_count
		FROM sessions WHERE id = ?`

	var (
		s         models.Session
		startedAt int64
		endedAt   sql.NullInt64
	)
	err := r.db.QueryRow(query, id).Scan(&s.ID, &s.Label, &startedAt, &endedAt, &s.SampleCount, &s.RejectedCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.StartedAt = time.Unix(startedAt, 0).UTC()
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0).UTC()
		s.EndedAt = &t
	}
	return &s, nil
}

// List retrieves sessions with filtering and pagination.
func (r *SessionRepository) List(filter models.SessionFilter) ([]models.Session, int64, error) {
	var conditions []string
	var args []interface{}

	if filter.StartedAfter > 0 {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, filter.StartedAfter)
	}
	if filter.StartedBefore > 0 {
		conditions = append(conditions, "started_at <= ?")
		args = append(args, filter.StartedBefore)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "ended_at IS NULL")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM sessions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 100
	}
	if filter.PageSize > 1000 {
		filter.PageSize = 1000
	}
	offset := (filter.Page - 1) * filter.PageSize

	query := `SELECT id, label, started_at, ended_at, sample_count, rejected_count
		FROM sessions` + where + " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.PageSize, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var (
			s         models.Session
			startedAt int64
			endedAt   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Label, &startedAt, &endedAt, &s.SampleCount, &s.RejectedCount); err != nil {
			return nil, 0, fmt.Errorf("failed to scan session: %w", err)
		}
		s.StartedAt = time.Unix(startedAt, 0).UTC()
		if endedAt.Valid {
			t := time.Unix(endedAt.Int64, 0).UTC()
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}

	return sessions, total, rows.Err()
}

// GetRoute retrieves the ordered route of a session.
func (r *SessionRepository) GetRoute(sessionID string) ([]models.RoutePoint, error) {
	query := `SELECT id, session_id, latitude, longitude, recorded_at, accuracy, vertical_accuracy, speed
		FROM route_points WHERE session_id = ? ORDER BY id`

	rows, err := r.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query route points: %w", err)
	}
	defer rows.Close()

	var route []models.RoutePoint
	for rows.Next() {
		var (
			p          models.RoutePoint
			recordedAt int64
		)
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Latitude, &p.Longitude, &recordedAt, &p.Accuracy, &p.VerticalAccuracy, &p.Speed); err != nil {
			return nil, fmt.Errorf("failed to scan route point: %w", err)
		}
		p.RecordedAt = time.Unix(recordedAt, 0).UTC()
		route = append(route, p)
	}

	return route, rows.Err()
}
