package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/citydwell/sessions-backend-go/internal/models"
)

// DwellRepository handles database operations for dwells.
type DwellRepository struct {
	db *sql.DB
}

// NewDwellRepository creates a new dwell repository
func NewDwellRepository(db *sql.DB) *DwellRepository {
	return &DwellRepository{db: db}
}

const dwellColumns = `id, session_id, anchor_lat, anchor_lon, start_time, end_time,
	confidence, sample_count, is_revisit, revisit_of,
	venue_name, venue_override, nearby_venues, rating, note`

// GetDwells retrieves dwells with filtering and pagination.
func (r *DwellRepository) GetDwells(filter models.DwellFilter) ([]models.DwellPoint, int64, error) {
	var conditions []string
	var args []interface{}

	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.StartTime > 0 {
		conditions = append(conditions, "start_time >= ?")
		args = append(args, filter.StartTime)
	}
	if filter.EndTime > 0 {
		conditions = append(conditions, "end_time <= ?")
		args = append(args, filter.EndTime)
	}
	if filter.MinDurationS > 0 {
		conditions = append(conditions, "duration_s >= ?")
		args = append(args, filter.MinDurationS)
	}
	if filter.Confidence != "" {
		conditions = append(conditions, "confidence = ?")
		args = append(args, filter.Confidence)
	}
	if filter.RevisitsOnly {
		conditions = append(conditions, "is_revisit = 1")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM dwells"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count dwells: %w", err)
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

	query := "SELECT " + dwellColumns + " FROM dwells" + where + " ORDER BY start_time LIMIT ? OFFSET ?"
	args = append(args, filter.PageSize, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query dwells: %w", err)
	}
	defer rows.Close()

	var dwells []models.DwellPoint
	for rows.Next() {
		d, err := scanDwell(rows)
		if err != nil {
			return nil, 0, err
		}
		dwells = append(dwells, *d)
	}

	return dwells, total, rows.Err()
}

// GetByID retrieves a single dwell, or nil when absent.
func (r *DwellRepository) GetByID(id string) (*models.DwellPoint, error) {
	row := r.db.QueryRow("SELECT "+dwellColumns+" FROM dwells WHERE id = ?", id)
	d, err := scanDwell(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dwell: %w", err)
	}
	return d, nil
}

// UpdateVenueOverride stores the user's manual venue correction.
func (r *DwellRepository) UpdateVenueOverride(id, name string) error {
	res, err := r.db.Exec("UPDATE dwells SET venue_override = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("failed to update venue override: %w", err)
	}
	return requireRow(res)
}

// UpdateRating stores the user's rating and note for a dwell.
func (r *DwellRepository) UpdateRating(id string, rating int, note string) error {
	res, err := r.db.Exec("UPDATE dwells SET rating = ?, note = ? WHERE id = ?", rating, note, id)
	if err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDwell(row rowScanner) (*models.DwellPoint, error) {
	var (
		d          models.DwellPoint
		startTime  int64
		endTime    int64
		confidence string
		nearby     string
	)
	err := row.Scan(
		&d.ID, &d.SessionID, &d.AnchorLat, &d.AnchorLon, &startTime, &endTime,
		&confidence, &d.SampleCount, &d.IsRevisit, &d.RevisitOf,
		&d.VenueName, &d.VenueOverride, &nearby, &d.Rating, &d.Note,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan dwell: %w", err)
	}

	d.StartTime = time.Unix(startTime, 0).UTC()
	d.EndTime = time.Unix(endTime, 0).UTC()
	d.Confidence = models.Confidence(confidence)
	d.NearbyVenues = decodeNearby(nearby)
	return &d, nil
}

func encodeNearby(names []string) string {
	if len(names) == 0 {
		return "[]"
	}
	b, err := json.Marshal(names)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeNearby(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil
	}
	return names
}
