package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Ammarmeer/drowsiness/internal/models"
)

func (s *Store) EndedSessionTotals(ctx context.Context, userID int64) (models.SessionTotals, error) {
	var t models.SessionTotals
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*),
		        COALESCE(SUM(drowsy_detections), 0),
		        COALESCE(SUM(total_detections), 0)
		 FROM sessions
		 WHERE user_id = ? AND end_time IS NOT NULL`), userID,
	).Scan(&t.Sessions, &t.DrowsyDetections, &t.TotalDetections)
	if err != nil {
		return models.SessionTotals{}, fmt.Errorf("ended session totals: %w", err)
	}
	return t, nil
}

// RecentEndedSessions reports the stored counters next to a join count of detection rows;
// the two are read independently and may disagree.
func (s *Store) RecentEndedSessions(ctx context.Context, userID int64, limit int) ([]models.RecentSession, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT s.id, s.start_time, s.end_time, s.drowsy_detections, s.total_detections,
		        COUNT(d.id) AS detection_count
		 FROM sessions s
		 LEFT JOIN detections d ON s.id = d.session_id
		 WHERE s.user_id = ? AND s.end_time IS NOT NULL
		 GROUP BY s.id
		 ORDER BY s.start_time DESC, s.id DESC
		 LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	defer rows.Close()

	out := make([]models.RecentSession, 0, limit)
	for rows.Next() {
		var (
			rs         models.RecentSession
			start, end nullTime
		)
		if err := rows.Scan(&rs.ID, &start, &end, &rs.Alerts, &rs.TotalDetections, &rs.DetectionCount); err != nil {
			return nil, fmt.Errorf("scan recent session: %w", err)
		}
		rs.StartTime = start.Time
		rs.EndTime = end.ptr()
		out = append(out, rs)
	}
	return out, rows.Err()
}

func (s *Store) CountDrivers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM users WHERE role = ?`), models.RoleDriver,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count drivers: %w", err)
	}
	return n, nil
}

func (s *Store) CountEndedSessions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE end_time IS NOT NULL`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ended sessions: %w", err)
	}
	return n, nil
}

// ActiveSessions returns every session with no end_time, newest first, with the
// prediction of its most recent detection (nil when it has none).
func (s *Store) ActiveSessions(ctx context.Context) ([]models.ActiveSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, u.username, s.start_time, s.total_detections, s.drowsy_detections,
		        (SELECT d.prediction
		         FROM detections d
		         WHERE d.session_id = s.id
		         ORDER BY d.timestamp DESC, d.id DESC
		         LIMIT 1) AS latest_prediction
		 FROM sessions s
		 JOIN users u ON s.user_id = u.id
		 WHERE s.end_time IS NULL
		 ORDER BY s.start_time DESC, s.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("active sessions: %w", err)
	}
	defer rows.Close()

	var out []models.ActiveSession
	for rows.Next() {
		var (
			a      models.ActiveSession
			start  nullTime
			latest sql.NullString
		)
		if err := rows.Scan(&a.SessionID, &a.UserID, &a.Username, &start, &a.TotalDetections, &a.Alerts, &latest); err != nil {
			return nil, fmt.Errorf("scan active session: %w", err)
		}
		a.StartTime = start.Time
		a.LatestPrediction = nullString(latest)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) RecentDetections(ctx context.Context, limit int) ([]models.DetectionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT d.id, d.session_id, d.timestamp, d.prediction, d.confidence, u.username
		 FROM detections d
		 JOIN sessions s ON d.session_id = s.id
		 JOIN users u ON s.user_id = u.id
		 ORDER BY d.timestamp DESC, d.id DESC
		 LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("recent detections: %w", err)
	}
	defer rows.Close()

	out := make([]models.DetectionLogEntry, 0, limit)
	for rows.Next() {
		var (
			e  models.DetectionLogEntry
			ts nullTime
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &ts, &e.Prediction, &e.Confidence, &e.Username); err != nil {
			return nil, fmt.Errorf("scan detection log: %w", err)
		}
		e.Timestamp = ts.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

// DriverRoster lists drivers newest first. The active session start comes from an unordered
// LIMIT 1 subquery, so with several open sessions the one reported is up to the database.
func (s *Store) DriverRoster(ctx context.Context) ([]models.DriverSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT u.id, u.username, u.email, u.phone, u.created_at,
		        COUNT(DISTINCT s.id) AS total_sessions,
		        COALESCE(SUM(s.drowsy_detections), 0) AS total_alerts,
		        (SELECT s2.start_time
		         FROM sessions s2
		         WHERE s2.user_id = u.id AND s2.end_time IS NULL
		         LIMIT 1) AS active_session_start
		 FROM users u
		 LEFT JOIN sessions s ON u.id = s.user_id
		 WHERE u.role = ?
		 GROUP BY u.id
		 ORDER BY u.created_at DESC, u.id DESC`), models.RoleDriver)
	if err != nil {
		return nil, fmt.Errorf("driver roster: %w", err)
	}
	defer rows.Close()

	var out []models.DriverSummary
	for rows.Next() {
		var (
			d              models.DriverSummary
			phone          sql.NullString
			created, start nullTime
		)
		if err := rows.Scan(&d.ID, &d.Username, &d.Email, &phone, &created, &d.TotalSessions, &d.TotalAlerts, &start); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		d.Phone = nullString(phone)
		d.CreatedAt = created.Time
		d.ActiveSessionStart = start.ptr()
		d.IsActive = start.Valid
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]models.SessionListEntry, int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT s.id, s.user_id, u.username, s.start_time, s.end_time,
		        s.total_detections, s.drowsy_detections, s.distance_km
		 FROM sessions s
		 JOIN users u ON s.user_id = u.id
		 ORDER BY s.start_time DESC, s.id DESC
		 LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]models.SessionListEntry, 0, limit)
	for rows.Next() {
		var (
			e          models.SessionListEntry
			start, end nullTime
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Username, &start, &end, &e.TotalDetections, &e.Alerts, &e.Distance); err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		e.StartTime = start.Time
		e.EndTime = end.ptr()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return out, total, nil
}

func (s *Store) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	var (
		sess                               models.Session
		start, end                         nullTime
		startLat, startLng, endLat, endLng sql.NullFloat64
		userID                             sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, user_id, start_time, end_time, total_detections, drowsy_detections, distance_km,
		        start_lat, start_lng, end_lat, end_lng
		 FROM sessions WHERE id = ?`), id,
	).Scan(&sess.ID, &userID, &start, &end, &sess.TotalDetections, &sess.DrowsyDetections, &sess.DistanceKm,
		&startLat, &startLng, &endLat, &endLng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.UserID = userID.Int64
	sess.StartTime = start.Time
	sess.EndTime = end.ptr()
	sess.StartLocation = scanLocation(startLat, startLng)
	sess.EndLocation = scanLocation(endLat, endLng)
	return &sess, nil
}

func (s *Store) SessionDetections(ctx context.Context, sessionID int64) ([]models.Detection, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT d.id, d.session_id, d.timestamp, d.prediction, d.confidence, d.latitude, d.longitude
		 FROM detections d
		 WHERE d.session_id = ?
		 ORDER BY d.timestamp ASC, d.id ASC`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("session detections: %w", err)
	}
	defer rows.Close()

	out := []models.Detection{}
	for rows.Next() {
		var (
			d        models.Detection
			ts       nullTime
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&d.ID, &d.SessionID, &ts, &d.Prediction, &d.Confidence, &lat, &lng); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		d.Timestamp = ts.Time
		d.Location = scanLocation(lat, lng)
		out = append(out, d)
	}
	return out, rows.Err()
}
