package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Ammarmeer/drowsiness/internal/models"
)

func (s *Store) CreateSession(ctx context.Context, userID int64, startedAt time.Time, loc *models.Location) (int64, error) {
	lat, lng := locationArgs(loc)

	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO sessions (user_id, start_time, start_lat, start_lng)
		 VALUES (?, ?, ?, ?) RETURNING id`),
		userID, startedAt.UTC(), lat, lng,
	).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("user %d: %w", userID, models.ErrNotFound)
		}
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

func (s *Store) CountActiveSessions(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM sessions WHERE user_id = ? AND end_time IS NULL`), userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}

// EndSession has no state check: an already ended session is simply re-stamped.
func (s *Store) EndSession(ctx context.Context, sessionID int64, endedAt time.Time, distanceKm *float64, loc *models.Location) error {
	lat, lng := locationArgs(loc)

	var distance any
	if distanceKm != nil {
		distance = *distanceKm
	}

	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE sessions
		 SET end_time = ?,
		     distance_km = COALESCE(?, distance_km),
		     end_lat = COALESCE(?, end_lat),
		     end_lng = COALESCE(?, end_lng)
		 WHERE id = ?`),
		endedAt.UTC(), distance, lat, lng, sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) InsertDetection(ctx context.Context, d *models.Detection) error {
	return s.insertDetection(ctx, s.db, d)
}

func (s *Store) IncrementSessionCounters(ctx context.Context, sessionID int64, drowsy bool) error {
	return s.incrementSessionCounters(ctx, s.db, sessionID, drowsy)
}

func (s *Store) insertDetection(ctx context.Context, q queryer, d *models.Detection) error {
	lat, lng := locationArgs(d.Location)
	err := q.QueryRowContext(ctx, s.rebind(
		`INSERT INTO detections (session_id, timestamp, prediction, confidence, latitude, longitude)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		d.SessionID, d.Timestamp.UTC(), d.Prediction, d.Confidence, lat, lng,
	).Scan(&d.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("session %d: %w", d.SessionID, models.ErrNotFound)
		}
		return fmt.Errorf("insert detection: %w", err)
	}
	return nil
}

func (s *Store) incrementSessionCounters(ctx context.Context, q queryer, sessionID int64, drowsy bool) error {
	inc := 0
	if drowsy {
		inc = 1
	}
	_, err := q.ExecContext(ctx, s.rebind(
		`UPDATE sessions
		 SET total_detections = total_detections + 1,
		     drowsy_detections = drowsy_detections + ?
		 WHERE id = ?`),
		inc, sessionID,
	)
	if err != nil {
		return fmt.Errorf("increment session counters: %w", err)
	}
	return nil
}
