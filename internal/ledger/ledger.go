package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Ammarmeer/drowsiness/internal/models"
)

// DetectionWriter holds the two writes behind RecordDetection.
type DetectionWriter interface {
	InsertDetection(ctx context.Context, d *models.Detection) error
	// IncrementSessionCounters matches zero rows for an unknown session without failing.
	IncrementSessionCounters(ctx context.Context, sessionID int64, drowsy bool) error
}

type Store interface {
	DetectionWriter
	CreateSession(ctx context.Context, userID int64, startedAt time.Time, loc *models.Location) (int64, error)
	CountActiveSessions(ctx context.Context, userID int64) (int64, error)
	// EndSession returns models.ErrNotFound when no row matched.
	EndSession(ctx context.Context, sessionID int64, endedAt time.Time, distanceKm *float64, loc *models.Location) error
	WithinTx(ctx context.Context, fn func(DetectionWriter) error) error
}

// AlertPublisher receives drowsy detections for live subscribers.
type AlertPublisher interface {
	Publish(ctx context.Context, alert models.DrowsyAlert) error
}

// Recorder observes recorded detections, typically metrics.
type Recorder interface {
	ObserveDetection(drowsy bool)
}

type Options struct {
	// AtomicDetections wraps the detection insert and the counter update in one transaction.
	// When false the two statements run back to back and a crash between them leaves
	// total_detections behind the stored detection rows.
	AtomicDetections bool
	// SingleActiveSession rejects StartSession while the user has a session with no end_time.
	SingleActiveSession bool
}

type Ledger struct {
	store    Store
	opts     Options
	alerts   AlertPublisher
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Ledger)

func WithAlerts(p AlertPublisher) Option {
	return func(l *Ledger) { l.alerts = p }
}

func WithRecorder(r Recorder) Option {
	return func(l *Ledger) { l.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(store Store, opts Options, options ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		opts:   opts,
		logger: slog.Default().With("component", "ledger"),
		now:    time.Now,
	}
	for _, o := range options {
		o(l)
	}
	return l
}

// StartSession opens a session with zeroed counters. The user id is not validated here.
func (l *Ledger) StartSession(ctx context.Context, userID int64, loc *models.Location) (int64, error) {
	if l.opts.SingleActiveSession {
		active, err := l.store.CountActiveSessions(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("count active sessions: %w", err)
		}
		if active > 0 {
			return 0, models.ErrActiveSessionExists
		}
	}

	id, err := l.store.CreateSession(ctx, userID, l.now().UTC(), loc)
	if err != nil {
		return 0, fmt.Errorf("start session: %w", err)
	}
	l.logger.InfoContext(ctx, "session started", "session_id", id, "user_id", userID)
	return id, nil
}

// EndSession stamps end_time unconditionally; calling it again re-stamps it.
func (l *Ledger) EndSession(ctx context.Context, sessionID int64, distanceKm *float64, loc *models.Location) error {
	if err := l.store.EndSession(ctx, sessionID, l.now().UTC(), distanceKm, loc); err != nil {
		return fmt.Errorf("end session %d: %w", sessionID, err)
	}
	l.logger.InfoContext(ctx, "session ended", "session_id", sessionID)
	return nil
}

// RecordDetection stores one classified frame and bumps the session counters.
// An unknown session id is not an error at this layer.
func (l *Ledger) RecordDetection(ctx context.Context, sessionID int64, label string, confidence float64, loc *models.Location) (models.DetectionResult, error) {
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return models.DetectionResult{}, fmt.Errorf("%w: confidence %v outside [0,1]", models.ErrInvalidInput, confidence)
	}

	drowsy := IsDrowsy(label, confidence)
	det := &models.Detection{
		SessionID:  sessionID,
		Timestamp:  l.now().UTC(),
		Prediction: label,
		Confidence: confidence,
		Location:   loc,
	}

	write := func(w DetectionWriter) error {
		if err := w.InsertDetection(ctx, det); err != nil {
			return fmt.Errorf("insert detection: %w", err)
		}
		if err := w.IncrementSessionCounters(ctx, sessionID, drowsy); err != nil {
			return fmt.Errorf("update session counters: %w", err)
		}
		return nil
	}

	var err error
	if l.opts.AtomicDetections {
		err = l.store.WithinTx(ctx, write)
	} else {
		err = write(l.store)
	}
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("record detection for session %d: %w", sessionID, err)
	}

	result := models.DetectionResult{
		Prediction: label,
		Confidence: confidence,
		IsDrowsy:   drowsy,
		AlertLevel: AlertLevel(drowsy, confidence),
	}

	if l.recorder != nil {
		l.recorder.ObserveDetection(drowsy)
	}
	if drowsy && l.alerts != nil {
		alert := models.DrowsyAlert{
			SessionID:  sessionID,
			Prediction: label,
			Confidence: confidence,
			AlertLevel: result.AlertLevel,
			Location:   loc,
			Timestamp:  det.Timestamp,
		}
		if err := l.alerts.Publish(ctx, alert); err != nil {
			l.logger.WarnContext(ctx, "alert publish failed", "session_id", sessionID, "error", err)
		}
	}
	return result, nil
}
