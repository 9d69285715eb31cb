package dashboard

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Ammarmeer/drowsiness/internal/models"
)

const (
	DefaultRecentSessions = 10
	DefaultPageSize       = 50
	RecentLogSize         = 50
)

// Reader is the read side of the store the aggregator projects from.
type Reader interface {
	EndedSessionTotals(ctx context.Context, userID int64) (models.SessionTotals, error)
	RecentEndedSessions(ctx context.Context, userID int64, limit int) ([]models.RecentSession, error)
	CountDrivers(ctx context.Context) (int64, error)
	CountEndedSessions(ctx context.Context) (int64, error)
	ActiveSessions(ctx context.Context) ([]models.ActiveSession, error)
	RecentDetections(ctx context.Context, limit int) ([]models.DetectionLogEntry, error)
	DriverRoster(ctx context.Context) ([]models.DriverSummary, error)
	ListSessions(ctx context.Context, limit, offset int) ([]models.SessionListEntry, int64, error)
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	SessionDetections(ctx context.Context, sessionID int64) ([]models.Detection, error)
}

type Aggregator struct {
	r Reader
}

func New(r Reader) *Aggregator {
	return &Aggregator{r: r}
}

// SafetyScore penalises two points per percent of drowsy frames, floored at zero.
func SafetyScore(total, drowsy int64) float64 {
	if total <= 0 {
		return 100.0
	}
	rate := float64(drowsy) / float64(total) * 100
	score := math.Max(0, 100-rate*2)
	return math.Round(score*10) / 10
}

// LatestLooksDrowsy is the fleet view's looser test: any label containing "drowsy".
func LatestLooksDrowsy(prediction *string) bool {
	if prediction == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*prediction), "drowsy")
}

func (a *Aggregator) DriverSafetyScore(ctx context.Context, userID int64) (float64, error) {
	t, err := a.r.EndedSessionTotals(ctx, userID)
	if err != nil {
		return 0, err
	}
	return SafetyScore(t.TotalDetections, t.DrowsyDetections), nil
}

func (a *Aggregator) RecentSessions(ctx context.Context, userID int64, limit int) ([]models.RecentSession, error) {
	if limit <= 0 {
		limit = DefaultRecentSessions
	}
	return a.r.RecentEndedSessions(ctx, userID, limit)
}

func (a *Aggregator) DriverDashboard(ctx context.Context, userID int64) (*models.DriverDashboard, error) {
	t, err := a.r.EndedSessionTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := a.RecentSessions(ctx, userID, DefaultRecentSessions)
	if err != nil {
		return nil, err
	}
	return &models.DriverDashboard{
		TotalSessions:   t.Sessions,
		TotalAlerts:     t.DrowsyDetections,
		TotalDetections: t.TotalDetections,
		SafetyScore:     SafetyScore(t.TotalDetections, t.DrowsyDetections),
		RecentSessions:  recent,
	}, nil
}

// FleetSnapshot counts drivers and sessions by active session, so a driver with
// two open sessions shows up twice in active_drivers.
func (a *Aggregator) FleetSnapshot(ctx context.Context) (*models.FleetSnapshot, error) {
	drivers, err := a.r.CountDrivers(ctx)
	if err != nil {
		return nil, err
	}
	ended, err := a.r.CountEndedSessions(ctx)
	if err != nil {
		return nil, err
	}
	active, err := a.r.ActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := a.r.RecentDetections(ctx, RecentLogSize)
	if err != nil {
		return nil, err
	}

	var drowsy int64
	for i := range active {
		active[i].LatestDrowsy = LatestLooksDrowsy(active[i].LatestPrediction)
		if active[i].LatestDrowsy {
			drowsy++
		}
	}
	if active == nil {
		active = []models.ActiveSession{}
	}

	return &models.FleetSnapshot{
		TotalDrivers:       drivers,
		ActiveDrivers:      int64(len(active)),
		DrowsyDrivers:      drowsy,
		TotalSessions:      ended,
		ActiveSessions:     active,
		RecentDetectionLog: logs,
	}, nil
}

func (a *Aggregator) DriverRoster(ctx context.Context) ([]models.DriverSummary, error) {
	drivers, err := a.r.DriverRoster(ctx)
	if err != nil {
		return nil, err
	}
	if drivers == nil {
		drivers = []models.DriverSummary{}
	}
	return drivers, nil
}

func (a *Aggregator) ListSessions(ctx context.Context, limit, offset int) (*models.SessionPage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	sessions, total, err := a.r.ListSessions(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return &models.SessionPage{Sessions: sessions, Total: total, Limit: limit, Offset: offset}, nil
}

func (a *Aggregator) SessionDetail(ctx context.Context, sessionID int64) (*models.SessionDetail, error) {
	sess, err := a.r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", sessionID, err)
	}
	detections, err := a.r.SessionDetections(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &models.SessionDetail{Session: *sess, Detections: detections}, nil
}
