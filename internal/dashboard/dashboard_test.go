package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ammarmeer/drowsiness/internal/models"
)

type fakeReader struct {
	totals     models.SessionTotals
	recent     []models.RecentSession
	drivers    int64
	ended      int64
	active     []models.ActiveSession
	logs       []models.DetectionLogEntry
	roster     []models.DriverSummary
	sessions   []models.SessionListEntry
	session    *models.Session
	detections []models.Detection

	gotRecentLimit int
	gotLogLimit    int
	gotPage        [2]int
}

func (f *fakeReader) EndedSessionTotals(ctx context.Context, userID int64) (models.SessionTotals, error) {
	return f.totals, nil
}

func (f *fakeReader) RecentEndedSessions(ctx context.Context, userID int64, limit int) ([]models.RecentSession, error) {
	f.gotRecentLimit = limit
	return f.recent, nil
}

func (f *fakeReader) CountDrivers(ctx context.Context) (int64, error) { return f.drivers, nil }

func (f *fakeReader) CountEndedSessions(ctx context.Context) (int64, error) { return f.ended, nil }

func (f *fakeReader) ActiveSessions(ctx context.Context) ([]models.ActiveSession, error) {
	return f.active, nil
}

func (f *fakeReader) RecentDetections(ctx context.Context, limit int) ([]models.DetectionLogEntry, error) {
	f.gotLogLimit = limit
	return f.logs, nil
}

func (f *fakeReader) DriverRoster(ctx context.Context) ([]models.DriverSummary, error) {
	return f.roster, nil
}

func (f *fakeReader) ListSessions(ctx context.Context, limit, offset int) ([]models.SessionListEntry, int64, error) {
	f.gotPage = [2]int{limit, offset}
	return f.sessions, int64(len(f.sessions)), nil
}

func (f *fakeReader) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	if f.session == nil || f.session.ID != id {
		return nil, models.ErrNotFound
	}
	return f.session, nil
}

func (f *fakeReader) SessionDetections(ctx context.Context, sessionID int64) ([]models.Detection, error) {
	return f.detections, nil
}

func strPtr(s string) *string { return &s }

func TestSafetyScore(t *testing.T) {
	tests := []struct {
		name          string
		total, drowsy int64
		want          float64
	}{
		{"no detections", 0, 0, 100.0},
		{"quarter drowsy", 100, 25, 50.0},
		{"all clean", 40, 0, 100.0},
		{"floored at zero", 10, 8, 0.0},
		{"rounded to one decimal", 3, 1, 33.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafetyScore(tt.total, tt.drowsy); got != tt.want {
				t.Errorf("SafetyScore(%d, %d) = %v, want %v", tt.total, tt.drowsy, got, tt.want)
			}
		})
	}
}

func TestLatestLooksDrowsy(t *testing.T) {
	tests := []struct {
		prediction *string
		want       bool
	}{
		{nil, false},
		{strPtr("drowsy"), true},
		{strPtr("Very_Drowsy"), true},
		{strPtr("sleepy"), false},
		{strPtr("alert"), false},
	}
	for _, tt := range tests {
		if got := LatestLooksDrowsy(tt.prediction); got != tt.want {
			t.Errorf("LatestLooksDrowsy(%v) = %v, want %v", tt.prediction, got, tt.want)
		}
	}
}

func TestDriverDashboard(t *testing.T) {
	ctx := context.Background()

	t.Run("no ended sessions", func(t *testing.T) {
		agg := New(&fakeReader{})
		d, err := agg.DriverDashboard(ctx, 1)
		if err != nil {
			t.Fatalf("DriverDashboard: %v", err)
		}
		if d.SafetyScore != 100.0 || d.TotalSessions != 0 {
			t.Errorf("got %+v, want empty dashboard scoring 100", d)
		}
	})

	t.Run("totals and recent", func(t *testing.T) {
		r := &fakeReader{
			totals: models.SessionTotals{Sessions: 3, DrowsyDetections: 25, TotalDetections: 100},
			recent: []models.RecentSession{{ID: 9, Alerts: 5, TotalDetections: 20, DetectionCount: 18}},
		}
		d, err := New(r).DriverDashboard(ctx, 1)
		if err != nil {
			t.Fatalf("DriverDashboard: %v", err)
		}
		if d.TotalSessions != 3 || d.TotalAlerts != 25 || d.TotalDetections != 100 {
			t.Errorf("totals = %+v", d)
		}
		if d.SafetyScore != 50.0 {
			t.Errorf("SafetyScore = %v, want 50", d.SafetyScore)
		}
		if r.gotRecentLimit != DefaultRecentSessions {
			t.Errorf("recent limit = %d, want %d", r.gotRecentLimit, DefaultRecentSessions)
		}
		if len(d.RecentSessions) != 1 || d.RecentSessions[0].DetectionCount != 18 {
			t.Errorf("RecentSessions = %+v", d.RecentSessions)
		}
	})
}

func TestFleetSnapshotCountsActiveSessions(t *testing.T) {
	now := time.Now()
	r := &fakeReader{
		drivers: 2,
		ended:   4,
		active: []models.ActiveSession{
			{SessionID: 1, UserID: 7, StartTime: now, LatestPrediction: strPtr("Drowsy")},
			{SessionID: 2, UserID: 7, StartTime: now, LatestPrediction: strPtr("alert")},
			{SessionID: 3, UserID: 8, StartTime: now, LatestPrediction: strPtr("sleepy")},
			{SessionID: 4, UserID: 9, StartTime: now},
		},
	}
	snap, err := New(r).FleetSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FleetSnapshot: %v", err)
	}
	if snap.DrowsyDrivers != 1 {
		t.Errorf("DrowsyDrivers = %d, want 1", snap.DrowsyDrivers)
	}
	if snap.ActiveDrivers != 4 {
		t.Errorf("ActiveDrivers = %d, want 4", snap.ActiveDrivers)
	}
	if snap.TotalDrivers != 2 || snap.TotalSessions != 4 {
		t.Errorf("counts = %+v", snap)
	}
	if !snap.ActiveSessions[0].LatestDrowsy || snap.ActiveSessions[2].LatestDrowsy {
		t.Errorf("LatestDrowsy flags wrong: %+v", snap.ActiveSessions)
	}
	if r.gotLogLimit != RecentLogSize {
		t.Errorf("log limit = %d, want %d", r.gotLogLimit, RecentLogSize)
	}
}

func TestFleetSnapshotEmpty(t *testing.T) {
	snap, err := New(&fakeReader{}).FleetSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FleetSnapshot: %v", err)
	}
	if snap.ActiveSessions == nil {
		t.Error("ActiveSessions should be an empty slice, not nil")
	}
}

func TestListSessionsDefaults(t *testing.T) {
	r := &fakeReader{sessions: []models.SessionListEntry{{ID: 1}, {ID: 2}}}
	page, err := New(r).ListSessions(context.Background(), 0, -3)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if r.gotPage != [2]int{DefaultPageSize, 0} {
		t.Errorf("page args = %v", r.gotPage)
	}
	if page.Total != 2 || page.Limit != DefaultPageSize || page.Offset != 0 {
		t.Errorf("page = %+v", page)
	}
}

func TestSessionDetailNotFound(t *testing.T) {
	_, err := New(&fakeReader{}).SessionDetail(context.Background(), 42)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
