package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ammarmeer/drowsiness/internal/models"
)

type fakeStore struct {
	detections []models.Detection
	total      map[int64]int64
	drowsy     map[int64]int64
	ended      map[int64]time.Time
	active     int64
	nextID     int64
	txCalls    int
	failInc    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		total:  map[int64]int64{},
		drowsy: map[int64]int64{},
		ended:  map[int64]time.Time{},
	}
}

func (f *fakeStore) InsertDetection(_ context.Context, d *models.Detection) error {
	d.ID = int64(len(f.detections) + 1)
	f.detections = append(f.detections, *d)
	return nil
}

func (f *fakeStore) IncrementSessionCounters(_ context.Context, sessionID int64, drowsy bool) error {
	if f.failInc != nil {
		return f.failInc
	}
	f.total[sessionID]++
	if drowsy {
		f.drowsy[sessionID]++
	}
	return nil
}

func (f *fakeStore) CreateSession(context.Context, int64, time.Time, *models.Location) (int64, error) {
	f.nextID++
	return f.nextID, nil
}

func (f *fakeStore) CountActiveSessions(context.Context, int64) (int64, error) {
	return f.active, nil
}

func (f *fakeStore) EndSession(_ context.Context, sessionID int64, endedAt time.Time, _ *float64, _ *models.Location) error {
	if sessionID > f.nextID {
		return models.ErrNotFound
	}
	f.ended[sessionID] = endedAt
	return nil
}

// WithinTx discards the fake's writes when fn fails.
func (f *fakeStore) WithinTx(ctx context.Context, fn func(DetectionWriter) error) error {
	f.txCalls++
	saved := len(f.detections)
	total := copyCounts(f.total)
	drowsy := copyCounts(f.drowsy)
	if err := fn(f); err != nil {
		f.detections = f.detections[:saved]
		f.total, f.drowsy = total, drowsy
		return err
	}
	return nil
}

func copyCounts(m map[int64]int64) map[int64]int64 {
	out := make(map[int64]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type capturePublisher struct {
	alerts []models.DrowsyAlert
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, a models.DrowsyAlert) error {
	c.alerts = append(c.alerts, a)
	return c.err
}

type countRecorder struct{ total, drowsy int }

func (c *countRecorder) ObserveDetection(drowsy bool) {
	c.total++
	if drowsy {
		c.drowsy++
	}
}

func TestIsDrowsy(t *testing.T) {
	tests := []struct {
		label      string
		confidence float64
		want       bool
	}{
		{"drowsy", 0.75, true},
		{"Drowsy", 0.85, true},
		{"SLEEPY", 0.71, true},
		{"tired", 0.65, false},
		{"drowsy", 0.7, false},
		{"alert", 0.99, false},
		{"drowsy_eyes", 0.99, false},
		{"no_detection", 0, false},
		{"model_error", 0, false},
	}
	for _, tt := range tests {
		if got := IsDrowsy(tt.label, tt.confidence); got != tt.want {
			t.Errorf("IsDrowsy(%q, %v) = %v, want %v", tt.label, tt.confidence, got, tt.want)
		}
	}
}

func TestAlertLevel(t *testing.T) {
	if got := AlertLevel(true, 0.85); got != AlertHigh {
		t.Errorf("drowsy 0.85 = %q", got)
	}
	if got := AlertLevel(true, 0.75); got != AlertLow {
		t.Errorf("drowsy 0.75 = %q", got)
	}
	if got := AlertLevel(false, 0.95); got != AlertLow {
		t.Errorf("non-drowsy 0.95 = %q", got)
	}
}

func TestRecordDetection(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	rec := &countRecorder{}
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	l := New(store, Options{AtomicDetections: true}, WithAlerts(pub), WithRecorder(rec), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	id, err := l.StartSession(ctx, 1, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := l.RecordDetection(ctx, id, "drowsy", 0.75, models.NewLocation(ptr(1.5), ptr(2.5)))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsDrowsy || res.AlertLevel != AlertLow {
		t.Errorf("drowsy 0.75 result = %+v", res)
	}

	res, err = l.RecordDetection(ctx, id, "tired", 0.65, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsDrowsy || res.AlertLevel != AlertLow {
		t.Errorf("tired 0.65 result = %+v", res)
	}

	res, err = l.RecordDetection(ctx, id, "Drowsy", 0.85, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsDrowsy || res.AlertLevel != AlertHigh {
		t.Errorf("Drowsy 0.85 result = %+v", res)
	}

	if store.total[id] != 3 || store.drowsy[id] != 2 {
		t.Errorf("counters = %d/%d, want 3/2", store.total[id], store.drowsy[id])
	}
	if len(store.detections) != 3 {
		t.Fatalf("stored %d detections, want 3", len(store.detections))
	}
	if got := store.detections[0]; got.Location == nil || got.Location.Lat != 1.5 || !got.Timestamp.Equal(fixed) {
		t.Errorf("first detection = %+v", got)
	}
	if store.txCalls != 3 {
		t.Errorf("txCalls = %d, want 3", store.txCalls)
	}
	if len(pub.alerts) != 2 || pub.alerts[1].AlertLevel != AlertHigh || pub.alerts[0].SessionID != id {
		t.Errorf("alerts = %+v", pub.alerts)
	}
	if rec.total != 3 || rec.drowsy != 2 {
		t.Errorf("recorder = %+v", rec)
	}
}

func TestRecordDetectionSequential(t *testing.T) {
	store := newFakeStore()
	l := New(store, Options{})
	if _, err := l.RecordDetection(context.Background(), 7, "alert", 0.9, nil); err != nil {
		t.Fatal(err)
	}
	if store.txCalls != 0 {
		t.Errorf("txCalls = %d, want 0", store.txCalls)
	}
	if store.total[7] != 1 {
		t.Errorf("total = %d, want 1", store.total[7])
	}
}

func TestRecordDetectionRollsBack(t *testing.T) {
	store := newFakeStore()
	store.failInc = errors.New("disk full")
	l := New(store, Options{AtomicDetections: true})

	_, err := l.RecordDetection(context.Background(), 1, "drowsy", 0.9, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(store.detections) != 0 {
		t.Errorf("detection survived failed transaction: %+v", store.detections)
	}
}

func TestRecordDetectionRejectsConfidence(t *testing.T) {
	l := New(newFakeStore(), Options{})
	for _, c := range []float64{-0.1, 1.01} {
		if _, err := l.RecordDetection(context.Background(), 1, "drowsy", c, nil); !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("confidence %v err = %v, want ErrInvalidInput", c, err)
		}
	}
}

func TestPublishFailureDoesNotFailDetection(t *testing.T) {
	pub := &capturePublisher{err: errors.New("redis down")}
	l := New(newFakeStore(), Options{}, WithAlerts(pub))
	res, err := l.RecordDetection(context.Background(), 1, "sleepy", 0.95, nil)
	if err != nil {
		t.Fatalf("RecordDetection: %v", err)
	}
	if !res.IsDrowsy || len(pub.alerts) != 1 {
		t.Errorf("result = %+v alerts = %d", res, len(pub.alerts))
	}
}

func TestStartSessionSingleActive(t *testing.T) {
	store := newFakeStore()
	store.active = 1

	if _, err := New(store, Options{}).StartSession(context.Background(), 1, nil); err != nil {
		t.Errorf("default options: %v", err)
	}
	_, err := New(store, Options{SingleActiveSession: true}).StartSession(context.Background(), 1, nil)
	if !errors.Is(err, models.ErrActiveSessionExists) {
		t.Errorf("err = %v, want ErrActiveSessionExists", err)
	}
}

func TestEndSession(t *testing.T) {
	store := newFakeStore()
	l := New(store, Options{})
	ctx := context.Background()
	id, _ := l.StartSession(ctx, 1, nil)

	if err := l.EndSession(ctx, id, nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.ended[id]; !ok {
		t.Error("session not ended")
	}
	if err := l.EndSession(ctx, id+10, nil, nil); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown session err = %v, want ErrNotFound", err)
	}
}

func ptr(f float64) *float64 { return &f }
