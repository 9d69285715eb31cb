package classifier

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// Sentinel labels. None of them ever counts as drowsy.
const (
	LabelNoDetection = "no_detection"
	LabelError       = "error"
	LabelModelError  = "model_error"
)

type Prediction struct {
	Label      string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// Classifier runs the detection model on a single BGR frame. An empty result
// should be reported as LabelNoDetection, not as an error.
type Classifier interface {
	Classify(ctx context.Context, frame Frame) (Prediction, error)
}

// HealthChecker is implemented by classifiers that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// Guard wraps a Classifier so callers always get a Prediction back.
type Guard struct {
	c       Classifier
	timeout time.Duration
	logger  *slog.Logger
	onError func()
}

type GuardOption func(*Guard)

// WithErrorHook registers fn to be called on each classifier failure.
func WithErrorHook(fn func()) GuardOption {
	return func(g *Guard) { g.onError = fn }
}

// NewGuard accepts a nil classifier; every prediction is then LabelModelError.
func NewGuard(c Classifier, timeout time.Duration, opts ...GuardOption) *Guard {
	g := &Guard{
		c:       c,
		timeout: timeout,
		logger:  slog.Default().With("component", "classifier"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Predict(ctx context.Context, frame Frame) Prediction {
	if g == nil || g.c == nil {
		return Prediction{Label: LabelModelError}
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	p, err := g.c.Classify(ctx, frame)
	if err != nil {
		g.logger.ErrorContext(ctx, "inference failed", "error", err, "width", frame.Width, "height", frame.Height)
		if g.onError != nil {
			g.onError()
		}
		return Prediction{Label: LabelError}
	}
	if p.Label == "" || p.Label == LabelNoDetection {
		return Prediction{Label: LabelNoDetection}
	}
	p.Confidence = round4(p.Confidence)
	return p
}

// Ready reports false for a missing classifier and true for one that cannot report health.
func (g *Guard) Ready(ctx context.Context) bool {
	if g == nil || g.c == nil {
		return false
	}
	hc, ok := g.c.(HealthChecker)
	if !ok {
		return true
	}
	return hc.HealthCheck(ctx)
}

func round4(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10000) / 10000
}
