package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Ammarmeer/drowsiness/internal/alerts"
	"github.com/Ammarmeer/drowsiness/internal/classifier"
	"github.com/Ammarmeer/drowsiness/internal/credentials"
	"github.com/Ammarmeer/drowsiness/internal/dashboard"
	"github.com/Ammarmeer/drowsiness/internal/ledger"
	"github.com/Ammarmeer/drowsiness/internal/services"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Ledger      *ledger.Ledger
	Dashboard   *dashboard.Aggregator
	Credentials *credentials.Service
	Classifier  *classifier.Guard
	Alerts      *alerts.Hub
	Metrics     *services.Metrics
	DB          Pinger
}

type Options struct {
	AuthRequired   bool
	CORSOrigins    []string
	MaxUploadBytes int64
	Version        string
}

type Server struct {
	Deps
	opts    Options
	started time.Time
}

func NewServer(deps Deps, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &Server{Deps: deps, opts: opts, started: time.Now()}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware(s.opts.CORSOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler())
	}

	r.Post("/users/register", s.handleRegister)
	r.Post("/users/login", s.handleLogin)
	r.Get("/users/{userID}/dashboard", s.handleDriverDashboard)

	r.Post("/sessions/start", s.handleStartSession)
	r.Post("/sessions/{sessionID}/end", s.handleEndSession)
	r.Get("/sessions/{sessionID}/details", s.handleSessionDetails)
	r.Post("/detect/{sessionID}", s.handleDetect)

	r.Post("/predict_image", s.handlePredict)
	r.Post("/predict_frame", s.handlePredict)

	r.Group(func(r chi.Router) {
		if s.opts.AuthRequired {
			r.Use(requireAdmin(s.Credentials.Tokens()))
		}
		r.Get("/admin/dashboard", s.handleFleetDashboard)
		r.Get("/admin/drivers", s.handleDrivers)
		r.Get("/admin/sessions", s.handleListSessions)
		if s.Alerts != nil {
			r.Handle("/ws/alerts", s.Alerts)
		}
	})

	return r
}
