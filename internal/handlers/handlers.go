package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Ammarmeer/drowsiness/internal/classifier"
	"github.com/Ammarmeer/drowsiness/internal/models"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{"message": "DrowsyGuard API", "status": "running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	h := models.HealthStatus{
		Status:  "healthy",
		Uptime:  time.Since(s.started).Round(time.Second),
		Version: s.opts.Version,
	}
	if s.DB != nil {
		h.Database = s.DB.Ping(ctx) == nil
	}
	h.Classifier = s.Classifier.Ready(ctx)
	if s.Alerts != nil {
		h.WSClients = s.Alerts.Count()
	}

	status := http.StatusOK
	if !h.Database {
		h.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "register", err)
		return
	}
	id, err := s.Credentials.Register(r.Context(), req)
	if err != nil {
		s.fail(w, r, "register", err)
		return
	}
	writeOK(w, envelope{"user_id": id, "message": "User registered successfully"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "login", err)
		return
	}
	u, token, err := s.Credentials.Login(r.Context(), req)
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	writeOK(w, envelope{
		"user": envelope{
			"id":       u.ID,
			"username": u.Username,
			"email":    u.Email,
			"phone":    u.Phone,
			"role":     u.Role,
		},
		"access_token": token,
		"token_type":   "Bearer",
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, "start session", err)
		return
	}
	id, err := s.Ledger.StartSession(r.Context(), req.UserID, models.NewLocation(req.Latitude, req.Longitude))
	if err != nil {
		s.fail(w, r, "start session", err)
		return
	}
	writeOK(w, envelope{"session_id": id})
}

// handleEndSession accepts an empty body; distance and end location are optional.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sessionID")
	if err != nil {
		s.fail(w, r, "end session", err)
		return
	}
	var req models.EndSessionRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.fail(w, r, "end session", err)
		return
	}
	if err := s.Ledger.EndSession(r.Context(), id, req.DistanceKm, models.NewLocation(req.Latitude, req.Longitude)); err != nil {
		s.fail(w, r, "end session", err)
		return
	}
	writeOK(w, envelope{"message": "Session ended successfully"})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sessionID")
	if err != nil {
		s.fail(w, r, "detect", err)
		return
	}
	frame, err := s.readFrame(w, r)
	if err != nil {
		s.fail(w, r, "detect", err)
		return
	}
	lat, err := optionalFloat(r, "latitude")
	if err != nil {
		s.fail(w, r, "detect", err)
		return
	}
	lng, err := optionalFloat(r, "longitude")
	if err != nil {
		s.fail(w, r, "detect", err)
		return
	}

	p := s.classify(r.Context(), frame)
	result, err := s.Ledger.RecordDetection(r.Context(), id, p.Label, p.Confidence, models.NewLocation(lat, lng))
	if err != nil {
		s.fail(w, r, "detect", err)
		return
	}
	writeOK(w, envelope{"data": result})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	frame, err := s.readFrame(w, r)
	if err != nil {
		s.fail(w, r, "predict", err)
		return
	}
	writeOK(w, envelope{"data": s.classify(r.Context(), frame)})
}

func (s *Server) handleDriverDashboard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userID")
	if err != nil {
		s.fail(w, r, "driver dashboard", err)
		return
	}
	d, err := s.Dashboard.DriverDashboard(r.Context(), id)
	if err != nil {
		s.fail(w, r, "driver dashboard", err)
		return
	}
	writeOK(w, envelope{"data": d})
}

func (s *Server) handleFleetDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Dashboard.FleetSnapshot(r.Context())
	if err != nil {
		s.fail(w, r, "fleet dashboard", err)
		return
	}
	writeOK(w, envelope{"data": snap})
}

func (s *Server) handleDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := s.Dashboard.DriverRoster(r.Context())
	if err != nil {
		s.fail(w, r, "drivers", err)
		return
	}
	writeOK(w, envelope{"data": drivers})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.fail(w, r, "list sessions", err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.fail(w, r, "list sessions", err)
		return
	}
	page, err := s.Dashboard.ListSessions(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, r, "list sessions", err)
		return
	}
	writeOK(w, envelope{"data": page})
}

func (s *Server) handleSessionDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sessionID")
	if err != nil {
		s.fail(w, r, "session details", err)
		return
	}
	detail, err := s.Dashboard.SessionDetail(r.Context(), id)
	if err != nil {
		s.fail(w, r, "session details", err)
		return
	}
	writeOK(w, envelope{"data": detail})
}

// readFrame pulls the "file" part of a multipart upload and decodes it.
func (s *Server) readFrame(w http.ResponseWriter, r *http.Request) (classifier.Frame, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		return classifier.Frame{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return classifier.Frame{}, fmt.Errorf("%w: file is required", models.ErrInvalidInput)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return classifier.Frame{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return classifier.DecodeFrame(data)
}

func (s *Server) classify(ctx context.Context, frame classifier.Frame) classifier.Prediction {
	start := time.Now()
	p := s.Classifier.Predict(ctx, frame)
	if s.Metrics != nil {
		s.Metrics.IncrementFrames()
		s.Metrics.RecordLatency(time.Since(start))
	}
	return p
}
