package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Ammarmeer/drowsiness/internal/models"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, fields envelope) {
	body := envelope{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, envelope{"success": false, "detail": detail})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrRoleMismatch):
		return http.StatusForbidden, models.ErrRoleMismatch.Error()
	case errors.Is(err, models.ErrRegistrationRole):
		return http.StatusForbidden, models.ErrRegistrationRole.Error()
	case errors.Is(err, models.ErrAuthFailure):
		return http.StatusUnauthorized, models.ErrAuthFailure.Error()
	case errors.Is(err, models.ErrDuplicateCredential):
		return http.StatusBadRequest, models.ErrDuplicateCredential.Error()
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrActiveSessionExists):
		return http.StatusConflict, models.ErrActiveSessionExists.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, detail := statusFor(err)
	if status >= 500 {
		httpLogger().ErrorContext(r.Context(), op+" failed",
			"request_id", requestIDFromContext(r.Context()), "error", err)
	}
	writeError(w, status, detail)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, models.ErrInvalidInput
	}
	return id, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return nil
}

// decodeOptionalJSON treats an empty body as the zero value.
func decodeOptionalJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, models.ErrInvalidInput
	}
	return v, nil
}

// optionalFloat reads a coordinate from the query string first, then the form.
func optionalFloat(r *http.Request, key string) (*float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" && r.MultipartForm != nil {
		if vals := r.MultipartForm.Value[key]; len(vals) > 0 {
			raw = vals[0]
		}
	}
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, models.ErrInvalidInput
	}
	return &v, nil
}
