// Copyright 2026 The SessionTrack Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// @title SessionTrack API
// @version 1.0.0
// @description Session registry with idle sweep and field-level encryption at rest

// @host localhost:3500
// @BasePath /

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sessiontrack/sessiontrack/internal/observability/logger"
	"github.com/sessiontrack/sessiontrack/internal/session"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	sessionService *session.Service
}

// NewHandler creates a new HTTP handler
func NewHandler(sessionService *session.Service) *Handler {
	return &Handler{sessionService: sessionService}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(ClientAddressMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Put("/update", h.Update)
	r.Get("/status", h.Status)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.ListAll)
		r.Get("/active", h.ListActive)
		r.Delete("/", h.PurgeAll)
	})

	return r
}

// HealthCheck reports process liveness
// @Summary Health check
// @Tags Meta
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

type updateRequest struct {
	SessionID string `json:"session_id"`
	session.UpdateInput
}

// Login creates a new session
// @Summary Open a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body session.LoginInput true "Identity fields"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req session.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.sessionService.Login(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message":    "session opened",
		"session_id": sess.ID,
	})
}

// Logout closes a session explicitly
// @Summary Close a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body logoutRequest true "Session to close"
// @Success 200 {object} session.Session
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	sess, err := h.sessionService.Logout(r.Context(), req.SessionID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, sess)
}

// Update applies a partial update to a session
// @Summary Update session fields
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body updateRequest true "Fields to update"
// @Success 200 {object} session.Session
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /update [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	sess, err := h.sessionService.Update(r.Context(), req.SessionID, req.UpdateInput)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, sess)
}

// Status returns one session with live-recomputed times
// @Summary Session status
// @Tags Sessions
// @Produce json
// @Param session_id query string true "Session ID"
// @Success 200 {object} session.Session
// @Failure 404 {object} map[string]string
// @Router /status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	sess, err := h.sessionService.Status(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, sess)
}

// ListAll returns a snapshot of every session
// @Summary List all sessions
// @Tags Sessions
// @Produce json
// @Success 200 {array} session.Session
// @Router /sessions [get]
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.ListAll(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

// ListActive returns the Active sessions only
// @Summary List active sessions
// @Tags Sessions
// @Produce json
// @Success 200 {array} session.Session
// @Router /sessions/active [get]
func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.ListActive(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

// PurgeAll deletes every session record
// @Summary Purge all sessions
// @Description Unconditionally deletes every record. No confirmation step.
// @Tags Sessions
// @Produce json
// @Success 200 {object} map[string]int64
// @Router /sessions [delete]
func (h *Handler) PurgeAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.sessionService.PurgeAll(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"purged_count": n})
}

// respondServiceError maps the domain error taxonomy onto HTTP status
// codes: 400 validation, 404 not found, 409 invalid state, 500 store
// or crypto failure.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrInvalidState):
		respondError(w, http.StatusConflict, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed", logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
