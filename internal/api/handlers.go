package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voxlate/voxlate/internal/arbiter"
)

// Handler implements the /v1 endpoints.
type Handler struct {
	sessions Sessions
	logger   *slog.Logger
	service  string
	version  string
	started  time.Time
}

// NewHandler builds the endpoint handler. The logger must not be nil.
func NewHandler(cfg Config, sessions Sessions, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		logger:   logger,
		service:  cfg.Service,
		version:  cfg.Version,
		started:  time.Now(),
	}
}

// GetStatus reports the server identity, uptime, and every live session.
func (h *Handler) GetStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Service:  h.service,
		Version:  h.version,
		UptimeS:  int64(time.Since(h.started).Seconds()),
		Sessions: h.listSessions(),
	})
}

// ListSessions returns descriptors for every live session.
func (h *Handler) ListSessions(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, h.listSessions())
}

// listSessions never returns nil, so empty marshals as [] instead of null.
func (h *Handler) listSessions() []SessionInfo {
	infos := h.sessions.List()
	if infos == nil {
		infos = []SessionInfo{}
	}
	return infos
}

// CreateSession starts a new translation session from a JSON body.
func (h *Handler) CreateSession(w http.ResponseWriter, req *http.Request) {
	var body CreateSessionRequest
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.TargetLang == "" {
		writeError(w, http.StatusBadRequest, "target_lang is required")
		return
	}
	switch arbiter.Mode(body.Mode) {
	case "", arbiter.ModeStreaming, arbiter.ModeTurnBased:
	default:
		writeError(w, http.StatusBadRequest, "mode must be \"streaming\" or \"turn-based\"")
		return
	}
	if body.SampleRate < 0 || (body.SampleRate > 0 && body.SampleRate < 8000) {
		writeError(w, http.StatusBadRequest, "sample_rate must be at least 8000 Hz")
		return
	}
	if body.Channels < 0 || body.Channels > 2 {
		writeError(w, http.StatusBadRequest, "channels must be 1 or 2")
		return
	}

	info, err := h.sessions.Create(req.Context(), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Info("session created",
		"session_id", info.ID,
		"source_lang", info.SourceLang,
		"target_lang", info.TargetLang,
	)
	writeJSON(w, http.StatusCreated, info)
}

// GetSession returns one session's descriptor.
func (h *Handler) GetSession(w http.ResponseWriter, req *http.Request) {
	info, err := h.sessions.Get(chi.URLParam(req, "id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// StopSession terminates a session.
func (h *Handler) StopSession(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	if err := h.sessions.Stop(id); err != nil {
		writeSessionError(w, err)
		return
	}
	h.logger.Info("session stopped", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// writeSessionError maps session-layer errors to status codes.
func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error envelope with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encode failure it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
