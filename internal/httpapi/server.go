package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"channelmirror/internal/domain"
)

// Mirror exposes sync triggers and progress inspection.
type Mirror interface {
	TriggerIncremental(ctx context.Context) error
	TriggerBackfill(ctx context.Context, since time.Time) error
	Progress() domain.SyncRun
}

// GrowthReporter computes subscriber growth for a channel.
type GrowthReporter interface {
	Report(ctx context.Context, channelID int64) (*domain.GrowthReport, error)
}

type Server struct {
	mirror Mirror
	growth GrowthReporter
	logger *slog.Logger
	mux    *http.ServeMux
}

func NewServer(mirror Mirror, growth GrowthReporter, logger *slog.Logger) *Server {
	s := &Server{
		mirror: mirror,
		growth: growth,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/sync/incremental", s.handleSyncIncremental)
	s.mux.HandleFunc("POST /api/sync/backfill", s.handleSyncBackfill)
	s.mux.HandleFunc("GET /api/sync/progress", s.handleSyncProgress)
	s.mux.HandleFunc("GET /api/channels/{id}/growth", s.handleGrowth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSyncIncremental(w http.ResponseWriter, r *http.Request) {
	if err := s.mirror.TriggerIncremental(r.Context()); err != nil {
		if errors.Is(err, domain.ErrSyncAlreadyRunning) {
			writeJSON(w, http.StatusConflict, map[string]string{"status": "already_running"})
			return
		}
		s.logger.Error("incremental sync trigger failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "mode": "incremental"})
}

func (s *Server) handleSyncBackfill(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Since string `json:"since"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return
	}
	since, err := time.Parse("2006-01-02", body.Since)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "since must be a YYYY-MM-DD date")
		return
	}

	if err := s.mirror.TriggerBackfill(r.Context(), since); err != nil {
		if errors.Is(err, domain.ErrSyncAlreadyRunning) {
			writeJSON(w, http.StatusConflict, map[string]string{"status": "already_running"})
			return
		}
		s.logger.Error("backfill trigger failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "mode": "backfill"})
}

func (s *Server) handleSyncProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.mirror.Progress())
}

func (s *Server) handleGrowth(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid channel id")
		return
	}

	report, err := s.growth.Report(r.Context(), channelID)
	if err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		s.logger.Error("growth report failed", "channel_id", channelID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
