package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/offer-goat/offer-goat/internal/experiment"
	"github.com/offer-goat/offer-goat/internal/store"
)

const maxBodyBytes = 1 << 20

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := s.store.CountExperiments(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Get database size
	var dbSize int64
	row := s.store.DB().QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&dbSize); err != nil {
		s.log.Warn("failed to read database size", "error", err)
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: count,
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

type AssignRequest struct {
	ExperimentID string `json:"experiment_id"`
	SessionID    string `json:"session_id"`
}

type AssignResponse struct {
	ExperimentID string             `json:"experiment_id"`
	SessionID    string             `json:"session_id"`
	Variant      experiment.Variant `json:"variant"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if !s.decode(w, r, &req) {
		return
	}

	v, err := s.engine.AssignVariant(r.Context(), req.ExperimentID, req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AssignResponse{ExperimentID: req.ExperimentID, SessionID: req.SessionID, Variant: v})
}

func (s *Server) handleImpression(w http.ResponseWriter, r *http.Request) {
	var in experiment.Impression
	if !s.decode(w, r, &in) {
		return
	}

	ev, err := s.engine.RecordImpression(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	ev, err := s.engine.RecordClick(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleConversion(w http.ResponseWriter, r *http.Request) {
	var conv experiment.Conversion
	if !s.decode(w, r, &conv) {
		return
	}

	ev, err := s.engine.RecordConversion(r.Context(), r.PathValue("id"), conv)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	filter := store.ListFilter{ShopID: r.URL.Query().Get("shop_id")}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = experiment.Status(status)
		if !filter.Status.Valid() {
			s.writeError(w, &experiment.ValidationError{Field: "status", Reason: "unknown status " + status})
			return
		}
	}

	exps, err := s.engine.ListExperiments(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if exps == nil {
		exps = []*experiment.Experiment{}
	}
	writeJSON(w, http.StatusOK, exps)
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var in experiment.CreateInput
	if !s.decode(w, r, &in) {
		return
	}

	exp, err := s.engine.CreateExperiment(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.engine.GetExperiment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

type EndRequest struct {
	Winner *experiment.Variant `json:"winner"`
}

func (s *Server) handleExperimentAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var exp *experiment.Experiment
	var err error
	switch r.PathValue("action") {
	case "start":
		exp, err = s.engine.StartExperiment(ctx, id)
	case "pause":
		exp, err = s.engine.PauseExperiment(ctx, id)
	case "end":
		var req EndRequest
		if !s.decodeOptional(w, r, &req) {
			return
		}
		exp, err = s.engine.EndExperiment(ctx, id, req.Winner)
	case "recalculate":
		exp, err = s.engine.RecalculateStatistics(ctx, id)
	case "reset":
		exp, err = s.engine.ResetCounters(ctx, id)
	default:
		writeErrorMessage(w, http.StatusNotFound, "unknown action")
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.engine.ListEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []*experiment.ConversionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAutoWinner(w http.ResponseWriter, r *http.Request) {
	shopID := r.URL.Query().Get("shop_id")
	summary, err := s.engine.ProcessAutoWinnerSelection(r.Context(), shopID)
	if isContextError(err) {
		// The pass stopped early; report what it got through.
		s.log.Warn("auto-winner pass interrupted", "shop_id", shopID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, summary)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// decode reads a JSON body into dst, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeDecodeError(w, err)
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be empty.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.writeDecodeError(w, err)
	return false
}

func (s *Server) writeDecodeError(w http.ResponseWriter, err error) {
	var vErr *experiment.ValidationError
	if errors.As(err, &vErr) {
		s.writeError(w, vErr)
		return
	}
	writeErrorMessage(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
}

// writeError maps engine errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var vErr *experiment.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: vErr.Error(), Field: vErr.Field})
	case errors.Is(err, store.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, experiment.ErrInvalidTransition):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	case isContextError(err):
		writeErrorMessage(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.log.Error("request failed", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
