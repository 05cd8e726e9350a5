package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"savingsrate/internal/core"
	"savingsrate/internal/log"
	"savingsrate/internal/middleware/trace"
	"savingsrate/internal/storage"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, RequestID: trace.RequestID(r.Context())})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	report := map[string]string{}
	for _, c := range s.checks {
		if err := c.Fn(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			report[c.Name] = err.Error()
			continue
		}
		report[c.Name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": report})
}

// handleSeries returns the full comparison. ?visible=true keeps only the
// series meant for joint display.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	res, err := s.result(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Comparison failed",
			log.FieldRequestID, trace.RequestID(r.Context()), log.FieldError, err.Error())
		writeError(w, r, http.StatusInternalServerError, "comparison failed")
		return
	}
	if visible, _ := strconv.ParseBool(r.URL.Query().Get("visible")); visible {
		res.Profiles = res.Visible()
		if res.Profiles == nil {
			res.Profiles = []core.ProfileSeries{}
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProfileSeries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.result(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "comparison failed")
		return
	}
	if series, ok := res.Series(id); ok {
		writeJSON(w, http.StatusOK, series)
		return
	}
	for _, f := range res.Failures {
		if f.ProfileID == id {
			writeJSON(w, http.StatusUnprocessableEntity, f)
			return
		}
	}
	writeError(w, r, http.StatusNotFound, "unknown profile "+strconv.Quote(id))
}

// handleRefresh recomputes unconditionally and replaces the cached result.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.Invalidate()
	res, err := s.result(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Refresh failed",
			log.FieldOperation, log.OpRefresh, log.FieldError, err.Error())
		writeError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}
	if s.publisher != nil {
		if err := s.publisher.PublishResult(ctx, trace.RequestID(ctx), res); err != nil {
			s.logger.WarnContext(ctx, "Result not published",
				log.FieldOperation, log.OpPublish, log.FieldError, err.Error())
		}
	}
	writeJSON(w, http.StatusOK, res)
}

type warRequest struct {
	War *bool `json:"war"`
}

func (s *Server) handleSetWar(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	var req warRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil || req.War == nil {
		writeError(w, r, http.StatusBadRequest, `body must be {"war": true|false}`)
		return
	}
	if err := s.war.SetWar(r.Context(), id, *req.War); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "unknown profile "+strconv.Quote(id))
			return
		}
		s.logger.ErrorContext(r.Context(), "Set war failed", log.FieldProfileID, id, log.FieldError, err.Error())
		writeError(w, r, http.StatusInternalServerError, "update failed")
		return
	}
	s.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}
