package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/driftworks/semdex/internal/syncer"
)

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

const defaultSearchLimit = 10

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchLimit
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("limit", req.Limit))
	results, err := s.searcher.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	// Detached from the request context: the pass outlives the request.
	// Start claims the single-writer slot before returning, so two
	// concurrent requests cannot both be accepted.
	if err := s.syncer.Start(context.Background(), nil); err != nil {
		if errors.Is(err, syncer.ErrSyncRunning) {
			s.respondError(w, http.StatusConflict, "a synchronization pass is already running")
			return
		}
		s.logger.Error("sync start failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count entries failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"state":   s.syncer.State().String(),
		"status":  s.syncer.Status(),
		"indexed": count,
	}
	if host := s.hosts.ActiveHost(); host != nil {
		resp["active_host"] = host
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
