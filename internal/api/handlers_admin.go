package api

import (
	"net/http"
	"strconv"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/scheduler"
)

// handleHealth reports 503 when any dependency is down.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := s.service.Health(r.Context())
		status := http.StatusOK
		if !checks["database"] {
			status = http.StatusServiceUnavailable
		}
		respondJSON(w, status, map[string]interface{}{
			"healthy": status == http.StatusOK,
			"checks":  checks,
		})
	}
}

// handleRunJob starts a registered job and returns its handle without waiting.
func (s *Server) handleRunJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		h, err := s.jobs.Run(name)
		if err != nil {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Info("job triggered", "job", name, "handle", h.ID, "by", getSubject(r))
		respondJSON(w, http.StatusAccepted, h.Info())
	}
}

func (s *Server) handleListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recent := s.jobs.Recent()
		infos := make([]scheduler.HandleInfo, 0, len(recent))
		for _, h := range recent {
			infos = append(infos, h.Info())
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": infos})
	}
}

func (s *Server) handleJobStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := s.jobs.Get(r.PathValue("id"))
		if !ok {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		respondJSON(w, http.StatusOK, h.Info())
	}
}

func (s *Server) handleSummary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := s.service.Summary(r.Context())
		if err != nil {
			s.logger.Error("summary failed", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to build summary")
			return
		}
		respondJSON(w, http.StatusOK, sum)
	}
}

func (s *Server) handleAnalytics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				respondError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}
		rows, err := s.content.ListAnalytics(r.Context(), limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load analytics")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"analytics": rows})
	}
}
