package api

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/jobs"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/store"
)

type subscribeRequest struct {
	Email  string        `json:"email"`
	Name   string        `json:"name"`
	Sports []model.Sport `json:"sports"`
}

func (s *Server) handleSubscribe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req subscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sub, err := s.service.Subscribe(r.Context(), req.Email, req.Name, req.Sports)
		switch {
		case errors.Is(err, jobs.ErrInvalidEmail), errors.Is(err, store.ErrUnknownSport):
			respondError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, store.ErrSubscriberExists):
			respondError(w, http.StatusConflict, "already subscribed")
			return
		case errors.Is(err, store.ErrUnsubscribed):
			respondError(w, http.StatusConflict, "address has unsubscribed")
			return
		case err != nil:
			s.logger.Error("subscribe failed", "email", req.Email, "error", err)
			respondError(w, http.StatusInternalServerError, "failed to subscribe")
			return
		}
		respondJSON(w, http.StatusCreated, sub)
	}
}

var unsubscribedPage = template.Must(template.New("unsubscribed").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Unsubscribed</title></head>
<body style="font-family: Arial, sans-serif; text-align: center; padding: 40px;">
<h1>You have been unsubscribed</h1>
<p>{{.Email}} will no longer receive the weekly digest.</p>
</body></html>
`))

// handleUnsubscribe serves both the link in the footer (GET) and one-click
// unsubscribe from mail clients (POST).
func (s *Server) handleUnsubscribe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := s.service.Unsubscribe(r.Context(), r.PathValue("token"))
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "unknown unsubscribe link")
			return
		}
		if err != nil {
			s.logger.Error("unsubscribe failed", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to unsubscribe")
			return
		}
		s.logger.Info("subscriber unsubscribed", "email", sub.Email)

		if r.Method == http.MethodPost {
			respondJSON(w, http.StatusOK, map[string]string{"status": string(sub.Status)})
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = unsubscribedPage.Execute(w, sub)
	}
}

func (s *Server) handlePreferences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := s.content.SubscriberByToken(r.Context(), r.PathValue("token"))
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "unknown preferences link")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load preferences")
			return
		}
		respondJSON(w, http.StatusOK, sub)
	}
}
