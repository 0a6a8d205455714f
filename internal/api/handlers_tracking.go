package api

import (
	"errors"
	"net/http"

	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/store"
)

// transparent 1x1 GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// handleOpen always answers with the pixel; an unknown delivery is only logged.
func (s *Server) handleOpen() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := s.tracker.RecordOpen(r.Context(), id); err != nil {
			s.logger.Debug("record open failed", "delivery", id, "error", err)
		}
		w.Header().Set("Content-Type", "image/gif")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pixelGIF)
	}
}

func (s *Server) handleClick() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := s.tracker.Redirect(r.Context(), r.PathValue("token"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid tracking link")
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// handleNewsletterView serves the online snapshot of a compiled newsletter.
func (s *Server) handleNewsletterView() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := s.content.Newsletter(r.Context(), r.PathValue("id"))
		if errors.Is(err, store.ErrNotFound) || (err == nil && n.HTMLContent == "") {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			s.logger.Error("load newsletter failed", "id", r.PathValue("id"), "error", err)
			respondError(w, http.StatusInternalServerError, "failed to load newsletter")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(n.HTMLContent))
	}
}
