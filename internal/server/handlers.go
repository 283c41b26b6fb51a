package server

import (
	"net/http"

	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/pipeline"
	"github.com/jonathan/dream-bridge/internal/report"
)

type dailyResponse struct {
	Message string `json:"message"`
	// Degraded is set when a fallback message replaced the requested one.
	Degraded bool `json:"degraded"`
}

// handleDailyMessage returns today's horoscope or quote for the requester.
// It is recomputed on every call.
func (s *Server) handleDailyMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requester(w, r)
	if !ok {
		return
	}
	out := s.messages.DailyMessage(r.Context(), userID)
	s.jsonResponse(w, http.StatusOK, dailyResponse{
		Message:  out.Value,
		Degraded: out.Kind != pipeline.Success,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requester(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	period, err := report.ParsePeriod(q.Get("period"))
	if err != nil {
		s.handleError(w, r, &ErrValidation{Field: "period", Message: err.Error()})
		return
	}
	var emotion db.Emotion
	if raw := q.Get("emotion"); raw != "" {
		e, ok := db.ParseEmotion(raw)
		if !ok {
			s.handleError(w, r, &ErrValidation{Field: "emotion", Message: "unknown emotion " + raw})
			return
		}
		emotion = e
	}

	rep, err := s.reports.Build(r.Context(), userID, period, emotion)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rep)
}
