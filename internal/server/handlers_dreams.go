package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jonathan/dream-bridge/internal/db"
	"github.com/jonathan/dream-bridge/internal/logging"
	"github.com/jonathan/dream-bridge/internal/server/middleware"
	"github.com/jonathan/dream-bridge/internal/status"
)

// audioField is the multipart field holding the recording.
const audioField = "audio"

// queueFailureMessage is recorded on dreams the dispatcher refused.
const queueFailureMessage = "could not queue dream for processing"

type submitResponse struct {
	DreamID   uuid.UUID `json:"dream_id"`
	Status    db.Status `json:"status"`
	StatusURL string    `json:"status_url"`
}

// dreamView is the full dream plus the message to display with it.
type dreamView struct {
	*db.Dream
	Message string `json:"message"`
}

type dreamList struct {
	Dreams []db.Dream `json:"dreams"`
	Count  int        `json:"count"`
}

// handleSubmitDream stores the uploaded recording in a temp file, creates a
// PENDING dream and hands both to the dispatcher.
func (s *Server) handleSubmitDream(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requester(w, r)
	if !ok {
		return
	}

	audioPath, err := s.saveUpload(w, r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	dream, err := s.store.CreateDream(r.Context(), owner)
	if err != nil {
		_ = os.Remove(audioPath)
		s.handleError(w, r, err)
		return
	}
	logger := s.logger.With(logging.DreamID(dream.ID), logging.UserID(owner))

	if err := s.dispatcher.Submit(r.Context(), dream.ID, audioPath); err != nil {
		if mErr := s.store.MarkFailed(context.WithoutCancel(r.Context()), dream.ID, queueFailureMessage); mErr != nil {
			logger.Error("failed to mark unqueued dream failed", logging.Error(mErr))
		}
		s.handleError(w, r, err)
		return
	}

	logger.Info("dream submitted")
	s.jsonResponse(w, http.StatusAccepted, submitResponse{
		DreamID:   dream.ID,
		Status:    db.StatusPending,
		StatusURL: status.DreamURL(dream.ID) + "/status",
	})
}

// saveUpload copies the audio part of a multipart request to a temp file
// and returns its path. The caller owns the file.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", &ErrUploadTooLarge{Limit: s.maxUpload}
		}
		return "", &ErrValidation{Field: audioField, Message: "multipart form with an audio file is required"}
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(audioField)
	if err != nil {
		return "", &ErrValidation{Field: audioField, Message: "file is required"}
	}
	defer file.Close()
	if header.Size == 0 {
		return "", &ErrValidation{Field: audioField, Message: "file is empty"}
	}
	return copyToTemp(s.tempDir, header, file)
}

func copyToTemp(dir string, header *multipart.FileHeader, src io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if len(ext) > 8 {
		ext = ""
	}
	tmp, err := os.CreateTemp(dir, "dream-audio-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// handleDreamStatus answers polling clients. Unknown and foreign dreams
// look the same.
func (s *Server) handleDreamStatus(w http.ResponseWriter, r *http.Request) {
	requester, ok := s.requester(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.jsonResponse(w, http.StatusNotFound, map[string]string{"status": "NOT_FOUND"})
		return
	}
	res, err := s.status.Get(r.Context(), id, requester)
	if errors.Is(err, status.ErrNotFound) {
		s.jsonResponse(w, http.StatusNotFound, map[string]string{"status": "NOT_FOUND"})
		return
	}
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// handleGetDream returns the full dream. Viewing a completed dream
// refreshes its messages; a failed refresh still shows the stored ones.
func (s *Server) handleGetDream(w http.ResponseWriter, r *http.Request) {
	dream, ok := s.ownedDream(w, r)
	if !ok {
		return
	}

	if dream.Status == db.StatusCompleted {
		if _, err := s.messages.Regenerate(r.Context(), dream.ID); err != nil {
			s.logger.Warn("message regeneration failed", logging.DreamID(dream.ID), logging.Error(err))
		} else if fresh, err := s.store.GetDream(r.Context(), dream.ID); err == nil {
			dream = fresh
		}
	}

	s.jsonResponse(w, http.StatusOK, dreamView{
		Dream:   dream,
		Message: s.messages.DisplayMessage(r.Context(), dream),
	})
}

func (s *Server) handleRegenerateMessage(w http.ResponseWriter, r *http.Request) {
	requester, ok := s.requester(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, r, status.ErrNotFound)
		return
	}
	msg, err := s.messages.RegenerateFor(r.Context(), id, requester)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"personal_phrase": msg})
}

// handleDreamEvents streams status changes until the dream reaches a
// terminal state or the client goes away.
func (s *Server) handleDreamEvents(w http.ResponseWriter, r *http.Request) {
	requester, ok := s.requester(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, r, status.ErrNotFound)
		return
	}
	res, err := s.status.Get(r.Context(), id, requester)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var last db.Status
	for {
		if res.Status != last {
			if err := sse.WriteEvent(eventStatus, res); err != nil {
				return
			}
			last = res.Status
		}
		if res.Status.IsTerminal() {
			sse.WriteComplete(id.String(), string(res.Status), res.StatusURL)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		res, err = s.status.Get(r.Context(), id, requester)
		if err != nil {
			if r.Context().Err() == nil {
				s.logger.Warn("event stream status poll failed", logging.DreamID(id), logging.Error(err))
				sse.WriteError(publicMessage(err))
			}
			return
		}
	}
}

// handleListDreams returns the requester's completed dreams, newest first,
// optionally filtered by emotion and calendar day.
func (s *Server) handleListDreams(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requester(w, r)
	if !ok {
		return
	}
	filters := db.DreamFilters{OwnerID: owner, Status: db.StatusCompleted}

	q := r.URL.Query()
	if raw := q.Get("emotion"); raw != "" {
		emotion, ok := db.ParseEmotion(raw)
		if !ok {
			s.handleError(w, r, &ErrValidation{Field: "emotion", Message: "unknown emotion " + raw})
			return
		}
		filters.Emotion = emotion
	}
	if raw := q.Get("date"); raw != "" {
		day, err := db.ParseDate(raw)
		if err != nil {
			s.handleError(w, r, &ErrValidation{Field: "date", Message: "expected YYYY-MM-DD"})
			return
		}
		filters.Day = &day
	}

	dreams, err := s.store.ListDreams(r.Context(), filters)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if dreams == nil {
		dreams = []db.Dream{}
	}
	s.jsonResponse(w, http.StatusOK, dreamList{Dreams: dreams, Count: len(dreams)})
}

// requester returns the authenticated user or writes a 401.
func (s *Server) requester(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	return userID, true
}

// ownedDream loads the dream named in the path if the requester owns it,
// writing a 404 otherwise.
func (s *Server) ownedDream(w http.ResponseWriter, r *http.Request) (*db.Dream, bool) {
	requester, ok := s.requester(w, r)
	if !ok {
		return nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, r, status.ErrNotFound)
		return nil, false
	}
	dream, err := s.store.GetDream(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return nil, false
	}
	if dream.OwnerID != requester {
		s.logger.Debug("dream requested by non-owner", logging.DreamID(id), slog.String("requester", requester.String()))
		s.handleError(w, r, status.ErrNotFound)
		return nil, false
	}
	return dream, true
}
