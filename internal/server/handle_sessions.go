package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/playperu/storyline/internal/play"
	"github.com/playperu/storyline/internal/story"
	"github.com/playperu/storyline/internal/unlock"
)

type CreateSessionRequest struct {
	StoryID string `json:"storyId,omitempty"`
}

type ChoiceRequest struct {
	Index int `json:"index"`
}

type ChangeStoryRequest struct {
	StoryID string `json:"storyId"`
}

type SessionResponse struct {
	ID        string        `json:"id"`
	StoryID   string        `json:"storyId"`
	State     string        `json:"state"`
	Node      *story.Node   `json:"node,omitempty"`
	History   []string      `json:"history"`
	Ending    *story.Ending `json:"ending,omitempty"`
	NewUnlock bool          `json:"newUnlock,omitempty"`
}

func sessionResponse(id string, s *play.Session) SessionResponse {
	resp := SessionResponse{
		ID:      id,
		StoryID: s.StoryID(),
		State:   s.State().String(),
		History: s.History(),
		Ending:  s.ReachedEnding(),
	}
	if resp.History == nil {
		resp.History = []string{}
	}
	if s.State() == play.Playing {
		if n, ok := s.CurrentNode(); ok {
			resp.Node = &n
		}
	}
	return resp
}

// sessionDeps groups what the session handlers share.
type sessionDeps struct {
	logger   *slog.Logger
	stories  *story.Registry
	sessions SessionStore
	tracker  *unlock.Tracker
	local    unlock.LocalStore
}

func (d sessionDeps) rememberStory(r *http.Request, storyID string) {
	if err := d.local.SetLastStory(r.Context(), storyID); err != nil {
		d.logger.Warn("saving last played story", "story", storyID, "error", err)
	}
}

// load restores the session named in the URL or writes the error response.
func (d sessionDeps) load(w http.ResponseWriter, r *http.Request) (string, *play.Session, bool) {
	id := chi.URLParam(r, "sessionID")
	snap, err := d.sessions.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return id, nil, false
	}
	if err != nil {
		d.logger.Error("loading session", "session", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return id, nil, false
	}

	s, err := play.Restore(d.stories, snap)
	if err != nil {
		d.logger.Warn("session no longer playable", "session", id, "error", err)
		writeError(w, http.StatusGone, "session is no longer playable")
		return id, nil, false
	}
	return id, s, true
}

func (d sessionDeps) save(w http.ResponseWriter, r *http.Request, id string, s *play.Session) bool {
	if err := d.sessions.Put(r.Context(), id, s.Snapshot()); err != nil {
		d.logger.Error("saving session", "session", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	return true
}

func handleCreateSession(d sessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if r.ContentLength != 0 {
			if err := readJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		if req.StoryID == "" {
			req.StoryID = d.stories.DefaultID()
		}

		s, err := play.NewSession(d.stories, req.StoryID)
		if err != nil {
			writeStoryProblem(w, d.stories, req.StoryID)
			return
		}
		if err := s.Start(""); err != nil {
			writeStoryProblem(w, d.stories, req.StoryID)
			return
		}

		id := uuid.NewString()
		if !d.save(w, r, id, s) {
			return
		}
		d.rememberStory(r, req.StoryID)

		writeJSON(w, http.StatusCreated, sessionResponse(id, s))
	}
}

func handleGetSession(d sessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, s, ok := d.load(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse(id, s))
	}
}

func handleChoose(d sessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChoiceRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		id, s, ok := d.load(w, r)
		if !ok {
			return
		}

		if err := s.Choose(req.Index); err != nil {
			writePlayError(w, err)
			return
		}
		if !d.save(w, r, id, s) {
			return
		}

		resp := sessionResponse(id, s)
		if e := s.ReachedEnding(); e != nil {
			disc, err := d.tracker.Report(r.Context(), userFrom(r), s.StoryID(), e.ID)
			if err != nil {
				// The play-through itself is saved; only the collection misses it.
				d.logger.Error("reporting unlock", "story", s.StoryID(), "ending", e.ID, "error", err)
			}
			resp.NewUnlock = disc.New
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleRestart(d sessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, s, ok := d.load(w, r)
		if !ok {
			return
		}
		s.Restart()
		if !d.save(w, r, id, s) {
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse(id, s))
	}
}

func handleStart(d sessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, s, ok := d.load(w, r)
		if !ok {
			return
		}
		if err := s.Start(""); err != nil {
			writePlayError(w, err)
			return
		}
		if !d.save(w, r, id, s) {
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse(id, s))
	}
}

func handleChangeStory(d sessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChangeStoryRequest
		if err := readJSON(r, &req); err != nil || req.StoryID == "" {
			writeError(w, http.StatusBadRequest, "storyId is required")
			return
		}

		id, s, ok := d.load(w, r)
		if !ok {
			return
		}
		if err := s.ChangeStoryline(req.StoryID); err != nil {
			writeStoryProblem(w, d.stories, req.StoryID)
			return
		}
		if !d.save(w, r, id, s) {
			return
		}
		d.rememberStory(r, req.StoryID)

		writeJSON(w, http.StatusOK, sessionResponse(id, s))
	}
}

// handleEndSession ends the play-through and drops the parked session.
func handleEndSession(d sessionDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, s, ok := d.load(w, r)
		if !ok {
			return
		}
		s.End()
		if err := d.sessions.Delete(r.Context(), id); err != nil {
			d.logger.Error("deleting session", "session", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writePlayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, play.ErrNotPlaying):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, play.ErrChoiceIndex), errors.Is(err, play.ErrForeignChoice):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, play.ErrUnknownStory), errors.Is(err, play.ErrUnknownEnding):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
