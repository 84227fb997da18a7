package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/storyline/internal/story"
	"github.com/playperu/storyline/internal/unlock"
)

type MergeRequest struct {
	StoryIDs []string `json:"storyIds,omitempty"`
}

// MergeResponse lists the stories whose progress reached the account.
type MergeResponse struct {
	Merged []string `json:"merged"`
}

// handleLastStory returns the last played story when it is still playable,
// the registry default otherwise.
func handleLastStory(logger *slog.Logger, stories *story.Registry, local unlock.LocalStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := local.LastStory(r.Context())
		if err != nil && !errors.Is(err, unlock.ErrNotFound) {
			logger.Warn("reading last played story", "error", err)
		}
		if _, ok := stories.Document(id); !ok {
			id = stories.DefaultID()
		}
		if id == "" {
			writeError(w, http.StatusNotFound, "no stories registered")
			return
		}
		writeJSON(w, http.StatusOK, DefaultStoryResponse{StoryID: id})
	}
}

// handleMerge folds guest progress on this device into the signed-in
// account.
func handleMerge(logger *slog.Logger, tracker *unlock.Tracker, local unlock.LocalStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userFrom(r)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "sign in to merge progress")
			return
		}

		var req MergeRequest
		if r.ContentLength != 0 {
			if err := readJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		if len(req.StoryIDs) == 0 {
			ids, err := local.Stories(r.Context())
			if err != nil {
				logger.Error("listing local stories", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			req.StoryIDs = ids
		}

		merged, err := tracker.MergeGuest(r.Context(), userID, req.StoryIDs)
		if err != nil {
			logger.Error("merging guest progress", "error", err)
			writeError(w, http.StatusBadGateway, "could not reach account store")
			return
		}

		writeJSON(w, http.StatusOK, MergeResponse{Merged: merged})
	}
}
