package server

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/storyline/internal/story"
	"github.com/playperu/storyline/internal/unlock"
)

type DefaultStoryResponse struct {
	StoryID string `json:"storyId"`
}

// EndingView is an ending as shown on the collection page. Locked endings
// keep only their hint.
type EndingView struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Badge    string `json:"badge,omitempty"`
	Text     string `json:"text,omitempty"`
	Hint     string `json:"hint"`
	Unlocked bool   `json:"unlocked"`
}

type EndingsResponse struct {
	StoryID       string       `json:"storyId"`
	Total         int          `json:"total"`
	UnlockedCount int          `json:"unlockedCount"`
	Complete      bool         `json:"complete"`
	Endings       []EndingView `json:"endings"`
}

func handleListStories(stories *story.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stories.List())
	}
}

func handleDefaultStory(stories *story.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := stories.DefaultID()
		if id == "" {
			writeError(w, http.StatusNotFound, "no stories registered")
			return
		}
		writeJSON(w, http.StatusOK, DefaultStoryResponse{StoryID: id})
	}
}

func handleGetStory(stories *story.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := stories.Get(chi.URLParam(r, "storyID"))
		if errors.Is(err, story.ErrNotFound) {
			writeError(w, http.StatusNotFound, "story not found")
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

// playableDocument resolves storyID or writes the matching error response.
func playableDocument(w http.ResponseWriter, stories *story.Registry, storyID string) (*story.Document, bool) {
	if doc, ok := stories.Document(storyID); ok {
		return doc, true
	}
	writeStoryProblem(w, stories, storyID)
	return nil, false
}

// writeStoryProblem answers 422 with defects for a registered but invalid
// story, 404 otherwise.
func writeStoryProblem(w http.ResponseWriter, stories *story.Registry, storyID string) {
	entry, err := stories.Get(storyID)
	if err != nil {
		writeError(w, http.StatusNotFound, "story not found")
		return
	}
	writeDefects(w, "story is not playable", entry.Defects)
}

func handleListEndings(logger *slog.Logger, stories *story.Registry, tracker *unlock.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storyID := chi.URLParam(r, "storyID")
		doc, ok := playableDocument(w, stories, storyID)
		if !ok {
			return
		}

		filter := r.URL.Query().Get("filter")
		switch filter {
		case "":
			filter = "all"
		case "all", "unlocked", "locked":
		default:
			writeError(w, http.StatusBadRequest, "filter must be all, unlocked or locked")
			return
		}

		ids, err := tracker.Unlocked(r.Context(), userFrom(r), storyID)
		if err != nil {
			logger.Error("reading unlocked endings", "story", storyID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		resp := EndingsResponse{StoryID: storyID, Total: len(doc.Endings), Endings: []EndingView{}}
		for _, e := range doc.Endings {
			unlocked := slices.Contains(ids, e.ID)
			if unlocked {
				resp.UnlockedCount++
			}
			if (filter == "unlocked" && !unlocked) || (filter == "locked" && unlocked) {
				continue
			}
			view := EndingView{ID: e.ID, Hint: e.Hint, Unlocked: unlocked}
			if unlocked {
				view.Title, view.Badge, view.Text = e.Title, e.Badge, e.Text
			}
			resp.Endings = append(resp.Endings, view)
		}
		resp.Complete = resp.Total > 0 && resp.UnlockedCount == resp.Total

		writeJSON(w, http.StatusOK, resp)
	}
}

func handleResetEndings(logger *slog.Logger, stories *story.Registry, tracker *unlock.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storyID := chi.URLParam(r, "storyID")
		if _, err := stories.Get(storyID); err != nil {
			writeError(w, http.StatusNotFound, "story not found")
			return
		}
		if err := tracker.Reset(r.Context(), userFrom(r), storyID); err != nil {
			logger.Error("resetting progress", "story", storyID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
