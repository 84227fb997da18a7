package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/storyline/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	broker := deps.Broker
	if broker == nil {
		broker = NewBroker()
	}
	sd := sessionDeps{
		logger:   logger,
		stories:  deps.Stories,
		sessions: deps.Sessions,
		tracker:  deps.Tracker,
		local:    deps.Local,
	}

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Storyline API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, deps.Health).Routes())

	r.Route("/api", func(r chi.Router) {
		r.Get("/stories", handleListStories(deps.Stories))
		r.Get("/stories/default", handleDefaultStory(deps.Stories))
		r.Route("/stories/{storyID}", func(r chi.Router) {
			r.Get("/", handleGetStory(deps.Stories))
			r.Get("/endings", handleListEndings(logger, deps.Stories, deps.Tracker))
			r.Delete("/endings", handleResetEndings(logger, deps.Stories, deps.Tracker))
		})

		r.Post("/sessions", handleCreateSession(sd))
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", handleGetSession(sd))
			r.Delete("/", handleEndSession(sd))
			r.Post("/choices", handleChoose(sd))
			r.Post("/restart", handleRestart(sd))
			r.Post("/start", handleStart(sd))
			r.Put("/story", handleChangeStory(sd))
		})

		r.Get("/me/last-story", handleLastStory(logger, deps.Stories, deps.Local))
		r.Post("/me/merge", handleMerge(logger, deps.Tracker, deps.Local))
		r.Get("/events", handleEvents(broker))
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
