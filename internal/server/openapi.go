package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/storyline/internal/story"
)

// HealthResponse maps each dependency to {"status": "ok"|"error"}.
type HealthResponse map[string]struct {
	Status string `json:"status"`
}

type storyPath struct {
	StoryID string `path:"storyID"`
}

type endingsQuery struct {
	StoryID string `path:"storyID"`
	Filter  string `query:"filter" enum:"all,unlocked,locked"`
}

type sessionPath struct {
	SessionID string `path:"sessionID"`
}

type choiceRequest struct {
	SessionID string `path:"sessionID"`
	ChoiceRequest
}

type changeStoryRequest struct {
	SessionID string `path:"sessionID"`
	ChangeStoryRequest
}

type userHeader struct {
	UserID string `header:"X-User-ID" description:"Signed-in account id; omit for guests."`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Storyline API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Local-first backend for the interactive story player.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/stories
	listStories, _ := r.NewOperationContext(http.MethodGet, "/api/stories")
	listStories.SetSummary("List stories")
	listStories.SetDescription("Every registered story, including unplayable ones with their defects.")
	listStories.AddRespStructure([]story.Entry{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(listStories)

	// GET /api/stories/default
	getDefault, _ := r.NewOperationContext(http.MethodGet, "/api/stories/default")
	getDefault.SetSummary("Default story")
	getDefault.AddRespStructure(DefaultStoryResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getDefault.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getDefault)

	// GET /api/stories/{storyID}
	getStory, _ := r.NewOperationContext(http.MethodGet, "/api/stories/{storyID}")
	getStory.SetSummary("Get story")
	getStory.AddReqStructure(storyPath{})
	getStory.AddRespStructure(story.Entry{}, openapi.WithHTTPStatus(http.StatusOK))
	getStory.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getStory)

	// GET /api/stories/{storyID}/endings
	listEndings, _ := r.NewOperationContext(http.MethodGet, "/api/stories/{storyID}/endings")
	listEndings.SetSummary("List endings")
	listEndings.SetDescription("Endings with unlock flags for the caller. Locked endings only show their hint.")
	listEndings.AddReqStructure(endingsQuery{})
	listEndings.AddReqStructure(userHeader{})
	listEndings.AddRespStructure(EndingsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	listEndings.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	listEndings.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	listEndings.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(listEndings)

	// DELETE /api/stories/{storyID}/endings
	resetEndings, _ := r.NewOperationContext(http.MethodDelete, "/api/stories/{storyID}/endings")
	resetEndings.SetSummary("Reset progress")
	resetEndings.SetDescription("Clears unlocked endings on this device and, best effort, on the account.")
	resetEndings.AddReqStructure(storyPath{})
	resetEndings.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	resetEndings.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(resetEndings)

	// POST /api/sessions
	createSession, _ := r.NewOperationContext(http.MethodPost, "/api/sessions")
	createSession.SetSummary("Start playing")
	createSession.SetDescription("Creates a session on the given story (default story when empty), started at n1.")
	createSession.AddReqStructure(CreateSessionRequest{})
	createSession.AddRespStructure(SessionResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	createSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	createSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(createSession)

	// GET /api/sessions/{sessionID}
	getSession, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{sessionID}")
	getSession.SetSummary("Get session")
	getSession.AddReqStructure(sessionPath{})
	getSession.AddRespStructure(SessionResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getSession)

	// POST /api/sessions/{sessionID}/choices
	choose, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{sessionID}/choices")
	choose.SetSummary("Make a choice")
	choose.SetDescription("Selects a choice of the current node by index. Reaching an ending records the unlock.")
	choose.AddReqStructure(choiceRequest{})
	choose.AddReqStructure(userHeader{})
	choose.AddRespStructure(SessionResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	choose.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	choose.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	choose.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(choose)

	// POST /api/sessions/{sessionID}/restart
	restart, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{sessionID}/restart")
	restart.SetSummary("Restart")
	restart.AddReqStructure(sessionPath{})
	restart.AddRespStructure(SessionResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	restart.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(restart)

	// POST /api/sessions/{sessionID}/start
	start, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{sessionID}/start")
	start.SetSummary("Start the bound story")
	start.AddReqStructure(sessionPath{})
	start.AddRespStructure(SessionResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	start.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(start)

	// PUT /api/sessions/{sessionID}/story
	changeStory, _ := r.NewOperationContext(http.MethodPut, "/api/sessions/{sessionID}/story")
	changeStory.SetSummary("Change storyline")
	changeStory.SetDescription("Binds another story and returns the session to idle until started.")
	changeStory.AddReqStructure(changeStoryRequest{})
	changeStory.AddRespStructure(SessionResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	changeStory.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	changeStory.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	changeStory.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(changeStory)

	// DELETE /api/sessions/{sessionID}
	endSession, _ := r.NewOperationContext(http.MethodDelete, "/api/sessions/{sessionID}")
	endSession.SetSummary("End session")
	endSession.AddReqStructure(sessionPath{})
	endSession.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	endSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(endSession)

	// GET /api/me/last-story
	lastStory, _ := r.NewOperationContext(http.MethodGet, "/api/me/last-story")
	lastStory.SetSummary("Last played story")
	lastStory.SetDescription("The last played story if still playable, the default story otherwise.")
	lastStory.AddRespStructure(DefaultStoryResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	lastStory.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(lastStory)

	// POST /api/me/merge
	merge, _ := r.NewOperationContext(http.MethodPost, "/api/me/merge")
	merge.SetSummary("Merge guest progress")
	merge.SetDescription("After sign-in, folds this device's unlocks into the account. Requires X-User-ID.")
	merge.AddReqStructure(MergeRequest{})
	merge.AddReqStructure(userHeader{})
	merge.AddRespStructure(MergeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	merge.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	merge.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadGateway))
	_ = r.AddOperation(merge)

	// GET /api/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/events")
	getEvents.SetSummary("Unlock event stream")
	getEvents.SetDescription("Server-Sent Events announcing first-time ending unlocks for the caller.")
	getEvents.AddReqStructure(userHeader{})
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
