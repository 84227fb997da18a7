package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/playperu/storyline/internal/database"
	"github.com/playperu/storyline/internal/migrations"
	"github.com/playperu/storyline/internal/story"
	"github.com/playperu/storyline/internal/unlock"
)

const chainStory = `{
	"meta": {"id": "chain", "title": "Chain", "emoji": "⛓"},
	"nodes": [
		{"id": "n1", "text": "Start", "choices": [
			{"label": "On", "next": "n2"}, {"label": "Off", "ending": "quit"}]},
		{"id": "n2", "text": "Middle", "choices": [
			{"label": "On", "next": "n3"}, {"label": "Off", "ending": "quit"}]},
		{"id": "n3", "text": "End", "choices": [
			{"label": "Finish", "ending": "done"}, {"label": "Again", "next": "n1"}]}
	],
	"endings": [
		{"id": "done", "title": "Done", "badge": "🏁", "text": "You made it.", "hint": "Keep going."},
		{"id": "quit", "title": "Quit", "badge": "🚪", "text": "You left.", "hint": "Leave early."}
	]
}`

const brokenStory = `{
	"meta": {"id": "broken", "title": "Broken"},
	"nodes": [{"id": "n1", "text": "Hi", "choices": [{"label": "Go", "next": "n9"}]}],
	"endings": []
}`

type testEnv struct {
	handler http.Handler
	local   *unlock.SQLiteStore
	tracker *unlock.Tracker
	broker  *Broker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithRemote(t, nil)
}

func newTestEnvWithRemote(t *testing.T, remote unlock.RemoteStore) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var sources []story.Source
	for name, data := range map[string]string{"chain.json": chainStory, "broken.json": brokenStory} {
		raw, err := story.Decode([]byte(data), story.FormatJSON)
		if err != nil {
			t.Fatalf("decode %s: %v", name, err)
		}
		sources = append(sources, story.Source{Name: name, Raw: raw})
	}
	stories, err := story.NewRegistry(logger, sources, story.WithPreferredDefault("chain"))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	db, err := database.Open(ctx, database.MemoryPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.RunLocal(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	local := unlock.NewSQLiteStore(db)
	broker := NewBroker()
	tracker := unlock.NewTracker(logger, local, remote, broker, time.Second)

	return &testEnv{
		handler: NewHandler(logger, Deps{
			Stories:  stories,
			Tracker:  tracker,
			Local:    local,
			Sessions: NewMemorySessionStore(time.Hour),
			Broker:   broker,
		}),
		local:   local,
		tracker: tracker,
		broker:  broker,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.doAs(t, "", method, path, body)
}

// doAs sends the request as userID; empty is a guest.
func (e *testEnv) doAs(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func (e *testEnv) newSession(t *testing.T, storyID string) SessionResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{StoryID: storyID})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[SessionResponse](t, w)
}

func (e *testEnv) choose(t *testing.T, id string, index int) SessionResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/sessions/"+id+"/choices", ChoiceRequest{Index: index})
	if w.Code != http.StatusOK {
		t.Fatalf("choose %d: expected 200, got %d: %s", index, w.Code, w.Body.String())
	}
	return decode[SessionResponse](t, w)
}

func TestPlayThroughChain(t *testing.T) {
	env := newTestEnv(t)

	sess := env.newSession(t, "")
	if sess.StoryID != "chain" {
		t.Errorf("storyId = %q, want %q", sess.StoryID, "chain")
	}
	if sess.State != "playing" {
		t.Errorf("state = %q, want playing", sess.State)
	}
	if sess.Node == nil || sess.Node.ID != "n1" {
		t.Fatalf("node = %+v, want n1", sess.Node)
	}

	env.choose(t, sess.ID, 0)
	env.choose(t, sess.ID, 0)
	got := env.choose(t, sess.ID, 0)

	if got.State != "ended" {
		t.Errorf("state = %q, want ended", got.State)
	}
	if got.Ending == nil || got.Ending.ID != "done" {
		t.Fatalf("ending = %+v, want done", got.Ending)
	}
	if !got.NewUnlock {
		t.Error("newUnlock = false on first discovery")
	}
	if want := []string{"n1", "n2", "n3"}; !equal(got.History, want) {
		t.Errorf("history = %v, want %v", got.History, want)
	}
	if got.Node != nil {
		t.Errorf("node = %+v, want none after ending", got.Node)
	}

	w := env.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/choices", ChoiceRequest{Index: 0})
	if w.Code != http.StatusConflict {
		t.Errorf("choice after ending: expected 409, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/restart", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("restart: expected 200, got %d", w.Code)
	}
	restarted := decode[SessionResponse](t, w)
	if !equal(restarted.History, []string{"n1"}) || restarted.State != "playing" {
		t.Errorf("after restart: state %q history %v", restarted.State, restarted.History)
	}

	env.choose(t, sess.ID, 0)
	env.choose(t, sess.ID, 0)
	again := env.choose(t, sess.ID, 0)
	if again.NewUnlock {
		t.Error("newUnlock = true on repeat discovery")
	}

	ids, err := env.local.Unlocked(context.Background(), "chain")
	if err != nil {
		t.Fatalf("unlocked: %v", err)
	}
	if !equal(ids, []string{"done"}) {
		t.Errorf("local unlocks = %v, want [done]", ids)
	}
}

func TestChoiceIndexOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	sess := env.newSession(t, "chain")

	w := env.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/choices", ChoiceRequest{Index: 2})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestChangeStoryThenStart(t *testing.T) {
	env := newTestEnv(t)
	sess := env.newSession(t, "chain")
	env.choose(t, sess.ID, 0)

	w := env.do(t, http.MethodPut, "/api/sessions/"+sess.ID+"/story", ChangeStoryRequest{StoryID: "chain"})
	if w.Code != http.StatusOK {
		t.Fatalf("change story: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	idle := decode[SessionResponse](t, w)
	if idle.State != "idle" || len(idle.History) != 0 {
		t.Errorf("after change: state %q history %v", idle.State, idle.History)
	}

	w = env.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/choices", ChoiceRequest{Index: 0})
	if w.Code != http.StatusConflict {
		t.Errorf("choice while idle: expected 409, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", w.Code)
	}
	if got := env.choose(t, sess.ID, 1); got.Ending == nil || got.Ending.ID != "quit" {
		t.Errorf("ending = %+v, want quit", got.Ending)
	}

	w = env.do(t, http.MethodPut, "/api/sessions/"+sess.ID+"/story", ChangeStoryRequest{StoryID: "broken"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("change to broken: expected 422, got %d", w.Code)
	}
}

func TestCreateSessionErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{StoryID: "broken"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	resp := decode[ErrorResponse](t, w)
	if len(resp.Defects) == 0 {
		t.Error("expected defects in 422 response")
	}

	w = env.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{StoryID: "nope"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t)
	sess := env.newSession(t, "chain")

	w := env.do(t, http.MethodDelete, "/api/sessions/"+sess.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("end: expected 204, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/sessions/"+sess.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after end: expected 404, got %d", w.Code)
	}
}

func TestUnlockEventPublished(t *testing.T) {
	env := newTestEnv(t)
	ch := env.broker.Subscribe("")
	defer env.broker.Unsubscribe("", ch)

	sess := env.newSession(t, "chain")
	env.choose(t, sess.ID, 1)

	select {
	case data := <-ch:
		var e unlock.Event
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("decoding event: %v", err)
		}
		if e.EndingID != "quit" || e.StoryID != "chain" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no unlock event")
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
