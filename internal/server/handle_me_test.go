package server

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"testing"

	"github.com/playperu/storyline/internal/unlock"
)

// accountStore is an in-memory unlock.RemoteStore. Stories not in known are
// rejected like unregistered story packs.
type accountStore struct {
	mu    sync.Mutex
	known map[string]bool
	sets  map[string][]string
}

func newAccountStore(known ...string) *accountStore {
	a := &accountStore{known: map[string]bool{}, sets: map[string][]string{}}
	for _, id := range known {
		a.known[id] = true
	}
	return a
}

func (a *accountStore) Unlocked(_ context.Context, userID, storyID string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.sets[userID+"/"+storyID]), nil
}

func (a *accountStore) Unlock(ctx context.Context, userID, storyID, endingID string) error {
	_, err := a.Merge(ctx, userID, storyID, []string{endingID})
	return err
}

func (a *accountStore) Reset(_ context.Context, userID, storyID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sets, userID+"/"+storyID)
	return nil
}

func (a *accountStore) Merge(_ context.Context, userID, storyID string, ids []string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.known[storyID] {
		return nil, unlock.ErrUnknownStory
	}
	key := userID + "/" + storyID
	for _, id := range ids {
		if !slices.Contains(a.sets[key], id) {
			a.sets[key] = append(a.sets[key], id)
		}
	}
	return slices.Clone(a.sets[key]), nil
}

func TestMergeListsMergedStories(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvWithRemote(t, newAccountStore("chain"))

	for _, r := range [][2]string{{"chain", "quit"}, {"homebrew", "secret"}} {
		if _, err := env.local.Add(ctx, r[0], r[1]); err != nil {
			t.Fatalf("seeding %v: %v", r, err)
		}
	}

	w := env.doAs(t, "alice", http.MethodPost, "/api/me/merge", MergeRequest{StoryIDs: []string{"chain", "homebrew", "empty"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decode[MergeResponse](t, w)
	if !equal(got.Merged, []string{"chain"}) {
		t.Errorf("merged = %v, want [chain]", got.Merged)
	}
}

func TestEndingOnAccountIsNotNew(t *testing.T) {
	ctx := context.Background()
	account := newAccountStore("chain")
	if _, err := account.Merge(ctx, "alice", "chain", []string{"quit"}); err != nil {
		t.Fatal(err)
	}
	env := newTestEnvWithRemote(t, account)
	ch := env.broker.Subscribe("alice")
	defer env.broker.Unsubscribe("alice", ch)

	sess := env.newSession(t, "chain")
	w := env.doAs(t, "alice", http.MethodPost, "/api/sessions/"+sess.ID+"/choices", ChoiceRequest{Index: 1})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decode[SessionResponse](t, w)
	env.tracker.Wait()

	if got.Ending == nil || got.Ending.ID != "quit" {
		t.Fatalf("ending = %+v, want quit", got.Ending)
	}
	if got.NewUnlock {
		t.Error("newUnlock = true for an ending already on the account")
	}
	select {
	case data := <-ch:
		t.Errorf("unexpected unlock event %s", data)
	default:
	}
}
