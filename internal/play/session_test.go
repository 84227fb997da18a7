package play

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/storyline/internal/story"
)

type catalog map[string]*story.Document

func (c catalog) Document(id string) (*story.Document, bool) {
	d, ok := c[id]
	return d, ok
}

func mustParse(t *testing.T, raw map[string]any) *story.Document {
	t.Helper()
	doc, err := story.Parse(raw)
	require.NoError(t, err)
	return doc
}

func ending(id string) map[string]any {
	return map[string]any{"id": id, "title": id, "badge": "*", "text": "The end.", "hint": "Keep going."}
}

func pick(label, key, target string) map[string]any {
	return map[string]any{"label": label, key: target}
}

func node(id string, a, b map[string]any) map[string]any {
	return map[string]any{"id": id, "text": "At " + id, "choices": []any{a, b}}
}

// testCatalog holds "chain" (n1 -> n2 -> n3 -> e1) and "short" (n1 -> e9).
func testCatalog(t *testing.T) catalog {
	chain := mustParse(t, map[string]any{
		"nodes": []any{
			node("n1", pick("on", "next", "n2"), pick("off", "ending", "e2")),
			node("n2", pick("on", "next", "n3"), pick("off", "ending", "e2")),
			node("n3", pick("finish", "ending", "e1"), pick("loop", "next", "n1")),
		},
		"endings": []any{ending("e1"), ending("e2")},
	})
	short := mustParse(t, map[string]any{
		"nodes":   []any{node("n1", pick("a", "ending", "e9"), pick("b", "ending", "e9"))},
		"endings": []any{ending("e9")},
	})
	return catalog{"chain": chain, "short": short}
}

func TestChainRoundTrip(t *testing.T) {
	s, err := NewSession(testCatalog(t), "chain")
	require.NoError(t, err)
	assert.Equal(t, Idle, s.State())

	require.NoError(t, s.Start(""))
	assert.Equal(t, Playing, s.State())
	assert.Equal(t, []string{"n1"}, s.History())

	require.NoError(t, s.Choose(0))
	require.NoError(t, s.Choose(0))
	assert.Equal(t, "n3", s.CurrentNodeID())
	require.NoError(t, s.Choose(0))

	assert.Equal(t, Ended, s.State())
	require.NotNil(t, s.ReachedEnding())
	assert.Equal(t, "e1", s.ReachedEnding().ID)
	assert.Equal(t, []string{"n1", "n2", "n3"}, s.History())

	assert.ErrorIs(t, s.Choose(0), ErrNotPlaying)
}

func TestSelectChoice(t *testing.T) {
	s, err := NewSession(testCatalog(t), "chain")
	require.NoError(t, err)

	n1 := s.Document().Entry()
	assert.ErrorIs(t, s.SelectChoice(n1.Choices[0]), ErrNotPlaying)

	require.NoError(t, s.Start(""))
	foreign := story.Choice{Label: "on", Target: story.GoTo{NodeID: "n3"}}
	assert.ErrorIs(t, s.SelectChoice(foreign), ErrForeignChoice)
	assert.Equal(t, "n1", s.CurrentNodeID())

	require.NoError(t, s.SelectChoice(n1.Choices[1]))
	assert.Equal(t, Ended, s.State())
	assert.Equal(t, "e2", s.ReachedEnding().ID)
	assert.Equal(t, []string{"n1"}, s.History())
}

func TestChooseIndex(t *testing.T) {
	s, err := NewSession(testCatalog(t), "chain")
	require.NoError(t, err)
	require.NoError(t, s.Start(""))

	for _, i := range []int{-1, 2, 10} {
		assert.ErrorIs(t, s.Choose(i), ErrChoiceIndex, "index %d", i)
	}
	assert.Equal(t, Playing, s.State())
}

func TestCycleKeepsAppending(t *testing.T) {
	s, err := NewSession(testCatalog(t), "chain")
	require.NoError(t, err)
	require.NoError(t, s.Start(""))

	for _, i := range []int{0, 0, 1, 0} {
		require.NoError(t, s.Choose(i))
	}
	assert.Equal(t, []string{"n1", "n2", "n3", "n1", "n2"}, s.History())
	assert.Equal(t, Playing, s.State())
}

func TestRestart(t *testing.T) {
	s, err := NewSession(testCatalog(t), "chain")
	require.NoError(t, err)
	require.NoError(t, s.Start(""))
	require.NoError(t, s.Choose(0))
	require.NoError(t, s.Choose(1))
	require.Equal(t, Ended, s.State())

	s.Restart()
	assert.Equal(t, Playing, s.State())
	assert.Equal(t, "n1", s.CurrentNodeID())
	assert.Equal(t, []string{"n1"}, s.History())
	assert.Nil(t, s.ReachedEnding())
}

func TestChangeStoryline(t *testing.T) {
	s, err := NewSession(testCatalog(t), "chain")
	require.NoError(t, err)
	require.NoError(t, s.Start(""))
	require.NoError(t, s.Choose(0))

	require.NoError(t, s.ChangeStoryline("short"))
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, "short", s.StoryID())
	assert.Empty(t, s.History())
	assert.ErrorIs(t, s.Choose(0), ErrNotPlaying)

	require.NoError(t, s.Start(""))
	require.NoError(t, s.Choose(1))
	assert.Equal(t, "e9", s.ReachedEnding().ID)

	assert.ErrorIs(t, s.ChangeStoryline("missing"), ErrUnknownStory)
	assert.Equal(t, "short", s.StoryID())
}

func TestStartRebinds(t *testing.T) {
	s, err := NewSession(testCatalog(t), "chain")
	require.NoError(t, err)

	require.NoError(t, s.Start("short"))
	assert.Equal(t, "short", s.StoryID())
	assert.ErrorIs(t, s.Start("missing"), ErrUnknownStory)

	_, err = NewSession(testCatalog(t), "missing")
	assert.ErrorIs(t, err, ErrUnknownStory)
}

func TestEnd(t *testing.T) {
	s, err := NewSession(testCatalog(t), "chain")
	require.NoError(t, err)
	require.NoError(t, s.Start(""))
	require.NoError(t, s.Choose(0))

	s.End()
	assert.Equal(t, Idle, s.State())
	assert.Empty(t, s.CurrentNodeID())
	assert.Empty(t, s.History())
	_, ok := s.CurrentNode()
	assert.False(t, ok)
}

func TestSnapshotRestore(t *testing.T) {
	cat := testCatalog(t)
	s, err := NewSession(cat, "chain")
	require.NoError(t, err)
	require.NoError(t, s.Start(""))
	require.NoError(t, s.Choose(0))

	snap := s.Snapshot()
	assert.Equal(t, Snapshot{StoryID: "chain", State: "playing", NodeID: "n2", History: []string{"n1", "n2"}}, snap)

	r, err := Restore(cat, snap)
	require.NoError(t, err)
	require.NoError(t, r.Choose(1))
	assert.Equal(t, "e2", r.ReachedEnding().ID)

	r2, err := Restore(cat, r.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, Ended, r2.State())
	assert.Equal(t, "e2", r2.ReachedEnding().ID)

	_, err = Restore(cat, Snapshot{StoryID: "chain", State: "playing", NodeID: "n7"})
	assert.Error(t, err)
	_, err = Restore(cat, Snapshot{StoryID: "chain", State: "ended", NodeID: "n1", EndingID: "zz"})
	assert.ErrorIs(t, err, ErrUnknownEnding)
	_, err = Restore(cat, Snapshot{StoryID: "chain", State: "paused"})
	assert.Error(t, err)
}
