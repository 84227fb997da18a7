// Package unlock records which endings a player has discovered. The device
// local store is the record of truth for gameplay; a remote account store,
// when configured, is written best-effort for signed-in users and merged
// back on read.
package unlock

import (
	"context"
	"errors"
)

var (
	// ErrUnknownStory is returned by a RemoteStore that does not know the
	// story, typically a locally authored pack. Callers treat it as expected.
	ErrUnknownStory = errors.New("story not registered remotely")

	ErrNotFound = errors.New("not found")
)

// LocalStore keeps the device-local unlock sets, one per story.
type LocalStore interface {
	Unlocked(ctx context.Context, storyID string) ([]string, error)
	// Add inserts endingID and reports whether it was not already present.
	Add(ctx context.Context, storyID, endingID string) (bool, error)
	AddAll(ctx context.Context, storyID string, endingIDs []string) error
	// Replace makes endingIDs the whole set for storyID.
	Replace(ctx context.Context, storyID string, endingIDs []string) error
	Reset(ctx context.Context, storyID string) error
	// Stories lists story ids that have at least one local unlock.
	Stories(ctx context.Context) ([]string, error)

	LastStory(ctx context.Context) (string, error)
	SetLastStory(ctx context.Context, storyID string) error
}

// RemoteStore keeps per-account unlock sets.
type RemoteStore interface {
	Unlocked(ctx context.Context, userID, storyID string) ([]string, error)
	// Unlock is idempotent: unlocking a known ending succeeds.
	Unlock(ctx context.Context, userID, storyID, endingID string) error
	Reset(ctx context.Context, userID, storyID string) error
	// Merge adds endingIDs to the account and returns the resulting union.
	Merge(ctx context.Context, userID, storyID string, endingIDs []string) ([]string, error)
}

// union appends the ids of b missing from a, keeping a's order first.
func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
