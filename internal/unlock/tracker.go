package unlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultRemoteTimeout bounds every remote call made on behalf of a player.
const DefaultRemoteTimeout = 5 * time.Second

var tracer = otel.Tracer("github.com/playperu/storyline/internal/unlock")

// Discovery is the result of reporting a reached ending.
type Discovery struct {
	StoryID  string `json:"storyId"`
	EndingID string `json:"endingId"`
	New      bool   `json:"new"`
}

// Tracker coordinates the local and remote unlock stores. The local write is
// the record; remote writes for signed-in users are best effort and never
// undo it. A nil remote store or publisher disables that side.
type Tracker struct {
	logger    *slog.Logger
	local     LocalStore
	remote    RemoteStore
	publisher Publisher
	timeout   time.Duration

	wg sync.WaitGroup
}

func NewTracker(logger *slog.Logger, local LocalStore, remote RemoteStore, publisher Publisher, timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &Tracker{
		logger:    logger,
		local:     local,
		remote:    remote,
		publisher: publisher,
		timeout:   timeout,
	}
}

// Report records that userID reached endingID. Only an ending missing from
// the current unlocked set (this device plus the account for a signed-in
// user) yields Discovery.New, publishes an event and writes remotely. An
// empty userID is a guest.
func (t *Tracker) Report(ctx context.Context, userID, storyID, endingID string) (Discovery, error) {
	ctx, span := tracer.Start(ctx, "unlock.Report", trace.WithAttributes(
		attribute.String("story.id", storyID),
		attribute.String("ending.id", endingID),
		attribute.Bool("user.signed_in", userID != ""),
	))
	defer span.End()

	d := Discovery{StoryID: storyID, EndingID: endingID}

	if userID != "" && t.remote != nil {
		// Syncing first writes the account's endings back locally, so one
		// unlocked on another device is not new here.
		if _, err := t.Unlocked(ctx, userID, storyID); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return d, err
		}
	}

	added, err := t.local.Add(ctx, storyID, endingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return d, fmt.Errorf("recording unlock: %w", err)
	}
	d.New = added
	span.SetAttributes(attribute.Bool("unlock.new", added))
	if !added {
		return d, nil
	}

	if t.publisher != nil {
		e := Event{
			Type:       EventEndingUnlocked,
			UserID:     userID,
			StoryID:    storyID,
			EndingID:   endingID,
			UnlockedAt: time.Now().UTC(),
		}
		if err := t.publisher.Publish(ctx, e); err != nil {
			t.logger.Warn("publishing unlock event", "story", storyID, "ending", endingID, "error", err)
		}
	}

	if userID != "" && t.remote != nil {
		// Detached from the request so the write outlives the response.
		bg := context.WithoutCancel(ctx)
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			rctx, cancel := context.WithTimeout(bg, t.timeout)
			defer cancel()
			t.logRemote(t.remote.Unlock(rctx, userID, storyID, endingID), "remote unlock", storyID)
		}()
	}
	return d, nil
}

// Unlocked returns the ending ids unlocked for storyID. For a signed-in user
// the remote set is merged in, local order first, and ids new to this
// device are written back locally. A slow or failing remote falls back to
// the local set.
func (t *Tracker) Unlocked(ctx context.Context, userID, storyID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "unlock.Unlocked", trace.WithAttributes(
		attribute.String("story.id", storyID),
	))
	defer span.End()

	local, err := t.local.Unlocked(ctx, storyID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("reading local unlocks: %w", err)
	}
	if userID == "" || t.remote == nil {
		return local, nil
	}

	rctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	remote, err := t.remote.Unlocked(rctx, userID, storyID)
	if err != nil {
		t.logRemote(err, "remote unlocked", storyID)
		return local, nil
	}

	merged := union(local, remote)
	if len(merged) > len(local) {
		if err := t.local.AddAll(ctx, storyID, merged[len(local):]); err != nil {
			t.logger.Warn("writing remote unlocks locally", "story", storyID, "error", err)
		}
	}
	return merged, nil
}

func (t *Tracker) IsUnlocked(ctx context.Context, userID, storyID, endingID string) (bool, error) {
	ids, err := t.Unlocked(ctx, userID, storyID)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, endingID), nil
}

// Reset clears progress for storyID. The remote reset is best effort; the
// local reset must succeed.
func (t *Tracker) Reset(ctx context.Context, userID, storyID string) error {
	ctx, span := tracer.Start(ctx, "unlock.Reset", trace.WithAttributes(
		attribute.String("story.id", storyID),
	))
	defer span.End()

	if userID != "" && t.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, t.timeout)
		t.logRemote(t.remote.Reset(rctx, userID, storyID), "remote reset", storyID)
		cancel()
	}
	if err := t.local.Reset(ctx, storyID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("resetting local unlocks: %w", err)
	}
	return nil
}

// MergeGuest folds this device's progress into userID's account after
// sign-in. With no storyIDs every story with local progress is merged. Each
// story whose remote merge succeeds mirrors the merged union locally; a
// failed story keeps its local set and the first error is returned. The
// result lists the stories actually merged, in request order: stories with
// no local endings or unknown to the account store are left out.
func (t *Tracker) MergeGuest(ctx context.Context, userID string, storyIDs []string) ([]string, error) {
	if userID == "" {
		return nil, errors.New("merge requires a signed-in user")
	}
	if t.remote == nil {
		return []string{}, nil
	}

	ctx, span := tracer.Start(ctx, "unlock.MergeGuest")
	defer span.End()

	if len(storyIDs) == 0 {
		var err error
		storyIDs, err = t.local.Stories(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing local stories: %w", err)
		}
	}
	span.SetAttributes(attribute.Int("stories", len(storyIDs)))

	done := make([]bool, len(storyIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, storyID := range storyIDs {
		g.Go(func() error {
			local, err := t.local.Unlocked(gctx, storyID)
			if err != nil {
				return fmt.Errorf("reading local unlocks for %q: %w", storyID, err)
			}
			if len(local) == 0 {
				return nil
			}

			rctx, cancel := context.WithTimeout(gctx, t.timeout)
			defer cancel()
			merged, err := t.remote.Merge(rctx, userID, storyID, local)
			if errors.Is(err, ErrUnknownStory) {
				t.logger.Debug("story not registered remotely, keeping local progress", "story", storyID)
				return nil
			}
			if err != nil {
				return fmt.Errorf("merging %q: %w", storyID, err)
			}
			if err := t.local.Replace(gctx, storyID, merged); err != nil {
				return fmt.Errorf("mirroring %q locally: %w", storyID, err)
			}
			done[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	merged := []string{}
	for i, storyID := range storyIDs {
		if done[i] {
			merged = append(merged, storyID)
		}
	}
	span.SetAttributes(attribute.Int("merged", len(merged)))
	return merged, nil
}

// Wait blocks until background remote writes have finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) logRemote(err error, op, storyID string) {
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownStory):
		t.logger.Debug(op+" skipped, story not registered remotely", "story", storyID)
	default:
		t.logger.Warn(op+" failed", "story", storyID, "error", err)
	}
}
