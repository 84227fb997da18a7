package unlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Postgres error codes the remote store gives meaning to.
const (
	codeForeignKeyViolation = pq.ErrorCode("23503")
	codeUniqueViolation     = pq.ErrorCode("23505")
)

// PostgresStore is the RemoteStore over the account database. The schema
// comes from migrations.RunRemote.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Pack is a story known to the remote store. Unlocks for stories that are
// not registered are rejected with ErrUnknownStory.
type Pack struct {
	ID    string
	Title string
}

// RegisterStoryPacks upserts packs so their unlocks are accepted.
func (s *PostgresStore) RegisterStoryPacks(ctx context.Context, packs []Pack) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range packs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO story_packs (id, title) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title
		`, p.ID, p.Title)
		if err != nil {
			return fmt.Errorf("registering story pack %q: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Unlocked(ctx context.Context, userID, storyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ending_id FROM unlocked_endings
		WHERE user_id = $1 AND story_pack_id = $2
		ORDER BY unlocked_at, ending_id
	`, userID, storyID)
	if err != nil {
		return nil, fmt.Errorf("querying remote unlocks: %w", classify(err))
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Unlock(ctx context.Context, userID, storyID, endingID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unlocked_endings (user_id, story_pack_id, ending_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, story_pack_id, ending_id) DO NOTHING
	`, userID, storyID, endingID)
	if err := classify(err); err != nil {
		return fmt.Errorf("unlocking remote ending: %w", err)
	}
	return nil
}

func (s *PostgresStore) Reset(ctx context.Context, userID, storyID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM unlocked_endings WHERE user_id = $1 AND story_pack_id = $2
	`, userID, storyID)
	if err != nil {
		return fmt.Errorf("resetting remote unlocks: %w", err)
	}
	return nil
}

func (s *PostgresStore) Merge(ctx context.Context, userID, storyID string, endingIDs []string) ([]string, error) {
	existing, err := s.Unlocked(ctx, userID, storyID)
	if err != nil {
		return nil, err
	}

	var missing []string
	have := make(map[string]bool, len(existing))
	for _, id := range existing {
		have[id] = true
	}
	for _, id := range endingIDs {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO unlocked_endings (user_id, story_pack_id, ending_id)
			SELECT $1, $2, unnest($3::text[])
			ON CONFLICT (user_id, story_pack_id, ending_id) DO NOTHING
		`, userID, storyID, pq.Array(missing))
		if err := classify(err); err != nil {
			return nil, fmt.Errorf("merging remote unlocks: %w", err)
		}
	}
	return union(existing, endingIDs), nil
}

// classify maps Postgres errors onto the store's contract: a unique
// violation means the row already exists, a foreign key violation means the
// story pack is unknown.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeUniqueViolation:
		return nil
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrUnknownStory, pqErr.Message)
	default:
		return err
	}
}
