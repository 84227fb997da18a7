package unlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const lastStoryKey = "last_played_story_id"

// SQLiteStore is the LocalStore over the libSQL database. The schema comes
// from migrations.RunLocal.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Unlocked(ctx context.Context, storyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ending_id FROM unlocked_endings
		WHERE story_id = ?
		ORDER BY rowid
	`, storyID)
	if err != nil {
		return nil, fmt.Errorf("querying unlocked endings: %w", err)
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

func (s *SQLiteStore) Add(ctx context.Context, storyID, endingID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO unlocked_endings (story_id, ending_id) VALUES (?, ?)
		ON CONFLICT (story_id, ending_id) DO NOTHING
	`, storyID, endingID)
	if err != nil {
		return false, fmt.Errorf("inserting unlocked ending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) AddAll(ctx context.Context, storyID string, endingIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertAll(ctx, tx, storyID, endingIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Replace(ctx context.Context, storyID string, endingIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM unlocked_endings WHERE story_id = ?`, storyID); err != nil {
		return fmt.Errorf("clearing unlocked endings: %w", err)
	}
	if err := insertAll(ctx, tx, storyID, endingIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func insertAll(ctx context.Context, tx *sql.Tx, storyID string, endingIDs []string) error {
	for _, id := range endingIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO unlocked_endings (story_id, ending_id) VALUES (?, ?)
			ON CONFLICT (story_id, ending_id) DO NOTHING
		`, storyID, id)
		if err != nil {
			return fmt.Errorf("inserting unlocked ending %q: %w", id, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Reset(ctx context.Context, storyID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM unlocked_endings WHERE story_id = ?`, storyID)
	if err != nil {
		return fmt.Errorf("resetting unlocked endings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Stories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT story_id FROM unlocked_endings
		GROUP BY story_id
		ORDER BY MIN(rowid)
	`)
	if err != nil {
		return nil, fmt.Errorf("querying stories: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LastStory returns the last played story id, or ErrNotFound.
func (s *SQLiteStore) LastStory(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, lastStoryKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

func (s *SQLiteStore) SetLastStory(ctx context.Context, storyID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, lastStoryKey, storyID)
	return err
}
