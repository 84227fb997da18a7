// Package migrations holds the embedded goose migrations for the device-local
// SQLite store and the remote Postgres account store.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed local/*.sql remote/*.sql
var fs embed.FS

// goose keeps its dialect and base FS in package globals.
var mu sync.Mutex

// RunLocal applies pending migrations to the local libSQL database.
func RunLocal(db *sql.DB) error {
	return run(db, "sqlite3", "local")
}

// RunRemote applies pending migrations to the remote Postgres database.
func RunRemote(db *sql.DB) error {
	return run(db, "postgres", "remote")
}

func run(db *sql.DB, dialect, dir string) error {
	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(fs)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("running %s migrations: %w", dir, err)
	}
	return nil
}
