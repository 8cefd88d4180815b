// Package sqlite is a single-file Room Store on modernc.org/sqlite.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open prepares a SQLite database at path and makes sure the schema exists.
// The pool is limited to one connection, so every write transaction runs alone.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			round INTEGER NOT NULL DEFAULT 1,
			round_id TEXT NOT NULL,
			countdown_end_time INTEGER,
			winner_id INTEGER,
			total_stake_units TEXT NOT NULL DEFAULT '0',
			total_contribution_count INTEGER NOT NULL DEFAULT 0,
			phase_changed_at INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS participants (
			room_id TEXT NOT NULL,
			player_id INTEGER NOT NULL,
			display_name TEXT NOT NULL,
			avatar_url TEXT,
			stake_units TEXT NOT NULL,
			contribution_count INTEGER NOT NULL,
			join_seq INTEGER NOT NULL,
			color_index INTEGER NOT NULL,
			joined_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (room_id, player_id),
			FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS presence (
			room_id TEXT NOT NULL,
			player_id INTEGER NOT NULL,
			display_name TEXT NOT NULL,
			avatar_url TEXT,
			last_seen_at INTEGER NOT NULL,
			PRIMARY KEY (room_id, player_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_participants_room_seq ON participants(room_id, join_seq);`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_status ON rooms(status);`,
		`CREATE INDEX IF NOT EXISTS idx_presence_room_seen ON presence(room_id, last_seen_at DESC);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
