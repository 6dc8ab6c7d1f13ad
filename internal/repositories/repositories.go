// Package repositories provides the SQLite persistence layer consumed by
// the reload guard: payment/playlist pairings, ordered track lists and
// reload stamps.
package repositories

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order; each statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		user_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS payment_playlists (
		payment_id TEXT NOT NULL,
		playlist_id TEXT NOT NULL,
		service TEXT NOT NULL,
		paid_track_count INTEGER NOT NULL DEFAULT 0,
		last_reload_at DATETIME,
		PRIMARY KEY (payment_id, playlist_id),
		FOREIGN KEY (payment_id) REFERENCES payments(id)
	)`,
	`CREATE TABLE IF NOT EXISTS playlists (
		id TEXT PRIMARY KEY,
		track_count INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS playlist_tracks (
		playlist_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		track_id TEXT NOT NULL,
		name TEXT NOT NULL,
		artist TEXT,
		album TEXT,
		isrc TEXT,
		duration_ms INTEGER,
		service_link TEXT,
		PRIMARY KEY (playlist_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_playlists_playlist
		ON payment_playlists(playlist_id)`,
}

// Migrate creates the fulfillment schema.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
