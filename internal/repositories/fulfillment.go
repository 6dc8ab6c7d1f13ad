package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/reload"
)

// FulfillmentStore implements reload.Store on SQLite.
type FulfillmentStore struct {
	db *sql.DB
}

// NewFulfillmentStore creates a FulfillmentStore with the given connection.
func NewFulfillmentStore(db *sql.DB) *FulfillmentStore {
	return &FulfillmentStore{db: db}
}

// PaymentPlaylist returns the pairing for (paymentID, playlistID) when the
// payment belongs to userHandle. A missing pairing or a user mismatch both
// return nil without error; the guard treats them identically.
func (s *FulfillmentStore) PaymentPlaylist(ctx context.Context, paymentID, userHandle, playlistID string) (*reload.PaymentPlaylist, error) {
	query := `
		SELECT pp.payment_id, pp.playlist_id, pp.service, pp.paid_track_count, pp.last_reload_at
		FROM payment_playlists pp
		JOIN payments p ON p.id = pp.payment_id
		WHERE pp.payment_id = ? AND pp.playlist_id = ? AND p.user_hash = ?
	`

	var record reload.PaymentPlaylist
	var service string
	var lastReload sql.NullTime

	err := s.db.QueryRowContext(ctx, query, paymentID, playlistID, userHandle).Scan(
		&record.PaymentID,
		&record.PlaylistID,
		&service,
		&record.PaidTrackCount,
		&lastReload,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payment playlist: %w", err)
	}

	record.Service = models.ServiceType(service)
	if lastReload.Valid {
		at := lastReload.Time
		record.LastReloadAt = &at
	}
	return &record, nil
}

// ReplaceTracks overwrites the playlist's track list in one transaction.
// Order is assigned from slice position, 1-based.
func (s *FulfillmentStore) ReplaceTracks(ctx context.Context, playlistID string, tracks []models.Track) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM playlist_tracks WHERE playlist_id = ?", playlistID); err != nil {
		return fmt.Errorf("failed to clear track list: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO playlist_tracks (playlist_id, position, track_id, name, artist, album, isrc, duration_ms, service_link)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, track := range tracks {
		_, err := stmt.ExecContext(ctx, playlistID, i+1, track.ID, track.Name, track.Artist, track.Album, track.ISRC, track.DurationMS, track.ServiceLink)
		if err != nil {
			return fmt.Errorf("failed to insert track %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit track list: %w", err)
	}
	return nil
}

// SetTrackCount updates (or creates) the playlist's stored track count.
func (s *FulfillmentStore) SetTrackCount(ctx context.Context, playlistID string, count int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playlists (id, track_count, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET track_count = excluded.track_count, updated_at = CURRENT_TIMESTAMP
	`, playlistID, count)
	if err != nil {
		return fmt.Errorf("failed to update track count: %w", err)
	}
	return nil
}

// SetLastReload stamps the pairing's last successful reload time.
func (s *FulfillmentStore) SetLastReload(ctx context.Context, paymentID, playlistID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE payment_playlists SET last_reload_at = ? WHERE payment_id = ? AND playlist_id = ?",
		at, paymentID, playlistID)
	if err != nil {
		return fmt.Errorf("failed to stamp reload time: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no pairing for payment %s playlist %s", paymentID, playlistID)
	}
	return nil
}

// CreatePayment records a payment for a user handle.
func (s *FulfillmentStore) CreatePayment(ctx context.Context, paymentID, userHandle string) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO payments (id, user_hash) VALUES (?, ?)", paymentID, userHandle)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// AttachPlaylist pairs a purchased playlist with a payment at its paid
// track count.
func (s *FulfillmentStore) AttachPlaylist(ctx context.Context, paymentID, playlistID string, service models.ServiceType, paidTrackCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_playlists (payment_id, playlist_id, service, paid_track_count)
		VALUES (?, ?, ?, ?)
	`, paymentID, playlistID, service, paidTrackCount)
	if err != nil {
		return fmt.Errorf("failed to attach playlist: %w", err)
	}
	if err := s.SetTrackCount(ctx, playlistID, paidTrackCount); err != nil {
		return err
	}
	return nil
}

// Tracks returns the persisted track list in stored order.
func (s *FulfillmentStore) Tracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, name, artist, album, isrc, duration_ms, service_link
		FROM playlist_tracks
		WHERE playlist_id = ?
		ORDER BY position
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to read track list: %w", err)
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		var track models.Track
		var artist, album, isrc, link sql.NullString
		var duration sql.NullInt64
		if err := rows.Scan(&track.ID, &track.Name, &artist, &album, &isrc, &duration, &link); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		track.Artist = artist.String
		track.Album = album.String
		track.ISRC = isrc.String
		track.DurationMS = int(duration.Int64)
		track.ServiceLink = link.String
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}
