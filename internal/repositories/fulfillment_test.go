package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
)

func newTestStore(t *testing.T) *FulfillmentStore {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migration failed: %v", err)
	}
	return NewFulfillmentStore(db)
}

func seedPairing(t *testing.T, store *FulfillmentStore) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreatePayment(ctx, "pay-1", "user-1"); err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if err := store.AttachPlaylist(ctx, "pay-1", "pl-1", models.ServiceSpotify, 20); err != nil {
		t.Fatalf("AttachPlaylist failed: %v", err)
	}
}

func TestPaymentPlaylistLookup(t *testing.T) {
	store := newTestStore(t)
	seedPairing(t, store)
	ctx := context.Background()

	record, err := store.PaymentPlaylist(ctx, "pay-1", "user-1", "pl-1")
	if err != nil {
		t.Fatalf("PaymentPlaylist failed: %v", err)
	}
	if record == nil {
		t.Fatal("expected a pairing")
	}
	if record.Service != models.ServiceSpotify || record.PaidTrackCount != 20 {
		t.Errorf("record = %+v", record)
	}
	if record.LastReloadAt != nil {
		t.Error("expected no reload stamp on a fresh pairing")
	}
}

func TestPaymentPlaylistUserMismatch(t *testing.T) {
	store := newTestStore(t)
	seedPairing(t, store)

	record, err := store.PaymentPlaylist(context.Background(), "pay-1", "someone-else", "pl-1")
	if err != nil {
		t.Fatalf("PaymentPlaylist failed: %v", err)
	}
	if record != nil {
		t.Error("expected nil for a user mismatch")
	}
}

func TestReplaceTracksAssignsOrder(t *testing.T) {
	store := newTestStore(t)
	seedPairing(t, store)
	ctx := context.Background()

	first := []models.Track{
		{ID: "a", Name: "Alpha"},
		{ID: "b", Name: "Beta"},
		{ID: "c", Name: "Gamma"},
	}
	if err := store.ReplaceTracks(ctx, "pl-1", first); err != nil {
		t.Fatalf("ReplaceTracks failed: %v", err)
	}

	// overwrite with a shorter, reordered list
	second := []models.Track{
		{ID: "c", Name: "Gamma"},
		{ID: "a", Name: "Alpha"},
	}
	if err := store.ReplaceTracks(ctx, "pl-1", second); err != nil {
		t.Fatalf("ReplaceTracks (overwrite) failed: %v", err)
	}

	tracks, err := store.Tracks(ctx, "pl-1")
	if err != nil {
		t.Fatalf("Tracks failed: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("len(tracks) = %d, want 2", len(tracks))
	}
	if tracks[0].ID != "c" || tracks[1].ID != "a" {
		t.Errorf("order = %s, %s; want c, a", tracks[0].ID, tracks[1].ID)
	}
}

func TestSetLastReload(t *testing.T) {
	store := newTestStore(t)
	seedPairing(t, store)
	ctx := context.Background()

	stamp := time.Now().Truncate(time.Second)
	if err := store.SetLastReload(ctx, "pay-1", "pl-1", stamp); err != nil {
		t.Fatalf("SetLastReload failed: %v", err)
	}

	record, err := store.PaymentPlaylist(ctx, "pay-1", "user-1", "pl-1")
	if err != nil {
		t.Fatalf("PaymentPlaylist failed: %v", err)
	}
	if record.LastReloadAt == nil {
		t.Fatal("expected a reload stamp")
	}
	if !record.LastReloadAt.Equal(stamp) {
		t.Errorf("LastReloadAt = %v, want %v", record.LastReloadAt, stamp)
	}

	if err := store.SetLastReload(ctx, "pay-1", "missing", stamp); err == nil {
		t.Error("expected error for unknown pairing")
	}
}
