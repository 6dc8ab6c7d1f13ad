package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/cache"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

func newTestAppleMusic(t *testing.T, handler http.Handler) *AppleMusicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider := NewAppleMusicProvider(
		shared.AppleMusicConfig{DeveloperToken: "dev-token"},
		cache.NewMemory(), server.Client(), log.New(io.Discard),
	)
	provider.baseURL = server.URL
	provider.limiter = rate.NewLimiter(rate.Inf, 0)
	return provider
}

func appleSongJSON(id, name string) map[string]any {
	return map[string]any{
		"id":   id,
		"type": "songs",
		"attributes": map[string]any{
			"name":             name,
			"artistName":       "Artist",
			"albumName":        "Album",
			"durationInMillis": 215000,
			"url":              "https://music.apple.com/us/song/" + id,
			"artwork": map[string]any{
				"url":    "https://img.example/{w}x{h}bb.jpg",
				"width":  3000,
				"height": 3000,
			},
		},
	}
}

func TestAppleMusicGetPlaylist(t *testing.T) {
	provider := newTestAppleMusic(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer dev-token" {
			t.Errorf("authorization = %q, want developer token", got)
		}
		if r.URL.Path != "/v1/catalog/us/playlists/pl.abc123" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"id": "pl.abc123",
					"attributes": map[string]any{
						"name":        "My Mix",
						"description": map[string]any{"standard": "A mix"},
						"url":         "https://music.apple.com/us/playlist/my-mix/pl.abc123",
						"artwork": map[string]any{
							"url": "https://img.example/{w}x{h}bb.jpg",
						},
					},
					"relationships": map[string]any{
						"tracks": map[string]any{
							"meta": map[string]any{"total": 30},
						},
					},
				},
			},
		})
	}))

	playlist, err := provider.GetPlaylist(context.Background(), "pl.abc123")
	if err != nil {
		t.Fatal(err)
	}
	if playlist.Name != "My Mix" || playlist.TrackCount != 30 {
		t.Errorf("playlist = %+v", playlist)
	}
	if playlist.ImageURL != "https://img.example/640x640bb.jpg" {
		t.Errorf("imageURL = %q, want artwork template resolved", playlist.ImageURL)
	}
}

func TestAppleMusicGetPlaylistEmptyData(t *testing.T) {
	provider := newTestAppleMusic(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	}))

	_, err := provider.GetPlaylist(context.Background(), "pl.abc123")
	pe, ok := models.AsProviderError(err)
	if !ok || pe.Kind != models.ErrKindNotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestAppleMusicGetTracksPagination(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/catalog/us/playlists/pl.abc123/tracks", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		offset := r.URL.Query().Get("offset")

		data := make([]map[string]any, 0, 100)
		for i := 0; i < 100; i++ {
			n := i
			if offset == "100" {
				n += 100
			}
			data = append(data, appleSongJSON(fmt.Sprintf("song%d", n), fmt.Sprintf("Song %d", n)))
		}

		page := map[string]any{"data": data}
		if offset == "" {
			// apple reports next as a relative path
			page["next"] = "/v1/catalog/us/playlists/pl.abc123/tracks?limit=100&offset=100"
		}
		_ = json.NewEncoder(w).Encode(page)
	})

	provider := newTestAppleMusic(t, mux)
	result, err := provider.GetTracks(context.Background(), "pl.abc123", false)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("upstream pages = %d, want 2", calls.Load())
	}
	if result.Total != 200 {
		t.Fatalf("total = %d, want 200", result.Total)
	}
	if result.Tracks[0].AlbumImageURL != "https://img.example/640x640bb.jpg" {
		t.Errorf("albumImageURL = %q, want resolved artwork", result.Tracks[0].AlbumImageURL)
	}
}

func TestAppleMusicGetTracksSkipBuckets(t *testing.T) {
	nonSong := appleSongJSON("ep1", "Some Episode")
	nonSong["type"] = "podcast-episodes"

	provider := newTestAppleMusic(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				appleSongJSON("keep1", "Keeper"),
				{"id": "", "type": "songs"},
				nonSong,
				appleSongJSON("keep1", "Keeper"),
			},
		})
	}))

	result, err := provider.GetTracks(context.Background(), "pl.abc123", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Tracks) != 1 {
		t.Fatalf("kept %d tracks, want 1", len(result.Tracks))
	}
	summary := result.Skipped.Summary
	if summary.Unavailable != 1 || summary.Podcasts != 1 || summary.Duplicates != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestAppleMusicMissingDeveloperToken(t *testing.T) {
	provider := NewAppleMusicProvider(
		shared.AppleMusicConfig{},
		cache.NewMemory(), nil, log.New(io.Discard),
	)

	_, err := provider.GetPlaylist(context.Background(), "pl.abc123")
	pe, ok := models.AsProviderError(err)
	if !ok || pe.Kind != models.ErrKindAuth {
		t.Fatalf("err = %v, want auth_required", err)
	}
	if !errors.Is(err, shared.ErrMissingCredentials) {
		t.Errorf("err should wrap ErrMissingCredentials, got %v", err)
	}
}
