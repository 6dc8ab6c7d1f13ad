package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/cache"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const testYTPlaylistID = "PLx0sYbCqOb8TBPRdmBHs5Iftvv9TPboYG"

func newTestYTMusic(t *testing.T, handler http.Handler) *YTMusicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider := NewYTMusicProvider(cache.NewMemory(), server.Client(), log.New(io.Discard))
	provider.baseURL = server.URL
	provider.limiter = rate.NewLimiter(rate.Inf, 0)
	return provider
}

func ytItem(videoID, name, artist string) map[string]any {
	return map[string]any{
		"musicResponsiveListItemRenderer": map[string]any{
			"playlistItemData": map[string]any{"videoId": videoID},
			"flexColumns": []any{
				map[string]any{
					"musicResponsiveListItemFlexColumnRenderer": map[string]any{
						"text": map[string]any{"runs": []any{map[string]any{"text": name}}},
					},
				},
				map[string]any{
					"musicResponsiveListItemFlexColumnRenderer": map[string]any{
						"text": map[string]any{"runs": []any{map[string]any{"text": artist}}},
					},
				},
			},
			"fixedColumns": []any{
				map[string]any{
					"musicResponsiveListItemFixedColumnRenderer": map[string]any{
						"text": map[string]any{"runs": []any{map[string]any{"text": "3:25"}}},
					},
				},
			},
		},
	}
}

func ytItems(page, count int) []any {
	items := make([]any, 0, count)
	for i := 0; i < count; i++ {
		n := page*count + i
		items = append(items, ytItem(fmt.Sprintf("video%05d", n), fmt.Sprintf("Song %d", n), "Artist"))
	}
	return items
}

// firstPageDoc wraps a shelf renderer the way the browse response nests it.
func firstPageDoc(items []any, continuation string) map[string]any {
	shelf := map[string]any{"contents": items}
	if continuation != "" {
		shelf["continuations"] = []any{
			map[string]any{"nextContinuationData": map[string]any{"continuation": continuation}},
		}
	}
	return map[string]any{
		"contents": map[string]any{
			"twoColumnBrowseResultsRenderer": map[string]any{
				"secondaryContents": map[string]any{
					"sectionListRenderer": map[string]any{
						"contents": []any{
							map[string]any{"musicPlaylistShelfRenderer": shelf},
						},
					},
				},
			},
		},
	}
}

func continuationDoc(items []any, continuation string) map[string]any {
	shelf := map[string]any{"contents": items}
	if continuation != "" {
		shelf["continuations"] = []any{
			map[string]any{"nextContinuationData": map[string]any{"continuation": continuation}},
		}
	}
	return map[string]any{
		"continuationContents": map[string]any{
			"musicPlaylistShelfContinuation": shelf,
		},
	}
}

func TestExtractPage(t *testing.T) {
	t.Run("first page shelf with continuations list", func(t *testing.T) {
		doc := firstPageDoc(ytItems(0, 3), "token-a")
		items, token := extractPage(doc)
		if len(items) != 3 {
			t.Errorf("len(items) = %d, want 3", len(items))
		}
		if token != "token-a" {
			t.Errorf("token = %q, want token-a", token)
		}
	})

	t.Run("continuations list wins over inline renderer", func(t *testing.T) {
		items := ytItems(0, 2)
		items = append(items, map[string]any{
			"continuationItemRenderer": map[string]any{
				"continuationEndpoint": map[string]any{
					"continuationCommand": map[string]any{"token": "inline-token"},
				},
			},
		})
		doc := firstPageDoc(items, "list-token")

		got, token := extractPage(doc)
		if token != "list-token" {
			t.Errorf("token = %q, want list-token (continuations list has priority)", token)
		}
		if len(got) != 2 {
			t.Errorf("len(items) = %d, want 2 (inline renderer stripped)", len(got))
		}
	})

	t.Run("inline continuation renderer when no list", func(t *testing.T) {
		items := ytItems(0, 2)
		items = append(items, map[string]any{
			"continuationItemRenderer": map[string]any{
				"continuationEndpoint": map[string]any{
					"continuationCommand": map[string]any{"token": "inline-token"},
				},
			},
		})
		doc := firstPageDoc(items, "")

		got, token := extractPage(doc)
		if token != "inline-token" {
			t.Errorf("token = %q, want inline-token", token)
		}
		if len(got) != 2 {
			t.Errorf("len(items) = %d, want 2", len(got))
		}
	})

	t.Run("continuation page container", func(t *testing.T) {
		doc := continuationDoc(ytItems(1, 4), "token-b")
		items, token := extractPage(doc)
		if len(items) != 4 || token != "token-b" {
			t.Errorf("items = %d, token = %q", len(items), token)
		}
	})

	t.Run("append continuation items action", func(t *testing.T) {
		doc := map[string]any{
			"onResponseReceivedActions": []any{
				map[string]any{
					"appendContinuationItemsAction": map[string]any{
						"continuationItems": ytItems(1, 2),
					},
				},
			},
		}
		items, token := extractPage(doc)
		if len(items) != 2 {
			t.Errorf("len(items) = %d, want 2", len(items))
		}
		if token != "" {
			t.Errorf("token = %q, want empty", token)
		}
	})

	t.Run("unknown shape terminates without items", func(t *testing.T) {
		doc := map[string]any{"responseContext": map[string]any{"visitorData": "x"}}
		items, token := extractPage(doc)
		if items != nil || token != "" {
			t.Errorf("items = %v, token = %q, want nil and empty", items, token)
		}
	})

	t.Run("last page without continuation ends pagination", func(t *testing.T) {
		doc := continuationDoc(ytItems(2, 3), "")
		items, token := extractPage(doc)
		if len(items) != 3 || token != "" {
			t.Errorf("items = %d, token = %q", len(items), token)
		}
	})
}

func TestYTMusicGetTracksPagination(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		ctoken := r.URL.Query().Get("ctoken")

		var doc map[string]any
		switch ctoken {
		case "":
			doc = firstPageDoc(ytItems(0, 100), "page-2")
		case "page-2":
			doc = continuationDoc(ytItems(1, 100), "page-3")
		case "page-3":
			doc = continuationDoc(ytItems(2, 100), "")
		default:
			t.Errorf("unexpected continuation %q", ctoken)
			doc = map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(doc)
	})

	provider := newTestYTMusic(t, handler)
	result, err := provider.GetTracks(context.Background(), testYTPlaylistID, false)
	if err != nil {
		t.Fatal(err)
	}

	if calls.Load() != 3 {
		t.Errorf("browse calls = %d, want exactly 3", calls.Load())
	}
	if result.Total != 300 || len(result.Tracks) != 300 {
		t.Fatalf("total = %d, len = %d, want 300", result.Total, len(result.Tracks))
	}
	if result.Tracks[0].ID != "video00000" || result.Tracks[299].ID != "video00299" {
		t.Error("tracks out of continuation order")
	}
	if result.Tracks[0].DurationMS != 205000 {
		t.Errorf("duration = %d, want 205000", result.Tracks[0].DurationMS)
	}

	// the whole listing is now cached
	if _, err := provider.GetTracks(context.Background(), testYTPlaylistID, false); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("browse calls after cache hit = %d, want 3", calls.Load())
	}
}

func TestYTMusicGetTracksPageCap(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		// every page advertises another continuation; only the page cap stops this
		var doc map[string]any
		if r.URL.Query().Get("ctoken") == "" {
			doc = firstPageDoc(ytItems(int(n-1), 1), "more")
		} else {
			doc = continuationDoc(ytItems(int(n-1), 1), "more")
		}
		_ = json.NewEncoder(w).Encode(doc)
	})

	provider := newTestYTMusic(t, handler)
	result, err := provider.GetTracks(context.Background(), testYTPlaylistID, false)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 50 {
		t.Errorf("browse calls = %d, want 50 (page cap)", calls.Load())
	}
	if len(result.Tracks) != 50 {
		t.Errorf("tracks = %d, want 50", len(result.Tracks))
	}
}

func TestYTMusicGetTracksTrackCap(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var doc map[string]any
		if r.URL.Query().Get("ctoken") == "" {
			doc = firstPageDoc(ytItems(0, 600), "page-2")
		} else {
			doc = continuationDoc(ytItems(1, 600), "page-3")
		}
		_ = json.NewEncoder(w).Encode(doc)
	})

	provider := newTestYTMusic(t, handler)
	result, err := provider.GetTracks(context.Background(), testYTPlaylistID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Tracks) != 1000 {
		t.Errorf("tracks = %d, want 1000 (track cap)", len(result.Tracks))
	}
}

func TestYTMusicGetTracksSkipBuckets(t *testing.T) {
	greyed := ytItem("videoGrey01", "Unavailable Song", "Artist")
	greyed["musicResponsiveListItemRenderer"].(map[string]any)["musicItemRendererDisplayPolicy"] = ytGreyOutPolicy

	noID := ytItem("", "No Video", "Artist")
	delete(noID["musicResponsiveListItemRenderer"].(map[string]any), "playlistItemData")

	items := []any{
		ytItem("videoKeep01", "Keeper", "Artist"),
		greyed,
		noID,
		ytItem("videoKeep01", "Keeper", "Artist"),
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(firstPageDoc(items, ""))
	})

	provider := newTestYTMusic(t, handler)
	result, err := provider.GetTracks(context.Background(), testYTPlaylistID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Tracks) != 1 {
		t.Fatalf("kept %d tracks, want 1", len(result.Tracks))
	}
	if result.Skipped == nil || result.Skipped.Summary.Unavailable != 2 || result.Skipped.Summary.Duplicates != 1 {
		t.Errorf("skipped = %+v", result.Skipped)
	}
}

func TestYTMusicGetPlaylist(t *testing.T) {
	header := map[string]any{
		"musicResponsiveHeaderRenderer": map[string]any{
			"title":       map[string]any{"runs": []any{map[string]any{"text": "Focus "}, map[string]any{"text": "Mix"}}},
			"description": map[string]any{"runs": []any{map[string]any{"text": "Instrumentals"}}},
			"secondSubtitle": map[string]any{
				"runs": []any{
					map[string]any{"text": "1,204 songs"},
					map[string]any{"text": " • "},
					map[string]any{"text": "70 hours"},
				},
			},
			"thumbnail": map[string]any{
				"musicThumbnailRenderer": map[string]any{
					"thumbnail": map[string]any{
						"thumbnails": []any{
							map[string]any{"url": "https://img.example/small.jpg"},
							map[string]any{"url": "https://img.example/large.jpg"},
						},
					},
				},
			},
		},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
		}
		if got := body["browseId"]; got != "VL"+testYTPlaylistID {
			t.Errorf("browseId = %v, want VL-prefixed id", got)
		}
		doc := firstPageDoc(nil, "")
		doc["header"] = header
		_ = json.NewEncoder(w).Encode(doc)
	})

	provider := newTestYTMusic(t, handler)
	playlist, err := provider.GetPlaylist(context.Background(), testYTPlaylistID)
	if err != nil {
		t.Fatal(err)
	}
	if playlist.Name != "Focus Mix" {
		t.Errorf("name = %q, want joined runs", playlist.Name)
	}
	if playlist.TrackCount != 1204 {
		t.Errorf("trackCount = %d, want 1204", playlist.TrackCount)
	}
	if playlist.ImageURL != "https://img.example/large.jpg" {
		t.Errorf("imageURL = %q, want largest thumbnail", playlist.ImageURL)
	}
	if playlist.ID != testYTPlaylistID {
		t.Errorf("id = %q, want normalized id without VL", playlist.ID)
	}
}

func TestYTMusicGetPlaylistNotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"responseContext": map[string]any{}})
	})

	provider := newTestYTMusic(t, handler)
	_, err := provider.GetPlaylist(context.Background(), testYTPlaylistID)
	pe, ok := models.AsProviderError(err)
	if !ok || pe.Kind != models.ErrKindNotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestParseClockDuration(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"3:25", 205000},
		{"0:59", 59000},
		{"1:02:45", 3765000},
		{"not a duration", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseClockDuration(tt.input); got != tt.want {
			t.Errorf("parseClockDuration(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
