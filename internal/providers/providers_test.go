package providers

import (
	"io"
	"testing"
	"time"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/cache"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/credentials"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
	"github.com/charmbracelet/log"
)

// testRegistry builds a registry over all five adapters with in-memory
// stores, the way main wires them up.
func testRegistry(t *testing.T) *Registry {
	t.Helper()
	logger := log.New(io.Discard)
	cacheStore := cache.NewMemory()
	creds := credentials.NewMemoryStore()

	return NewRegistry(
		NewSpotifyProvider(shared.SpotifyConfig{ClientID: "id", RedirectURI: "http://localhost:3000/callback"}, creds, cacheStore, nil, logger),
		NewYTMusicProvider(cacheStore, nil, logger),
		NewAppleMusicProvider(shared.AppleMusicConfig{DeveloperToken: "tok"}, cacheStore, nil, logger),
		NewDeezerProvider(cacheStore, nil, logger),
		NewTidalProvider(shared.TidalConfig{ClientID: "id", RedirectURI: "http://localhost:3000/callback"}, creds, cacheStore, nil, logger),
	)
}

func TestRegistryGet(t *testing.T) {
	registry := testRegistry(t)

	tests := []struct {
		name    string
		service models.ServiceType
		want    models.ServiceType
	}{
		{"known service", models.ServiceDeezer, models.ServiceDeezer},
		{"unknown falls back to default", models.ServiceType("napster"), models.ServiceSpotify},
		{"empty falls back to default", models.ServiceType(""), models.ServiceSpotify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := registry.Get(tt.service).Service(); got != tt.want {
				t.Errorf("Get(%q).Service() = %q, want %q", tt.service, got, tt.want)
			}
		})
	}
}

func TestRegistryGetReturnsSingleton(t *testing.T) {
	registry := testRegistry(t)
	if registry.Get(models.ServiceYouTubeMusic) != registry.Get(models.ServiceYouTubeMusic) {
		t.Error("Get should return the same adapter instance across calls")
	}
}

func TestRegistryIsSupported(t *testing.T) {
	registry := testRegistry(t)

	for _, service := range models.AllServices {
		if !registry.IsSupported(string(service)) {
			t.Errorf("IsSupported(%q) = false, want true", service)
		}
	}
	for _, id := range []string{"", "napster", "SPOTIFY"} {
		if registry.IsSupported(id) {
			t.Errorf("IsSupported(%q) = true, want false", id)
		}
	}
}

func TestRegistryServices(t *testing.T) {
	registry := testRegistry(t)
	services := registry.Services()
	if len(services) != 5 {
		t.Fatalf("len(Services()) = %d, want 5", len(services))
	}
	if services[0] != models.ServiceSpotify {
		t.Errorf("default service = %q, want %q", services[0], models.ServiceSpotify)
	}
}

func TestRegistryDetect(t *testing.T) {
	registry := testRegistry(t)

	tests := []struct {
		name        string
		input       string
		wantService models.ServiceType
		wantValid   bool
		wantFound   bool
	}{
		{
			name:        "spotify playlist URL",
			input:       "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBQVN",
			wantService: models.ServiceSpotify,
			wantValid:   true,
			wantFound:   true,
		},
		{
			name:        "youtube music playlist URL",
			input:       "https://music.youtube.com/playlist?list=PLx0sYbCqOb8TBPRdmBHs5Iftvv9TPboYG",
			wantService: models.ServiceYouTubeMusic,
			wantValid:   true,
			wantFound:   true,
		},
		{
			name:        "deezer playlist URL",
			input:       "https://www.deezer.com/en/playlist/1313621735",
			wantService: models.ServiceDeezer,
			wantValid:   true,
			wantFound:   true,
		},
		{
			name:        "spotify track URL attributed to spotify though invalid",
			input:       "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC",
			wantService: models.ServiceSpotify,
			wantValid:   false,
			wantFound:   true,
		},
		{
			name:      "unrelated URL not detected",
			input:     "https://example.com/playlist/123",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, result, found := registry.Detect(tt.input)
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if !found {
				return
			}
			if provider.Service() != tt.wantService {
				t.Errorf("service = %q, want %q", provider.Service(), tt.wantService)
			}
			if result.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v", result.IsValid, tt.wantValid)
			}
		})
	}
}

// freshToken persists a token that will not need a refresh during the test.
func freshToken(t *testing.T, store credentials.Store, service models.ServiceType, access string) {
	t.Helper()
	err := credentials.SaveToken(store, service, models.OAuthToken{
		AccessToken:  access,
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
}
