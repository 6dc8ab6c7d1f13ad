// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
)

// MockProvider is a configurable test double for [providers.Provider].
type MockProvider struct {
	ServiceType models.ServiceType
	Conf        models.ProviderConfig
	Validation  models.URLValidation
	Playlist    *models.Playlist
	Tracks      *models.TracksResult
	Err         error

	GetTracksCalls  int
	LastBypassCache bool
}

func (m *MockProvider) Service() models.ServiceType {
	if m.ServiceType == "" {
		return models.ServiceSpotify
	}
	return m.ServiceType
}

func (m *MockProvider) Config() models.ProviderConfig { return m.Conf }

func (m *MockProvider) ValidateURL(input string) models.URLValidation { return m.Validation }

func (m *MockProvider) ExtractPlaylistID(input string) (string, bool) {
	if !m.Validation.IsValid || m.Validation.ResourceID == "" {
		return "", false
	}
	return m.Validation.ResourceID, true
}

func (m *MockProvider) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	return m.Playlist, m.Err
}

func (m *MockProvider) GetTracks(ctx context.Context, id string, bypassCache bool) (*models.TracksResult, error) {
	m.GetTracksCalls++
	m.LastBypassCache = bypassCache
	return m.Tracks, m.Err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}
