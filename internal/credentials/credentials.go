// Package credentials persists OAuth tokens and PKCE verifiers as opaque
// named settings.
//
// Adapters never talk to the database directly; they read and write named
// values through [Store] so tests can substitute an in-memory double.
package credentials

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
)

// Store is the named-setting contract used for OAuth state.
type Store interface {
	// Get returns the setting value, or ok=false when unset.
	Get(name string) (value string, ok bool, err error)

	// Set writes a setting (create-or-replace).
	Set(name, value string) error

	// Delete removes a setting. Deleting an absent setting is not an error.
	Delete(name string) error
}

// Setting names per service.
func tokenSetting(service models.ServiceType) string {
	return string(service) + "_oauth_token"
}

func verifierSetting(service models.ServiceType) string {
	return string(service) + "_pkce_verifier"
}

// SaveToken persists the token record for a service as JSON.
func SaveToken(store Store, service models.ServiceType, token models.OAuthToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	return store.Set(tokenSetting(service), string(data))
}

// LoadToken reads the persisted token record for a service.
func LoadToken(store Store, service models.ServiceType) (*models.OAuthToken, error) {
	raw, ok, err := store.Get(tokenSetting(service))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var token models.OAuthToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("failed to parse stored token: %w", err)
	}
	return &token, nil
}

// ClearToken erases the persisted token record for a service.
func ClearToken(store Store, service models.ServiceType) error {
	return store.Delete(tokenSetting(service))
}

// SaveVerifier persists the transient PKCE code verifier.
func SaveVerifier(store Store, service models.ServiceType, verifier string) error {
	return store.Set(verifierSetting(service), verifier)
}

// TakeVerifier reads and deletes the PKCE code verifier in one step.
// The verifier is single-use: it must not survive the code exchange.
func TakeVerifier(store Store, service models.ServiceType) (string, error) {
	verifier, ok, err := store.Get(verifierSetting(service))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("no pending authorization: verifier not found")
	}
	if err := store.Delete(verifierSetting(service)); err != nil {
		return "", err
	}
	return verifier, nil
}

// SQLStore persists settings in a SQLite table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a SQLStore and ensures its table exists.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(name string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", name, err)
	}
	return value, true, nil
}

func (s *SQLStore) Set(name, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings (name, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		name, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", name, err)
	}
	return nil
}

func (s *SQLStore) Delete(name string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", name, err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{settings: make(map[string]string)}
}

func (m *MemoryStore) Get(name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.settings[name]
	return value, ok, nil
}

func (m *MemoryStore) Set(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[name] = value
	return nil
}

func (m *MemoryStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, name)
	return nil
}
