package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/cache"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/models"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
	"github.com/charmbracelet/log"
)

// maxTracks bounds the accumulated track list regardless of the
// upstream-reported total. Hitting the cap is a documented truncation, not
// an error.
const maxTracks = 1000

var (
	// parenthetical or bracketed decorative tags: remaster notes, re-issues
	decorationRe = regexp.MustCompile(`(?i)\s*[(\[][^)\]]*(remaster|re-?issue|anniversary edition)[^)\]]*[)\]]`)

	// trailing " - 2011 Remaster" style suffixes
	remasterSuffixRe = regexp.MustCompile(`(?i)\s*-\s*(\d{4}\s+)?remaster(ed)?(\s+version)?\s*$`)

	spacesRe = regexp.MustCompile(`\s{2,}`)
)

// cleanTrackName strips service-specific decorative noise from a track
// name. Shared by every adapter so the same upstream recording normalizes
// to the same name across services.
func cleanTrackName(name string) string {
	cleaned := decorationRe.ReplaceAllString(name, "")
	cleaned = remasterSuffixRe.ReplaceAllString(cleaned, "")
	cleaned = spacesRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return strings.TrimSpace(name)
	}
	return cleaned
}

// cachedJSON reads key from the store and unmarshals it into out.
// Store failures are logged and treated as a miss; the cache is an
// optimization, never a gate.
func cachedJSON(store cache.Store, logger *log.Logger, key string, out any) bool {
	raw, ok, err := store.Get(key)
	if err != nil {
		logger.Warn("cache read failed", "key", key, "err", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		logger.Warn("cache entry unreadable, dropping", "key", key, "err", err)
		_ = store.Del(key)
		return false
	}
	return true
}

// writeCache marshals value and writes it through to the store.
func writeCache(store cache.Store, logger *log.Logger, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		logger.Warn("cache marshal failed", "key", key, "err", err)
		return
	}
	if err := store.Set(key, raw, ttl); err != nil {
		logger.Warn("cache write failed", "key", key, "err", err)
	}
}

// resolveShortlink follows redirects on shortURL and re-runs validate on
// the final URL. The two failure modes are distinct: the link may resolve
// to this service but to the wrong resource type, or it may not resolve to
// this service at all.
func resolveShortlink(ctx context.Context, client *http.Client, service models.ServiceType, shortURL string, validate func(string) models.URLValidation) (models.URLValidation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return models.URLValidation{}, validationErr(service, "malformed shortlink URL")
	}

	resp, err := client.Do(req)
	if err != nil {
		return models.URLValidation{}, upstreamErr(service, "shortlink request failed", err)
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	result := validate(finalURL)
	if result.IsValid {
		return result, nil
	}
	if result.IsServiceURL {
		return result, &models.ProviderError{Kind: models.ErrKindValidation, Service: service, Message: "shortlink resolved to a non-playlist resource", Err: shared.ErrWrongResourceType}
	}
	return result, &models.ProviderError{Kind: models.ErrKindValidation, Service: service, Message: "shortlink did not resolve to this service", Err: shared.ErrShortlinkResolve}
}
