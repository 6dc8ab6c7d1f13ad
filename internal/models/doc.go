// Package models defines the normalized data model shared by every
// streaming-service adapter: service identifiers, URL validation results,
// provider-agnostic playlist and track snapshots, skipped-item accounting,
// capability flags, and the structured error type adapters return across
// their public boundary.
//
// Normalized types:
//   - [Playlist] : playlist metadata, identical shape for all five services
//   - [Track] : track metadata; ISRC, duration and release date are
//     best-effort and stay empty when the upstream does not report them
//   - [TracksResult] : accumulated tracks plus an account of upstream items
//     that existed but were excluded (unavailable, local, podcast, duplicate)
//
// Control types:
//   - [ServiceType] : closed set of the five supported services
//   - [URLValidation] : classification of an arbitrary input string
//   - [ProviderConfig] : read-only capability flags per adapter
//   - [ProviderError] : machine-readable error kind crossing the boundary
package models
