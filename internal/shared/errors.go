package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")

	// API and provider errors
	ErrAPIRequest        = fmt.Errorf("API request failed")
	ErrUnsupportedOp     = fmt.Errorf("operation not supported by this service")
	ErrShortlinkResolve  = fmt.Errorf("shortlink did not resolve")
	ErrWrongResourceType = fmt.Errorf("resolved to a non-playlist resource")

	// Reload errors
	ErrUnauthorized       = fmt.Errorf("payment and user do not match")
	ErrTrackLimitExceeded = fmt.Errorf("playlist has more tracks than were paid for")
	ErrRateLimited        = fmt.Errorf("reload requested too soon")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
