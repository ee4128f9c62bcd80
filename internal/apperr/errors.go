package apperr

import "errors"

var (
	ErrAuth            = errors.New("authentication failed")
	ErrEndpointMissing = errors.New("validation endpoint missing")
	ErrNetwork         = errors.New("network failure")
	ErrConfig          = errors.New("invalid configuration")
	ErrNotFound        = errors.New("not found")
)

// Label maps an error to its outcome label for history rows and events.
// Unrecognized errors count as network failures.
func Label(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrEndpointMissing):
		return "endpoint_missing"
	case errors.Is(err, ErrConfig):
		return "config"
	default:
		return "network"
	}
}
