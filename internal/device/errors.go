package device

import "errors"

// Failure classes at the client boundary. Callers classify with
// errors.Is; only ErrRateLimited is ever retryable under the backoff
// policy, and ErrAuthExpired gets exactly one session rebuild.
var (
	// ErrRateLimited is a throttling response from the vendor API.
	ErrRateLimited = errors.New("rate limited by vendor API")

	// ErrAuthExpired is a 401-class failure: the vendor session has
	// expired and must be rebuilt before retrying.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrUnreachable covers transport failures, unknown devices and
	// vendor-side device errors. Terminal for the call, no retry.
	ErrUnreachable = errors.New("device unreachable")

	// ErrInvalidReading marks a sample outside the valid range.
	// Terminal for the call, no retry.
	ErrInvalidReading = errors.New("invalid reading")
)

// FailureClass names a failure class for logging and events.
type FailureClass string

const (
	FailureRateLimited FailureClass = "rate_limited"
	FailureAuthExpired FailureClass = "auth_expired"
	FailureUnreachable FailureClass = "unreachable"
	FailureInvalid     FailureClass = "invalid"
	FailureUnknown     FailureClass = "unknown"
)

// Classify maps an error to its failure class.
func Classify(err error) FailureClass {
	switch {
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrAuthExpired):
		return FailureAuthExpired
	case errors.Is(err, ErrUnreachable):
		return FailureUnreachable
	case errors.Is(err, ErrInvalidReading):
		return FailureInvalid
	default:
		return FailureUnknown
	}
}
