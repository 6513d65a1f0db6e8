package generation

import "errors"

// Common errors returned by generators. They form the failure taxonomy the
// queue engine's propagation policy is built on: transient errors earn the
// job another claim cycle, terminal errors fail it immediately.
var (
	// ErrTransient is returned for temporary failures (network errors,
	// timeouts, HTTP 5xx) that survived the client's internal retries but
	// might resolve on a later claim cycle.
	ErrTransient = errors.New("transient generation service failure")

	// ErrServiceUnavailable is returned when the service reports a server
	// error with enough detail to know retrying now is pointless (e.g. a
	// backend configuration problem). Still transient at queue scope.
	ErrServiceUnavailable = errors.New("generation service unavailable")

	// ErrAuthRequired is returned when the service rejects our credentials.
	// Terminal: the stored credential has been cleared and an operator must
	// log in again.
	ErrAuthRequired = errors.New("authentication required")

	// ErrQuotaExceeded is returned when the usage quota is confirmed
	// exhausted, either by the pre-flight check or by the service itself.
	ErrQuotaExceeded = errors.New("generation quota exceeded")

	// ErrPayloadTooLarge is returned for HTTP 413: the image must be
	// compressed or resized before it can be processed. Terminal.
	ErrPayloadTooLarge = errors.New("image payload too large")

	// ErrInvalidImage is returned when the subject cannot be turned into a
	// valid payload (missing file, unsupported type, oversized source).
	// Terminal, not retried.
	ErrInvalidImage = errors.New("invalid image for generation")

	// ErrInvalidResponse is returned when the service answers with a body
	// that cannot be interpreted. Terminal.
	ErrInvalidResponse = errors.New("invalid response from generation service")
)

// IsTerminal reports whether err should fail a job immediately instead of
// earning it another claim cycle. Unknown errors count as transient so an
// unclassified failure can never permanently fail a job on its own.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrAuthRequired) ||
		errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrInvalidImage) ||
		errors.Is(err, ErrInvalidResponse)
}
