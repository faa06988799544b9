package domain

import "errors"

// Error taxonomy shared by every pipeline stage. Components wrap these with
// context via fmt.Errorf("...: %w", Err...) and callers classify with errors.Is.
var (
	// ErrInvalidSelector reports a request with an empty or inconsistent
	// spatial or time selector. Not retried.
	ErrInvalidSelector = errors.New("invalid selector")

	// ErrUnsupportedVariable reports a variable, model, source or recipe the
	// catalog does not know. Not retried.
	ErrUnsupportedVariable = errors.New("unsupported variable")

	// ErrSourceUnavailable reports a network, timeout or server failure of an
	// upstream data service. Callers may retry with backoff.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedResponse reports a payload whose axes, shape or units cannot
	// be reconciled. Usually a source/version mismatch; not retried.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrAxisMismatch reports diagnostic inputs whose axes disagree in a way
	// the operation cannot reconcile. Not retried.
	ErrAxisMismatch = errors.New("axis mismatch")

	// ErrInvalidParams reports an unknown composer operation or missing or
	// out-of-range operation parameters. Not retried.
	ErrInvalidParams = errors.New("invalid params")
)

// IsRetryable reports whether err is transient and worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

// ErrorKind returns a short metric label for err's taxonomy class.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidSelector):
		return "invalid_selector"
	case errors.Is(err, ErrUnsupportedVariable):
		return "unsupported_variable"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrAxisMismatch):
		return "axis_mismatch"
	case errors.Is(err, ErrInvalidParams):
		return "invalid_params"
	default:
		return "other"
	}
}
