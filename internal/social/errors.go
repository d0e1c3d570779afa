package social

import "errors"

// Rejection reasons. Every failed call wraps exactly one of these, and a
// rejected call never changes ledger state.
var (
	// ErrAlreadyRegistered is returned when an identity registers twice.
	ErrAlreadyRegistered = errors.New("user already registered")

	// ErrEmptyInput is returned for an empty username, post or comment.
	ErrEmptyInput = errors.New("empty input")

	// ErrUnauthorized is returned when an unregistered identity calls an
	// operation that requires registration.
	ErrUnauthorized = errors.New("caller is not registered")

	// ErrNotFound is returned for a post_id or comment_id outside current bounds.
	ErrNotFound = errors.New("not found")
)

// Reason returns a short stable label for a rejection error, suitable for
// metrics and API responses. It returns "internal" for any other error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// IsRejection reports whether err is one of the caller input errors above.
func IsRejection(err error) bool {
	return Reason(err) != "internal"
}
