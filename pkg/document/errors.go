package document

import "errors"

var (
	// ErrUnauthorized is returned when an operation requires a token and
	// none was presented, or the presented token is malformed, forged, or
	// expired. The caller should obtain a valid token.
	ErrUnauthorized = errors.New("missing or invalid token")

	// ErrForbidden is returned when a genuine token does not grant the
	// attempted operation, either because it was issued for a different
	// document or lacks the required permission. Retrying with the same
	// token cannot succeed.
	ErrForbidden = errors.New("token does not permit this operation")

	// ErrInvalidInput is returned when a request is structurally valid but
	// semantically unacceptable, such as an unknown webhook event name.
	ErrInvalidInput = errors.New("invalid input")

	// ErrKeySpaceExhausted is returned when repeated attempts to allocate
	// a fresh document key all collided with existing documents.
	ErrKeySpaceExhausted = errors.New("could not allocate an unused document key")
)
