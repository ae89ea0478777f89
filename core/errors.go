package core

import "errors"

var (
	ErrBadRequest         = errors.New("no data provided")
	ErrMissingCredentials = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTokenMissing       = errors.New("token is missing")
	ErrTokenInvalid       = errors.New("token is invalid or expired")
	ErrTokenExpired       = errors.New("token has expired")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
	ErrEncoding           = errors.New("token encoding failed")
	ErrInternal           = errors.New("internal server error")
)

// Kind groups errors by how they are reported to callers
type Kind string

const (
	KindValidation       Kind = "validation"
	KindAuthentication   Kind = "authentication"
	KindStoreUnavailable Kind = "store_unavailable"
	KindInternal         Kind = "internal"
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrMissingCredentials):
		return KindValidation
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenMissing),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired):
		return KindAuthentication
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}
