package fanout

import "errors"

// Terminal failures. Callers classify with errors.Is.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrResolutionFailed = errors.New("recipient resolution failed")
	ErrBackend          = errors.New("backend failure")
)

// Authorization failures; each also matches ErrUnauthorized.
var (
	ErrProfileNotFound  = authzError("caller profile not found")
	ErrBuildingMismatch = authzError("caller not in building")
	ErrInsufficientRole = authzError("committee only")
)

type authzErr struct{ msg string }

func authzError(msg string) error { return &authzErr{msg: msg} }

func (e *authzErr) Error() string { return e.msg }

func (e *authzErr) Unwrap() error { return ErrUnauthorized }
