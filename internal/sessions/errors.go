package sessions

import "errors"

// Resolution failures are distinct so the web layer can render specific
// guidance instead of a generic "not logged in".
var (
	ErrNoSession          = errors.New("no session presented")
	ErrInvalidSession     = errors.New("unknown session id")
	ErrExpiredSession     = errors.New("session expired")
	ErrUserDeleted        = errors.New("session owner no longer exists")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrFullAuthRequired   = errors.New("full authentication required")
)
