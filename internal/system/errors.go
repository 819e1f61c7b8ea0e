package system

import "errors"

var (
	ErrInviteNotFound = errors.New("invite token not found")
	ErrInviteUsed     = errors.New("invite token already used")
	ErrInviteExpired  = errors.New("invite token expired")
	ErrFlagNotFound   = errors.New("feature flag not found")
)
