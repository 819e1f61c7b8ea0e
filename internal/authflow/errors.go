package authflow

import "errors"

var (
	ErrRateLimited         = errors.New("too many authentication requests")
	ErrMultiDeviceDisabled = errors.New("multi-device authentication is disabled")
	ErrNotAdmin            = errors.New("admin privileges required")
	ErrRequestNotFound     = errors.New("authentication request not found")
	ErrAlreadyResolved     = errors.New("authentication request already resolved")
)
