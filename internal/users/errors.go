package users

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrNameTaken          = errors.New("display name already claimed")
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleAlreadyGranted = errors.New("role already granted")
)
