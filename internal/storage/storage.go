package storage

import "errors"

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrRoleAlreadyExists = errors.New("role already exists")
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleAlreadySet    = errors.New("role already assigned to user")
	ErrRoleNotSet        = errors.New("role not assigned to user")
	ErrTokenNotFound     = errors.New("refresh token not found")
	ErrTokenRevoked      = errors.New("refresh token already revoked")
)
