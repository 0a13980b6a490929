package auth

import "errors"

var (
	ErrNotFound        = errors.New("auth: not found")
	ErrInvalidArgument = errors.New("auth: invalid argument")
	ErrInvalidToken    = errors.New("auth: invalid token")
	ErrUnauthorized    = errors.New("auth: unauthorized")
	ErrForbidden       = errors.New("auth: forbidden")
)
