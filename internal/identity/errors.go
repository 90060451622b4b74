package identity

import "errors"

var (
	ErrNotFound           = errors.New("identity: not found")
	ErrAlreadyExists      = errors.New("identity: already exists")
	ErrInvalidInput       = errors.New("identity: invalid input")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrInactiveAccount    = errors.New("identity: account is inactive")
	ErrInvalidToken       = errors.New("identity: invalid token")
)
