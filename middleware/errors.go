package middleware

import "errors"

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrNoParser      = errors.New("no caller token parser configured")
)
